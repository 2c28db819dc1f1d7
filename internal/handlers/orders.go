package handlers

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"photoprint-backend/internal/artifact"
	"photoprint-backend/internal/database"
	"photoprint-backend/internal/middleware"
	"photoprint-backend/internal/models"
	"photoprint-backend/internal/orders"
)

type OrdersHandler struct {
	db     *database.Client
	store  *artifact.Store
	orders *orders.Service
}

func NewOrdersHandler(db *database.Client, store *artifact.Store, ord *orders.Service) *OrdersHandler {
	return &OrdersHandler{db: db, store: store, orders: ord}
}

// CreateOrder godoc
// @Summary     Create a new order
// @Description Creates an order from a multipart upload. Franchisee-backed orders deduct the price from the franchisee's credit atomically; insufficient credit creates nothing.
// @Tags        orders
// @Accept      multipart/form-data
// @Produce     json
// @Security    Bearer
// @Param       customer_name formData string true "Customer name"
// @Param       customer_phone formData string true "Customer phone"
// @Param       images formData file true "Input photos"
// @Success     201 {object} models.CreateOrderResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     401 {object} models.ErrorResponse
// @Router      /orders [post]
func (h *OrdersHandler) CreateOrder(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid multipart form", Message: err.Error()})
		return
	}
	files := form.File["images"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "at least one image is required"})
		return
	}

	params := orders.CreateParams{
		CustomerName:    c.PostForm("customer_name"),
		CustomerPhone:   c.PostForm("customer_phone"),
		CustomerAddress: c.PostForm("customer_address"),
		OpenID:          c.PostForm("openid"),
		ProductName:     c.PostForm("product_name"),
		SizeName:        c.PostForm("size"),
		StyleName:       c.PostForm("style_name"),
		Actor:           callerActor(c),
	}
	params.ProductID, _ = strconv.ParseInt(c.PostForm("product_id"), 10, 64)
	params.SizeID, _ = strconv.ParseInt(c.PostForm("size_id"), 10, 64)

	// Franchisee callers are always scoped to their own account; admins may
	// create on behalf of any franchisee or none.
	if fid := middleware.CallerFranchiseeID(c); fid > 0 {
		params.FranchiseeID = fid
	} else {
		params.FranchiseeID, _ = strconv.ParseInt(c.PostForm("franchisee_id"), 10, 64)
		params.Paid = true
	}

	if raw := c.PostForm("price"); raw != "" {
		price, err := decimal.NewFromString(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid price", Message: raw})
			return
		}
		params.Price = price
	} else if params.SizeID > 0 {
		if size, err := h.db.GetProductSize(c.Request.Context(), params.SizeID); err == nil {
			params.Price = size.Price
		}
	}

	// Store uploads before the transaction; filenames are unique so a
	// failed transaction leaves only unreferenced files.
	orderNumber := orders.NewOrderNumber()
	params.OrderNumber = orderNumber
	for i, file := range files {
		src, err := file.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "unreadable upload", Message: err.Error()})
			return
		}
		name := fmt.Sprintf("%s_original_%d%s", orderNumber, i+1, filepath.Ext(file.Filename))
		_, err = h.store.Put(name, src)
		src.Close()
		if err != nil {
			writeError(c, err)
			return
		}
		params.ImagePaths = append(params.ImagePaths, name)
	}

	order, err := h.orders.Create(c.Request.Context(), params)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, models.CreateOrderResponse{
		OrderNumber: order.OrderNumber,
		Status:      string(order.Status),
	})
}

// GetOrder godoc
// @Summary     Get one order
// @Tags        orders
// @Produce     json
// @Security    Bearer
// @Param       id path int true "Order ID"
// @Success     200 {object} models.OrderSummary
// @Failure     404 {object} models.ErrorResponse
// @Router      /orders/{id} [get]
func (h *OrdersHandler) GetOrder(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid order id"})
		return
	}
	order, err := h.db.GetOrder(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, orderSummaries([]models.Order{*order})[0])
}

// ListTasks godoc
// @Summary     List the AI tasks of an order
// @Tags        orders
// @Produce     json
// @Security    Bearer
// @Param       id path int true "Order ID"
// @Success     200 {object} models.TaskListResponse
// @Failure     404 {object} models.ErrorResponse
// @Router      /orders/{id}/tasks [get]
func (h *OrdersHandler) ListTasks(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid order id"})
		return
	}
	order, err := h.db.GetOrder(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	tasks, err := h.db.ListTasksByOrder(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	resp := models.TaskListResponse{OrderNumber: order.OrderNumber}
	for _, t := range tasks {
		summary := models.TaskSummary{
			ID:              t.ID,
			ProviderKind:    string(t.ProviderKind),
			Status:          string(t.Status),
			OutputImagePath: t.OutputImagePath.String,
			OutputURL:       t.OutputURL.String,
			ErrorMessage:    t.ErrorMessage.String,
			RetryCount:      t.RetryCount,
			CreatedAt:       t.CreatedAt,
		}
		if t.CompletedAt.Valid {
			at := t.CompletedAt.Time
			summary.CompletedAt = &at
		}
		resp.Tasks = append(resp.Tasks, summary)
	}
	c.JSON(http.StatusOK, resp)
}

// UpdateStatus godoc
// @Summary     Advance or restore an order's status
// @Description Moves the order along the lifecycle. A failed order is restored to the requested state; any other order advances through the normal transition rules.
// @Tags        orders
// @Accept      json
// @Produce     json
// @Security    Bearer
// @Param       id path int true "Order ID"
// @Success     200 {object} models.OrderSummary
// @Failure     409 {object} models.ErrorResponse
// @Router      /orders/{id}/status [post]
func (h *OrdersHandler) UpdateStatus(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid order id"})
		return
	}
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request body", Message: err.Error()})
		return
	}
	target := models.OrderStatus(req.Status)

	current, err := h.db.GetOrder(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	var order *models.Order
	if current.Status == models.StatusFailed {
		order, err = h.orders.Restore(c.Request.Context(), id, target, callerActor(c))
	} else {
		order, err = h.orders.Advance(c.Request.Context(), id, target, callerActor(c))
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, orderSummaries([]models.Order{*order})[0])
}

// CancelOrder godoc
// @Summary     Cancel an order
// @Description Soft-cancels an order. A franchisee-backed order past paid gets its deduction refunded in the same transaction.
// @Tags        orders
// @Produce     json
// @Security    Bearer
// @Param       id path int true "Order ID"
// @Success     200 {object} models.OrderSummary
// @Failure     409 {object} models.ErrorResponse
// @Router      /orders/{id}/cancel [post]
func (h *OrdersHandler) CancelOrder(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid order id"})
		return
	}
	order, err := h.orders.Cancel(c.Request.Context(), id, callerActor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, orderSummaries([]models.Order{*order})[0])
}

func callerActor(c *gin.Context) string {
	if v, ok := c.Get(middleware.UserIDKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return "unknown"
}
