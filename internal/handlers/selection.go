package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"photoprint-backend/internal/middleware"
	"photoprint-backend/internal/models"
	"photoprint-backend/internal/selection"
)

type SelectionHandler struct {
	selection *selection.Service
}

func NewSelectionHandler(svc *selection.Service) *SelectionHandler {
	return &SelectionHandler{selection: svc}
}

// IssueQRCode godoc
// @Summary     Issue a selection token and QR code
// @Description Allocates a single-use selection token (5-minute TTL) for a franchisee and renders the mini-app QR code carrying its short form.
// @Tags        photo-selection
// @Accept      json
// @Produce     json
// @Security    Bearer
// @Param       request body models.IssueTokenRequest false "Target franchisee (admins only; franchisee callers are scoped to themselves)"
// @Success     200 {object} models.QRCodeResponse
// @Failure     400 {object} models.ErrorResponse
// @Router      /photo-selection/qrcode [post]
func (h *SelectionHandler) IssueQRCode(c *gin.Context) {
	var req models.IssueTokenRequest
	_ = c.ShouldBindJSON(&req)

	franchiseeID := middleware.CallerFranchiseeID(c)
	if franchiseeID == 0 {
		franchiseeID = req.FranchiseeID
	}
	if franchiseeID == 0 {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "franchisee_id is required"})
		return
	}

	token, qrImage, err := h.selection.IssueToken(c.Request.Context(), franchiseeID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.QRCodeResponse{
		Token:       token.Token,
		ShortToken:  token.ShortToken,
		QRCodeImage: qrImage,
		ExpiresAt:   token.ExpiresAt,
	})
}

// VerifyToken godoc
// @Summary     Verify a selection token
// @Description Consumes the token (full or short form), binds the openid, and returns the franchisee's orders authored by that openid. A token verifies at most once.
// @Tags        photo-selection
// @Accept      json
// @Produce     json
// @Param       request body models.VerifyTokenRequest true "Token and openid"
// @Success     200 {object} models.VerifyTokenResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     401 {object} models.ErrorResponse
// @Router      /photo-selection/verify-token [post]
func (h *SelectionHandler) VerifyToken(c *gin.Context) {
	var req models.VerifyTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request body", Message: err.Error()})
		return
	}

	token, list, err := h.selection.VerifyToken(c.Request.Context(), req.Token, req.OpenID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.VerifyTokenResponse{
		FranchiseeID: token.FranchiseeID,
		Orders:       orderSummaries(list),
	})
}

// SearchOrders godoc
// @Summary     Search selectable orders
// @Description Mini-app fallback when no token is available: look up orders by phone and/or order number within one franchisee's scope.
// @Tags        photo-selection
// @Accept      json
// @Produce     json
// @Param       request body models.SearchOrdersRequest true "Search criteria"
// @Success     200 {object} models.SearchOrdersResponse
// @Failure     400 {object} models.ErrorResponse
// @Router      /photo-selection/search [post]
func (h *SelectionHandler) SearchOrders(c *gin.Context) {
	var req models.SearchOrdersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request body", Message: err.Error()})
		return
	}
	list, err := h.selection.SearchOrders(c.Request.Context(), req.FranchiseeID, req.Phone, req.OrderNumber)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.SearchOrdersResponse{
		FranchiseeID: req.FranchiseeID,
		Orders:       orderSummaries(list),
		Count:        len(list),
	})
}

// Submit godoc
// @Summary     Submit photo selections
// @Description Creates one selection order per picked image with the extra-photo fee applied, and advances the parent order to selection_completed. All rows commit atomically.
// @Tags        photo-selection
// @Accept      json
// @Produce     json
// @Param       order_id path int true "Parent order ID"
// @Param       request body models.SubmitSelectionRequest true "Picked images"
// @Success     200 {object} models.SubmitSelectionResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     409 {object} models.ErrorResponse
// @Router      /photo-selection/{order_id}/submit [post]
func (h *SelectionHandler) Submit(c *gin.Context) {
	orderID, err := strconv.ParseInt(c.Param("order_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid order id"})
		return
	}
	var req models.SubmitSelectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request body", Message: err.Error()})
		return
	}

	result, err := h.selection.Submit(c.Request.Context(), orderID, req.Selections)
	if err != nil {
		writeError(c, err)
		return
	}

	resp := models.SubmitSelectionResponse{
		Total:      result.Total.String(),
		ExtraCount: result.ExtraCount,
		ExtraFee:   result.ExtraFee.String(),
		Status:     string(models.StatusSelectionCompleted),
	}
	for _, so := range result.Created {
		resp.OrderNumber = so.OriginalOrderNumber
		resp.SelectionOrders = append(resp.SelectionOrders, so.OrderNumber)
	}
	c.JSON(http.StatusOK, resp)
}
