package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"photoprint-backend/internal/models"
	"photoprint-backend/internal/orders"
	"photoprint-backend/internal/printer"
)

type PrinterHandler struct {
	dispatcher *printer.Dispatcher
	orders     *orders.Service
}

func NewPrinterHandler(d *printer.Dispatcher, ord *orders.Service) *PrinterHandler {
	return &PrinterHandler{dispatcher: d, orders: ord}
}

// SendToPrinter godoc
// @Summary     Dispatch an order to the print vendor
// @Description Sends the HD image to the configured print vendor. On vendor acceptance the order advances to manufacturing; re-sending an already-accepted order is a no-op beyond finishing the state advance.
// @Tags        printer
// @Produce     json
// @Security    Bearer
// @Param       id path int true "Order ID"
// @Success     200 {object} models.DispatchResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     409 {object} models.ErrorResponse
// @Router      /orders/{id}/send-to-printer [post]
func (h *PrinterHandler) SendToPrinter(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid order id"})
		return
	}
	order, err := h.dispatcher.Dispatch(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.DispatchResponse{
		OrderNumber: order.OrderNumber,
		Status:      string(order.Status),
		VendorJobID: order.PrinterJobID.String,
	})
}

// SetLogistics godoc
// @Summary     Record shipping details
// @Description Attaches carrier and tracking number to an order and advances it to shipped in the same transaction.
// @Tags        printer
// @Accept      json
// @Produce     json
// @Security    Bearer
// @Param       id path int true "Order ID"
// @Param       request body models.ManualLogisticsRequest true "Logistics details"
// @Success     200 {object} models.OrderSummary
// @Failure     409 {object} models.ErrorResponse
// @Router      /orders/{id}/logistics [post]
func (h *PrinterHandler) SetLogistics(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid order id"})
		return
	}
	var req models.ManualLogisticsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request body", Message: err.Error()})
		return
	}
	order, err := h.orders.ManualLogistics(c.Request.Context(), id, req.Carrier, req.TrackingNumber, req.Remark, callerActor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, orderSummaries([]models.Order{*order})[0])
}
