package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"photoprint-backend/internal/models"
)

// writeError maps domain errors onto the HTTP taxonomy. Unknown errors get
// a correlation id so operators can find the logged stack.
func writeError(c *gin.Context, err error) {
	var validation *models.ValidationError
	var conflict *models.StateConflictError

	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "validation failed", Message: validation.Msg})
	case errors.Is(err, models.ErrInsufficientCredit):
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "insufficient credit", Message: err.Error()})
	case errors.Is(err, models.ErrRefundWithoutDebit):
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "refund rejected", Message: err.Error()})
	case errors.Is(err, models.ErrTokenNotFound), errors.Is(err, models.ErrTokenUsed), errors.Is(err, models.ErrTokenExpired):
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "token rejected", Message: err.Error()})
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "not found"})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, models.ErrorResponse{
			Error:        "state conflict",
			Message:      conflict.Error(),
			CurrentState: string(conflict.Current),
		})
	default:
		correlationID := uuid.New().String()
		log.Printf("internal error [%s]: %v", correlationID, err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:         "internal error",
			CorrelationID: correlationID,
		})
	}
}

func orderSummaries(list []models.Order) []models.OrderSummary {
	out := make([]models.OrderSummary, 0, len(list))
	for _, o := range list {
		out = append(out, models.OrderSummary{
			ID:            o.ID,
			OrderNumber:   o.OrderNumber,
			CustomerName:  o.CustomerName,
			CustomerPhone: o.CustomerPhone,
			Status:        string(o.Status),
			CreatedAt:     o.CreatedAt,
		})
	}
	return out
}
