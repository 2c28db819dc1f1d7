package orders

import (
	"database/sql"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"photoprint-backend/internal/models"
)

func TestRefundOnCancel(t *testing.T) {
	franchisee := sql.NullInt64{Int64: 3, Valid: true}

	// The deduction is taken at creation, so even an order cancelled while
	// still unpaid gets its credit back.
	assert.True(t, refundOnCancel(&models.Order{
		Status:              models.StatusUnpaid,
		FranchiseeID:        franchisee,
		FranchiseeDeduction: decimal.RequireFromString("120"),
	}))
	assert.True(t, refundOnCancel(&models.Order{
		Status:              models.StatusShooting,
		FranchiseeID:        franchisee,
		FranchiseeDeduction: decimal.RequireFromString("120"),
	}))

	// No deduction recorded: nothing to refund.
	assert.False(t, refundOnCancel(&models.Order{
		Status:       models.StatusPaid,
		FranchiseeID: franchisee,
	}))

	// Not franchisee-backed.
	assert.False(t, refundOnCancel(&models.Order{
		Status:              models.StatusPaid,
		FranchiseeDeduction: decimal.RequireFromString("120"),
	}))
}
