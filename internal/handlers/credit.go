package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"photoprint-backend/internal/ledger"
	"photoprint-backend/internal/middleware"
	"photoprint-backend/internal/models"
)

type CreditHandler struct {
	ledger *ledger.Service
}

func NewCreditHandler(l *ledger.Service) *CreditHandler {
	return &CreditHandler{ledger: l}
}

// Recharge godoc
// @Summary     Recharge a franchisee account
// @Description Appends a recharge (plus optional bonus) ledger entry and updates the cached balances atomically.
// @Tags        credit
// @Accept      json
// @Produce     json
// @Security    Bearer
// @Param       franchisee_id path int true "Franchisee ID"
// @Param       request body models.RechargeRequest true "Amount and optional bonus"
// @Success     200 {object} models.RechargeResponse
// @Failure     400 {object} models.ErrorResponse
// @Router      /credit/{franchisee_id}/recharge [post]
func (h *CreditHandler) Recharge(c *gin.Context) {
	franchiseeID, err := strconv.ParseInt(c.Param("franchisee_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid franchisee id"})
		return
	}
	var req models.RechargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request body", Message: err.Error()})
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid amount", Message: req.Amount})
		return
	}
	bonus := decimal.Zero
	if req.BonusAmount != "" {
		bonus, err = decimal.NewFromString(req.BonusAmount)
		if err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid bonus amount", Message: req.BonusAmount})
			return
		}
	}

	adminID := int64(0)
	if v, ok := c.Get(middleware.UserIDKey); ok {
		if s, ok := v.(string); ok {
			adminID, _ = strconv.ParseInt(s, 10, 64)
		}
	}

	account, err := h.ledger.Recharge(c.Request.Context(), franchiseeID, amount, bonus, adminID, req.Description)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.RechargeResponse{
		FranchiseeID:   account.ID,
		RemainingQuota: account.RemainingQuota.String(),
		TotalQuota:     account.TotalQuota.String(),
	})
}

// ListEntries godoc
// @Summary     List a franchisee's ledger entries
// @Tags        credit
// @Produce     json
// @Security    Bearer
// @Param       franchisee_id path int true "Franchisee ID"
// @Param       limit query int false "Max entries (default 100)"
// @Success     200 {object} models.LedgerEntriesResponse
// @Failure     404 {object} models.ErrorResponse
// @Router      /credit/{franchisee_id}/entries [get]
func (h *CreditHandler) ListEntries(c *gin.Context) {
	franchiseeID, err := strconv.ParseInt(c.Param("franchisee_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid franchisee id"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	entries, err := h.ledger.Entries(c.Request.Context(), franchiseeID, limit)
	if err != nil {
		writeError(c, err)
		return
	}

	resp := models.LedgerEntriesResponse{FranchiseeID: franchiseeID}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, models.LedgerEntry{
			ID:          e.ID,
			Amount:      e.Amount.String(),
			BonusAmount: e.BonusAmount.String(),
			Kind:        string(e.Kind),
			OrderRef:    e.OrderRef.String,
			Description: e.Description.String,
			CreatedAt:   e.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, resp)
}
