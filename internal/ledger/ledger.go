// Package ledger owns franchisee credit. Every balance change is an
// append-only ledger entry written in the same transaction as the cached
// quota update on the account row, under a row lock.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/shopspring/decimal"

	"photoprint-backend/internal/database"
	"photoprint-backend/internal/models"
)

type Service struct {
	db *database.Client
}

func NewService(db *database.Client) *Service {
	return &Service{db: db}
}

// Recharge credits an account. Bonus is free credit granted on top of the
// paid amount; both raise total_quota.
func (s *Service) Recharge(ctx context.Context, franchiseeID int64, amount, bonus decimal.Decimal, adminID int64, description string) (*models.FranchiseeAccount, error) {
	if amount.IsNegative() || bonus.IsNegative() {
		return nil, models.Validationf("recharge amounts must not be negative")
	}
	if amount.IsZero() && bonus.IsZero() {
		return nil, models.Validationf("recharge amount is required")
	}

	var account *models.FranchiseeAccount
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		f, err := s.db.GetFranchiseeForUpdateTx(tx, franchiseeID)
		if err != nil {
			return err
		}
		entry := &models.CreditLedgerEntry{
			FranchiseeID: franchiseeID,
			Amount:       amount.Add(bonus),
			BonusAmount:  bonus,
			Kind:         models.LedgerRecharge,
			AdminID:      sql.NullInt64{Int64: adminID, Valid: adminID > 0},
			Description:  sql.NullString{String: description, Valid: description != ""},
		}
		if amount.IsZero() {
			entry.Kind = models.LedgerBonus
		}
		if err := s.db.InsertLedgerEntryTx(tx, entry); err != nil {
			return err
		}
		f.TotalQuota = f.TotalQuota.Add(amount).Add(bonus)
		f.RemainingQuota = f.TotalQuota.Sub(f.UsedQuota)
		if err := s.db.UpdateFranchiseeQuotasTx(tx, f); err != nil {
			return err
		}
		account = f
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("ledger: recharged franchisee %d amount=%s bonus=%s remaining=%s",
		franchiseeID, amount, bonus, account.RemainingQuota)
	return account, nil
}

// DeductInTx debits amount against the account inside the caller's
// transaction. Returns models.ErrInsufficientCredit when remaining credit
// cannot cover the amount; nothing is written in that case.
func (s *Service) DeductInTx(tx *sql.Tx, franchiseeID int64, amount decimal.Decimal, orderRef string) error {
	if !amount.IsPositive() {
		return models.Validationf("deduction amount must be positive")
	}
	f, err := s.db.GetFranchiseeForUpdateTx(tx, franchiseeID)
	if err != nil {
		return err
	}
	if f.RemainingQuota.LessThan(amount) {
		return models.ErrInsufficientCredit
	}
	entry := &models.CreditLedgerEntry{
		FranchiseeID: franchiseeID,
		Amount:       amount.Neg(),
		Kind:         models.LedgerDeduction,
		OrderRef:     sql.NullString{String: orderRef, Valid: orderRef != ""},
	}
	if err := s.db.InsertLedgerEntryTx(tx, entry); err != nil {
		return err
	}
	f.UsedQuota = f.UsedQuota.Add(amount)
	f.RemainingQuota = f.TotalQuota.Sub(f.UsedQuota)
	return s.db.UpdateFranchiseeQuotasTx(tx, f)
}

// RefundInTx reverses the deduction previously recorded for orderRef. A
// refund with no matching deduction is rejected rather than silently
// creating credit.
func (s *Service) RefundInTx(tx *sql.Tx, franchiseeID int64, orderRef, description string) error {
	deduction, err := s.db.FindDeductionTx(tx, franchiseeID, orderRef)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrRefundWithoutDebit
		}
		return err
	}
	f, err := s.db.GetFranchiseeForUpdateTx(tx, franchiseeID)
	if err != nil {
		return err
	}
	amount := deduction.Amount.Neg() // deduction amounts are negative
	entry := &models.CreditLedgerEntry{
		FranchiseeID: franchiseeID,
		Amount:       amount,
		Kind:         models.LedgerRefund,
		OrderRef:     sql.NullString{String: orderRef, Valid: true},
		Description:  sql.NullString{String: description, Valid: description != ""},
	}
	if err := s.db.InsertLedgerEntryTx(tx, entry); err != nil {
		return err
	}
	f.UsedQuota = f.UsedQuota.Sub(amount)
	f.RemainingQuota = f.TotalQuota.Sub(f.UsedQuota)
	return s.db.UpdateFranchiseeQuotasTx(tx, f)
}

// Balance returns the account with remaining credit recomputed from the
// ledger, surfacing any drift between the cache and the entries.
func (s *Service) Balance(ctx context.Context, franchiseeID int64) (*models.FranchiseeAccount, error) {
	f, err := s.db.GetFranchisee(ctx, franchiseeID)
	if err != nil {
		return nil, err
	}
	entries, err := s.db.ListLedgerEntries(ctx, franchiseeID, 200)
	if err != nil {
		return nil, err
	}
	derived := decimal.Zero
	for _, e := range entries {
		derived = derived.Add(e.Amount)
	}
	if len(entries) < 200 && !derived.Equal(f.RemainingQuota) {
		return nil, fmt.Errorf("ledger drift for franchisee %d: cached %s, derived %s",
			franchiseeID, f.RemainingQuota, derived)
	}
	return f, nil
}

func (s *Service) Entries(ctx context.Context, franchiseeID int64, limit int) ([]models.CreditLedgerEntry, error) {
	return s.db.ListLedgerEntries(ctx, franchiseeID, limit)
}
