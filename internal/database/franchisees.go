package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"photoprint-backend/internal/models"
)

const franchiseeColumns = `
	id, username, company_name, contact_person, contact_phone, status,
	total_quota, used_quota, remaining_quota,
	printer_shop_id, printer_shop_name, created_at, updated_at`

func scanFranchisee(s rowScanner) (*models.FranchiseeAccount, error) {
	var f models.FranchiseeAccount
	err := s.Scan(
		&f.ID, &f.Username, &f.CompanyName, &f.ContactPerson, &f.ContactPhone, &f.Status,
		&f.TotalQuota, &f.UsedQuota, &f.RemainingQuota,
		&f.PrinterShopID, &f.PrinterShopName, &f.CreatedAt, &f.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan franchisee: %w", err)
	}
	return &f, nil
}

func (c *Client) GetFranchisee(ctx context.Context, id int64) (*models.FranchiseeAccount, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT `+franchiseeColumns+` FROM franchisee_accounts WHERE id = $1`, id)
	return scanFranchisee(row)
}

// GetFranchiseeForUpdateTx locks the account row for the duration of the
// transaction. Every balance mutation goes through this lock.
func (c *Client) GetFranchiseeForUpdateTx(tx *sql.Tx, id int64) (*models.FranchiseeAccount, error) {
	row := tx.QueryRow(
		`SELECT `+franchiseeColumns+` FROM franchisee_accounts WHERE id = $1 FOR UPDATE`, id)
	return scanFranchisee(row)
}

func (c *Client) UpdateFranchiseeQuotasTx(tx *sql.Tx, f *models.FranchiseeAccount) error {
	_, err := tx.Exec(`
		UPDATE franchisee_accounts
		SET total_quota = $1, used_quota = $2, remaining_quota = $3, updated_at = NOW()
		WHERE id = $4
	`, f.TotalQuota, f.UsedQuota, f.RemainingQuota, f.ID)
	if err != nil {
		return fmt.Errorf("failed to update franchisee quotas: %w", err)
	}
	return nil
}

func (c *Client) InsertLedgerEntryTx(tx *sql.Tx, e *models.CreditLedgerEntry) error {
	err := tx.QueryRow(`
		INSERT INTO credit_ledger_entries (
			franchisee_id, kind, amount, bonus_amount, order_ref, admin_id, description
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`, e.FranchiseeID, e.Kind, e.Amount, e.BonusAmount, e.OrderRef, e.AdminID, e.Description,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert ledger entry: %w", err)
	}
	return nil
}

func (c *Client) ListLedgerEntries(ctx context.Context, franchiseeID int64, limit int) ([]models.CreditLedgerEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, franchisee_id, kind, amount, bonus_amount, order_ref, admin_id, description, created_at
		FROM credit_ledger_entries
		WHERE franchisee_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, franchiseeID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	defer rows.Close()

	var out []models.CreditLedgerEntry
	for rows.Next() {
		var e models.CreditLedgerEntry
		if err := rows.Scan(
			&e.ID, &e.FranchiseeID, &e.Kind, &e.Amount, &e.BonusAmount,
			&e.OrderRef, &e.AdminID, &e.Description, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// FindDeductionTx looks up the deduction entry recorded for an order, used to
// validate that a refund has something to reverse.
func (c *Client) FindDeductionTx(tx *sql.Tx, franchiseeID int64, orderRef string) (*models.CreditLedgerEntry, error) {
	var e models.CreditLedgerEntry
	err := tx.QueryRow(`
		SELECT id, franchisee_id, kind, amount, bonus_amount, order_ref, admin_id, description, created_at
		FROM credit_ledger_entries
		WHERE franchisee_id = $1 AND order_ref = $2 AND kind = $3
		ORDER BY id DESC LIMIT 1
	`, franchiseeID, orderRef, models.LedgerDeduction).Scan(
		&e.ID, &e.FranchiseeID, &e.Kind, &e.Amount, &e.BonusAmount,
		&e.OrderRef, &e.AdminID, &e.Description, &e.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}
