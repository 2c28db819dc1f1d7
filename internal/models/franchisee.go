package models

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

// FranchiseeAccount is a reseller running a photo kiosk. The quota columns
// are a cache over the credit ledger: remaining = total - used at all times.
type FranchiseeAccount struct {
	ID            int64
	Username      string
	CompanyName   string
	ContactPerson string
	ContactPhone  string
	Status        string

	TotalQuota     decimal.Decimal
	UsedQuota      decimal.Decimal
	RemainingQuota decimal.Decimal

	// Optional per-franchisee print vendor routing; empty means the
	// global printer settings apply.
	PrinterShopID   sql.NullString
	PrinterShopName sql.NullString

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreditLedgerEntry is one append-only credit delta. Amount is signed:
// positive for recharge/bonus/refund, negative for deduction.
type CreditLedgerEntry struct {
	ID           int64
	FranchiseeID int64
	Amount       decimal.Decimal
	BonusAmount  decimal.Decimal
	Kind         LedgerKind
	OrderRef     sql.NullString
	AdminID      sql.NullInt64
	Description  sql.NullString
	CreatedAt    time.Time
}
