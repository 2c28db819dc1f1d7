package models

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

// Order is one line-item row of a logical order. Rows sharing an
// order_number form a single customer-facing order.
type Order struct {
	ID              int64
	OrderNumber     string
	CustomerName    string
	CustomerPhone   string
	CustomerAddress sql.NullString
	OpenID          sql.NullString

	FranchiseeID        sql.NullInt64
	FranchiseeDeduction decimal.Decimal

	ProductID   sql.NullInt64
	ProductName sql.NullString
	SizeID      sql.NullInt64
	Size        sql.NullString
	StyleName   sql.NullString

	Price  decimal.Decimal
	Status OrderStatus

	// Artifact filenames. Bare filenames only; URLs are derived.
	OriginalImage sql.NullString
	HDImage       sql.NullString
	FinalImage    sql.NullString

	PrinterJobID        sql.NullString
	PrinterSendTime     sql.NullTime
	PrinterErrorMessage sql.NullString

	LogisticsCarrier  sql.NullString
	LogisticsTracking sql.NullString
	LogisticsRemark   sql.NullString

	Notes sql.NullString

	CreatedAt           time.Time
	ShootingCompletedAt sql.NullTime
	RetouchCompletedAt  sql.NullTime
	CompletedAt         sql.NullTime
}

// OrderImage is an input photo attached to an order. At most one row per
// order carries IsMain.
type OrderImage struct {
	ID      int64
	OrderID int64
	Path    string
	IsMain  bool
}
