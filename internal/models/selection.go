package models

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

// SelectionOrder is a line item created when the customer picks an
// image/product/size combination during photo selection.
type SelectionOrder struct {
	ID                  int64
	OrderNumber         string
	OriginalOrderID     int64
	OriginalOrderNumber string

	// TaskID references the AITask that produced the picked image; zero
	// (NULL) when the image was matched from the artifact store instead.
	TaskID    sql.NullInt64
	ImagePath string

	ProductID sql.NullInt64
	SizeID    sql.NullInt64
	Quantity  int

	// Price includes the per-row share of the extra-photo fee.
	Price decimal.Decimal

	Status    SelectionStatus
	CreatedAt time.Time
}
