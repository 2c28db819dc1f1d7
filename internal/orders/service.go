package orders

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"photoprint-backend/internal/database"
	"photoprint-backend/internal/ledger"
	"photoprint-backend/internal/models"
)

// Service serialises per-order transitions through a row lock and keeps the
// credit ledger in step with cancellations.
type Service struct {
	db     *database.Client
	ledger *ledger.Service
	bus    *Bus
}

func NewService(db *database.Client, led *ledger.Service, bus *Bus) *Service {
	return &Service{db: db, ledger: led, bus: bus}
}

func (s *Service) Bus() *Bus { return s.bus }

// refundOnCancel reports whether cancelling o must write a refund ledger
// entry. The deduction is taken at creation, so any recorded deduction is
// refunded regardless of how far the order progressed.
func refundOnCancel(o *models.Order) bool {
	return o.FranchiseeID.Valid && o.FranchiseeDeduction.IsPositive()
}

// AdvanceTx applies one transition inside the caller's transaction. The
// order must have been loaded FOR UPDATE by the caller. Guards:
// entering shooting requires an order image; entering pending_selection
// requires every task settled with at least one completed; entering
// selection_completed requires a selection row; cancelling a
// franchisee-backed order past paid refunds the deduction first.
func (s *Service) AdvanceTx(tx *sql.Tx, o *models.Order, to models.OrderStatus, actor string) (Event, error) {
	if !to.Valid() {
		return Event{}, models.Validationf("unknown order status %q", to)
	}
	if !CanTransition(o.Status, to) {
		return Event{}, &models.StateConflictError{
			OrderNumber: o.OrderNumber, Current: o.Status, Requested: to,
		}
	}

	now := time.Now()
	switch to {
	case models.StatusShooting:
		n, err := s.db.CountOrderImagesTx(tx, o.ID)
		if err != nil {
			return Event{}, err
		}
		if n == 0 {
			return Event{}, models.Validationf("order %s has no images", o.OrderNumber)
		}
	case models.StatusRetouching:
		if err := s.db.StampShootingCompletedTx(tx, o.ID, now); err != nil {
			return Event{}, err
		}
	case models.StatusAIProcessing:
		if err := s.db.StampRetouchCompletedTx(tx, o.ID, now); err != nil {
			return Event{}, err
		}
	case models.StatusPendingSelection:
		settled, anyCompleted, err := s.db.TasksSettledTx(tx, o.ID)
		if err != nil {
			return Event{}, err
		}
		if !settled || !anyCompleted {
			return Event{}, models.Validationf("order %s still has unfinished AI tasks", o.OrderNumber)
		}
	case models.StatusSelectionCompleted:
		n, err := s.db.CountSelectionOrdersTx(tx, o.ID)
		if err != nil {
			return Event{}, err
		}
		if n == 0 {
			return Event{}, models.Validationf("order %s has no selections", o.OrderNumber)
		}
	case models.StatusCancelled:
		if refundOnCancel(o) {
			err := s.ledger.RefundInTx(tx, o.FranchiseeID.Int64, o.OrderNumber,
				fmt.Sprintf("order %s cancelled", o.OrderNumber))
			if err != nil {
				return Event{}, err
			}
		}
	}

	var completedAt *time.Time
	if to == models.StatusShipped {
		completedAt = &now
	}
	if err := s.db.UpdateOrderStatusTx(tx, o.ID, to, completedAt); err != nil {
		return Event{}, err
	}

	ev := Event{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		From:        o.Status,
		To:          to,
		At:          now,
		Actor:       actor,
	}
	o.Status = to
	return ev, nil
}

// Advance runs one transition in its own transaction and publishes the
// event after commit.
func (s *Service) Advance(ctx context.Context, orderID int64, to models.OrderStatus, actor string) (*models.Order, error) {
	var (
		order *models.Order
		ev    Event
	)
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		o, err := s.db.GetOrderForUpdateTx(tx, orderID)
		if err != nil {
			return err
		}
		ev, err = s.AdvanceTx(tx, o, to, actor)
		if err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("orders: %s %s -> %s (actor=%s)", ev.OrderNumber, ev.From, ev.To, ev.Actor)
	s.bus.Publish(ev)
	return order, nil
}

// CreateParams is the ingress payload after upload handling: images are
// already stored and referenced by artifact key.
type CreateParams struct {
	// OrderNumber, when already allocated by the caller (uploads are named
	// before the transaction), is used as-is.
	OrderNumber     string
	CustomerName    string
	CustomerPhone   string
	CustomerAddress string
	OpenID          string
	FranchiseeID    int64 // 0 = not franchisee-backed
	ProductID       int64
	ProductName     string
	SizeID          int64
	SizeName        string
	StyleName       string
	Price           decimal.Decimal
	ImagePaths      []string
	// Paid marks admin manual entry; the order starts at paid instead of
	// unpaid.
	Paid  bool
	Actor string
}

// Create persists a new order. Order row, images, and the franchisee credit
// deduction commit atomically; insufficient credit leaves nothing behind.
func (s *Service) Create(ctx context.Context, p CreateParams) (*models.Order, error) {
	if p.CustomerName == "" || p.CustomerPhone == "" {
		return nil, models.Validationf("customer name and phone are required")
	}
	if len(p.ImagePaths) == 0 {
		return nil, models.Validationf("at least one image is required")
	}
	if p.Price.IsNegative() {
		return nil, models.Validationf("price must not be negative")
	}

	number := p.OrderNumber
	if number == "" {
		number = NewOrderNumber()
	}

	o := &models.Order{
		OrderNumber:     number,
		CustomerName:    p.CustomerName,
		CustomerPhone:   p.CustomerPhone,
		CustomerAddress: sql.NullString{String: p.CustomerAddress, Valid: p.CustomerAddress != ""},
		OpenID:          sql.NullString{String: p.OpenID, Valid: p.OpenID != ""},
		FranchiseeID:    sql.NullInt64{Int64: p.FranchiseeID, Valid: p.FranchiseeID > 0},
		ProductID:       sql.NullInt64{Int64: p.ProductID, Valid: p.ProductID > 0},
		ProductName:     sql.NullString{String: p.ProductName, Valid: p.ProductName != ""},
		SizeID:          sql.NullInt64{Int64: p.SizeID, Valid: p.SizeID > 0},
		Size:            sql.NullString{String: p.SizeName, Valid: p.SizeName != ""},
		StyleName:       sql.NullString{String: p.StyleName, Valid: p.StyleName != ""},
		Price:           p.Price,
		Status:          models.StatusUnpaid,
	}
	if p.Paid {
		o.Status = models.StatusPaid
	}
	if p.FranchiseeID > 0 && p.Price.IsPositive() {
		o.FranchiseeDeduction = p.Price
	}

	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if p.FranchiseeID > 0 && p.Price.IsPositive() {
			if err := s.ledger.DeductInTx(tx, p.FranchiseeID, p.Price, o.OrderNumber); err != nil {
				return err
			}
		}
		if err := s.db.CreateOrderTx(tx, o); err != nil {
			return err
		}
		for i, path := range p.ImagePaths {
			if err := s.db.AddOrderImageTx(tx, o.ID, path, i == 0); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("orders: created %s (franchisee=%d, price=%s)", o.OrderNumber, p.FranchiseeID, p.Price)
	return o, nil
}

// Cancel soft-cancels the order, refunding the franchisee deduction when
// one was taken.
func (s *Service) Cancel(ctx context.Context, orderID int64, actor string) (*models.Order, error) {
	return s.Advance(ctx, orderID, models.StatusCancelled, actor)
}

// Fail parks the order in failed with an operator-visible reason.
func (s *Service) Fail(ctx context.Context, orderID int64, actor, reason string) (*models.Order, error) {
	var (
		order *models.Order
		ev    Event
	)
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		o, err := s.db.GetOrderForUpdateTx(tx, orderID)
		if err != nil {
			return err
		}
		ev, err = s.AdvanceTx(tx, o, models.StatusFailed, actor)
		if err != nil {
			return err
		}
		if reason != "" {
			if err := s.db.AppendOrderNoteTx(tx, o.ID, "failed: "+reason); err != nil {
				return err
			}
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.bus.Publish(ev)
	return order, nil
}

// Restore moves a failed order back to an operator-chosen prior state.
func (s *Service) Restore(ctx context.Context, orderID int64, to models.OrderStatus, actor string) (*models.Order, error) {
	if !to.Valid() || to.Terminal() || to == models.StatusFailed {
		return nil, models.Validationf("cannot restore to %q", to)
	}
	var order *models.Order
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		o, err := s.db.GetOrderForUpdateTx(tx, orderID)
		if err != nil {
			return err
		}
		if o.Status != models.StatusFailed {
			return &models.StateConflictError{OrderNumber: o.OrderNumber, Current: o.Status, Requested: to}
		}
		if err := s.db.UpdateOrderStatusTx(tx, o.ID, to, nil); err != nil {
			return err
		}
		o.Status = to
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("orders: restored %s to %s (actor=%s)", order.OrderNumber, to, actor)
	return order, nil
}

// ManualLogistics attaches shipping details and advances to shipped in one
// transaction.
func (s *Service) ManualLogistics(ctx context.Context, orderID int64, carrier, tracking, remark, actor string) (*models.Order, error) {
	if carrier == "" || tracking == "" {
		return nil, models.Validationf("carrier and tracking number are required")
	}
	var (
		order *models.Order
		ev    Event
	)
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		o, err := s.db.GetOrderForUpdateTx(tx, orderID)
		if err != nil {
			return err
		}
		if err := s.db.SetLogisticsTx(tx, o.ID, carrier, tracking, remark); err != nil {
			return err
		}
		ev, err = s.AdvanceTx(tx, o, models.StatusShipped, actor)
		if err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.bus.Publish(ev)
	return order, nil
}

// NewOrderNumber produces an order number like PP20260828153000-4821.
func NewOrderNumber() string {
	n, _ := rand.Int(rand.Reader, big.NewInt(10000))
	return fmt.Sprintf("PP%s-%04d", time.Now().Format("20060102150405"), n.Int64())
}
