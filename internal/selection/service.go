package selection

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"photoprint-backend/internal/artifact"
	"photoprint-backend/internal/database"
	"photoprint-backend/internal/models"
	"photoprint-backend/internal/orders"
)

var phonePattern = regexp.MustCompile(`^1\d{10}$`)

// CodeGenerator renders the mini-app QR image for a selection token scene.
type CodeGenerator interface {
	SelectionCode(ctx context.Context, shortToken string) (string, error)
}

type Service struct {
	db     *database.Client
	store  *artifact.Store
	tokens TokenStore
	orders *orders.Service
	qr     CodeGenerator
}

func NewService(db *database.Client, store *artifact.Store, tokens TokenStore, ord *orders.Service, qr CodeGenerator) *Service {
	return &Service{db: db, store: store, tokens: tokens, orders: ord, qr: qr}
}

// IssueToken allocates a selection token for a franchisee and renders the
// QR image carrying its short form.
func (s *Service) IssueToken(ctx context.Context, franchiseeID int64) (*Token, string, error) {
	if _, err := s.db.GetFranchisee(ctx, franchiseeID); err != nil {
		return nil, "", err
	}
	t := NewToken(franchiseeID, time.Now())
	if err := s.tokens.Save(ctx, t); err != nil {
		return nil, "", err
	}

	qrImage := ""
	if s.qr != nil {
		img, err := s.qr.SelectionCode(ctx, t.ShortToken)
		if err != nil {
			// The token is still usable by manual entry; surface the QR
			// failure in logs only.
			log.Printf("selection: QR generation failed for franchisee %d: %v", franchiseeID, err)
		} else {
			qrImage = img
		}
	}
	return t, qrImage, nil
}

// validOpenID rejects the placeholder identities the mini-app sends before
// the user has granted a profile.
func validOpenID(openid string) bool {
	return openid != "" && openid != "anonymous" && len(openid) >= 10
}

// VerifyToken consumes a token (full or short form) and returns the
// franchisee's orders authored by the verifying openid.
func (s *Service) VerifyToken(ctx context.Context, tokenOrShort, openid string) (*Token, []models.Order, error) {
	if tokenOrShort == "" {
		return nil, nil, models.Validationf("token is required")
	}
	if !validOpenID(openid) {
		return nil, nil, models.Validationf("无效的openid")
	}
	t, err := s.tokens.MarkUsed(ctx, tokenOrShort, openid)
	if err != nil {
		return nil, nil, err
	}
	list, err := s.db.ListOrdersByOpenID(ctx, t.FranchiseeID, openid)
	if err != nil {
		return nil, nil, err
	}
	return t, list, nil
}

// SearchOrders is the non-token entry: lookup by phone and/or order number
// within one franchisee's scope.
func (s *Service) SearchOrders(ctx context.Context, franchiseeID int64, phone, orderNumber string) ([]models.Order, error) {
	if franchiseeID <= 0 {
		return nil, models.Validationf("franchisee_id is required")
	}
	phone = strings.TrimSpace(phone)
	orderNumber = strings.TrimSpace(orderNumber)
	if phone == "" && orderNumber == "" {
		return nil, models.Validationf("phone or order_number is required")
	}
	if phone != "" && !phonePattern.MatchString(phone) {
		return nil, models.Validationf("手机号格式不正确")
	}
	return s.db.SearchOrders(ctx, franchiseeID, phone, orderNumber)
}

// SubmitResult reports what one selection submission created.
type SubmitResult struct {
	Created    []models.SelectionOrder
	Total      decimal.Decimal
	ExtraCount int
	ExtraFee   decimal.Decimal
}

// Submit materialises a SelectionOrder per picked item and advances the
// parent order. All rows and the state change commit atomically; a
// duplicate submission of an already-selected order returns the existing
// rows.
func (s *Service) Submit(ctx context.Context, orderID int64, items []models.SelectionItem) (*SubmitResult, error) {
	if len(items) == 0 {
		return nil, models.Validationf("at least one selection is required")
	}
	order, err := s.db.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if order.Status == models.StatusSelectionCompleted {
		existing, err := s.db.ListSelectionOrders(ctx, orderID)
		if err != nil {
			return nil, err
		}
		result := &SubmitResult{Created: existing, Total: sumRowTotals(existing)}
		product, err := s.primaryProduct(ctx, order, items)
		if err != nil {
			return nil, err
		}
		distinct := make(map[string]bool, len(existing))
		for _, so := range existing {
			distinct[so.ImagePath] = true
		}
		result.ExtraFee = decimal.Zero
		if n := len(distinct) - product.FreeSelectionCount; n > 0 {
			result.ExtraCount = n
			result.ExtraFee = product.ExtraPhotoPrice.Mul(decimal.NewFromInt(int64(n)))
		}
		return result, nil
	}
	if order.Status != models.StatusPendingSelection {
		return nil, &models.StateConflictError{
			OrderNumber: order.OrderNumber,
			Current:     order.Status,
			Requested:   models.StatusSelectionCompleted,
		}
	}

	resolved, err := s.resolveItems(ctx, order, items)
	if err != nil {
		return nil, err
	}

	product, err := s.primaryProduct(ctx, order, items)
	if err != nil {
		return nil, err
	}
	extraCount, extraFee := priceRows(resolved, product)

	var (
		created []models.SelectionOrder
		ev      orders.Event
		total   = decimal.Zero
	)
	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		o, err := s.db.GetOrderForUpdateTx(tx, orderID)
		if err != nil {
			return err
		}
		if o.Status != models.StatusPendingSelection {
			return &models.StateConflictError{
				OrderNumber: o.OrderNumber, Current: o.Status,
				Requested: models.StatusSelectionCompleted,
			}
		}

		seq, err := s.db.CountSelectionOrdersTx(tx, orderID)
		if err != nil {
			return err
		}
		now := time.Now()
		for i := range resolved {
			so := &resolved[i]
			so.OrderNumber = fmt.Sprintf("SEL%s%03d", now.Format("20060102150405"), seq+i+1)
			if err := s.db.CreateSelectionOrderTx(tx, so); err != nil {
				return err
			}
		}
		total = sumRowTotals(resolved)

		note := fmt.Sprintf("客户选片完成：%d 张，合计 %s 元", len(resolved), total)
		if err := s.db.AppendOrderNoteTx(tx, orderID, note); err != nil {
			return err
		}
		ev, err = s.orders.AdvanceTx(tx, o, models.StatusSelectionCompleted, "selection")
		if err != nil {
			return err
		}
		created = resolved
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.orders.Bus().Publish(ev)
	return &SubmitResult{Created: created, Total: total, ExtraCount: extraCount, ExtraFee: extraFee}, nil
}

// resolveItems validates each picked image against the order's AITask
// outputs or the effect files in the artifact store.
func (s *Service) resolveItems(ctx context.Context, order *models.Order, items []models.SelectionItem) ([]models.SelectionOrder, error) {
	effectFiles, err := s.store.GlobEffect(order.OrderNumber)
	if err != nil {
		return nil, err
	}
	effectSet := make(map[string]bool, len(effectFiles))
	for _, f := range effectFiles {
		effectSet[f] = true
	}

	out := make([]models.SelectionOrder, 0, len(items))
	for _, item := range items {
		if item.Quantity <= 0 {
			item.Quantity = 1
		}
		so := models.SelectionOrder{
			OriginalOrderID:     order.ID,
			OriginalOrderNumber: order.OrderNumber,
			ProductID:           sql.NullInt64{Int64: item.ProductID, Valid: item.ProductID > 0},
			SizeID:              sql.NullInt64{Int64: item.SizeID, Valid: item.SizeID > 0},
			Quantity:            item.Quantity,
			Status:              models.SelectionPending,
		}
		if item.Price != "" {
			p, err := decimal.NewFromString(item.Price)
			if err != nil || p.IsNegative() {
				return nil, models.Validationf("invalid price %q", item.Price)
			}
			so.Price = p
		}

		if item.TaskID > 0 {
			task, err := s.db.GetTask(ctx, item.TaskID)
			if err != nil {
				return nil, models.Validationf("image %d not found", item.TaskID)
			}
			if task.OrderID != order.ID || task.Status != models.TaskCompleted || !task.OutputImagePath.Valid {
				return nil, models.Validationf("image %d is not a finished result for this order", item.TaskID)
			}
			so.TaskID = sql.NullInt64{Int64: task.ID, Valid: true}
			so.ImagePath = task.OutputImagePath.String
		} else {
			// File-system marker: the mini-app references the newest
			// effect files directly when no task row exists.
			if len(effectFiles) == 0 {
				return nil, models.Validationf("order %s has no effect images", order.OrderNumber)
			}
			so.ImagePath = effectFiles[len(effectFiles)-1]
		}
		if so.ImagePath != "" && !so.TaskID.Valid && !effectSet[so.ImagePath] {
			return nil, models.Validationf("image %s does not belong to order %s", so.ImagePath, order.OrderNumber)
		}
		out = append(out, so)
	}
	return out, nil
}

// primaryProduct resolves the product whose free_selection_count and
// extra_photo_price govern the fee.
func (s *Service) primaryProduct(ctx context.Context, order *models.Order, items []models.SelectionItem) (*models.Product, error) {
	productID := int64(0)
	if order.ProductID.Valid {
		productID = order.ProductID.Int64
	} else if len(items) > 0 && items[0].ProductID > 0 {
		productID = items[0].ProductID
	}
	if productID == 0 {
		return nil, models.Validationf("order %s has no product to price selections against", order.OrderNumber)
	}
	return s.db.GetProduct(ctx, productID)
}

// sumRowTotals sums price × quantity over the rows.
func sumRowTotals(rows []models.SelectionOrder) decimal.Decimal {
	total := decimal.Zero
	for _, so := range rows {
		qty := so.Quantity
		if qty <= 0 {
			qty = 1
		}
		total = total.Add(so.Price.Mul(decimal.NewFromInt(int64(qty))))
	}
	return total
}

// priceRows applies the extra-photo surcharge: each distinct image beyond
// the product's free allowance is charged extra_photo_price once, on its
// first row.
func priceRows(rows []models.SelectionOrder, product *models.Product) (extraCount int, extraFee decimal.Decimal) {
	extraFee = decimal.Zero
	if product == nil {
		return 0, extraFee
	}
	seen := make(map[string]int)
	for i := range rows {
		if rows[i].Price.IsZero() {
			rows[i].Price = product.Price
		}
		if _, ok := seen[rows[i].ImagePath]; ok {
			continue
		}
		idx := len(seen)
		seen[rows[i].ImagePath] = idx
		if idx >= product.FreeSelectionCount {
			rows[i].Price = rows[i].Price.Add(product.ExtraPhotoPrice)
			extraFee = extraFee.Add(product.ExtraPhotoPrice)
		}
	}
	if n := len(seen) - product.FreeSelectionCount; n > 0 {
		extraCount = n
	}
	return extraCount, extraFee
}
