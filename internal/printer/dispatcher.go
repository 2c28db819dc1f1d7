package printer

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"photoprint-backend/internal/artifact"
	"photoprint-backend/internal/config"
	"photoprint-backend/internal/database"
	"photoprint-backend/internal/models"
	"photoprint-backend/internal/orders"
)

// Dispatcher sends hd_ready orders to the print vendor and advances them to
// manufacturing on success. Repeated dispatch of the same order is
// idempotent: an order that already holds a vendor job id is not re-sent.
type Dispatcher struct {
	db       *database.Client
	store    *artifact.Store
	orders   *orders.Service
	settings *config.RuntimeStore

	// newClient is swappable in tests.
	newClient func(endpoint string) *Client
}

func NewDispatcher(db *database.Client, store *artifact.Store, ord *orders.Service, settings *config.RuntimeStore) *Dispatcher {
	return &Dispatcher{
		db:        db,
		store:     store,
		orders:    ord,
		settings:  settings,
		newClient: NewClient,
	}
}

// Subscribe auto-dispatches orders as they enter hd_ready. Manual re-send
// through the HTTP surface remains available for vendor rejections.
func (d *Dispatcher) Subscribe(bus *orders.Bus) {
	bus.Subscribe(func(ev orders.Event) {
		if ev.To != models.StatusHDReady {
			return
		}
		go func() {
			if _, err := d.Dispatch(context.Background(), ev.OrderID); err != nil {
				log.Printf("printer: auto-dispatch of order %s: %v", ev.OrderNumber, err)
			}
		}()
	})
}

// Dispatch sends one order to the vendor. Business failures record
// printer_error_message and keep the order in hd_ready; transport failures
// are retried with backoff up to the configured maximum.
func (d *Dispatcher) Dispatch(ctx context.Context, orderID int64) (*models.Order, error) {
	order, err := d.db.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.StatusHDReady {
		return nil, &models.StateConflictError{
			OrderNumber: order.OrderNumber,
			Current:     order.Status,
			Requested:   models.StatusManufacturing,
		}
	}
	if !order.HDImage.Valid || order.HDImage.String == "" {
		return nil, models.Validationf("order %s has no HD image", order.OrderNumber)
	}
	if order.PrinterJobID.Valid && order.PrinterJobID.String != "" {
		// Already accepted by the vendor; finish the state advance if a
		// prior run died between the send and the commit.
		return d.orders.Advance(ctx, orderID, models.StatusManufacturing, "print-dispatcher")
	}

	snap, err := d.settings.Snapshot()
	if err != nil {
		return nil, err
	}
	payload, err := d.buildPayload(ctx, order, snap)
	if err != nil {
		return nil, err
	}

	client := d.newClient(snap.PrinterAPIURL)
	result, err := d.sendWithRetry(ctx, client, payload, snap.PrinterMaxRetries)
	if err != nil {
		if dbErr := d.db.SetPrinterError(ctx, orderID, err.Error()); dbErr != nil {
			log.Printf("printer: order %s: failed to record error: %v", order.OrderNumber, dbErr)
		}
		return nil, err
	}
	if !result.Success {
		if dbErr := d.db.SetPrinterError(ctx, orderID, result.Message); dbErr != nil {
			log.Printf("printer: order %s: failed to record error: %v", order.OrderNumber, dbErr)
		}
		return nil, models.Validationf("print vendor rejected order %s: %s", order.OrderNumber, result.Message)
	}

	var (
		updated *models.Order
		ev      orders.Event
	)
	err = d.db.WithTx(ctx, func(tx *sql.Tx) error {
		o, err := d.db.GetOrderForUpdateTx(tx, orderID)
		if err != nil {
			return err
		}
		if err := d.db.SetPrinterResultTx(tx, orderID, result.VendorJobID, time.Now()); err != nil {
			return err
		}
		ev, err = d.orders.AdvanceTx(tx, o, models.StatusManufacturing, "print-dispatcher")
		if err != nil {
			return err
		}
		updated = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	d.orders.Bus().Publish(ev)
	log.Printf("printer: order %s dispatched, vendor job %s", order.OrderNumber, result.VendorJobID)
	return updated, nil
}

func (d *Dispatcher) sendWithRetry(ctx context.Context, client *Client, payload *Payload, maxRetries int) (*Result, error) {
	if maxRetries <= 0 {
		maxRetries = 1
	}
	backoffs := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		result, err := client.Send(ctx, payload)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if i < len(backoffs) && i < maxRetries-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoffs[i]):
			}
		}
	}
	return nil, fmt.Errorf("printer unreachable after %d attempts: %w", maxRetries, lastErr)
}

// buildPayload assembles the vendor envelope. Per-franchisee shop routing
// overrides the global printer settings when configured.
func (d *Dispatcher) buildPayload(ctx context.Context, order *models.Order, snap config.Settings) (*Payload, error) {
	shopID, shopName := snap.PrinterShopID, snap.PrinterShopName
	if order.FranchiseeID.Valid {
		f, err := d.db.GetFranchisee(ctx, order.FranchiseeID.Int64)
		if err != nil {
			return nil, err
		}
		if f.PrinterShopID.Valid && f.PrinterShopID.String != "" {
			shopID = f.PrinterShopID.String
			shopName = f.PrinterShopName.String
		}
	}

	var widthCM, heightCM float64
	if order.SizeID.Valid {
		size, err := d.db.GetProductSize(ctx, order.SizeID.Int64)
		if err == nil {
			widthCM, heightCM = size.WidthCM, size.HeightCM
		}
	}

	fileURL := snap.FileAccessBaseURL + d.store.URLFor(order.HDImage.String)
	productID := ""
	if order.ProductID.Valid {
		productID = fmt.Sprintf("%d", order.ProductID.Int64)
	}

	return &Payload{
		SourceAppID: snap.PrinterSourceAppID,
		OrderID:     fmt.Sprintf("YT_%d", order.ID),
		OrderNo:     order.OrderNumber,
		ShopID:      shopID,
		ShopName:    shopName,
		Receiver: Receiver{
			Name:    order.CustomerName,
			Phone:   order.CustomerPhone,
			Address: order.CustomerAddress.String,
		},
		SubOrders: []SubOrder{{
			SubOrderID: order.OrderNumber + "_1",
			ProductID:  productID,
			Photos: []Photo{{
				FileName:  order.HDImage.String,
				FileURL:   fileURL,
				WidthCM:   widthCM,
				HeightCM:  heightCM,
				WidthPix:  CMToPixels(widthCM),
				HeightPix: CMToPixels(heightCM),
				DPI:       printDPI,
			}},
		}},
	}, nil
}
