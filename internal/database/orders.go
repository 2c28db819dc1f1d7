package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"photoprint-backend/internal/models"
)

const orderColumns = `
	id, order_number, customer_name, customer_phone, customer_address, openid,
	franchisee_id, franchisee_deduction,
	product_id, product_name, size_id, size, style_name,
	price, status,
	original_image, hd_image, final_image,
	printer_job_id, printer_send_time, printer_error_message,
	logistics_carrier, logistics_tracking, logistics_remark,
	notes,
	created_at, shooting_completed_at, retouch_completed_at, completed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var o models.Order
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.CustomerName, &o.CustomerPhone, &o.CustomerAddress, &o.OpenID,
		&o.FranchiseeID, &o.FranchiseeDeduction,
		&o.ProductID, &o.ProductName, &o.SizeID, &o.Size, &o.StyleName,
		&o.Price, &o.Status,
		&o.OriginalImage, &o.HDImage, &o.FinalImage,
		&o.PrinterJobID, &o.PrinterSendTime, &o.PrinterErrorMessage,
		&o.LogisticsCarrier, &o.LogisticsTracking, &o.LogisticsRemark,
		&o.Notes,
		&o.CreatedAt, &o.ShootingCompletedAt, &o.RetouchCompletedAt, &o.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan order: %w", err)
	}
	return &o, nil
}

// CreateOrderTx inserts an order row and fills in its id.
func (c *Client) CreateOrderTx(tx *sql.Tx, o *models.Order) error {
	err := tx.QueryRow(`
		INSERT INTO orders (
			order_number, customer_name, customer_phone, customer_address, openid,
			franchisee_id, franchisee_deduction,
			product_id, product_name, size_id, size, style_name,
			price, status, original_image, notes
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id, created_at
	`, o.OrderNumber, o.CustomerName, o.CustomerPhone, o.CustomerAddress, o.OpenID,
		o.FranchiseeID, o.FranchiseeDeduction,
		o.ProductID, o.ProductName, o.SizeID, o.Size, o.StyleName,
		o.Price, o.Status, o.OriginalImage, o.Notes,
	).Scan(&o.ID, &o.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

func (c *Client) GetOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID)
	return scanOrder(row)
}

func (c *Client) GetOrderByNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE order_number = $1 ORDER BY id LIMIT 1`, orderNumber)
	return scanOrder(row)
}

// GetOrderForUpdateTx locks the order row; per-order state transitions are
// serialised on this lock.
func (c *Client) GetOrderForUpdateTx(tx *sql.Tx, orderID int64) (*models.Order, error) {
	row := tx.QueryRow(
		`SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, orderID)
	return scanOrder(row)
}

// UpdateOrderStatusTx writes the new status plus any timestamp stamped by
// the transition, in the same statement.
func (c *Client) UpdateOrderStatusTx(tx *sql.Tx, orderID int64, status models.OrderStatus, completedAt *time.Time) error {
	var err error
	if completedAt != nil {
		_, err = tx.Exec(`UPDATE orders SET status = $1, completed_at = $2 WHERE id = $3`,
			status, *completedAt, orderID)
	} else {
		_, err = tx.Exec(`UPDATE orders SET status = $1 WHERE id = $2`, status, orderID)
	}
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	return nil
}

func (c *Client) StampShootingCompletedTx(tx *sql.Tx, orderID int64, at time.Time) error {
	_, err := tx.Exec(`UPDATE orders SET shooting_completed_at = $1 WHERE id = $2 AND shooting_completed_at IS NULL`, at, orderID)
	return err
}

func (c *Client) StampRetouchCompletedTx(tx *sql.Tx, orderID int64, at time.Time) error {
	_, err := tx.Exec(`UPDATE orders SET retouch_completed_at = $1 WHERE id = $2 AND retouch_completed_at IS NULL`, at, orderID)
	return err
}

// AppendOrderNoteTx appends a line to the order's notes column.
func (c *Client) AppendOrderNoteTx(tx *sql.Tx, orderID int64, note string) error {
	_, err := tx.Exec(`
		UPDATE orders
		SET notes = COALESCE(notes || E'\n', '') || $1
		WHERE id = $2
	`, note, orderID)
	if err != nil {
		return fmt.Errorf("failed to append order note: %w", err)
	}
	return nil
}

func (c *Client) SetOrderHDImage(ctx context.Context, orderID int64, filename string) error {
	_, err := c.db.ExecContext(ctx, `UPDATE orders SET hd_image = $1 WHERE id = $2`, filename, orderID)
	return err
}

// ClearHDImageIfMatches nulls hd_image when it references the given
// filename, used when an effect image is deleted.
func (c *Client) ClearHDImageIfMatches(ctx context.Context, orderID int64, filename string) error {
	_, err := c.db.ExecContext(ctx,
		`UPDATE orders SET hd_image = NULL WHERE id = $1 AND hd_image = $2`, orderID, filename)
	return err
}

func (c *Client) SetPrinterResultTx(tx *sql.Tx, orderID int64, jobID string, sentAt time.Time) error {
	_, err := tx.Exec(`
		UPDATE orders
		SET printer_job_id = $1, printer_send_time = $2, printer_error_message = NULL
		WHERE id = $3
	`, jobID, sentAt, orderID)
	return err
}

func (c *Client) SetPrinterError(ctx context.Context, orderID int64, message string) error {
	_, err := c.db.ExecContext(ctx,
		`UPDATE orders SET printer_error_message = $1 WHERE id = $2`, message, orderID)
	return err
}

func (c *Client) SetLogisticsTx(tx *sql.Tx, orderID int64, carrier, tracking, remark string) error {
	_, err := tx.Exec(`
		UPDATE orders
		SET logistics_carrier = $1, logistics_tracking = $2, logistics_remark = $3
		WHERE id = $4
	`, carrier, tracking, remark, orderID)
	return err
}

// SearchOrders looks up orders for selection, scoped to a franchisee.
// Unpaid orders are never returned.
func (c *Client) SearchOrders(ctx context.Context, franchiseeID int64, phone, orderNumber string) ([]models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE franchisee_id = $1 AND status <> 'unpaid'`
	args := []any{franchiseeID}

	if phone != "" {
		args = append(args, phone)
		query += fmt.Sprintf(" AND customer_phone = $%d", len(args))
	}
	if orderNumber != "" {
		args = append(args, "%"+orderNumber+"%")
		query += fmt.Sprintf(" AND order_number LIKE $%d", len(args))
	}
	query += " ORDER BY created_at DESC LIMIT 50"

	return c.queryOrders(ctx, query, args...)
}

// ListOrdersByOpenID returns a franchisee's orders authored by the given
// mini-app user, newest first.
func (c *Client) ListOrdersByOpenID(ctx context.Context, franchiseeID int64, openid string) ([]models.Order, error) {
	return c.queryOrders(ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE franchisee_id = $1 AND openid = $2 AND status <> 'unpaid'
		 ORDER BY created_at DESC LIMIT 50`,
		franchiseeID, openid)
}

func (c *Client) queryOrders(ctx context.Context, query string, args ...any) ([]models.Order, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

// AddOrderImageTx inserts an input photo. A main image demotes any earlier
// main so at most one per order remains.
func (c *Client) AddOrderImageTx(tx *sql.Tx, orderID int64, path string, isMain bool) error {
	if isMain {
		if _, err := tx.Exec(`UPDATE order_images SET is_main = FALSE WHERE order_id = $1`, orderID); err != nil {
			return fmt.Errorf("failed to demote main image: %w", err)
		}
	}
	_, err := tx.Exec(`INSERT INTO order_images (order_id, path, is_main) VALUES ($1, $2, $3)`,
		orderID, path, isMain)
	if err != nil {
		return fmt.Errorf("failed to add order image: %w", err)
	}
	return nil
}

func (c *Client) CountOrderImagesTx(tx *sql.Tx, orderID int64) (int, error) {
	var n int
	err := tx.QueryRow(`SELECT COUNT(*) FROM order_images WHERE order_id = $1`, orderID).Scan(&n)
	return n, err
}

func (c *Client) ListOrderImages(ctx context.Context, orderID int64) ([]models.OrderImage, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, order_id, path, is_main FROM order_images WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list order images: %w", err)
	}
	defer rows.Close()

	var images []models.OrderImage
	for rows.Next() {
		var img models.OrderImage
		if err := rows.Scan(&img.ID, &img.OrderID, &img.Path, &img.IsMain); err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, rows.Err()
}
