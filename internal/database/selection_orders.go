package database

import (
	"context"
	"database/sql"
	"fmt"

	"photoprint-backend/internal/models"
)

func (c *Client) CreateSelectionOrderTx(tx *sql.Tx, so *models.SelectionOrder) error {
	err := tx.QueryRow(`
		INSERT INTO selection_orders (
			order_number, original_order_id, original_order_number,
			task_id, image_path, product_id, size_id, quantity, price, status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at
	`, so.OrderNumber, so.OriginalOrderID, so.OriginalOrderNumber,
		so.TaskID, so.ImagePath, so.ProductID, so.SizeID, so.Quantity, so.Price, so.Status,
	).Scan(&so.ID, &so.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create selection order: %w", err)
	}
	return nil
}

func (c *Client) ListSelectionOrders(ctx context.Context, originalOrderID int64) ([]models.SelectionOrder, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, order_number, original_order_id, original_order_number,
		       task_id, image_path, product_id, size_id, quantity, price, status, created_at
		FROM selection_orders WHERE original_order_id = $1 ORDER BY id
	`, originalOrderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list selection orders: %w", err)
	}
	defer rows.Close()

	var out []models.SelectionOrder
	for rows.Next() {
		var so models.SelectionOrder
		if err := rows.Scan(
			&so.ID, &so.OrderNumber, &so.OriginalOrderID, &so.OriginalOrderNumber,
			&so.TaskID, &so.ImagePath, &so.ProductID, &so.SizeID, &so.Quantity, &so.Price,
			&so.Status, &so.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, so)
	}
	return out, rows.Err()
}

func (c *Client) CountSelectionOrdersTx(tx *sql.Tx, originalOrderID int64) (int, error) {
	var n int
	err := tx.QueryRow(`SELECT COUNT(*) FROM selection_orders WHERE original_order_id = $1`,
		originalOrderID).Scan(&n)
	return n, err
}
