package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"photoprint-backend/internal/models"
)

const taskColumns = `
	id, order_id, order_number, provider_kind, style_category_id, style_image_id,
	input_images, fingerprint, prompt_id, msg_id, request_payload, response_payload,
	output_image_path, output_hosted, output_url,
	status, retry_count, error_message, created_at, started_at, completed_at`

func scanTask(row rowScanner) (*models.AITask, error) {
	var t models.AITask
	var inputImages []byte
	err := row.Scan(
		&t.ID, &t.OrderID, &t.OrderNumber, &t.ProviderKind, &t.StyleCategoryID, &t.StyleImageID,
		&inputImages, &t.Fingerprint, &t.PromptID, &t.MsgID, &t.RequestPayload, &t.ResponsePayload,
		&t.OutputImagePath, &t.OutputHosted, &t.OutputURL,
		&t.Status, &t.RetryCount, &t.ErrorMessage, &t.CreatedAt, &t.StartedAt, &t.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan ai task: %w", err)
	}
	if len(inputImages) > 0 {
		if err := json.Unmarshal(inputImages, &t.InputImages); err != nil {
			return nil, fmt.Errorf("failed to decode input images: %w", err)
		}
	}
	return &t, nil
}

func (c *Client) CreateTask(ctx context.Context, t *models.AITask) error {
	inputImages, err := json.Marshal(t.InputImages)
	if err != nil {
		return fmt.Errorf("failed to encode input images: %w", err)
	}

	err = c.db.QueryRowContext(ctx, `
		INSERT INTO ai_tasks (
			order_id, order_number, provider_kind, style_category_id, style_image_id,
			input_images, fingerprint, status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`, t.OrderID, t.OrderNumber, t.ProviderKind, t.StyleCategoryID, t.StyleImageID,
		inputImages, t.Fingerprint, t.Status,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create ai task: %w", err)
	}
	return nil
}

// CreateCompletedTask records an operator-uploaded effect image as an
// already-completed task.
func (c *Client) CreateCompletedTask(ctx context.Context, t *models.AITask) error {
	inputImages, err := json.Marshal(t.InputImages)
	if err != nil {
		return fmt.Errorf("failed to encode input images: %w", err)
	}

	err = c.db.QueryRowContext(ctx, `
		INSERT INTO ai_tasks (
			order_id, order_number, provider_kind, input_images, fingerprint,
			output_image_path, status, completed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, 'completed', NOW())
		RETURNING id, created_at
	`, t.OrderID, t.OrderNumber, t.ProviderKind, inputImages, t.Fingerprint, t.OutputImagePath,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create completed ai task: %w", err)
	}
	return nil
}

func (c *Client) GetTask(ctx context.Context, taskID int64) (*models.AITask, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM ai_tasks WHERE id = $1`, taskID)
	return scanTask(row)
}

func (c *Client) GetTaskByMsgID(ctx context.Context, msgID string) (*models.AITask, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM ai_tasks WHERE msg_id = $1 ORDER BY id DESC LIMIT 1`, msgID)
	return scanTask(row)
}

func (c *Client) GetTaskByPromptID(ctx context.Context, promptID string) (*models.AITask, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM ai_tasks WHERE prompt_id = $1 ORDER BY id DESC LIMIT 1`, promptID)
	return scanTask(row)
}

// FindActiveTaskByFingerprint returns a non-terminal task with the given
// fingerprint, backing idempotent submission.
func (c *Client) FindActiveTaskByFingerprint(ctx context.Context, fingerprint string) (*models.AITask, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT `+taskColumns+` FROM ai_tasks
		WHERE fingerprint = $1 AND status IN ('pending', 'processing')
		ORDER BY id DESC LIMIT 1
	`, fingerprint)
	return scanTask(row)
}

func (c *Client) ListTasksByOrder(ctx context.Context, orderID int64) ([]models.AITask, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM ai_tasks WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ai tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.AITask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

func (c *Client) MarkTaskProcessing(ctx context.Context, taskID int64, startedAt time.Time) error {
	_, err := c.db.ExecContext(ctx, `
		UPDATE ai_tasks SET status = 'processing', started_at = COALESCE(started_at, $1)
		WHERE id = $2
	`, startedAt, taskID)
	return err
}

func (c *Client) SetTaskSubmission(ctx context.Context, taskID int64, promptID, msgID string, request, response json.RawMessage) error {
	_, err := c.db.ExecContext(ctx, `
		UPDATE ai_tasks
		SET prompt_id = NULLIF($1, ''), msg_id = NULLIF($2, ''),
		    request_payload = $3, response_payload = $4
		WHERE id = $5
	`, promptID, msgID, []byte(request), []byte(response), taskID)
	return err
}

func (c *Client) IncrementTaskRetry(ctx context.Context, taskID int64) error {
	_, err := c.db.ExecContext(ctx,
		`UPDATE ai_tasks SET retry_count = retry_count + 1 WHERE id = $1`, taskID)
	return err
}

// CompleteTaskTx records the output artifact and terminal success state.
func (c *Client) CompleteTaskTx(tx *sql.Tx, taskID int64, outputPath string, hosted bool, outputURL string, completedAt time.Time) error {
	_, err := tx.Exec(`
		UPDATE ai_tasks
		SET status = 'completed', output_image_path = $1, output_hosted = $2,
		    output_url = NULLIF($3, ''), completed_at = $4, error_message = NULL
		WHERE id = $5
	`, outputPath, hosted, outputURL, completedAt, taskID)
	return err
}

func (c *Client) FailTask(ctx context.Context, taskID int64, message string) error {
	_, err := c.db.ExecContext(ctx, `
		UPDATE ai_tasks SET status = 'failed', error_message = $1, completed_at = NOW()
		WHERE id = $2
	`, message, taskID)
	return err
}

func (c *Client) CancelTask(ctx context.Context, taskID int64) error {
	_, err := c.db.ExecContext(ctx, `
		UPDATE ai_tasks SET status = 'cancelled', completed_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'processing')
	`, taskID)
	return err
}

func (c *Client) DeleteTask(ctx context.Context, taskID int64) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM ai_tasks WHERE id = $1`, taskID)
	return err
}

// TasksSettledTx evaluates, under the caller's order lock, whether every
// non-failed task is terminal and at least one completed.
func (c *Client) TasksSettledTx(tx *sql.Tx, orderID int64) (allSettled bool, anyCompleted bool, err error) {
	var active, completed int
	err = tx.QueryRow(`
		SELECT
			COUNT(*) FILTER (WHERE status IN ('pending', 'processing')),
			COUNT(*) FILTER (WHERE status = 'completed')
		FROM ai_tasks WHERE order_id = $1
	`, orderID).Scan(&active, &completed)
	if err != nil {
		return false, false, fmt.Errorf("failed to count ai tasks: %w", err)
	}
	return active == 0, completed > 0, nil
}
