package models

import (
	"database/sql"
	"encoding/json"
	"time"
)

// AITask is one attempt to produce an AI output for an order. A task is
// terminal once Status is completed, failed or cancelled.
type AITask struct {
	ID          int64
	OrderID     int64
	OrderNumber string

	ProviderKind    ProviderKind
	StyleCategoryID sql.NullInt64
	StyleImageID    sql.NullInt64

	// InputImages holds the artifact filenames submitted to the provider.
	InputImages []string

	// Fingerprint keys idempotent submission: SHA-256 over order id, style
	// image id and the sorted input set.
	Fingerprint string

	// PromptID is the provider-side task handle (prompt_id / taskId);
	// MsgID is the meitu-async message handle.
	PromptID sql.NullString
	MsgID    sql.NullString

	RequestPayload  json.RawMessage
	ResponsePayload json.RawMessage

	// OutputImagePath is always a bare filename. When OutputHosted is set
	// the result lives at OutputURL and the local file is a cached copy.
	OutputImagePath sql.NullString
	OutputHosted    bool
	OutputURL       sql.NullString

	Status       TaskStatus
	RetryCount   int
	ErrorMessage sql.NullString

	CreatedAt   time.Time
	StartedAt   sql.NullTime
	CompletedAt sql.NullTime
}
