// Package providers holds the typed clients for the external AI services.
// Each provider kind speaks its own submission and polling protocol; the
// task manager treats them uniformly through the Provider interface.
package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"photoprint-backend/internal/models"
)

// Timeouts per outbound call class.
const (
	submitTimeout   = 60 * time.Second
	queryTimeout    = 30 * time.Second
	DownloadTimeout = 60 * time.Second
	connectTimeout  = 10 * time.Second
)

// Submission is everything a provider needs to run one task.
type Submission struct {
	TaskID      int64
	OrderNumber string
	// Public URLs of the input images; providers cannot read local files.
	ImageURLs []string
	Prompt    string
	// Template is the request-body recipe with {{image_url}} / {{prompt}}
	// placeholders, when the provider kind uses one.
	Template     json.RawMessage
	ModelName    string
	WorkflowID   string
	OutputNodeID string
	// CallbackURL receives push results for providers that support them.
	CallbackURL string
}

// MarshalRequest records what was sent, for the task's request_payload
// audit column.
func (s *Submission) MarshalRequest() (json.RawMessage, error) {
	b, err := json.Marshal(struct {
		OrderNumber string          `json:"order_number"`
		ImageURLs   []string        `json:"image_urls"`
		Prompt      string          `json:"prompt,omitempty"`
		Template    json.RawMessage `json:"template,omitempty"`
		ModelName   string          `json:"model_name,omitempty"`
		WorkflowID  string          `json:"workflow_id,omitempty"`
	}{s.OrderNumber, s.ImageURLs, s.Prompt, s.Template, s.ModelName, s.WorkflowID})
	return b, err
}

// SubmitResult is the provider's acknowledgement of a submission.
type SubmitResult struct {
	// Handle is the provider-side id to poll with (prompt id, task id, or
	// msg id depending on the kind). Empty when the call was single-shot.
	Handle string
	// ImageURLs holds the outputs when the provider answered synchronously.
	ImageURLs []string
	Raw       json.RawMessage
}

// PollState is the provider-side view of a running task.
type PollState string

const (
	PollRunning   PollState = "running"
	PollQueued    PollState = "queued"
	PollCompleted PollState = "completed"
	PollFailed    PollState = "failed"
)

type PollResult struct {
	State     PollState
	ImageURLs []string
	Message   string
	Raw       json.RawMessage
}

// Provider is one external AI service. Submit may complete synchronously
// (api-edit); Poll is a no-op for those kinds.
type Provider interface {
	Kind() models.ProviderKind
	Submit(ctx context.Context, sub Submission) (*SubmitResult, error)
	Poll(ctx context.Context, handle string) (*PollResult, error)
	Cancel(ctx context.Context, handle string) error
}

// Error classifies a provider failure for the retry loop.
type Error struct {
	Kind models.ProviderKind
	Msg  string
	// Permanent failures (authentication, validation) must not be retried.
	Permanent bool
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s provider: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func permanentErr(kind models.ProviderKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Permanent: true}
}

func transientErr(kind models.ProviderKind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// IsPermanent reports whether err is a provider error that must not be
// retried.
func IsPermanent(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Permanent
}

func newHTTPClient(total time.Duration) *http.Client {
	return &http.Client{
		Timeout: total,
		Transport: &http.Transport{
			DialContext:         (&net.Dialer{Timeout: connectTimeout}).DialContext,
			TLSHandshakeTimeout: connectTimeout,
		},
	}
}

// New builds the Provider for a stored provider config.
func New(cfg *models.APIProviderConfig) (Provider, error) {
	switch cfg.APIType {
	case models.KindWorkflow:
		return newWorkflowProvider(cfg), nil
	case models.KindAPIEdit:
		return newAPIEditProvider(cfg), nil
	case models.KindComfyUIWorkflow:
		return newRunningHubProvider(cfg), nil
	case models.KindMeituAsync:
		return newMeituProvider(cfg), nil
	default:
		return nil, models.Validationf("unknown provider kind %q", cfg.APIType)
	}
}

// RetryWithBackoff runs fn up to maxRetries times with exponential backoff,
// stopping early on success or a permanent provider error.
func RetryWithBackoff(fn func() error, maxRetries int) error {
	backoffs := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		if IsPermanent(err) {
			return err
		}

		lastErr = err
		if i < len(backoffs) {
			time.Sleep(backoffs[i])
		}
	}

	return fmt.Errorf("failed after %d retries: %w", maxRetries, lastErr)
}
