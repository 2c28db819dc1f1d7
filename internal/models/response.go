package models

import "time"

type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
	CurrentState  string `json:"current_state,omitempty"`
}

type CreateOrderResponse struct {
	OrderNumber string `json:"order_number"`
	Status      string `json:"status"`
}

type OrderSummary struct {
	ID            int64     `json:"id"`
	OrderNumber   string    `json:"order_number"`
	CustomerName  string    `json:"customer_name"`
	CustomerPhone string    `json:"customer_phone"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

type TaskSummary struct {
	ID              int64      `json:"id"`
	ProviderKind    string     `json:"provider_kind"`
	Status          string     `json:"status"`
	OutputImagePath string     `json:"output_image_path,omitempty"`
	OutputURL       string     `json:"output_url,omitempty"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	RetryCount      int        `json:"retry_count"`
	CreatedAt       time.Time  `json:"created_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

type TaskListResponse struct {
	OrderNumber string        `json:"order_number"`
	Tasks       []TaskSummary `json:"tasks"`
}

type QRCodeResponse struct {
	Token       string    `json:"token"`
	ShortToken  string    `json:"short_token"`
	QRCodeImage string    `json:"qrcode_image,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type VerifyTokenResponse struct {
	FranchiseeID int64          `json:"franchisee_id"`
	Orders       []OrderSummary `json:"orders"`
}

type SearchOrdersResponse struct {
	FranchiseeID int64          `json:"franchisee_id"`
	Orders       []OrderSummary `json:"orders"`
	Count        int            `json:"count"`
}

type SubmitSelectionResponse struct {
	OrderNumber     string   `json:"order_number"`
	SelectionOrders []string `json:"selection_orders"`
	ExtraCount      int      `json:"extra_count"`
	ExtraFee        string   `json:"extra_fee"`
	Total           string   `json:"total"`
	Status          string   `json:"status"`
}

type DispatchResponse struct {
	OrderNumber string `json:"order_number"`
	Status      string `json:"status"`
	VendorJobID string `json:"vendor_job_id,omitempty"`
	Message     string `json:"message,omitempty"`
}

type RechargeResponse struct {
	FranchiseeID   int64  `json:"franchisee_id"`
	RemainingQuota string `json:"remaining_quota"`
	TotalQuota     string `json:"total_quota"`
}

type LedgerEntriesResponse struct {
	FranchiseeID int64         `json:"franchisee_id"`
	Entries      []LedgerEntry `json:"entries"`
}

type LedgerEntry struct {
	ID          int64     `json:"id"`
	Amount      string    `json:"amount"`
	BonusAmount string    `json:"bonus_amount"`
	Kind        string    `json:"kind"`
	OrderRef    string    `json:"order_ref,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type HealthResponse struct {
	Status string `json:"status"`
}
