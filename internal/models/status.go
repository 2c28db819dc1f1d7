package models

// OrderStatus is the lifecycle state of a customer order. Transitions are
// enforced by the orders package; these constants are the canonical wire and
// storage values.
type OrderStatus string

const (
	StatusUnpaid             OrderStatus = "unpaid"
	StatusPaid               OrderStatus = "paid"
	StatusShooting           OrderStatus = "shooting"
	StatusRetouching         OrderStatus = "retouching"
	StatusAIProcessing       OrderStatus = "ai_processing"
	StatusPendingSelection   OrderStatus = "pending_selection"
	StatusSelectionCompleted OrderStatus = "selection_completed"
	StatusHDReady            OrderStatus = "hd_ready"
	StatusManufacturing      OrderStatus = "manufacturing"
	StatusShipped            OrderStatus = "shipped"
	StatusDelivered          OrderStatus = "delivered"
	StatusCancelled          OrderStatus = "cancelled"
	StatusFailed             OrderStatus = "failed"
)

// Terminal reports whether no further transitions are allowed from s.
// failed is deliberately not terminal: a failed order can be restored.
func (s OrderStatus) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

func (s OrderStatus) Valid() bool {
	switch s {
	case StatusUnpaid, StatusPaid, StatusShooting, StatusRetouching,
		StatusAIProcessing, StatusPendingSelection, StatusSelectionCompleted,
		StatusHDReady, StatusManufacturing, StatusShipped, StatusDelivered,
		StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// TaskStatus is the lifecycle state of a single AI task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskCancelled  TaskStatus = "cancelled"
)

func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// ProviderKind selects the submission and polling protocol for a task.
type ProviderKind string

const (
	KindWorkflow        ProviderKind = "workflow"
	KindAPIEdit         ProviderKind = "api-edit"
	KindComfyUIWorkflow ProviderKind = "comfyui-workflow"
	KindMeituAsync      ProviderKind = "meitu-async"
)

func (k ProviderKind) Valid() bool {
	switch k {
	case KindWorkflow, KindAPIEdit, KindComfyUIWorkflow, KindMeituAsync:
		return true
	}
	return false
}

// LedgerKind classifies a credit ledger entry.
type LedgerKind string

const (
	LedgerRecharge  LedgerKind = "recharge"
	LedgerBonus     LedgerKind = "bonus"
	LedgerDeduction LedgerKind = "deduction"
	LedgerRefund    LedgerKind = "refund"
)

// SelectionStatus is the payment state of a derived selection order.
type SelectionStatus string

const (
	SelectionPending SelectionStatus = "pending"
	SelectionPaid    SelectionStatus = "paid"
)
