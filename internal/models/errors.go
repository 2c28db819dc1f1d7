package models

import (
	"errors"
	"fmt"
)

// Domain error taxonomy. Handlers map these to HTTP statuses; the worker
// loop maps provider errors to retry decisions.
var (
	ErrNotFound           = errors.New("not found")
	ErrInsufficientCredit = errors.New("insufficient credit")
	ErrRefundWithoutDebit = errors.New("refund references an order without a prior deduction")

	ErrTokenNotFound = errors.New("token不存在或已过期")
	ErrTokenUsed     = errors.New("token已使用")
	ErrTokenExpired  = errors.New("token已过期")
)

// ValidationError is bad caller input; returned as 400, never retried.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func Validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// StateConflictError reports a transition not permitted from the order's
// current state; returned as 409 with the current state in the body.
type StateConflictError struct {
	OrderNumber string
	Current     OrderStatus
	Requested   OrderStatus
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("order %s: transition to %s not permitted from %s",
		e.OrderNumber, e.Requested, e.Current)
}
