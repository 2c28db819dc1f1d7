// Package orders owns the order lifecycle: the transition table, the guarded
// state machine, and the event bus that downstream listeners subscribe to.
package orders

import (
	"sync"
	"time"

	"photoprint-backend/internal/models"
)

// transitions is the canonical forward path. cancelled and failed are
// handled separately: any non-terminal state may move to either.
var transitions = map[models.OrderStatus][]models.OrderStatus{
	models.StatusUnpaid:             {models.StatusPaid},
	models.StatusPaid:               {models.StatusShooting},
	models.StatusShooting:           {models.StatusRetouching},
	models.StatusRetouching:         {models.StatusAIProcessing},
	models.StatusAIProcessing:       {models.StatusPendingSelection},
	models.StatusPendingSelection:   {models.StatusSelectionCompleted},
	models.StatusSelectionCompleted: {models.StatusHDReady},
	models.StatusHDReady:            {models.StatusManufacturing},
	models.StatusManufacturing:      {models.StatusShipped},
	models.StatusShipped:            {models.StatusDelivered},
}

// CanTransition reports whether from -> to is a legal move. Restoring a
// failed order to an arbitrary prior state is an operator action handled by
// Restore, not by this table.
func CanTransition(from, to models.OrderStatus) bool {
	if from.Terminal() {
		return false
	}
	if to == models.StatusCancelled || to == models.StatusFailed {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Event describes one committed transition.
type Event struct {
	OrderID     int64
	OrderNumber string
	From        models.OrderStatus
	To          models.OrderStatus
	At          time.Time
	Actor       string
}

// Listener receives events after the transaction that produced them has
// committed. Listeners must not block; slow work belongs on their own
// goroutines.
type Listener func(Event)

// Bus is a minimal in-process fanout. Single node, no persistence; the
// database row is the source of truth, the bus is only a nudge.
type Bus struct {
	mu        sync.RWMutex
	listeners []Listener
}

func NewBus() *Bus {
	return &Bus{}
}

func (b *Bus) Subscribe(l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, l)
}

func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, l := range b.listeners {
		l(e)
	}
}
