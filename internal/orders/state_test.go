package orders_test

import (
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"photoprint-backend/internal/models"
	"photoprint-backend/internal/orders"
)

func TestCanTransition_ForwardPath(t *testing.T) {
	path := []models.OrderStatus{
		models.StatusUnpaid,
		models.StatusPaid,
		models.StatusShooting,
		models.StatusRetouching,
		models.StatusAIProcessing,
		models.StatusPendingSelection,
		models.StatusSelectionCompleted,
		models.StatusHDReady,
		models.StatusManufacturing,
		models.StatusShipped,
		models.StatusDelivered,
	}
	for i := 0; i < len(path)-1; i++ {
		assert.True(t, orders.CanTransition(path[i], path[i+1]),
			"%s -> %s should be allowed", path[i], path[i+1])
	}
}

func TestCanTransition_NoSkippingStages(t *testing.T) {
	assert.False(t, orders.CanTransition(models.StatusPaid, models.StatusAIProcessing))
	assert.False(t, orders.CanTransition(models.StatusShooting, models.StatusPendingSelection))
	assert.False(t, orders.CanTransition(models.StatusUnpaid, models.StatusShipped))
}

func TestCanTransition_NoGoingBackwards(t *testing.T) {
	assert.False(t, orders.CanTransition(models.StatusRetouching, models.StatusShooting))
	assert.False(t, orders.CanTransition(models.StatusShipped, models.StatusManufacturing))
}

func TestCanTransition_CancelAndFailFromAnyNonTerminal(t *testing.T) {
	active := []models.OrderStatus{
		models.StatusUnpaid, models.StatusPaid, models.StatusShooting,
		models.StatusRetouching, models.StatusAIProcessing,
		models.StatusPendingSelection, models.StatusSelectionCompleted,
		models.StatusHDReady, models.StatusManufacturing, models.StatusShipped,
	}
	for _, from := range active {
		assert.True(t, orders.CanTransition(from, models.StatusCancelled), "cancel from %s", from)
		assert.True(t, orders.CanTransition(from, models.StatusFailed), "fail from %s", from)
	}
}

func TestCanTransition_TerminalStatesAreFinal(t *testing.T) {
	for _, from := range []models.OrderStatus{models.StatusDelivered, models.StatusCancelled} {
		for _, to := range []models.OrderStatus{
			models.StatusPaid, models.StatusCancelled, models.StatusFailed, models.StatusShipped,
		} {
			assert.False(t, orders.CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestCanTransition_FailedIsNotTerminalButHasNoForwardEdges(t *testing.T) {
	// Recovery out of failed goes through Restore, not the transition table.
	assert.False(t, models.StatusFailed.Terminal())
	assert.False(t, orders.CanTransition(models.StatusFailed, models.StatusPaid))
	assert.True(t, orders.CanTransition(models.StatusFailed, models.StatusCancelled))
}

func TestBus_PublishReachesAllSubscribers(t *testing.T) {
	bus := orders.NewBus()

	var mu sync.Mutex
	var got []orders.Event
	done := make(chan struct{}, 2)
	for i := 0; i < 2; i++ {
		bus.Subscribe(func(e orders.Event) {
			mu.Lock()
			got = append(got, e)
			mu.Unlock()
			done <- struct{}{}
		})
	}

	bus.Publish(orders.Event{
		OrderID:     7,
		OrderNumber: "PP20260828120000-0042",
		From:        models.StatusHDReady,
		To:          models.StatusManufacturing,
		At:          time.Now(),
		Actor:       "admin:1",
	})

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("listener was not invoked")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, got, 2)
	assert.Equal(t, int64(7), got[0].OrderID)
	assert.Equal(t, models.StatusManufacturing, got[0].To)
}

func TestNewOrderNumber_Format(t *testing.T) {
	pattern := regexp.MustCompile(`^PP\d{14}-\d{4}$`)
	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		n := orders.NewOrderNumber()
		assert.Regexp(t, pattern, n)
		seen[n] = true
	}
	// The random suffix makes same-second collisions unlikely.
	assert.Greater(t, len(seen), 1)
}
