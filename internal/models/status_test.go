package models_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"photoprint-backend/internal/models"
)

func TestOrderStatus_Terminal(t *testing.T) {
	assert.True(t, models.StatusDelivered.Terminal())
	assert.True(t, models.StatusCancelled.Terminal())

	// failed is recoverable, so it is deliberately not terminal.
	assert.False(t, models.StatusFailed.Terminal())
	assert.False(t, models.StatusShipped.Terminal())
	assert.False(t, models.StatusUnpaid.Terminal())
}

func TestOrderStatus_Valid(t *testing.T) {
	assert.True(t, models.StatusAIProcessing.Valid())
	assert.True(t, models.StatusPendingSelection.Valid())
	assert.False(t, models.OrderStatus("whatever").Valid())
	assert.False(t, models.OrderStatus("").Valid())
}

func TestTaskStatus_Terminal(t *testing.T) {
	assert.True(t, models.TaskCompleted.Terminal())
	assert.True(t, models.TaskFailed.Terminal())
	assert.True(t, models.TaskCancelled.Terminal())
	assert.False(t, models.TaskPending.Terminal())
	assert.False(t, models.TaskProcessing.Terminal())
}

func TestProviderKind_Valid(t *testing.T) {
	for _, k := range []models.ProviderKind{
		models.KindWorkflow, models.KindAPIEdit,
		models.KindComfyUIWorkflow, models.KindMeituAsync,
	} {
		assert.True(t, k.Valid(), "%s", k)
	}
	assert.False(t, models.ProviderKind("sdxl").Valid())
}
