package tasks_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"photoprint-backend/internal/tasks"
)

func TestFingerprint_Deterministic(t *testing.T) {
	a := tasks.Fingerprint(1, 2, []string{"x.jpg", "y.jpg"})
	b := tasks.Fingerprint(1, 2, []string{"x.jpg", "y.jpg"})
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestFingerprint_InputOrderIrrelevant(t *testing.T) {
	a := tasks.Fingerprint(1, 2, []string{"x.jpg", "y.jpg"})
	b := tasks.Fingerprint(1, 2, []string{"y.jpg", "x.jpg"})
	assert.Equal(t, a, b)
}

func TestFingerprint_DistinguishesInputs(t *testing.T) {
	base := tasks.Fingerprint(1, 2, []string{"x.jpg"})
	assert.NotEqual(t, base, tasks.Fingerprint(2, 2, []string{"x.jpg"}))
	assert.NotEqual(t, base, tasks.Fingerprint(1, 3, []string{"x.jpg"}))
	assert.NotEqual(t, base, tasks.Fingerprint(1, 2, []string{"z.jpg"}))
	assert.NotEqual(t, base, tasks.Fingerprint(1, 2, []string{"x.jpg", "y.jpg"}))
}
