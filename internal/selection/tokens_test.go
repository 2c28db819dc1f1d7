package selection

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"photoprint-backend/internal/models"
)

func TestShortForm(t *testing.T) {
	assert.Equal(t, "a1b2c3d4e5f60708", ShortForm("a1b2c3d4-e5f6-0708-90ab-cdef12345678"))
	assert.Len(t, ShortForm("a1b2c3d4-e5f6-0708-90ab-cdef12345678"), 16)
}

func TestNewToken(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	tok := NewToken(3, now)
	assert.NotEmpty(t, tok.Token)
	assert.Equal(t, ShortForm(tok.Token), tok.ShortToken)
	assert.Equal(t, int64(3), tok.FranchiseeID)
	assert.Equal(t, now.Add(TokenTTL), tok.ExpiresAt)
	assert.False(t, tok.Used)
}

func TestMemoryStore_LookupByEitherForm(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	tok := NewToken(1, time.Now())
	require.NoError(t, store.Save(ctx, tok))

	byFull, err := store.Get(ctx, tok.Token)
	require.NoError(t, err)
	assert.Equal(t, tok.Token, byFull.Token)

	byShort, err := store.Get(ctx, tok.ShortToken)
	require.NoError(t, err)
	assert.Equal(t, tok.Token, byShort.Token)
}

func TestMemoryStore_UnknownToken(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, models.ErrTokenNotFound)
}

func TestMemoryStore_SingleUse(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	tok := NewToken(1, time.Now())
	require.NoError(t, store.Save(ctx, tok))

	used, err := store.MarkUsed(ctx, tok.ShortToken, "openid-1234567890")
	require.NoError(t, err)
	assert.True(t, used.Used)
	assert.Equal(t, "openid-1234567890", used.UsedByOpenID)

	// A second scan of the same QR must report "used", not "not found".
	_, err = store.MarkUsed(ctx, tok.Token, "openid-1234567890")
	assert.ErrorIs(t, err, models.ErrTokenUsed)
}

func TestMemoryStore_ExpiredToken(t *testing.T) {
	ctx := context.Background()
	issued := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	store.now = func() time.Time { return issued.Add(TokenTTL + time.Second) }

	tok := NewToken(1, issued)
	require.NoError(t, store.Save(ctx, tok))

	_, err := store.MarkUsed(ctx, tok.Token, "openid-1234567890")
	assert.ErrorIs(t, err, models.ErrTokenExpired)
}

func TestMemoryStore_ReapsExpiredOnSave(t *testing.T) {
	ctx := context.Background()
	issued := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	store.now = func() time.Time { return issued }

	old := NewToken(1, issued.Add(-2*TokenTTL))
	require.NoError(t, store.Save(ctx, old))

	fresh := NewToken(1, issued)
	require.NoError(t, store.Save(ctx, fresh))

	_, err := store.Get(ctx, old.Token)
	assert.ErrorIs(t, err, models.ErrTokenNotFound)
	_, err = store.Get(ctx, fresh.Token)
	assert.NoError(t, err)
}
