// Package selection covers the customer photo-selection flow: short-lived
// QR tokens, order lookup for the mini-app, and selection submission.
package selection

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"photoprint-backend/internal/models"
)

// TokenTTL is the window between issuance and expiry.
const TokenTTL = 5 * time.Minute

// Token is a single-use selection credential. The short form fits the
// mini-app QR scene limit of 32 characters.
type Token struct {
	Token        string
	ShortToken   string
	FranchiseeID int64
	CreatedAt    time.Time
	ExpiresAt    time.Time
	Used         bool
	UsedAt       time.Time
	UsedByOpenID string
}

func (t *Token) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// TokenStore holds live tokens. Lookups accept either the full or the
// short form. MarkUsed must be atomic with the use check.
type TokenStore interface {
	Save(ctx context.Context, t *Token) error
	// Get returns models.ErrTokenNotFound for unknown or reaped tokens.
	Get(ctx context.Context, tokenOrShort string) (*Token, error)
	// MarkUsed flips the token to used, binding the openid. Returns
	// models.ErrTokenUsed when it has already been consumed and
	// models.ErrTokenExpired past the TTL.
	MarkUsed(ctx context.Context, tokenOrShort, openid string) (*Token, error)
}

// NewToken allocates a token pair: a random 128-bit full token and the
// deterministic 16-character short form derived from it.
func NewToken(franchiseeID int64, now time.Time) *Token {
	full := uuid.New().String()
	return &Token{
		Token:        full,
		ShortToken:   ShortForm(full),
		FranchiseeID: franchiseeID,
		CreatedAt:    now,
		ExpiresAt:    now.Add(TokenTTL),
	}
}

// ShortForm derives the 16-character scene token from the full token.
func ShortForm(full string) string {
	compact := strings.ReplaceAll(full, "-", "")
	if len(compact) > 16 {
		compact = compact[:16]
	}
	return compact
}

// MemoryStore is the single-node token table: full-token map plus a
// short-form index. Expired entries are reaped lazily on each Save.
type MemoryStore struct {
	mu     sync.Mutex
	tokens map[string]*Token
	shorts map[string]string
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tokens: make(map[string]*Token),
		shorts: make(map[string]string),
		now:    time.Now,
	}
}

func (s *MemoryStore) Save(_ context.Context, t *Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanupExpiredLocked()
	s.tokens[t.Token] = t
	s.shorts[t.ShortToken] = t.Token
	return nil
}

func (s *MemoryStore) Get(_ context.Context, tokenOrShort string) (*Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.lookupLocked(tokenOrShort)
	if err != nil {
		return nil, err
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) MarkUsed(_ context.Context, tokenOrShort, openid string) (*Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.lookupLocked(tokenOrShort)
	if err != nil {
		return nil, err
	}
	if t.Used {
		return nil, models.ErrTokenUsed
	}
	if t.Expired(s.now()) {
		return nil, models.ErrTokenExpired
	}
	t.Used = true
	t.UsedAt = s.now()
	t.UsedByOpenID = openid
	delete(s.shorts, t.ShortToken)
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) lookupLocked(tokenOrShort string) (*Token, error) {
	key := tokenOrShort
	if full, ok := s.shorts[key]; ok {
		key = full
	}
	t, ok := s.tokens[key]
	if !ok {
		return nil, models.ErrTokenNotFound
	}
	return t, nil
}

func (s *MemoryStore) cleanupExpiredLocked() {
	now := s.now()
	for key, t := range s.tokens {
		// Used tokens linger until expiry so a duplicate verify can report
		// "used" rather than "not found".
		if t.Expired(now) {
			delete(s.tokens, key)
			delete(s.shorts, t.ShortToken)
		}
	}
}
