package selection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"photoprint-backend/internal/models"
)

const (
	tokenKeyPrefix = "seltoken:"
	shortKeyPrefix = "selshort:"
)

// RedisStore keeps tokens in a shared cache so multiple nodes can serve
// verification. Expiry rides on the key TTL; single use is enforced with a
// compare-and-set script.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Save(ctx context.Context, t *Token) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	ttl := time.Until(t.ExpiresAt)
	if ttl <= 0 {
		return models.ErrTokenExpired
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, tokenKeyPrefix+t.Token, data, ttl)
	pipe.Set(ctx, shortKeyPrefix+t.ShortToken, t.Token, ttl)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to save selection token: %w", err)
	}
	return nil
}

func (s *RedisStore) resolve(ctx context.Context, tokenOrShort string) (string, error) {
	full, err := s.client.Get(ctx, shortKeyPrefix+tokenOrShort).Result()
	if err == nil {
		return full, nil
	}
	if !errors.Is(err, redis.Nil) {
		return "", err
	}
	return tokenOrShort, nil
}

func (s *RedisStore) Get(ctx context.Context, tokenOrShort string) (*Token, error) {
	full, err := s.resolve(ctx, tokenOrShort)
	if err != nil {
		return nil, err
	}
	data, err := s.client.Get(ctx, tokenKeyPrefix+full).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, models.ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	var t Token
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// markUsedScript flips used atomically, preserving the key TTL so a second
// verify within the window still reports "used".
var markUsedScript = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then return 'missing' end
local t = cjson.decode(data)
if t['Used'] then return 'used' end
t['Used'] = true
t['UsedAt'] = ARGV[1]
t['UsedByOpenID'] = ARGV[2]
local ttl = redis.call('PTTL', KEYS[1])
if ttl <= 0 then return 'missing' end
redis.call('SET', KEYS[1], cjson.encode(t), 'PX', ttl)
redis.call('DEL', KEYS[2])
return cjson.encode(t)
`)

func (s *RedisStore) MarkUsed(ctx context.Context, tokenOrShort, openid string) (*Token, error) {
	full, err := s.resolve(ctx, tokenOrShort)
	if err != nil {
		return nil, err
	}
	t0, err := s.Get(ctx, full)
	if err != nil {
		return nil, err
	}
	res, err := markUsedScript.Run(ctx, s.client,
		[]string{tokenKeyPrefix + full, shortKeyPrefix + t0.ShortToken},
		time.Now().Format(time.RFC3339Nano), openid,
	).Text()
	if err != nil {
		return nil, fmt.Errorf("failed to mark token used: %w", err)
	}
	switch res {
	case "missing":
		return nil, models.ErrTokenNotFound
	case "used":
		return nil, models.ErrTokenUsed
	}
	var t Token
	if err := json.Unmarshal([]byte(res), &t); err != nil {
		return nil, err
	}
	return &t, nil
}
