// Package cache keeps recently read loans in Redis. The database stays the
// source of truth; every loan write refreshes the entry with the new version.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/openshelter/lending-engine/internal/domain"
	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned by Get when the loan is not cached.
var ErrMiss = errors.New("cache miss")

type LoanCache interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Loan, error)
	// Set stores loan unless the entry already holds a newer version, so a
	// slow reader cannot overwrite what a writer just cached.
	Set(ctx context.Context, loan *domain.Loan) error
	Invalidate(ctx context.Context, id uuid.UUID) error
}

type RedisLoanCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisLoanCache(client redis.Cmdable, ttl time.Duration) *RedisLoanCache {
	return &RedisLoanCache{
		client: client,
		ttl:    ttl,
	}
}

// setIfNotOlder writes ARGV[1] unless the cached JSON has a higher version
// than ARGV[2]. ARGV[3] is the TTL in milliseconds, 0 for none.
var setIfNotOlder = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if current then
	local ok, decoded = pcall(cjson.decode, current)
	if ok and decoded['version'] and tonumber(decoded['version']) > tonumber(ARGV[2]) then
		return 0
	end
end
if tonumber(ARGV[3]) > 0 then
	redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
else
	redis.call('SET', KEYS[1], ARGV[1])
end
return 1
`)

func loanKey(id uuid.UUID) string {
	return fmt.Sprintf("loan:%s", id)
}

func (c *RedisLoanCache) Get(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	raw, err := c.client.Get(ctx, loanKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, err
	}

	var loan domain.Loan
	if err := json.Unmarshal(raw, &loan); err != nil {
		return nil, fmt.Errorf("decode cached loan %s: %w", id, err)
	}
	return &loan, nil
}

func (c *RedisLoanCache) Set(ctx context.Context, loan *domain.Loan) error {
	raw, err := json.Marshal(loan)
	if err != nil {
		return err
	}
	return setIfNotOlder.Run(ctx, c.client, []string{loanKey(loan.ID)},
		raw, loan.Version, c.ttl.Milliseconds()).Err()
}

func (c *RedisLoanCache) Invalidate(ctx context.Context, id uuid.UUID) error {
	return c.client.Del(ctx, loanKey(id)).Err()
}

// Noop never hits. Used when Redis is disabled.
type Noop struct{}

func (Noop) Get(context.Context, uuid.UUID) (*domain.Loan, error) { return nil, ErrMiss }
func (Noop) Set(context.Context, *domain.Loan) error              { return nil }
func (Noop) Invalidate(context.Context, uuid.UUID) error          { return nil }
