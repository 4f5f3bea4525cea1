package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// counterTTL keeps finished-period keys around long enough for end-of-month
// reporting before Redis reclaims them. The ledger itself is the durable
// record.
const counterTTL = 62 * 24 * time.Hour

// RedisCounter implements CounterStore on Redis. INCR gives the atomic add
// the quota check depends on: two tenants' requests racing past the policy
// read cannot both land under the cap because each sees its own
// post-increment value.
type RedisCounter struct {
	rdb *redis.Client
	now func() time.Time
}

func NewRedisCounter(rdb *redis.Client) *RedisCounter {
	return &RedisCounter{rdb: rdb, now: time.Now}
}

func (c *RedisCounter) key(tenantID, requestType, field string) string {
	return fmt.Sprintf("usage:%s:%s:%s:%s", tenantID, Period(c.now()), requestType, field)
}

func (c *RedisCounter) Reserve(ctx context.Context, tenantID, requestType string) (int64, error) {
	key := c.key(tenantID, requestType, "count")
	pipe := c.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, counterTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to reserve usage: %w", err)
	}
	return incr.Val(), nil
}

func (c *RedisCounter) Release(ctx context.Context, tenantID, requestType string) error {
	if err := c.rdb.Decr(ctx, c.key(tenantID, requestType, "count")).Err(); err != nil {
		return fmt.Errorf("failed to release usage: %w", err)
	}
	return nil
}

func (c *RedisCounter) AddUsage(ctx context.Context, tenantID, requestType string, tokens int, costUSD float64) error {
	tokensKey := c.key(tenantID, requestType, "tokens")
	costKey := c.key(tenantID, requestType, "cost")

	pipe := c.rdb.TxPipeline()
	pipe.IncrBy(ctx, tokensKey, int64(tokens))
	pipe.IncrByFloat(ctx, costKey, costUSD)
	pipe.Expire(ctx, tokensKey, counterTTL)
	pipe.Expire(ctx, costKey, counterTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to accrue usage: %w", err)
	}
	return nil
}

func (c *RedisCounter) Count(ctx context.Context, tenantID, requestType string) (int64, error) {
	n, err := c.rdb.Get(ctx, c.key(tenantID, requestType, "count")).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read usage count: %w", err)
	}
	return n, nil
}
