package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Window counts events per key over a sliding window held in a Redis sorted
// set.
type Window struct {
	Client *redis.Client
	Prefix string
	Now    func() time.Time
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Allow records an event for key and reports whether it fits within limit
// events per window. A nil client or a non-positive limit admits everything.
func (w Window) Allow(ctx context.Context, key string, window time.Duration, limit int) (Decision, error) {
	now := time.Now()
	if w.Now != nil {
		now = w.Now()
	}
	if w.Client == nil || limit <= 0 || window <= 0 {
		return Decision{Allowed: true, Remaining: limit, ResetAt: now.Add(window)}, nil
	}

	redisKey := w.Prefix + key
	cutoff := now.Add(-window).UnixNano()
	member := fmt.Sprintf("%d:%s", now.UnixNano(), uuid.NewString())

	pipe := w.Client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "-inf", fmt.Sprintf("%d", cutoff))
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(now.UnixNano()), Member: member})
	card := pipe.ZCard(ctx, redisKey)
	pipe.PExpire(ctx, redisKey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{ResetAt: now.Add(window)}, err
	}

	count := int(card.Val())
	return Decision{
		Allowed:   count <= limit,
		Remaining: max(0, limit-count),
		ResetAt:   now.Add(window),
	}, nil
}
