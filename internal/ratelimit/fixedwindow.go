package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// FixedWindow adapts a ulule limiter to the Limiter interface.
type FixedWindow struct {
	limiter *limiter.Limiter
}

// NewFixedWindow builds a fixed-window limiter from a formatted rate such as "20-M".
// A nil client keeps counters in process memory.
func NewFixedWindow(rate string, client *redis.Client, prefix string) (*FixedWindow, error) {
	parsed, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: parse rate %q: %w", rate, err)
	}
	opts := limiter.StoreOptions{Prefix: prefix, CleanUpInterval: limiter.DefaultCleanUpInterval}
	if opts.Prefix == "" {
		opts.Prefix = limiter.DefaultPrefix
	}
	var store limiter.Store
	if client != nil {
		store, err = limiterredis.NewStoreWithOptions(client, opts)
		if err != nil {
			return nil, fmt.Errorf("ratelimit: redis store: %w", err)
		}
	} else {
		store = memory.NewStoreWithOptions(opts)
	}
	return &FixedWindow{limiter: limiter.New(store, parsed)}, nil
}

// Allow counts one event for key.
func (f *FixedWindow) Allow(ctx context.Context, key string) (Decision, error) {
	res, err := f.limiter.Get(ctx, key)
	if err != nil {
		return Decision{}, err
	}
	return Decision{
		Allowed:   !res.Reached,
		Limit:     int(res.Limit),
		Remaining: int(res.Remaining),
		ResetAt:   time.Unix(res.Reset, 0),
	}, nil
}
