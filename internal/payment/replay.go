package payment

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/noah-isme/market-shopper/internal/common"
)

// ReplayGuard drops webhook bodies that were already processed within the TTL.
type ReplayGuard struct {
	Client *redis.Client
	TTL    time.Duration
}

// Acquire claims the body for processing. It returns false when the same body was seen before.
// A guard without a client lets everything through.
func (g ReplayGuard) Acquire(ctx context.Context, provider string, body []byte) (bool, error) {
	if g.Client == nil || g.TTL <= 0 {
		return true, nil
	}
	return g.Client.SetNX(ctx, replayKey(provider, body), "1", g.TTL).Result()
}

// Release forgets a body so a failed processing attempt can be retried by the provider.
func (g ReplayGuard) Release(ctx context.Context, provider string, body []byte) error {
	if g.Client == nil {
		return nil
	}
	return g.Client.Del(ctx, replayKey(provider, body)).Err()
}

func replayKey(provider string, body []byte) string {
	return fmt.Sprintf("wh:%s:%s", provider, common.Sha256Hex(string(body)))
}
