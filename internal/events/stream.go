package events

import (
	"context"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisStream appends events to a capped Redis stream.
type RedisStream struct {
	Client *redis.Client
	Key    string
	MaxLen int64
}

// Append implements EventStore.
func (s RedisStream) Append(ctx context.Context, ev Event) error {
	if s.Client == nil {
		return errors.New("events: redis client not configured")
	}
	key := s.Key
	if key == "" {
		key = "events:shopper"
	}
	maxLen := s.MaxLen
	if maxLen <= 0 {
		maxLen = 10000
	}
	return s.Client.XAdd(ctx, &redis.XAddArgs{
		Stream: key,
		MaxLen: maxLen,
		Approx: true,
		Values: map[string]any{
			"id":          ev.ID.String(),
			"topic":       ev.Topic,
			"session_id":  ev.SessionID,
			"payload":     string(ev.Payload),
			"occurred_at": ev.OccurredAt.Format(time.RFC3339Nano),
		},
	}).Err()
}
