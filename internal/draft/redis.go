package draft

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisStore keeps each draft in a Redis hash that expires after TTL of inactivity.
type RedisStore struct {
	Client *redis.Client
	Prefix string
	TTL    time.Duration
}

func (s RedisStore) key(sessionID string) string {
	if s.Prefix == "" {
		return fmt.Sprintf("draft:%s", sessionID)
	}
	return fmt.Sprintf("%s:draft:%s", s.Prefix, sessionID)
}

// Get implements Store.
func (s RedisStore) Get(ctx context.Context, sessionID, key string) (string, bool, error) {
	if s.Client == nil {
		return "", false, errors.New("draft: redis client not configured")
	}
	if sessionID == "" {
		return "", false, ErrSessionRequired
	}
	v, err := s.Client.HGet(ctx, s.key(sessionID), key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// Set implements Store. Every write refreshes the draft TTL.
func (s RedisStore) Set(ctx context.Context, sessionID, key, value string) error {
	if s.Client == nil {
		return errors.New("draft: redis client not configured")
	}
	if sessionID == "" {
		return ErrSessionRequired
	}
	hashKey := s.key(sessionID)
	pipe := s.Client.TxPipeline()
	pipe.HSet(ctx, hashKey, key, value)
	if s.TTL > 0 {
		pipe.Expire(ctx, hashKey, s.TTL)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Clear implements Store. All nine fields go in a single HDEL so a reader never observes a
// partially cleared draft.
func (s RedisStore) Clear(ctx context.Context, sessionID string) error {
	if s.Client == nil {
		return errors.New("draft: redis client not configured")
	}
	if sessionID == "" {
		return ErrSessionRequired
	}
	return s.Client.HDel(ctx, s.key(sessionID), AllKeys()...).Err()
}
