package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/noah-isme/market-shopper/internal/common"
)

// DefaultStateTTL bounds how long a settled outcome outlives the last change to the session.
const DefaultStateTTL = 720 * time.Hour

// ErrSessionRequired is returned when a state store call is made without a session identifier.
var ErrSessionRequired = errors.New("checkout: session id is required")

// Record is the settled outcome of the session's last submission.
type Record struct {
	Status    Status `json:"status"`
	Reference string `json:"reference,omitempty"`
	LastError string `json:"lastError,omitempty"`
}

func (r Record) empty() bool {
	return (r.Status == "" || r.Status == StatusIdle) && r.Reference == "" && r.LastError == ""
}

// StateStore persists settled outcomes per session. A missing record means Idle.
type StateStore interface {
	Load(ctx context.Context, sessionID string) (Record, bool, error)
	Save(ctx context.Context, sessionID string, rec Record) error
	Delete(ctx context.Context, sessionID string) error
}

// MemoryStateStore keeps records in process memory, expiring them TTL after the last write.
type MemoryStateStore struct {
	records *common.Expiring[Record]
}

// NewMemoryStateStore returns an empty store. A non-positive ttl keeps records until deleted.
func NewMemoryStateStore(ttl time.Duration) *MemoryStateStore {
	return &MemoryStateStore{records: common.NewExpiring[Record](ttl)}
}

// WithClock replaces the time source used for expiry.
func (m *MemoryStateStore) WithClock(now func() time.Time) *MemoryStateStore {
	m.records.WithClock(now)
	return m
}

// Load implements StateStore.
func (m *MemoryStateStore) Load(_ context.Context, sessionID string) (Record, bool, error) {
	if sessionID == "" {
		return Record{}, false, ErrSessionRequired
	}
	rec, ok := m.records.Get(sessionID)
	return rec, ok, nil
}

// Save implements StateStore.
func (m *MemoryStateStore) Save(_ context.Context, sessionID string, rec Record) error {
	if sessionID == "" {
		return ErrSessionRequired
	}
	m.records.Set(sessionID, rec)
	return nil
}

// Delete implements StateStore.
func (m *MemoryStateStore) Delete(_ context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrSessionRequired
	}
	m.records.Delete(sessionID)
	return nil
}

// Len reports how many sessions hold a record.
func (m *MemoryStateStore) Len() int {
	return m.records.Len()
}

// RedisStateStore keeps each session's record in a hash next to its draft, with the same TTL,
// so every replica sees the same lifecycle.
type RedisStateStore struct {
	Client *redis.Client
	Prefix string
	TTL    time.Duration
}

func (s RedisStateStore) key(sessionID string) string {
	if s.Prefix == "" {
		return fmt.Sprintf("status:%s", sessionID)
	}
	return fmt.Sprintf("%s:status:%s", s.Prefix, sessionID)
}

func (s RedisStateStore) check(sessionID string) error {
	if s.Client == nil {
		return errors.New("checkout: redis client not configured")
	}
	if sessionID == "" {
		return ErrSessionRequired
	}
	return nil
}

// Load implements StateStore.
func (s RedisStateStore) Load(ctx context.Context, sessionID string) (Record, bool, error) {
	if err := s.check(sessionID); err != nil {
		return Record{}, false, err
	}
	fields, err := s.Client.HGetAll(ctx, s.key(sessionID)).Result()
	if err != nil {
		return Record{}, false, err
	}
	status, ok := fields["status"]
	if !ok {
		return Record{}, false, nil
	}
	return Record{
		Status:    Status(status),
		Reference: fields["reference"],
		LastError: fields["last_error"],
	}, true, nil
}

// Save implements StateStore.
func (s RedisStateStore) Save(ctx context.Context, sessionID string, rec Record) error {
	if err := s.check(sessionID); err != nil {
		return err
	}
	key := s.key(sessionID)
	pipe := s.Client.TxPipeline()
	pipe.HSet(ctx, key, "status", string(rec.Status), "reference", rec.Reference, "last_error", rec.LastError)
	if s.TTL > 0 {
		pipe.Expire(ctx, key, s.TTL)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Delete implements StateStore.
func (s RedisStateStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.check(sessionID); err != nil {
		return err
	}
	return s.Client.Del(ctx, s.key(sessionID)).Err()
}
