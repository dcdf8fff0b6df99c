package navigation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/noah-isme/market-shopper/internal/common"
)

// ErrSessionRequired is returned when a store call is made without a session identifier.
var ErrSessionRequired = errors.New("navigation: session id is required")

// Store persists the active view per session.
type Store interface {
	Load(ctx context.Context, sessionID string) (State, bool, error)
	Save(ctx context.Context, sessionID string, st State) error
	Delete(ctx context.Context, sessionID string) error
}

// MemoryStore keeps views in process memory, expiring them TTL after the last change.
type MemoryStore struct {
	states *common.Expiring[State]
}

// NewMemoryStore returns an empty store. A non-positive ttl keeps entries until deleted.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{states: common.NewExpiring[State](ttl)}
}

// WithClock replaces the time source used for expiry.
func (m *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	m.states.WithClock(now)
	return m
}

// Load implements Store.
func (m *MemoryStore) Load(_ context.Context, sessionID string) (State, bool, error) {
	if sessionID == "" {
		return State{}, false, ErrSessionRequired
	}
	st, ok := m.states.Get(sessionID)
	return st, ok, nil
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, sessionID string, st State) error {
	if sessionID == "" {
		return ErrSessionRequired
	}
	m.states.Set(sessionID, st)
	return nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrSessionRequired
	}
	m.states.Delete(sessionID)
	return nil
}

// Len reports how many sessions hold a non-default view.
func (m *MemoryStore) Len() int {
	return m.states.Len()
}

// RedisStore keeps each session's view in a hash beside its draft, with the same TTL.
type RedisStore struct {
	Client *redis.Client
	Prefix string
	TTL    time.Duration
}

const (
	fieldView   = "view"
	fieldEmail  = "email"
	fieldAmount = "amount"
)

func (s RedisStore) key(sessionID string) string {
	if s.Prefix == "" {
		return fmt.Sprintf("view:%s", sessionID)
	}
	return fmt.Sprintf("%s:view:%s", s.Prefix, sessionID)
}

func (s RedisStore) check(sessionID string) error {
	if s.Client == nil {
		return errors.New("navigation: redis client not configured")
	}
	if sessionID == "" {
		return ErrSessionRequired
	}
	return nil
}

// Load implements Store.
func (s RedisStore) Load(ctx context.Context, sessionID string) (State, bool, error) {
	if err := s.check(sessionID); err != nil {
		return State{}, false, err
	}
	fields, err := s.Client.HGetAll(ctx, s.key(sessionID)).Result()
	if err != nil {
		return State{}, false, err
	}
	raw, ok := fields[fieldView]
	if !ok {
		return State{}, false, nil
	}
	view, err := Parse(raw)
	if err != nil {
		return State{}, false, err
	}
	st := State{View: view}
	if email, ok := fields[fieldEmail]; ok {
		amount, err := strconv.ParseInt(fields[fieldAmount], 10, 64)
		if err != nil {
			return State{}, false, fmt.Errorf("navigation: stored amount: %w", err)
		}
		st.Payment = &PaymentPayload{Email: email, Amount: amount}
	}
	return st, true, nil
}

// Save implements Store. The hash is replaced so a stale payment payload never survives a
// switch to another view.
func (s RedisStore) Save(ctx context.Context, sessionID string, st State) error {
	if err := s.check(sessionID); err != nil {
		return err
	}
	values := map[string]any{fieldView: string(st.View)}
	if st.Payment != nil {
		values[fieldEmail] = st.Payment.Email
		values[fieldAmount] = st.Payment.Amount
	}
	key := s.key(sessionID)
	pipe := s.Client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, values)
	if s.TTL > 0 {
		pipe.Expire(ctx, key, s.TTL)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Delete implements Store.
func (s RedisStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.check(sessionID); err != nil {
		return err
	}
	return s.Client.Del(ctx, s.key(sessionID)).Err()
}
