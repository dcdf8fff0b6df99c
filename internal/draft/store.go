package draft

import (
	"context"
	"errors"
	"sync"
)

// Keys persisted for every draft. They are written independently and cleared together.
const (
	KeyClientInfo     = "client_info"
	KeyShoppingList   = "shopping_list"
	KeyShoppingType   = "shopping_type"
	KeyDeliveryTime   = "delivery_time"
	KeyZone           = "zone"
	KeyPriority       = "priority"
	KeyPricingMode    = "pricing_mode"
	KeyEmergencyName  = "emergency_contact_name"
	KeyEmergencyPhone = "emergency_contact_phone"
)

// AllKeys returns the nine draft keys.
func AllKeys() []string {
	return []string{
		KeyClientInfo,
		KeyShoppingList,
		KeyShoppingType,
		KeyDeliveryTime,
		KeyZone,
		KeyPriority,
		KeyPricingMode,
		KeyEmergencyName,
		KeyEmergencyPhone,
	}
}

// ErrSessionRequired is returned when a store call is made without a session identifier.
var ErrSessionRequired = errors.New("draft: session id is required")

// Store persists draft fields per session.
type Store interface {
	Get(ctx context.Context, sessionID, key string) (string, bool, error)
	Set(ctx context.Context, sessionID, key, value string) error
	Clear(ctx context.Context, sessionID string) error
}

// MemoryStore keeps drafts in process memory. Suitable for tests and single-node development.
type MemoryStore struct {
	mu     sync.RWMutex
	drafts map[string]map[string]string
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{drafts: map[string]map[string]string{}}
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, sessionID, key string) (string, bool, error) {
	if sessionID == "" {
		return "", false, ErrSessionRequired
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.drafts[sessionID][key]
	return v, ok, nil
}

// Set implements Store.
func (m *MemoryStore) Set(_ context.Context, sessionID, key, value string) error {
	if sessionID == "" {
		return ErrSessionRequired
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	fields, ok := m.drafts[sessionID]
	if !ok {
		fields = map[string]string{}
		m.drafts[sessionID] = fields
	}
	fields[key] = value
	return nil
}

// Clear implements Store.
func (m *MemoryStore) Clear(_ context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrSessionRequired
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.drafts, sessionID)
	return nil
}

// Len reports how many of the draft keys are stored for the session.
func (m *MemoryStore) Len(sessionID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.drafts[sessionID])
}
