package draft

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/noah-isme/market-shopper/internal/order"
)

// Load reads every draft key for the session. A missing or unreadable key falls back to the
// field's initial value without affecting the others.
func Load(ctx context.Context, store Store, sessionID string) (order.Context, error) {
	c := order.NewContext()
	if store == nil {
		return c, fmt.Errorf("draft: store not configured")
	}
	for _, key := range AllKeys() {
		raw, ok, err := store.Get(ctx, sessionID, key)
		if err != nil {
			return c, fmt.Errorf("draft: get %s: %w", key, err)
		}
		if !ok {
			continue
		}
		decodeInto(&c, key, raw)
	}
	return c, nil
}

// Save writes the listed keys of the context. Passing no keys writes all of them.
func Save(ctx context.Context, store Store, sessionID string, c order.Context, keys ...string) error {
	if store == nil {
		return fmt.Errorf("draft: store not configured")
	}
	if len(keys) == 0 {
		keys = AllKeys()
	}
	for _, key := range keys {
		value, err := encode(c, key)
		if err != nil {
			return fmt.Errorf("draft: encode %s: %w", key, err)
		}
		if err := store.Set(ctx, sessionID, key, value); err != nil {
			return fmt.Errorf("draft: set %s: %w", key, err)
		}
	}
	return nil
}

func encode(c order.Context, key string) (string, error) {
	switch key {
	case KeyClientInfo:
		b, err := json.Marshal(c.Client)
		return string(b), err
	case KeyShoppingList:
		b, err := json.Marshal(order.ForStorage(c.Items))
		return string(b), err
	case KeyShoppingType:
		return string(c.ShoppingType), nil
	case KeyDeliveryTime:
		return c.DeliveryTime, nil
	case KeyZone:
		return c.Zone, nil
	case KeyPriority:
		return c.Priority, nil
	case KeyPricingMode:
		return string(c.Mode), nil
	case KeyEmergencyName:
		return c.Emergency.Name, nil
	case KeyEmergencyPhone:
		return c.Emergency.Phone, nil
	default:
		return "", fmt.Errorf("unknown key %q", key)
	}
}

func decodeInto(c *order.Context, key, raw string) {
	switch key {
	case KeyClientInfo:
		var ci order.ClientInfo
		if err := json.Unmarshal([]byte(raw), &ci); err == nil {
			c.Client = ci
		}
	case KeyShoppingList:
		var items []order.Item
		if err := json.Unmarshal([]byte(raw), &items); err == nil {
			c.Items = order.ForStorage(items)
		}
	case KeyShoppingType:
		if order.IsShoppingType(raw) {
			c.ShoppingType = order.ShoppingType(raw)
		}
	case KeyDeliveryTime:
		c.DeliveryTime = raw
	case KeyZone:
		if raw != "" {
			c.Zone = raw
		}
	case KeyPriority:
		if raw != "" {
			c.Priority = raw
		}
	case KeyPricingMode:
		switch order.PricingMode(raw) {
		case order.ModeBudget, order.ModeQuote:
			c.Mode = order.PricingMode(raw)
		}
	case KeyEmergencyName:
		c.Emergency.Name = raw
	case KeyEmergencyPhone:
		c.Emergency.Phone = raw
	}
}
