package checkout

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/noah-isme/market-shopper/internal/draft"
	"github.com/noah-isme/market-shopper/internal/navigation"
	"github.com/noah-isme/market-shopper/internal/order"
	"github.com/noah-isme/market-shopper/internal/pricing"
)

// DraftView is the session's draft together with its derived price and lifecycle state.
type DraftView struct {
	Draft     order.Context    `json:"draft"`
	Breakdown BreakdownView    `json:"breakdown"`
	Status    Status           `json:"status"`
	LastError string           `json:"lastError,omitempty"`
	View      navigation.State `json:"view"`
}

// DetailsInput updates order-level fields. Nil fields are left unchanged.
type DetailsInput struct {
	ShoppingType     *string                 `json:"shoppingType"`
	DeliveryTime     *string                 `json:"deliveryTime"`
	Zone             *string                 `json:"zone"`
	Priority         *string                 `json:"priority"`
	PricingMode      *string                 `json:"pricingMode"`
	EmergencyContact *order.EmergencyContact `json:"emergencyContact"`
}

// Draft returns the session's current draft.
func (s *Service) Draft(ctx context.Context, sessionID string) (DraftView, error) {
	c, err := draft.Load(ctx, s.drafts, sessionID)
	if err != nil {
		return DraftView{}, err
	}
	return s.view(ctx, sessionID, c)
}

// UpdateClient replaces the client contact details. Completeness is only enforced on submit.
func (s *Service) UpdateClient(ctx context.Context, sessionID string, ci order.ClientInfo) (DraftView, error) {
	c, err := draft.Load(ctx, s.drafts, sessionID)
	if err != nil {
		return DraftView{}, err
	}
	c.Client = order.ClientInfo{
		Name:    strings.TrimSpace(ci.Name),
		Phone:   strings.TrimSpace(ci.Phone),
		Email:   strings.TrimSpace(ci.Email),
		Address: strings.TrimSpace(ci.Address),
	}
	return s.save(ctx, sessionID, c, draft.KeyClientInfo)
}

// UpdateDetails applies the non-nil fields of in after checking them against the fixed option sets.
func (s *Service) UpdateDetails(ctx context.Context, sessionID string, in DetailsInput) (DraftView, error) {
	c, err := draft.Load(ctx, s.drafts, sessionID)
	if err != nil {
		return DraftView{}, err
	}
	var keys []string
	if in.ShoppingType != nil {
		if !order.IsShoppingType(*in.ShoppingType) {
			return DraftView{}, fmt.Errorf("%w: unknown shopping type %q", ErrInvalidDetails, *in.ShoppingType)
		}
		c.ShoppingType = order.ShoppingType(*in.ShoppingType)
		keys = append(keys, draft.KeyShoppingType)
	}
	if in.DeliveryTime != nil {
		c.DeliveryTime = strings.TrimSpace(*in.DeliveryTime)
		keys = append(keys, draft.KeyDeliveryTime)
	}
	if in.Zone != nil {
		if !s.schedule.HasZone(*in.Zone) {
			return DraftView{}, fmt.Errorf("%w: unknown zone %q", ErrInvalidDetails, *in.Zone)
		}
		c.Zone = *in.Zone
		keys = append(keys, draft.KeyZone)
	}
	if in.Priority != nil {
		if _, ok := s.schedule.PriorityFees[*in.Priority]; !ok {
			return DraftView{}, fmt.Errorf("%w: unknown priority %q", ErrInvalidDetails, *in.Priority)
		}
		c.Priority = *in.Priority
		keys = append(keys, draft.KeyPriority)
	}
	if in.PricingMode != nil {
		mode := order.PricingMode(*in.PricingMode)
		if mode != order.ModeBudget && mode != order.ModeQuote {
			return DraftView{}, fmt.Errorf("%w: unknown pricing mode %q", ErrInvalidDetails, *in.PricingMode)
		}
		c.Mode = mode
		keys = append(keys, draft.KeyPricingMode)
	}
	if in.EmergencyContact != nil {
		c.Emergency = order.EmergencyContact{
			Name:  strings.TrimSpace(in.EmergencyContact.Name),
			Phone: strings.TrimSpace(in.EmergencyContact.Phone),
		}
		keys = append(keys, draft.KeyEmergencyName, draft.KeyEmergencyPhone)
	}
	if len(keys) == 0 {
		return s.view(ctx, sessionID, c)
	}
	return s.save(ctx, sessionID, c, keys...)
}

// AddItem appends a row. A nil item appends the empty row a fresh list starts with.
func (s *Service) AddItem(ctx context.Context, sessionID string, it *order.Item) (DraftView, error) {
	c, err := draft.Load(ctx, s.drafts, sessionID)
	if err != nil {
		return DraftView{}, err
	}
	c.Items = order.AppendItem(c.Items)
	if it != nil {
		row := *it
		if row.Unit == "" {
			row.Unit = order.UnitPieces
		}
		if err := s.validator.CheckItem(row); err != nil {
			return DraftView{}, fmt.Errorf("%w: %v", ErrInvalidDetails, err)
		}
		c.Items[len(c.Items)-1] = row
	}
	return s.save(ctx, sessionID, c, draft.KeyShoppingList)
}

// UpdateItem sets the given fields of the row at index. Fields are applied in name order and
// nothing is saved if any of them is rejected.
func (s *Service) UpdateItem(ctx context.Context, sessionID string, index int, fields map[string]string) (DraftView, error) {
	c, err := draft.Load(ctx, s.drafts, sessionID)
	if err != nil {
		return DraftView{}, err
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	items := c.Items
	for _, name := range names {
		items, err = order.UpdateItem(items, index, name, fields[name])
		if err != nil {
			return DraftView{}, err
		}
	}
	c.Items = items
	return s.save(ctx, sessionID, c, draft.KeyShoppingList)
}

// RemoveItem deletes the row at index. Removing the last row leaves the empty starter row.
func (s *Service) RemoveItem(ctx context.Context, sessionID string, index int) (DraftView, error) {
	c, err := draft.Load(ctx, s.drafts, sessionID)
	if err != nil {
		return DraftView{}, err
	}
	items, err := order.RemoveItem(c.Items, index)
	if err != nil {
		return DraftView{}, err
	}
	c.Items = order.ForStorage(items)
	return s.save(ctx, sessionID, c, draft.KeyShoppingList)
}

func (s *Service) save(ctx context.Context, sessionID string, c order.Context, keys ...string) (DraftView, error) {
	if err := draft.Save(ctx, s.drafts, sessionID, c, keys...); err != nil {
		return DraftView{}, err
	}
	if err := s.clearRecord(ctx, sessionID); err != nil {
		return DraftView{}, err
	}
	return s.view(ctx, sessionID, c)
}

func (s *Service) view(ctx context.Context, sessionID string, c order.Context) (DraftView, error) {
	rec, err := s.State(ctx, sessionID)
	if err != nil {
		return DraftView{}, err
	}
	nav, err := s.views.Current(ctx, sessionID)
	if err != nil {
		return DraftView{}, err
	}
	return DraftView{
		Draft:     c,
		Breakdown: newBreakdownView(c.Breakdown(s.schedule)),
		Status:    rec.Status,
		LastError: rec.LastError,
		View:      nav,
	}, nil
}

// ZoneOption is a selectable delivery zone.
type ZoneOption struct {
	Key     string `json:"key"`
	Fee     int64  `json:"fee"`
	Display string `json:"display"`
}

// Zones lists the transport table in display order, placeholder first.
func (s *Service) Zones() []ZoneOption {
	out := make([]ZoneOption, 0, len(s.schedule.Zones))
	for _, z := range s.schedule.Zones {
		display := z.Key
		if z.Key == pricing.PlaceholderZone {
			display = "Select a delivery zone"
		} else if z.Fee > 0 {
			display = fmt.Sprintf("%s (NGN %s)", z.Key, pricing.FormatNaira(z.Fee))
		}
		out = append(out, ZoneOption{Key: z.Key, Fee: z.Fee, Display: display})
	}
	return out
}
