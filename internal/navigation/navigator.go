package navigation

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// View names one of the screens a session can be on.
type View string

const (
	ViewOrder     View = "order"
	ViewPayment   View = "payment"
	ViewPrices    View = "prices"
	ViewFAQ       View = "faq"
	ViewSubmitted View = "submitted"
)

// ErrUnknownView is returned when navigating to a view outside the fixed set.
var ErrUnknownView = errors.New("navigation: unknown view")

// Views lists every navigable view.
func Views() []View {
	return []View{ViewOrder, ViewPayment, ViewPrices, ViewFAQ, ViewSubmitted}
}

// Parse converts a raw name into a View.
func Parse(raw string) (View, error) {
	for _, v := range Views() {
		if string(v) == raw {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownView, raw)
}

// PaymentPayload is carried into the payment view.
type PaymentPayload struct {
	Email  string `json:"email"`
	Amount int64  `json:"amount"`
}

// State is the active view and its payload.
type State struct {
	View    View            `json:"view"`
	Payment *PaymentPayload `json:"payment,omitempty"`
}

// DefaultTTL bounds how long an untouched session keeps a non-default view.
const DefaultTTL = 720 * time.Hour

// Navigator tracks the active view per session. Sessions start on the order view, and
// returning to it drops the stored state.
type Navigator struct {
	store Store
}

// NewNavigator returns a navigator over store. A nil store keeps views in memory for DefaultTTL.
func NewNavigator(store Store) *Navigator {
	if store == nil {
		store = NewMemoryStore(DefaultTTL)
	}
	return &Navigator{store: store}
}

// Navigate switches the session to the view. The payload is only retained for the payment view.
func (n *Navigator) Navigate(ctx context.Context, sessionID string, view View, payload *PaymentPayload) (State, error) {
	if _, err := Parse(string(view)); err != nil {
		return State{}, err
	}
	st := State{View: view}
	if view == ViewPayment && payload != nil {
		p := *payload
		st.Payment = &p
	}
	if view == ViewOrder {
		return st, n.store.Delete(ctx, sessionID)
	}
	if err := n.store.Save(ctx, sessionID, st); err != nil {
		return State{}, err
	}
	return st, nil
}

// Current returns the session's view.
func (n *Navigator) Current(ctx context.Context, sessionID string) (State, error) {
	st, ok, err := n.store.Load(ctx, sessionID)
	if err != nil {
		return State{}, err
	}
	if !ok {
		return State{View: ViewOrder}, nil
	}
	return st, nil
}

// Forget drops the session's navigation state.
func (n *Navigator) Forget(ctx context.Context, sessionID string) error {
	return n.store.Delete(ctx, sessionID)
}
