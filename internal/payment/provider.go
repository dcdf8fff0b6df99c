package payment

import (
	"context"
	"errors"
	"net/http"
)

var (
	// ErrUnavailable is returned when instant payment is switched off.
	ErrUnavailable = errors.New("payment: provider unavailable")
	// ErrNotLoaded is returned when the provider is enabled but missing its public key.
	ErrNotLoaded = errors.New("payment: provider not loaded")
	// ErrInvalidAmount rejects hand-offs for non-positive totals.
	ErrInvalidAmount = errors.New("payment: amount must be greater than zero")
	// ErrInvalidEmail rejects hand-offs without a usable customer email.
	ErrInvalidEmail = errors.New("payment: valid email is required")
)

// Request is what the engine hands to the payment provider.
type Request struct {
	Email     string
	Amount    int64
	Reference string
	SessionID string
}

// Handoff is the widget configuration a client needs to open the payment dialog.
type Handoff struct {
	Provider    string `json:"provider"`
	PublicKey   string `json:"publicKey"`
	Email       string `json:"email"`
	Amount      int64  `json:"amount"`
	AmountMinor int64  `json:"amountMinor"`
	Currency    string `json:"currency"`
	Reference   string `json:"reference"`
	// Metadata is passed through the widget and echoed back on the provider's webhook.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// WebhookVerifyResult contains the normalised data extracted from a provider notification.
type WebhookVerifyResult struct {
	Valid       bool
	Event       string
	Reference   string
	AmountMinor int64
	Status      string
	Email       string
	SessionID   string
	Err         error
}

// Provider abstracts the operations required from an upstream payment provider.
type Provider interface {
	InitiatePayment(ctx context.Context, req Request) (Handoff, error)
	VerifyWebhook(r *http.Request, body []byte) (WebhookVerifyResult, error)
}
