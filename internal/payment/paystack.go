package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	// SignatureHeader carries the HMAC-SHA512 of the raw webhook body.
	SignatureHeader = "x-paystack-signature"
	// MetadataSessionKey names the draft session in transaction metadata.
	MetadataSessionKey = "session_id"
)

// Paystack configures the inline checkout widget. Amounts are sent in kobo.
type Paystack struct {
	PublicKey string
	SecretKey string
	Currency  string
	Enabled   bool
	Now       func() time.Time
}

// InitiatePayment checks the request and returns the widget configuration. Nothing is sent to
// Paystack; the client opens the widget with the returned values.
func (p Paystack) InitiatePayment(_ context.Context, req Request) (Handoff, error) {
	if !p.Enabled {
		return Handoff{}, ErrUnavailable
	}
	if strings.TrimSpace(p.PublicKey) == "" {
		return Handoff{}, ErrNotLoaded
	}
	if req.Amount <= 0 {
		return Handoff{}, ErrInvalidAmount
	}
	email := strings.TrimSpace(req.Email)
	if !strings.Contains(email, "@") {
		return Handoff{}, ErrInvalidEmail
	}
	ref := strings.TrimSpace(req.Reference)
	if ref == "" {
		ref = NewReference(p.now())
	}
	currency := p.Currency
	if currency == "" {
		currency = "NGN"
	}
	var metadata map[string]string
	if req.SessionID != "" {
		metadata = map[string]string{MetadataSessionKey: req.SessionID}
	}
	return Handoff{
		Provider:    "paystack",
		PublicKey:   p.PublicKey,
		Email:       email,
		Amount:      req.Amount,
		AmountMinor: req.Amount * 100,
		Currency:    currency,
		Reference:   ref,
		Metadata:    metadata,
	}, nil
}

// NewReference builds a transaction reference from the current time.
func NewReference(now time.Time) string {
	return fmt.Sprintf("ms_%d", now.UnixMilli())
}

func (p Paystack) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// VerifyWebhook checks the signature header and normalises the event payload.
func (p Paystack) VerifyWebhook(r *http.Request, body []byte) (WebhookVerifyResult, error) {
	secret := strings.TrimSpace(p.SecretKey)
	if secret == "" {
		return WebhookVerifyResult{}, errors.New("paystack secret key not configured")
	}
	provided := ""
	if r != nil {
		provided = strings.TrimSpace(r.Header.Get(SignatureHeader))
	}
	expected := ComputeSignature(secret, body)
	if provided == "" || !hmac.Equal([]byte(strings.ToLower(provided)), []byte(expected)) {
		return WebhookVerifyResult{Valid: false, Err: errors.New("invalid signature")}, nil
	}

	var payload struct {
		Event string `json:"event"`
		Data  struct {
			Reference string `json:"reference"`
			Amount    int64  `json:"amount"`
			Status    string `json:"status"`
			Customer  struct {
				Email string `json:"email"`
			} `json:"customer"`
			Metadata map[string]any `json:"metadata"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return WebhookVerifyResult{Valid: false, Err: err}, nil
	}
	if payload.Data.Reference == "" {
		return WebhookVerifyResult{Valid: false, Err: errors.New("missing reference")}, nil
	}
	return WebhookVerifyResult{
		Valid:       true,
		Event:       payload.Event,
		Reference:   payload.Data.Reference,
		AmountMinor: payload.Data.Amount,
		Status:      strings.ToLower(payload.Data.Status),
		Email:       payload.Data.Customer.Email,
		SessionID:   metadataString(payload.Data.Metadata, MetadataSessionKey),
	}, nil
}

// ComputeSignature returns the hex HMAC-SHA512 Paystack sends for a body.
func ComputeSignature(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func metadataString(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}
