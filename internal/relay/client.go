package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/market-shopper/internal/resilience"
)

// DefaultEndpoint is the hosted form that forwards quote requests to the shopper inbox.
const DefaultEndpoint = "https://formspree.io/f/xgvzwray"

const genericRejection = "Submission failed. Please check your details and try again."

// ErrTransient reports a network or decoding failure where the relay's verdict is unknown.
var ErrTransient = errors.New("relay: transient network failure")

// RejectedError carries the messages the relay returned for a refused submission.
type RejectedError struct {
	Status   int
	Messages []string
}

func (e *RejectedError) Error() string {
	if e == nil {
		return ""
	}
	if len(e.Messages) == 0 {
		return genericRejection
	}
	return strings.Join(e.Messages, ", ")
}

// Sender posts a quote form to the relay.
type Sender interface {
	Send(ctx context.Context, fields []Field) error
}

// Client submits quote forms as multipart POSTs and interprets the JSON reply.
type Client struct {
	Endpoint  string
	HTTP      *resilience.HTTPClient
	UserAgent string
}

// NewHTTPClient returns a traced HTTP client for relay calls. A zero timeout
// leaves the call unbounded: once a quote is dispatched the outcome is awaited.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout < 0 {
		timeout = 0
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// Send posts the fields once. A 2xx reply is success; a non-2xx reply yields *RejectedError;
// anything that prevents reading a verdict wraps ErrTransient.
func (c *Client) Send(ctx context.Context, fields []Field) error {
	if c == nil || c.HTTP == nil {
		return errors.New("relay: client not configured")
	}
	if err := validateEndpoint(c.Endpoint); err != nil {
		return err
	}
	ctx, span := otel.Tracer("relay.Client").Start(ctx, "Client.Send")
	defer span.End()
	span.SetAttributes(attribute.Int("relay.fields", len(fields)))

	body, contentType, err := encodeMultipart(fields)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	resp, err := c.HTTP.Do(ctx, req)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}
	defer func() { _ = resp.Body.Close() }()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil
	}
	return decodeFailure(resp)
}

type failureBody struct {
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func decodeFailure(resp *http.Response) error {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", ErrTransient, err)
	}
	var parsed map[string]json.RawMessage
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("%w: status %d: decode body: %v", ErrTransient, resp.StatusCode, err)
	}
	if _, ok := parsed["errors"]; !ok {
		return &RejectedError{Status: resp.StatusCode}
	}
	var body failureBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return fmt.Errorf("%w: status %d: decode errors: %v", ErrTransient, resp.StatusCode, err)
	}
	msgs := make([]string, 0, len(body.Errors))
	for _, e := range body.Errors {
		msgs = append(msgs, e.Message)
	}
	return &RejectedError{Status: resp.StatusCode, Messages: msgs}
}

func encodeMultipart(fields []Field) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range fields {
		if err := w.WriteField(f.Name, f.Value); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func validateEndpoint(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("relay: invalid endpoint: %w", err)
	}
	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return errors.New("relay: endpoint must be http or https")
	}
	if parsed.Host == "" {
		return errors.New("relay: endpoint must include host")
	}
	return nil
}
