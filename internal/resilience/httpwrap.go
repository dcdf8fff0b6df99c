package resilience

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// HTTPClient sends a request exactly once behind a circuit breaker. It never
// retries: the relay has no idempotency key, so a second POST could deliver a
// duplicate quote.
type HTTPClient struct {
	Client  *http.Client
	Breaker *Breaker
	Target  string
}

// Do dispatches req with ctx. Transport errors and 5xx replies are reported to
// the breaker as failures; any other reply counts as the dependency being up.
// When the breaker refuses, the returned error wraps ErrOpenCircuit and no
// request was sent. The caller owns the response body.
func (cl HTTPClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if cl.Client == nil {
		return nil, errors.New("resilience: http client not configured")
	}
	if cl.Breaker != nil && !cl.Breaker.Allow(ctx) {
		cl.count("circuit_open")
		if wait := cl.Breaker.RetryAfter(); wait > 0 {
			return nil, fmt.Errorf("%w: retry in %s", ErrOpenCircuit, wait.Round(time.Second))
		}
		return nil, ErrOpenCircuit
	}

	resp, err := cl.Client.Do(req.WithContext(ctx))
	switch {
	case err != nil:
		cl.report(ctx, false)
		cl.count("error")
		return nil, err
	case resp.StatusCode >= http.StatusInternalServerError:
		cl.report(ctx, false)
		cl.count("server_error")
	default:
		cl.report(ctx, true)
		cl.count("ok")
	}
	return resp, nil
}

func (cl HTTPClient) report(ctx context.Context, success bool) {
	if cl.Breaker != nil {
		cl.Breaker.Report(ctx, success)
	}
}

func (cl HTTPClient) count(outcome string) {
	if OutboundRequests == nil {
		return
	}
	target := cl.Target
	if target == "" {
		target = "default"
	}
	OutboundRequests.WithLabelValues(target, outcome).Inc()
}
