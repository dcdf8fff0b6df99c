package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of one limiter check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter decides whether another event for key fits within its budget.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}
