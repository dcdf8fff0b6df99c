package health

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/noah-isme/market-shopper/internal/common"
)

var ready atomic.Bool

func init() {
	ready.Store(true)
}

// SetReady toggles readiness. The server flips it off before draining connections on shutdown.
func SetReady(v bool) {
	ready.Store(v)
}

// Probe is a named dependency check.
type Probe struct {
	Name    string
	Timeout time.Duration
	Ping    func(ctx context.Context) error
}

// Handler exposes HTTP handlers for health endpoints.
type Handler struct {
	Probes []Probe
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready reports readiness based on dependency probes. Without probes the process is ready
// as long as it is not shutting down.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if !ready.Load() {
		common.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "shutting_down"})
		return
	}
	status := map[string]string{"status": "ok"}
	healthy := true
	for _, p := range h.Probes {
		if p.Ping == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(r.Context(), probeTimeout(p.Timeout))
		err := p.Ping(ctx)
		cancel()
		if err != nil {
			status[p.Name] = err.Error()
			healthy = false
			continue
		}
		status[p.Name] = "ok"
	}
	if !healthy {
		status["status"] = "degraded"
		common.JSON(w, http.StatusServiceUnavailable, status)
		return
	}
	common.JSON(w, http.StatusOK, status)
}

func probeTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return 300 * time.Millisecond
	}
	return d
}
