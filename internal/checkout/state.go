package checkout

import "sync"

// Status is where a session sits in the submission lifecycle.
type Status string

const (
	StatusIdle               Status = "idle"
	StatusValidated          Status = "validated"
	StatusSubmitting         Status = "submitting"
	StatusSubmitted          Status = "submitted"
	StatusFailed             Status = "failed"
	StatusHandedOffToPayment Status = "handed_off_to_payment"
)

// ticket identifies one submission attempt. A ticket goes stale when the session is
// discarded while the attempt is running.
type ticket struct {
	sessionID  string
	generation uint64
}

type attempt struct {
	generation uint64
	status     Status
}

// tracker is the process-local in-flight guard. It only holds sessions with an attempt
// running, so it stays as small as the number of concurrent submissions. Settled outcomes
// live in the StateStore.
type tracker struct {
	mu      sync.Mutex
	next    uint64
	running map[string]attempt
}

func newTracker() *tracker {
	return &tracker{running: map[string]attempt{}}
}

// begin registers an attempt in the given status unless one is already running.
func (t *tracker) begin(sessionID string, status Status) (ticket, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[sessionID]; ok {
		return ticket{}, ErrSubmissionInFlight
	}
	t.next++
	t.running[sessionID] = attempt{generation: t.next, status: status}
	return ticket{sessionID: sessionID, generation: t.next}, nil
}

// status reports the running attempt's status, if there is one.
func (t *tracker) status(sessionID string) (Status, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	a, ok := t.running[sessionID]
	return a.status, ok
}

// current reports whether the ticket still belongs to the live session.
func (t *tracker) current(tk ticket) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	a, ok := t.running[tk.sessionID]
	return ok && a.generation == tk.generation
}

// end retires the attempt. It reports false, and changes nothing, when the ticket is stale.
func (t *tracker) end(tk ticket) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	a, ok := t.running[tk.sessionID]
	if !ok || a.generation != tk.generation {
		return false
	}
	delete(t.running, tk.sessionID)
	return true
}

// drop abandons the session's running attempt, making its ticket stale.
func (t *tracker) drop(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.running, sessionID)
}

func (t *tracker) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.running)
}
