package traffic

import (
	"sync"
	"time"
)

// maxAge bounds how long outcomes are kept; windows longer than this see only maxAge of history.
const maxAge = 5 * time.Minute

var defaultTracker = NewTracker(time.Now)

// RecordBackendOutcome records one backend call result for endpoint.
func RecordBackendOutcome(endpoint string, ok bool) {
	defaultTracker.Record(endpoint, ok)
}

// BackendErrorRate returns (errorCount, totalCount) across all endpoints within the window.
func BackendErrorRate(window time.Duration) (errors, total int) {
	return defaultTracker.ErrorRate(window)
}

// BackendEndpointErrorRate is BackendErrorRate restricted to one endpoint.
func BackendEndpointErrorRate(endpoint string, window time.Duration) (errors, total int) {
	return defaultTracker.EndpointErrorRate(endpoint, window)
}

// Reset clears all recorded outcomes. For tests only.
func Reset() {
	defaultTracker.Reset()
}

type outcome struct {
	at       time.Time
	endpoint string
	ok       bool
}

// Tracker keeps a sliding window of backend call outcomes. The console uses it to report
// backend health; outcomes never change what the views show.
type Tracker struct {
	mu       sync.Mutex
	now      func() time.Time
	outcomes []outcome
}

// NewTracker returns a Tracker reading time from now.
func NewTracker(now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{now: now}
}

// Record appends an outcome and prunes entries older than maxAge.
func (t *Tracker) Record(endpoint string, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.outcomes = append(t.outcomes, outcome{at: now, endpoint: endpoint, ok: ok})
	t.pruneLocked(now)
}

// ErrorRate returns (errorCount, totalCount) within the window.
func (t *Tracker) ErrorRate(window time.Duration) (errors, total int) {
	return t.errorRate(window, "")
}

// EndpointErrorRate is ErrorRate restricted to one endpoint.
func (t *Tracker) EndpointErrorRate(endpoint string, window time.Duration) (errors, total int) {
	return t.errorRate(window, endpoint)
}

func (t *Tracker) errorRate(window time.Duration, endpoint string) (errors, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-window)
	for _, o := range t.outcomes {
		if o.at.Before(cutoff) || (endpoint != "" && o.endpoint != endpoint) {
			continue
		}
		total++
		if !o.ok {
			errors++
		}
	}
	return errors, total
}

// Reset clears all recorded outcomes from the tracker.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.outcomes = nil
}

// pruneLocked drops outcomes older than maxAge. Outcomes are appended in time order.
// Must be called with mutex held.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-maxAge)
	i := 0
	for ; i < len(t.outcomes) && t.outcomes[i].at.Before(cutoff); i++ {
	}
	if i > 0 {
		t.outcomes = append(t.outcomes[:0], t.outcomes[i:]...)
	}
}
