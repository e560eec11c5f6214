package traffic

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// assertRate returns a checker taking an (errors, total) pair directly from ErrorRate.
func assertRate(t *testing.T, wantErrs, wantTotal int) func(errs, total int) {
	t.Helper()
	return func(errs, total int) {
		t.Helper()
		assert.Equal(t, wantErrs, errs, "errors")
		assert.Equal(t, wantTotal, total, "total")
	}
}

// TestErrorRate_Empty verifies an empty tracker reports zero calls.
func TestErrorRate_Empty(t *testing.T) {
	tr := NewTracker(newClock().now)
	assertRate(t, 0, 0)(tr.ErrorRate(time.Minute))
}

// TestErrorRate_SuccessAndError verifies errors and totals are counted within the window.
func TestErrorRate_SuccessAndError(t *testing.T) {
	tr := NewTracker(newClock().now)
	tr.Record("weather", true)
	tr.Record("history", true)
	tr.Record("count", false)

	assertRate(t, 1, 3)(tr.ErrorRate(time.Minute))
}

// TestErrorRate_WindowExcludesOldOutcomes verifies outcomes older than the window are ignored.
func TestErrorRate_WindowExcludesOldOutcomes(t *testing.T) {
	clock := newClock()
	tr := NewTracker(clock.now)
	tr.Record("weather", false)
	clock.advance(2 * time.Minute)
	tr.Record("weather", true)

	assertRate(t, 0, 1)(tr.ErrorRate(time.Minute))
	assertRate(t, 1, 2)(tr.ErrorRate(5 * time.Minute))
}

// TestRecord_PrunesBeyondMaxAge verifies outcomes older than maxAge are dropped on record.
func TestRecord_PrunesBeyondMaxAge(t *testing.T) {
	clock := newClock()
	tr := NewTracker(clock.now)
	tr.Record("weather", false)
	clock.advance(maxAge + time.Second)
	tr.Record("weather", true)

	assert.Len(t, tr.outcomes, 1, "outcomes after prune")
}

// TestEndpointErrorRate verifies per-endpoint filtering.
func TestEndpointErrorRate(t *testing.T) {
	tr := NewTracker(newClock().now)
	tr.Record("weather", false)
	tr.Record("history", true)
	tr.Record("history", false)

	assertRate(t, 1, 2)(tr.EndpointErrorRate("history", time.Minute))
}

// TestDefaultTracker verifies the package-level helpers share one tracker.
func TestDefaultTracker(t *testing.T) {
	Reset()
	defer Reset()
	RecordBackendOutcome("weather", true)
	RecordBackendOutcome("weather", false)
	RecordBackendOutcome("count", true)
	assertRate(t, 1, 3)(BackendErrorRate(time.Minute))
	assertRate(t, 1, 2)(BackendEndpointErrorRate("weather", time.Minute))
	assertRate(t, 0, 1)(BackendEndpointErrorRate("count", time.Minute))
}

// TestReset clears recorded outcomes.
func TestReset(t *testing.T) {
	tr := NewTracker(newClock().now)
	tr.Record("weather", false)
	tr.Reset()
	assertRate(t, 0, 0)(tr.ErrorRate(time.Minute))
}
