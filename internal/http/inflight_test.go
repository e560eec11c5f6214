package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInFlightTracker_Count(t *testing.T) {
	tracker := &InFlightTracker{}

	assert.Equal(t, int64(0), tracker.Count())
	tracker.Increment()
	tracker.Increment()
	assert.Equal(t, int64(2), tracker.Count())
	tracker.Decrement()
	tracker.Decrement()
	assert.Equal(t, int64(0), tracker.Count())
}

func TestInFlightTracker_WaitForZero(t *testing.T) {
	tracker := &InFlightTracker{}
	tracker.Increment()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- tracker.WaitForZero(ctx, 5*time.Millisecond)
	}()

	time.Sleep(10 * time.Millisecond)
	tracker.Decrement()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(500 * time.Millisecond):
		require.FailNow(t, "WaitForZero did not return after count reached zero")
	}
}

func TestInFlightTracker_WaitForZero_ContextCanceled(t *testing.T) {
	tracker := &InFlightTracker{}
	tracker.Increment()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, tracker.WaitForZero(ctx, 5*time.Millisecond), context.Canceled)
}

func TestMetricsMiddleware_TracksInFlight(t *testing.T) {
	var during int64
	h := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		during = InFlightCount()
	}))
	before := InFlightCount()

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, before+1, during, "in-flight during request")
	assert.Equal(t, before, InFlightCount(), "in-flight after request")
}
