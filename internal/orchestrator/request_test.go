package orchestrator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func failWith(err error) func(context.Context) ([]string, error) {
	return func(context.Context) ([]string, error) { return nil, err }
}

func succeedWith(v []string) func(context.Context) ([]string, error) {
	return func(context.Context) ([]string, error) { return v, nil }
}

func TestRequest_StartsIdle(t *testing.T) {
	r := New[int](Options{Name: "test"})
	require.Equal(t, StatusIdle, r.State().Status())
	require.False(t, r.Loading())
	_, ok := r.Latest()
	require.False(t, ok)
}

func TestRequest_Success(t *testing.T) {
	r := New[[]string](Options{Name: "test"})

	st, err := r.Do(context.Background(), succeedWith([]string{"a"}))
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, st.Status())
	data, ok := st.Data()
	require.True(t, ok)
	require.Equal(t, []string{"a"}, data)
	require.False(t, r.Loading())
}

func TestRequest_LoadingDuringCall(t *testing.T) {
	r := New[[]string](Options{Name: "test"})

	var sawLoading bool
	_, err := r.Do(context.Background(), func(context.Context) ([]string, error) {
		sawLoading = r.State().IsLoading() && r.Loading()
		return nil, nil
	})
	require.NoError(t, err)
	require.True(t, sawLoading)
}

func TestRequest_FailureUsesExtractedMessage(t *testing.T) {
	r := New[[]string](Options{
		Name:            "test",
		FallbackMessage: "Failed to fetch history.",
		Message: func(err error, fallback string) string {
			if err.Error() == "with body" {
				return "Token expired"
			}
			return fallback
		},
	})

	st, err := r.Do(context.Background(), failWith(errors.New("with body")))
	require.NoError(t, err)
	require.Equal(t, StatusError, st.Status())
	require.Equal(t, "Token expired", st.Message())

	st, _ = r.Do(context.Background(), failWith(errors.New("dial tcp: refused")))
	require.Equal(t, "Failed to fetch history.", st.Message())
}

func TestRequest_FailureWithoutExtractorUsesFallback(t *testing.T) {
	r := New[int](Options{Name: "test", FallbackMessage: "Failed to fetch count."})
	st, _ := r.Do(context.Background(), func(context.Context) (int, error) { return 0, errors.New("x") })
	require.Equal(t, "Failed to fetch count.", st.Message())
}

func TestRequest_ClearOnSubmit_FailureDropsPriorData(t *testing.T) {
	r := New[[]string](Options{Name: "weather", Policy: ClearOnSubmit})

	_, _ = r.Do(context.Background(), succeedWith([]string{"old"}))
	_, ok := r.Latest()
	require.True(t, ok)

	var duringCall bool
	_, _ = r.Do(context.Background(), func(context.Context) ([]string, error) {
		_, duringCall = r.Latest()
		return nil, errors.New("boom")
	})
	require.False(t, duringCall, "prior data must be cleared before the new outcome is applied")
	_, ok = r.Latest()
	require.False(t, ok)
}

func TestRequest_RetainOnFailure_KeepsPriorData(t *testing.T) {
	r := New[[]string](Options{Name: "entries", Policy: RetainOnFailure, FallbackMessage: "Failed to fetch history."})

	_, _ = r.Do(context.Background(), succeedWith([]string{"a", "b"}))

	var duringCall []string
	st, err := r.Do(context.Background(), func(context.Context) ([]string, error) {
		duringCall, _ = r.Latest()
		return nil, errors.New("boom")
	})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, duringCall)
	require.Equal(t, StatusError, st.Status())
	require.Equal(t, "Failed to fetch history.", st.Message())

	latest, ok := r.Latest()
	require.True(t, ok)
	require.Equal(t, []string{"a", "b"}, latest)

	_, _ = r.Do(context.Background(), succeedWith([]string{"c"}))
	latest, _ = r.Latest()
	require.Equal(t, []string{"c"}, latest)
}

func TestRequest_SecondCallWhileInFlightIsRefused(t *testing.T) {
	r := New[int](Options{Name: "test"})

	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	done := make(chan State[int])
	go func() {
		st, _ := r.Do(context.Background(), func(context.Context) (int, error) {
			calls.Add(1)
			close(started)
			<-release
			return 1, nil
		})
		done <- st
	}()
	<-started

	st, err := r.Do(context.Background(), func(context.Context) (int, error) {
		calls.Add(1)
		return 2, nil
	})
	require.ErrorIs(t, err, ErrInFlight)
	require.True(t, st.IsLoading())

	_, err = r.Reject("nope")
	require.ErrorIs(t, err, ErrInFlight)
	require.ErrorIs(t, r.Reset(), ErrInFlight)

	close(release)
	final := <-done
	v, _ := final.Data()
	require.Equal(t, 1, v)
	require.Equal(t, int32(1), calls.Load())

	// Resubmittable after resolution.
	st, err = r.Do(context.Background(), func(context.Context) (int, error) { return 3, nil })
	require.NoError(t, err)
	v, _ = st.Data()
	require.Equal(t, 3, v)
}

// TestRequest_SharedGate verifies two requests on one gate never overlap but keep
// independent states.
func TestRequest_SharedGate(t *testing.T) {
	gate := NewGate()
	entries := New[[]string](Options{Name: "entries", Gate: gate, Policy: RetainOnFailure})
	count := New[int](Options{Name: "count", Gate: gate, Policy: RetainOnFailure})

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_, _ = entries.Do(context.Background(), func(context.Context) ([]string, error) {
			close(started)
			<-release
			return []string{"x"}, nil
		})
		close(done)
	}()
	<-started

	require.True(t, count.Loading())
	st, err := count.Do(context.Background(), func(context.Context) (int, error) { return 9, nil })
	require.ErrorIs(t, err, ErrInFlight)
	require.Equal(t, StatusIdle, st.Status())

	close(release)
	<-done
	require.False(t, count.Loading())

	st, err = count.Do(context.Background(), func(context.Context) (int, error) { return 9, nil })
	require.NoError(t, err)
	total, _ := st.Data()
	require.Equal(t, 9, total)

	latest, _ := entries.Latest()
	require.Equal(t, []string{"x"}, latest)
}

func TestRequest_Reject(t *testing.T) {
	r := New[int](Options{Name: "weather", Policy: ClearOnSubmit})
	_, _ = r.Do(context.Background(), func(context.Context) (int, error) { return 5, nil })

	st, err := r.Reject("invalid input")
	require.NoError(t, err)
	require.Equal(t, StatusError, st.Status())
	require.Equal(t, "invalid input", st.Message())
	_, ok := r.Latest()
	require.False(t, ok)
	require.False(t, r.Loading())
}

func TestRequest_Reset(t *testing.T) {
	r := New[int](Options{Name: "test", Policy: RetainOnFailure})
	_, _ = r.Do(context.Background(), func(context.Context) (int, error) { return 5, nil })

	require.NoError(t, r.Reset())
	require.Equal(t, StatusIdle, r.State().Status())
	_, ok := r.Latest()
	require.False(t, ok)
}

// TestRequest_AttemptPlanRunsOnlyWhenAdmitted verifies work done in the plan never runs
// while another call holds the gate.
func TestRequest_AttemptPlanRunsOnlyWhenAdmitted(t *testing.T) {
	r := New[int](Options{Name: "weather", Policy: ClearOnSubmit})

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_, _ = r.Do(context.Background(), func(context.Context) (int, error) {
			close(started)
			<-release
			return 1, nil
		})
		close(done)
	}()
	<-started

	planned := false
	_, err := r.Attempt(context.Background(), func() (func(context.Context) (int, error), string) {
		planned = true
		return nil, "unused"
	})
	require.ErrorIs(t, err, ErrInFlight)
	require.False(t, planned)

	close(release)
	<-done

	st, err := r.Attempt(context.Background(), func() (func(context.Context) (int, error), string) {
		planned = true
		return nil, "invalid input"
	})
	require.NoError(t, err)
	require.True(t, planned)
	require.Equal(t, StatusError, st.Status())
	require.Equal(t, "invalid input", st.Message())
}
