package orchestrator

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-console/internal/observability"
)

// ErrInFlight is returned when a call is attempted while the gate is held.
// The attempt has no effect on state and performs no I/O.
var ErrInFlight = errors.New("request already in flight")

// Policy decides what happens to previously loaded data when a new attempt starts or fails.
type Policy int

const (
	// ClearOnSubmit drops data at the start of every attempt, so a failure leaves nothing.
	ClearOnSubmit Policy = iota
	// RetainOnFailure keeps the last successful data until a new success replaces it.
	RetainOnFailure
)

// Options configure a Request.
type Options struct {
	// Name labels metrics and logs.
	Name string
	// FallbackMessage is shown when Message yields nothing.
	FallbackMessage string
	// Message extracts a display message from a failed call. Nil always uses FallbackMessage.
	Message func(err error, fallback string) string
	Policy  Policy
	// Gate is shared between requests that must never overlap. Nil gets a private gate.
	Gate   *Gate
	Logger *zap.Logger
}

// Request wraps one asynchronous call in the Idle/Loading/Success/Error lifecycle.
// It never queues, cancels or retries: a call attempted while another holds the
// gate is refused with ErrInFlight.
type Request[T any] struct {
	opts Options
	gate *Gate

	mu        sync.Mutex
	state     State[T]
	latest    T
	hasLatest bool
}

// New returns an Idle request.
func New[T any](opts Options) *Request[T] {
	if opts.Gate == nil {
		opts.Gate = NewGate()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Request[T]{
		opts:  opts,
		gate:  opts.Gate,
		state: Idle[T](),
	}
}

// Do runs call unless the gate is held. The returned State is the resolved outcome;
// the error is non-nil only for ErrInFlight, because call failures are outcomes, not errors.
func (r *Request[T]) Do(ctx context.Context, call func(ctx context.Context) (T, error)) (State[T], error) {
	return r.Attempt(ctx, func() (func(context.Context) (T, error), string) { return call, "" })
}

// Reject records a locally detected failure without calling anything.
func (r *Request[T]) Reject(message string) (State[T], error) {
	return r.Attempt(context.Background(), func() (func(context.Context) (T, error), string) { return nil, message })
}

// Attempt takes the gate and then asks plan how to resolve the attempt: a non-nil call is
// run, a nil call rejects locally with the returned message. plan runs only once the
// attempt is admitted, so work done there never races an in-flight call.
func (r *Request[T]) Attempt(ctx context.Context, plan func() (func(context.Context) (T, error), string)) (State[T], error) {
	if !r.gate.TryAcquire() {
		observability.RecordRejected(r.opts.Name, "in_flight")
		return r.State(), ErrInFlight
	}
	defer r.gate.Release()

	call, message := plan()
	if call == nil {
		return r.reject(message), nil
	}
	return r.run(ctx, call), nil
}

func (r *Request[T]) run(ctx context.Context, call func(ctx context.Context) (T, error)) State[T] {
	r.mu.Lock()
	if r.opts.Policy == ClearOnSubmit {
		r.clearLatest()
	}
	r.transition(Loading[T]())
	r.mu.Unlock()

	v, err := call(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		msg := r.message(err)
		observability.LoggerFrom(ctx, r.opts.Logger).Debug("request failed",
			zap.String("request", r.opts.Name), zap.String("message", msg), zap.Error(err))
		r.transition(Failed[T](msg))
		return r.state
	}
	r.latest = v
	r.hasLatest = true
	r.transition(Succeeded(v))
	return r.state
}

func (r *Request[T]) reject(message string) State[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	observability.RecordRejected(r.opts.Name, "validation")
	if r.opts.Policy == ClearOnSubmit {
		r.clearLatest()
	}
	r.transition(Failed[T](message))
	return r.state
}

// Reset returns the request to Idle and drops any data.
func (r *Request[T]) Reset() error {
	if !r.gate.TryAcquire() {
		return ErrInFlight
	}
	defer r.gate.Release()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.clearLatest()
	r.transition(Idle[T]())
	return nil
}

// State returns the current state.
func (r *Request[T]) State() State[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Latest returns the data to display. Under ClearOnSubmit it is present only while
// the state is Success; under RetainOnFailure it is the last successful result.
func (r *Request[T]) Latest() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.latest, r.hasLatest
}

// Loading reports whether the gate is held, by this request or one sharing its gate.
func (r *Request[T]) Loading() bool {
	return r.gate.Busy()
}

func (r *Request[T]) message(err error) string {
	if r.opts.Message == nil {
		return r.opts.FallbackMessage
	}
	return r.opts.Message(err, r.opts.FallbackMessage)
}

func (r *Request[T]) clearLatest() {
	var zero T
	r.latest = zero
	r.hasLatest = false
}

// transition must be called with mu held.
func (r *Request[T]) transition(next State[T]) {
	prev := r.state.Status()
	r.state = next
	observability.RecordTransition(r.opts.Name, next.Status().String())
	r.opts.Logger.Debug("request transition",
		zap.String("request", r.opts.Name),
		zap.Stringer("from", prev),
		zap.Stringer("to", next.Status()))
}
