package orchestrator

// Status is the lifecycle position of one request.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// State is one of Idle, Loading, Success(data) or Error(message). Values are built
// only through the constructors below, so data exists only in Success and a message
// only in Error.
type State[T any] struct {
	status  Status
	data    T
	message string
}

func Idle[T any]() State[T] { return State[T]{status: StatusIdle} }

func Loading[T any]() State[T] { return State[T]{status: StatusLoading} }

func Succeeded[T any](v T) State[T] { return State[T]{status: StatusSuccess, data: v} }

func Failed[T any](message string) State[T] {
	return State[T]{status: StatusError, message: message}
}

func (s State[T]) Status() Status { return s.status }

// Data returns the payload of a Success state.
func (s State[T]) Data() (T, bool) {
	if s.status != StatusSuccess {
		var zero T
		return zero, false
	}
	return s.data, true
}

// Message returns the human-readable message of an Error state, or "".
func (s State[T]) Message() string {
	if s.status != StatusError {
		return ""
	}
	return s.message
}

func (s State[T]) IsLoading() bool { return s.status == StatusLoading }
