package lifecycle

import (
	"sync/atomic"
	"time"
)

var (
	shuttingDown atomic.Bool
	mounted      atomic.Bool
	startedAt    atomic.Int64
)

// MarkStarted records the process start time used by Uptime.
func MarkStarted(t time.Time) {
	startedAt.Store(t.UnixNano())
}

// Uptime returns time since MarkStarted, or zero if never marked.
func Uptime(now time.Time) time.Duration {
	ns := startedAt.Load()
	if ns == 0 {
		return 0
	}
	return now.Sub(time.Unix(0, ns))
}

// SetMounted records that the history view finished its initial fetch attempt.
func SetMounted(v bool) {
	mounted.Store(v)
}

// IsMounted reports whether the initial history fetch has been attempted.
func IsMounted() bool {
	return mounted.Load()
}

// SetShuttingDown sets the shutdown flag. Call when SIGTERM/SIGINT received.
// Health handler returns 503 with status shutting-down while true.
func SetShuttingDown(v bool) {
	shuttingDown.Store(v)
}

// IsShuttingDown returns true if the console is draining and should not accept new submissions.
func IsShuttingDown() bool {
	return shuttingDown.Load()
}
