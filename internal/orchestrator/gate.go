package orchestrator

import "sync/atomic"

// Gate admits at most one call at a time. Requests sharing a Gate share one
// loading flag: while any of them is in flight, all of them refuse new calls.
type Gate struct {
	busy atomic.Bool
}

func NewGate() *Gate { return &Gate{} }

// TryAcquire takes the gate if it is free.
func (g *Gate) TryAcquire() bool {
	return g.busy.CompareAndSwap(false, true)
}

func (g *Gate) Release() {
	g.busy.Store(false)
}

// Busy reports whether a call holding the gate is in flight.
func (g *Gate) Busy() bool {
	return g.busy.Load()
}
