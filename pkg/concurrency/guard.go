// Package concurrency provides a non-queuing single-flight guard for
// operations that must not overlap, such as vault activation.
package concurrency

import (
	"errors"
	"sync"
)

// ErrBusy is returned when the guarded operation is already running.
// Callers surface it instead of queuing; the user retries once the first
// run finishes.
var ErrBusy = errors.New("operation already in progress")

// Guard admits at most one task at a time. The zero value is ready to use.
type Guard struct {
	mu     sync.Mutex
	isBusy bool
}

// NewGuard creates an idle guard.
func NewGuard() *Guard {
	return &Guard{}
}

// Execute runs task if the guard is free, returning ErrBusy otherwise. The
// guard frees itself when the task returns, whatever the outcome.
func (g *Guard) Execute(task func() error) error {
	g.mu.Lock()
	if g.isBusy {
		g.mu.Unlock()
		return ErrBusy
	}
	g.isBusy = true
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		g.isBusy = false
		g.mu.Unlock()
	}()
	return task()
}
