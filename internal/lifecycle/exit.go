// Package lifecycle holds the process-wide cooperative shutdown flag.
//
// The dispatch loop and every camera loop poll IsSet once per iteration;
// whichever side decides to stop calls Set.
package lifecycle

import (
	"context"
	"sync"
	"sync/atomic"
)

// ExitFlag is a one-way shutdown latch. The zero value is not usable; use NewExitFlag.
type ExitFlag struct {
	set  atomic.Bool
	once sync.Once
	done chan struct{}
}

// NewExitFlag returns a cleared flag.
func NewExitFlag() *ExitFlag {
	return &ExitFlag{done: make(chan struct{})}
}

// Set raises the flag. Safe to call more than once and from any goroutine.
func (e *ExitFlag) Set() {
	e.once.Do(func() {
		e.set.Store(true)
		close(e.done)
	})
}

// IsSet reports whether shutdown was requested. It is a single atomic load.
func (e *ExitFlag) IsSet() bool {
	return e.set.Load()
}

// Done is closed when the flag is raised.
func (e *ExitFlag) Done() <-chan struct{} {
	return e.done
}

// SetOnCancel raises the flag when ctx is cancelled. The returned function
// detaches the watcher without raising the flag.
func (e *ExitFlag) SetOnCancel(ctx context.Context) (stop func()) {
	detach := make(chan struct{})
	var once sync.Once
	go func() {
		select {
		case <-ctx.Done():
			e.Set()
		case <-detach:
		case <-e.done:
		}
	}()
	return func() { once.Do(func() { close(detach) }) }
}
