// Package guard provides a non-blocking busy flag used to make long running
// operations single-flight: a caller that finds the flag held returns
// immediately instead of waiting.
package guard

import "sync/atomic"

// Flag is an idle/busy state owned by one component. The zero value is idle.
type Flag struct {
	busy atomic.Bool
}

// TryAcquire flips the flag to busy. It returns false, without blocking,
// when the flag is already held.
func (f *Flag) TryAcquire() bool {
	return f.busy.CompareAndSwap(false, true)
}

// Release returns the flag to idle.
func (f *Flag) Release() {
	f.busy.Store(false)
}

// Busy reports whether the flag is currently held.
func (f *Flag) Busy() bool {
	return f.busy.Load()
}
