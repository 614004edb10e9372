package export

import (
	"context"
	"sync"
)

// Future is the pending outcome of an export. It resolves exactly once.
type Future struct {
	once   sync.Once
	done   chan struct{}
	result Result

	onComplete func(Result)
	executor   func(func())
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// resolve stores r and fires the completion callback. Only the first call
// has any effect; it reports whether this call won.
func (f *Future) resolve(r Result) bool {
	won := false
	f.once.Do(func() {
		won = true
		f.result = r
		close(f.done)
		if f.onComplete != nil {
			cb := f.onComplete
			run := f.executor
			if run == nil {
				run = func(fn func()) { fn() }
			}
			run(func() { cb(r) })
		}
	})
	return won
}

// Done is closed once the export reaches a terminal stage.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Result returns the outcome, or false while the export is still running.
func (f *Future) Result() (Result, bool) {
	select {
	case <-f.done:
		return f.result, true
	default:
		return Result{}, false
	}
}

// Wait blocks until the export resolves or ctx ends.
func (f *Future) Wait(ctx context.Context) (Result, error) {
	select {
	case <-f.done:
		return f.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}
