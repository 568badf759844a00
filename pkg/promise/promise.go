package promise

import (
	"context"
	"sync"
	"sync/atomic"
)

// Promise is a single-settlement deferred value. It starts pending and is
// settled exactly once, either with a value (Resolve) or an error (Reject).
// Settling is race-safe: when multiple goroutines race to settle, exactly one
// wins and the rest report false.
//
// A Promise is the asynchronous return channel used throughout gostream:
// every read, write, close, and abort settles one.
type Promise[T any] struct {
	done    chan struct{}
	once    sync.Once
	settled int32 // atomic

	value T
	err   error
}

// New creates a pending Promise.
func New[T any]() *Promise[T] {
	return &Promise[T]{done: make(chan struct{})}
}

// Resolved creates a Promise already settled with value.
func Resolved[T any](value T) *Promise[T] {
	p := New[T]()
	p.Resolve(value)
	return p
}

// Rejected creates a Promise already settled with err.
func Rejected[T any](err error) *Promise[T] {
	p := New[T]()
	p.Reject(err)
	return p
}

// Resolve settles the promise with value. It reports whether this call
// performed the settlement; false means the promise was already settled.
func (p *Promise[T]) Resolve(value T) bool {
	won := false
	p.once.Do(func() {
		p.value = value
		atomic.StoreInt32(&p.settled, 1)
		close(p.done)
		won = true
	})
	return won
}

// Reject settles the promise with err. It reports whether this call
// performed the settlement.
func (p *Promise[T]) Reject(err error) bool {
	won := false
	p.once.Do(func() {
		p.err = err
		atomic.StoreInt32(&p.settled, 1)
		close(p.done)
		won = true
	})
	return won
}

// Await blocks until the promise settles or ctx is canceled. A context
// cancellation abandons the wait only; the promise itself stays pending and
// can still be awaited again.
func (p *Promise[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-p.done:
		return p.value, p.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Settled returns true once the promise has been resolved or rejected.
func (p *Promise[T]) Settled() bool {
	return atomic.LoadInt32(&p.settled) != 0
}

// Done returns a channel that is closed when the promise settles.
func (p *Promise[T]) Done() <-chan struct{} {
	return p.done
}

// Value returns the settlement value and error. It must only be called after
// the promise has settled (Done closed or Await returned).
func (p *Promise[T]) Value() (T, error) {
	return p.value, p.err
}

// Then runs fn with the resolved value once p resolves, settling the returned
// promise with fn's result. If p rejects, the rejection is propagated and fn
// is not run. The callback runs on its own goroutine.
func Then[T, U any](p *Promise[T], fn func(T) (U, error)) *Promise[U] {
	out := New[U]()
	go func() {
		<-p.done
		if p.err != nil {
			out.Reject(p.err)
			return
		}
		v, err := fn(p.value)
		if err != nil {
			out.Reject(err)
			return
		}
		out.Resolve(v)
	}()
	return out
}

// Catch runs fn once p rejects, settling the returned promise with fn's
// result. If p resolves, the value passes through unchanged.
func Catch[T any](p *Promise[T], fn func(error) (T, error)) *Promise[T] {
	out := New[T]()
	go func() {
		<-p.done
		if p.err == nil {
			out.Resolve(p.value)
			return
		}
		v, err := fn(p.err)
		if err != nil {
			out.Reject(err)
			return
		}
		out.Resolve(v)
	}()
	return out
}
