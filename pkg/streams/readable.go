package streams

import (
	"context"
	"sync"

	gserrors "github.com/vnykmshr/gostream/pkg/common/errors"
)

// ReadableStream is a pull-based producer endpoint: a source fills it through
// its controller and consumers drain it through an exclusive Reader lease.
//
// Public operations on one stream are expected from one logical caller at a
// time; the stream serializes internally but does not order concurrent
// callers against each other.
type ReadableStream[T any] struct {
	mu         sync.Mutex
	ctrl       *ReadableController[T]
	locked     bool
	generation uint64
}

// NewReadable creates a readable stream fed by source, buffering according
// to strategy. A nil strategy defaults to counting chunks with a high-water
// mark of 1.
//
// The source's Start callback runs before NewReadable returns; a Start
// failure leaves the returned stream in the errored state.
func NewReadable[T any](source Source[T], strategy QueuingStrategy[T]) (*ReadableStream[T], error) {
	return NewReadableWithOptions(source, strategy, Options{})
}

// NewReadableWithOptions creates a readable stream with explicit options.
func NewReadableWithOptions[T any](source Source[T], strategy QueuingStrategy[T], opts Options) (*ReadableStream[T], error) {
	if strategy == nil {
		strategy = defaultStrategy[T]()
	}
	if err := validateStrategy(strategy.HighWaterMark()); err != nil {
		return nil, err
	}

	ctrl := newReadableController(source, strategy, opts)
	ctrl.start()
	return &ReadableStream[T]{ctrl: ctrl}, nil
}

func validateStrategy(highWaterMark float64) error {
	if highWaterMark < 0 {
		return gserrors.NewValidationError(moduleName, "highWaterMark", highWaterMark, "cannot be negative").
			WithHint("use 0 or a positive value")
	}
	return nil
}

// State returns the stream's lifecycle state.
func (s *ReadableStream[T]) State() ReadableState {
	return s.ctrl.State()
}

// Locked reports whether a Reader currently holds the stream's lock.
func (s *ReadableStream[T]) Locked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locked
}

// GetReader acquires the stream's exclusive read lease. It fails with a
// LockError while another Reader holds the lock.
func (s *ReadableStream[T]) GetReader() (*Reader[T], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locked {
		return nil, &gserrors.LockError{Op: "GetReader", Kind: "readable"}
	}
	s.locked = true
	s.generation++
	return &Reader[T]{stream: s, ctrl: s.ctrl, generation: s.generation}, nil
}

// Cancel cancels the stream with reason. It fails with a LockError while a
// Reader holds the lock; cancel through the Reader instead.
func (s *ReadableStream[T]) Cancel(ctx context.Context, reason error) error {
	s.mu.Lock()
	if s.locked {
		s.mu.Unlock()
		return &gserrors.LockError{Op: "Cancel", Kind: "readable"}
	}
	s.mu.Unlock()
	return s.ctrl.cancel(ctx, reason)
}

// releaseLock clears the lock if lease generation gen still holds it.
func (s *ReadableStream[T]) releaseLock(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locked && s.generation == gen {
		s.locked = false
	}
}

// leaseActive reports whether lease generation gen still holds the lock.
func (s *ReadableStream[T]) leaseActive(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locked && s.generation == gen
}

// Reader is a transient exclusive lease on a readable stream. A released
// reader never resurrects: every operation checks the generation stamp the
// lease was issued with, so a stale handle fails even after the stream is
// relocked by a new Reader.
type Reader[T any] struct {
	stream     *ReadableStream[T]
	ctrl       *ReadableController[T]
	generation uint64
}

// Read delivers the next chunk in strict enqueue order. It returns
// ok == false with a nil error once the stream is done, and the stream's
// stored reason once it has errored. Cancelling ctx abandons the wait; the
// underlying request is retracted if it has not yet been settled.
func (r *Reader[T]) Read(ctx context.Context) (T, bool, error) {
	if !r.stream.leaseActive(r.generation) {
		var zero T
		return zero, false, gserrors.ErrReleased
	}
	return r.ctrl.read(ctx)
}

// Cancel cancels the stream with reason through this lease.
func (r *Reader[T]) Cancel(ctx context.Context, reason error) error {
	if !r.stream.leaseActive(r.generation) {
		return gserrors.ErrReleased
	}
	return r.ctrl.cancel(ctx, reason)
}

// ReleaseLock releases the lease without waiting for in-flight reads; those
// still settle against the controller. A fresh lease can be acquired with
// GetReader afterwards.
func (r *Reader[T]) ReleaseLock() {
	r.stream.releaseLock(r.generation)
}

// Closed blocks until the stream reaches a terminal state: nil after close
// or cancel, the stored reason after an error. It settles regardless of
// whether the lease has been released.
func (r *Reader[T]) Closed(ctx context.Context) error {
	return r.ctrl.closed(ctx)
}
