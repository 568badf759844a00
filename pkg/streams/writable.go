package streams

import (
	"context"
	"sync"

	gserrors "github.com/vnykmshr/gostream/pkg/common/errors"
)

// WritableStream is a push-based consumer endpoint: producers submit chunks
// through an exclusive Writer lease and a sink consumes them in strict
// submission order.
type WritableStream[T any] struct {
	mu         sync.Mutex
	ctrl       *WritableController[T]
	locked     bool
	generation uint64
}

// NewWritable creates a writable stream draining into sink, reporting
// backpressure according to strategy. A nil strategy defaults to counting
// chunks with a high-water mark of 1.
//
// The sink's Start callback runs before NewWritable returns; a Start failure
// leaves the returned stream in the errored state.
func NewWritable[T any](sink Sink[T], strategy QueuingStrategy[T]) (*WritableStream[T], error) {
	return NewWritableWithOptions(sink, strategy, Options{})
}

// NewWritableWithOptions creates a writable stream with explicit options.
func NewWritableWithOptions[T any](sink Sink[T], strategy QueuingStrategy[T], opts Options) (*WritableStream[T], error) {
	if strategy == nil {
		strategy = defaultStrategy[T]()
	}
	if err := validateStrategy(strategy.HighWaterMark()); err != nil {
		return nil, err
	}

	ctrl := newWritableController(sink, strategy, opts)
	ctrl.start()
	return &WritableStream[T]{ctrl: ctrl}, nil
}

// State returns the stream's lifecycle state.
func (s *WritableStream[T]) State() WritableState {
	return s.ctrl.State()
}

// Locked reports whether a Writer currently holds the stream's lock.
func (s *WritableStream[T]) Locked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locked
}

// GetWriter acquires the stream's exclusive write lease. It fails with a
// LockError while another Writer holds the lock.
func (s *WritableStream[T]) GetWriter() (*Writer[T], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locked {
		return nil, &gserrors.LockError{Op: "GetWriter", Kind: "writable"}
	}
	s.locked = true
	s.generation++
	return &Writer[T]{stream: s, ctrl: s.ctrl, generation: s.generation}, nil
}

// Abort errors the stream with reason. It fails with a LockError while a
// Writer holds the lock; abort through the Writer instead.
func (s *WritableStream[T]) Abort(ctx context.Context, reason error) error {
	s.mu.Lock()
	if s.locked {
		s.mu.Unlock()
		return &gserrors.LockError{Op: "Abort", Kind: "writable"}
	}
	s.mu.Unlock()
	return s.ctrl.abort(ctx, reason)
}

// Close closes the stream. It fails with a LockError while a Writer holds
// the lock; close through the Writer instead.
func (s *WritableStream[T]) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.locked {
		s.mu.Unlock()
		return &gserrors.LockError{Op: "Close", Kind: "writable"}
	}
	s.mu.Unlock()
	return s.ctrl.close(ctx)
}

func (s *WritableStream[T]) releaseLock(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locked && s.generation == gen {
		s.locked = false
	}
}

func (s *WritableStream[T]) leaseActive(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locked && s.generation == gen
}

// Writer is a transient exclusive lease on a writable stream, generation
// stamped like Reader so a released handle cannot resurrect after the stream
// is relocked.
type Writer[T any] struct {
	stream     *WritableStream[T]
	ctrl       *WritableController[T]
	generation uint64
}

// Write submits one chunk and blocks until the sink has consumed it. Writes
// settle in strict submission order. Cancelling ctx abandons the wait; the
// submitted chunk still reaches the sink.
func (w *Writer[T]) Write(ctx context.Context, chunk T) error {
	if !w.stream.leaseActive(w.generation) {
		return gserrors.ErrReleased
	}
	return w.ctrl.write(ctx, chunk)
}

// Close drains queued writes, runs the sink's Close, and blocks until the
// stream is closed or errored.
func (w *Writer[T]) Close(ctx context.Context) error {
	if !w.stream.leaseActive(w.generation) {
		return gserrors.ErrReleased
	}
	return w.ctrl.close(ctx)
}

// Abort errors the stream with reason; queued writes reject and the sink's
// Abort runs exactly once.
func (w *Writer[T]) Abort(ctx context.Context, reason error) error {
	if !w.stream.leaseActive(w.generation) {
		return gserrors.ErrReleased
	}
	return w.ctrl.abort(ctx, reason)
}

// DesiredSize returns the stream's remaining buffering budget. Non-positive
// values report backpressure; writes are still accepted.
func (w *Writer[T]) DesiredSize() float64 {
	return w.ctrl.DesiredSize()
}

// Ready blocks until the stream can accept a write without backpressure. It
// returns ErrClosed once the stream is closing or closed, and the stored
// reason once it has errored.
func (w *Writer[T]) Ready(ctx context.Context) error {
	return w.ctrl.ready(ctx)
}

// ReleaseLock releases the lease without waiting for in-flight writes; those
// still settle against the controller.
func (w *Writer[T]) ReleaseLock() {
	w.stream.releaseLock(w.generation)
}

// Closed blocks until the stream reaches a terminal state: nil when closed,
// the stored reason when errored. It settles regardless of whether the lease
// has been released.
func (w *Writer[T]) Closed(ctx context.Context) error {
	return w.ctrl.closed(ctx)
}
