package streams

import (
	"context"

	gserrors "github.com/vnykmshr/gostream/pkg/common/errors"
)

// TransformStream couples a writable input side to a readable output side
// through a single transformer. Chunks written to the writable side are
// handed to Transform, which enqueues zero or more output chunks; Flush runs
// once on writable close before the readable side closes.
//
// Backpressure flows backwards: the writable side hands a chunk to the
// transformer only while the readable side wants data, so a slow reader
// throttles the writer.
type TransformStream[In, Out any] struct {
	readable *ReadableStream[Out]
	writable *WritableStream[In]
}

// TransformController is the transformer's handle onto the readable side.
// It is handed to Start, Transform, and Flush and never exposed otherwise.
type TransformController[Out any] struct {
	rc           *ReadableController[Out]
	failWritable func(reason error)
}

// Enqueue makes chunk available on the readable side.
func (c *TransformController[Out]) Enqueue(chunk Out) error {
	return c.rc.Enqueue(chunk)
}

// DesiredSize returns the readable side's desired size, the quantity that
// gates writable acceptance.
func (c *TransformController[Out]) DesiredSize() float64 {
	return c.rc.DesiredSize()
}

// Error errors both sides of the transform with reason.
func (c *TransformController[Out]) Error(reason error) {
	c.rc.Error(reason)
	c.failWritable(reason)
}

// Terminate closes the readable side and errors the writable side, ending
// the transform without draining further input.
func (c *TransformController[Out]) Terminate() {
	_ = c.rc.Close()
	c.failWritable(gserrors.ErrClosed)
}

// NewTransform creates a transform stream around t. Nil strategies default to
// counting chunks with a high-water mark of 1 on each side. A nil Transform
// callback passes chunks through unchanged, which requires In and Out to be
// the same dynamic type.
func NewTransform[In, Out any](t Transformer[In, Out], writableStrategy QueuingStrategy[In], readableStrategy QueuingStrategy[Out]) (*TransformStream[In, Out], error) {
	return NewTransformWithOptions(t, writableStrategy, readableStrategy, Options{})
}

// NewTransformWithOptions creates a transform stream with explicit options
// applied to both sides.
func NewTransformWithOptions[In, Out any](t Transformer[In, Out], writableStrategy QueuingStrategy[In], readableStrategy QueuingStrategy[Out], opts Options) (*TransformStream[In, Out], error) {
	ts := &TransformStream[In, Out]{}

	readableSource := Source[Out]{
		// Cancelling the output side tears down the input side with the
		// caller's reason; queued transforms reject against it.
		Cancel: func(ctx context.Context, reason error) error {
			return ts.writable.ctrl.errorInternal(ctx, reason)
		},
	}
	readable, err := NewReadableWithOptions(readableSource, readableStrategy, opts)
	if err != nil {
		return nil, err
	}
	ts.readable = readable

	tc := &TransformController[Out]{
		rc: readable.ctrl,
		failWritable: func(reason error) {
			// Nil while the transformer's Start runs during construction; a
			// Start failure errors the writable side through its own path.
			if ts.writable != nil {
				_ = ts.writable.ctrl.errorInternal(context.Background(), reason)
			}
		},
	}

	sink := Sink[In]{
		Write: func(ctx context.Context, chunk In, _ *WritableController[In]) error {
			// Gate on the readable side: hand the chunk over only once the
			// output queue wants data or a read is waiting.
			if err := readable.ctrl.waitForSpace(ctx); err != nil {
				return err
			}
			if t.Transform == nil {
				out, ok := any(chunk).(Out)
				if !ok {
					err := gserrors.NewValidationError(moduleName, "transform", chunk, "cannot pass through between differing chunk types").
						WithHint("provide a Transform callback")
					tc.Error(err)
					return err
				}
				return tc.Enqueue(out)
			}
			if err := t.Transform(ctx, chunk, tc); err != nil {
				readable.ctrl.Error(&gserrors.AdapterError{Op: "transform", Err: err})
				return err
			}
			return nil
		},
		Close: func(ctx context.Context) error {
			if t.Flush != nil {
				if err := t.Flush(ctx, tc); err != nil {
					readable.ctrl.Error(&gserrors.AdapterError{Op: "flush", Err: err})
					return err
				}
			}
			// Trailing flush chunks are enqueued by now; the output side
			// closes behind them.
			_ = readable.ctrl.Close()
			return nil
		},
		Abort: func(ctx context.Context, reason error) error {
			readable.ctrl.Error(reason)
			return nil
		},
	}
	if t.Start != nil {
		sink.Start = func(ctx context.Context, _ *WritableController[In]) error {
			return t.Start(ctx, tc)
		}
	}

	writable, err := NewWritableWithOptions(sink, writableStrategy, opts)
	if err != nil {
		return nil, err
	}
	ts.writable = writable

	return ts, nil
}

// NewIdentityTransform creates a transform stream whose output sequence
// equals its input sequence.
func NewIdentityTransform[T any](strategy QueuingStrategy[T]) (*TransformStream[T, T], error) {
	t := Transformer[T, T]{
		Transform: func(_ context.Context, chunk T, c *TransformController[T]) error {
			return c.Enqueue(chunk)
		},
	}
	return NewTransform(t, strategy, strategy)
}

// Readable returns the output side.
func (ts *TransformStream[In, Out]) Readable() *ReadableStream[Out] {
	return ts.readable
}

// Writable returns the input side.
func (ts *TransformStream[In, Out]) Writable() *WritableStream[In] {
	return ts.writable
}
