package streams

import "context"

// Source supplies data to a readable stream. All callbacks are optional.
// The engine never invokes two callbacks of one Source concurrently, and
// never invokes Pull while a previous Pull is still running.
//
// A callback error forces the stream into the errored state (Start, Pull) or
// is surfaced to the canceller (Cancel); it is delivered to every pending and
// future read as an AdapterError.
type Source[T any] struct {
	// Start runs once at construction and may enqueue initial chunks.
	Start func(ctx context.Context, c *ReadableController[T]) error

	// Pull is invoked whenever the stream wants more data: its desired size
	// is positive or a read is waiting on an empty queue.
	Pull func(ctx context.Context, c *ReadableController[T]) error

	// Cancel is invoked exactly once when the stream is cancelled, with the
	// caller's reason.
	Cancel func(ctx context.Context, reason error) error
}

// Sink consumes data from a writable stream. All callbacks are optional.
// Write is invoked serially, in submission order; the engine awaits one
// invocation before issuing the next.
type Sink[T any] struct {
	// Start runs once at construction.
	Start func(ctx context.Context, c *WritableController[T]) error

	// Write consumes one chunk.
	Write func(ctx context.Context, chunk T, c *WritableController[T]) error

	// Close runs after queued writes have drained when the stream is closed.
	Close func(ctx context.Context) error

	// Abort is invoked exactly once when the stream errors or is aborted,
	// with the captured reason.
	Abort func(ctx context.Context, reason error) error
}

// Transformer maps chunks written to a transform stream's writable side into
// chunks enqueued on its readable side. All callbacks are optional; a nil
// Transform passes chunks through unchanged.
type Transformer[In, Out any] struct {
	// Start runs once at construction.
	Start func(ctx context.Context, c *TransformController[Out]) error

	// Transform consumes one written chunk and may enqueue zero or more
	// output chunks before returning.
	Transform func(ctx context.Context, chunk In, c *TransformController[Out]) error

	// Flush runs once when the writable side closes, before the readable
	// side closes, and may enqueue trailing chunks.
	Flush func(ctx context.Context, c *TransformController[Out]) error
}
