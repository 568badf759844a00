package streams

import "context"

// NewReadableFromSlice creates a readable stream that yields the elements of
// data in order and then closes. The slice is read lazily, one element per
// pull, so downstream backpressure bounds how far ahead the stream runs.
func NewReadableFromSlice[T any](data []T) (*ReadableStream[T], error) {
	return NewReadableFromSliceWithOptions(data, nil, Options{})
}

// NewReadableFromSliceWithOptions creates a slice-backed stream with an
// explicit strategy and options.
func NewReadableFromSliceWithOptions[T any](data []T, strategy QueuingStrategy[T], opts Options) (*ReadableStream[T], error) {
	idx := 0
	source := Source[T]{
		Pull: func(ctx context.Context, c *ReadableController[T]) error {
			if idx >= len(data) {
				return c.Close()
			}
			chunk := data[idx]
			idx++
			if err := c.Enqueue(chunk); err != nil {
				return err
			}
			if idx >= len(data) {
				return c.Close()
			}
			return nil
		},
	}
	return NewReadableWithOptions(source, strategy, opts)
}

// NewReadableFromChannel creates a readable stream fed by ch. The stream
// closes when ch is closed and stops receiving when it is cancelled.
func NewReadableFromChannel[T any](ch <-chan T) (*ReadableStream[T], error) {
	return NewReadableFromChannelWithOptions(ch, nil, Options{})
}

// NewReadableFromChannelWithOptions creates a channel-backed stream with an
// explicit strategy and options. Each pull performs one receive, blocking
// until a value arrives, the channel closes, or the stream is cancelled.
func NewReadableFromChannelWithOptions[T any](ch <-chan T, strategy QueuingStrategy[T], opts Options) (*ReadableStream[T], error) {
	source := Source[T]{
		Pull: func(ctx context.Context, c *ReadableController[T]) error {
			select {
			case v, ok := <-ch:
				if !ok {
					return c.Close()
				}
				return c.Enqueue(v)
			case <-ctx.Done():
				return nil
			}
		},
	}
	return NewReadableWithOptions(source, strategy, opts)
}
