package streams

import (
	"context"
	"errors"

	gserrors "github.com/vnykmshr/gostream/pkg/common/errors"
)

// PipeOptions tune how errors and completion propagate across a pipe.
type PipeOptions struct {
	// PreventClose leaves the destination open after the source finishes.
	PreventClose bool

	// PreventAbort leaves the destination intact when the source errors.
	PreventAbort bool

	// PreventCancel leaves the source intact when the destination errors.
	PreventCancel bool
}

// PipeTo drains the stream into dst, writing each chunk in order and
// honoring the destination's backpressure. Both streams are locked for the
// duration. On completion the destination is closed; on source failure the
// destination is aborted with the source's error; on destination failure the
// source is cancelled. Each propagation can be suppressed via opts.
//
// PipeTo blocks until the pipe settles and returns the first error
// encountered, or nil after a clean drain.
func (s *ReadableStream[T]) PipeTo(ctx context.Context, dst *WritableStream[T], opts PipeOptions) error {
	reader, err := s.GetReader()
	if err != nil {
		return err
	}
	defer reader.ReleaseLock()

	writer, err := dst.GetWriter()
	if err != nil {
		return err
	}
	defer writer.ReleaseLock()

	for {
		chunk, ok, err := reader.Read(ctx)
		if err != nil {
			abortPipe(writer, err, opts)
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				cancelPipe(reader, err, opts)
			}
			return err
		}
		if !ok {
			if opts.PreventClose {
				return nil
			}
			return writer.Close(ctx)
		}

		if err := writer.Write(ctx, chunk); err != nil {
			cancelPipe(reader, err, opts)
			return err
		}
	}
}

func abortPipe[T any](w *Writer[T], reason error, opts PipeOptions) {
	if opts.PreventAbort {
		return
	}
	_ = w.Abort(context.Background(), reason)
}

func cancelPipe[T any](r *Reader[T], reason error, opts PipeOptions) {
	if opts.PreventCancel {
		return
	}
	_ = r.Cancel(context.Background(), reason)
}

// PipeThrough connects src to the transform's writable side and returns the
// transform's readable side, ready for chaining. The pipe runs in the
// background; errors surface through the returned stream's state, the same
// way they would on a directly errored stream.
func PipeThrough[In, Out any](ctx context.Context, src *ReadableStream[In], ts *TransformStream[In, Out], opts PipeOptions) (*ReadableStream[Out], error) {
	if ts == nil {
		return nil, gserrors.NewValidationError(moduleName, "transform", nil, "cannot be nil").
			WithHint("provide a TransformStream to pipe through")
	}
	if src.Locked() {
		return nil, &gserrors.LockError{Op: "PipeThrough", Kind: "readable"}
	}
	if ts.Writable().Locked() {
		return nil, &gserrors.LockError{Op: "PipeThrough", Kind: "writable"}
	}

	go func() {
		_ = src.PipeTo(ctx, ts.Writable(), opts)
	}()

	return ts.Readable(), nil
}
