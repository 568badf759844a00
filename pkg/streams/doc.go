/*
Package streams provides backpressure-aware producer/consumer streams for Go.

A stream decouples a producer from a consumer through a bounded queue of
chunks. Producers feel backpressure through desiredSize, a signed measure of
remaining queue capacity; consumers read chunks in strict FIFO order through
an exclusive lease. Three stream kinds compose into pipelines:

  - ReadableStream: a source of chunks consumed through a Reader lease
  - WritableStream: a sink for chunks fed through a Writer lease
  - TransformStream: a writable side coupled to a readable side through a
    transformation callback

Core Concepts:

Every stream carries a queuing strategy that decides how chunks are measured
and how much may buffer before backpressure engages:

  - Count strategy: each chunk weighs 1
  - Byte-length strategy: each []byte chunk weighs its length
  - Size-func strategy: a caller-supplied function weighs each chunk

desiredSize is the strategy's high-water mark minus the measured size of the
queue. Positive means the stream wants data, zero or negative means it is
full. A stream is never clogged: reads always drain the queue regardless of
desiredSize.

Basic Usage:

	// A readable stream fed by a pull source.
	strategy, _ := streams.NewCountStrategy[int](4)
	n := 0
	rs, err := streams.NewReadable(streams.Source[int]{
		Pull: func(ctx context.Context, c *streams.ReadableController[int]) error {
			if n >= 10 {
				return c.Close()
			}
			n++
			return c.Enqueue(n)
		},
	}, strategy)
	if err != nil {
		log.Fatal(err)
	}

	reader, err := rs.GetReader()
	if err != nil {
		log.Fatal(err)
	}
	for {
		v, ok, err := reader.Read(ctx)
		if err != nil {
			log.Fatal(err)
		}
		if !ok {
			break
		}
		fmt.Println(v)
	}

Writable Streams:

	ws, err := streams.NewWritable(streams.Sink[string]{
		Write: func(ctx context.Context, chunk string, c *streams.WritableController[string]) error {
			return store.Append(ctx, chunk)
		},
	}, nil) // nil strategy: count strategy with a high-water mark of 1

	writer, _ := ws.GetWriter()
	if err := writer.Write(ctx, "hello"); err != nil {
		log.Fatal(err)
	}
	if err := writer.Close(ctx); err != nil {
		log.Fatal(err)
	}

Write blocks until the sink has accepted the chunk; queued writes are handed
to the sink one at a time, in order. Ready blocks until desiredSize is
positive for callers that want to pace production ahead of writing.

Transform Streams and Pipelines:

	upper, _ := streams.NewTransform(streams.Transformer[string, string]{
		Transform: func(ctx context.Context, chunk string, c *streams.TransformController[string]) error {
			return c.Enqueue(strings.ToUpper(chunk))
		},
	}, nil, nil)

	out, err := streams.PipeThrough(ctx, rs, upper, streams.PipeOptions{})

	// Or drain a readable straight into a writable.
	err = rs.PipeTo(ctx, ws, streams.PipeOptions{})

Backpressure propagates through a transform: when its readable side is full,
writes into its writable side block until a reader drains the output.

Locking:

Reading and writing require an exclusive lease. GetReader and GetWriter fail
with a LockError while another lease is held; ReleaseLock returns the stream
to the unlocked state and permanently invalidates the released lease. Calls
through a released lease fail with ErrReleased.

Teeing:

	left, right, err := rs.Tee()

Tee splits a readable stream into two branches that each see the full chunk
sequence. Chunks are pulled from the upstream once and fanned out; a slow
branch buffers rather than stalling its sibling. Cancelling one branch keeps
the other alive; the upstream is cancelled only after both branches are.

Byte Streams:

ReadableByteStream measures its queue in bytes and adds a BYOB (bring your
own buffer) read path:

	n, ok, err := reader.ReadInto(ctx, buf)

When no bytes are queued, the buffer is exposed to the source through the
controller's PendingView and Respond, letting the source fill it in place
with no intermediate allocation.

Error Handling:

Failures carry typed errors from pkg/common/errors: ValidationError for bad
arguments, LockError for lease conflicts, StateError for operations illegal
in the current state, AdapterError wrapping a source, sink, or transformer
callback failure, and PropagatedError wrapping the stored error delivered to
every operation on an errored stream. errors.Is and errors.As unwrap them as
usual.

Thread Safety:

Streams and controllers are safe for concurrent use. A single Reader or
Writer lease may also be shared between goroutines; chunk ordering then
follows the order in which calls win the internal queue.
*/
package streams
