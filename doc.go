/*
Package gostream provides backpressure-aware streaming primitives for Go:
readable, writable, and transform streams with exclusive reader/writer
locks, teeing, and byte-oriented reads.

Streams (pkg/streams):
  - ReadableStream: pull-based chunk source with exclusive Reader leases
  - WritableStream: queued sink with Writer leases and backpressure signals
  - TransformStream: writable-in, readable-out processing stage
  - ReadableByteStream: byte segments with reads into caller-owned buffers
  - Tee, PipeTo, PipeThrough: fan-out and pipeline composition

Supporting packages:
  - pkg/promise: settle-once promises used for read and write settlement
  - pkg/metrics: optional Prometheus instrumentation
  - pkg/adapters/redisq: Redis-backed list source and sink
  - pkg/adapters/ticksrc: cron-scheduled time.Time source

Example usage:

	import "github.com/vnykmshr/gostream/pkg/streams"

	source, _ := streams.NewReadableFromSlice([]int{1, 2, 3})
	dest, _ := streams.NewWritable(streams.Sink[int]{
		Write: func(_ context.Context, chunk int, _ *streams.WritableController[int]) error {
			fmt.Println(chunk)
			return nil
		},
	}, nil)

	_ = source.PipeTo(context.Background(), dest, streams.PipeOptions{})
*/
package gostream
