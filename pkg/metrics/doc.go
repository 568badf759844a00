/*
Package metrics provides Prometheus instrumentation for gostream streams.

Streams are instrumented opt-in through streams.Options. Each stream records
under a (stream_kind, stream_name) label pair; names default to a generated
identifier when not supplied.

Exposed metric families (namespace "gostream"):

  - readable: chunks_enqueued_total, chunks_read_total, bytes_read_total,
    pending_reads, queue_size
  - writable: chunks_written_total, pending_writes
  - flow: backpressure_events_total
  - lifecycle: opened_total, closed_total, errors_total, cancellations_total

Usage:

	readable, _ := streams.NewReadableWithOptions(source, strategy, streams.Options{
		Name:    "http-body",
		Metrics: metrics.DefaultConfig(),
	})

Serve the default registry with promhttp to scrape:

	http.Handle("/metrics", promhttp.Handler())
*/
package metrics
