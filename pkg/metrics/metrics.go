// Package metrics provides Prometheus instrumentation for gostream components.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds all metric instances for gostream components.
type Registry struct {
	// Readable-side metrics
	ChunksEnqueued *prometheus.CounterVec
	ChunksRead     *prometheus.CounterVec
	BytesRead      *prometheus.CounterVec
	PendingReads   *prometheus.GaugeVec
	QueueSize      *prometheus.GaugeVec

	// Writable-side metrics
	ChunksWritten *prometheus.CounterVec
	PendingWrites *prometheus.GaugeVec

	// Lifecycle and flow-control metrics
	BackpressureEvents *prometheus.CounterVec
	StreamsOpened      *prometheus.CounterVec
	StreamsClosed      *prometheus.CounterVec
	StreamErrors       *prometheus.CounterVec
	Cancellations      *prometheus.CounterVec
}

// DefaultRegistry is the default metrics registry used by gostream components.
var DefaultRegistry *Registry

func init() {
	DefaultRegistry = NewRegistry(prometheus.DefaultRegisterer)
}

// NewRegistry creates a new metrics registry with the given Prometheus registerer.
func NewRegistry(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)

	return &Registry{
		ChunksEnqueued: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gostream",
				Subsystem: "readable",
				Name:      "chunks_enqueued_total",
				Help:      "Total number of chunks enqueued into readable streams",
			},
			[]string{"stream_kind", "stream_name"},
		),

		ChunksRead: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gostream",
				Subsystem: "readable",
				Name:      "chunks_read_total",
				Help:      "Total number of chunks delivered to readers",
			},
			[]string{"stream_kind", "stream_name"},
		),

		BytesRead: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gostream",
				Subsystem: "readable",
				Name:      "bytes_read_total",
				Help:      "Total number of bytes delivered by byte streams",
			},
			[]string{"stream_kind", "stream_name"},
		),

		PendingReads: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "gostream",
				Subsystem: "readable",
				Name:      "pending_reads",
				Help:      "Number of reads waiting for data",
			},
			[]string{"stream_kind", "stream_name"},
		),

		QueueSize: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "gostream",
				Subsystem: "readable",
				Name:      "queue_size",
				Help:      "Current queued size as computed by the stream's strategy",
			},
			[]string{"stream_kind", "stream_name"},
		),

		ChunksWritten: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gostream",
				Subsystem: "writable",
				Name:      "chunks_written_total",
				Help:      "Total number of chunks accepted by writable streams",
			},
			[]string{"stream_kind", "stream_name"},
		),

		PendingWrites: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "gostream",
				Subsystem: "writable",
				Name:      "pending_writes",
				Help:      "Number of writes queued but not yet handed to the sink",
			},
			[]string{"stream_kind", "stream_name"},
		),

		BackpressureEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gostream",
				Subsystem: "flow",
				Name:      "backpressure_events_total",
				Help:      "Number of times a stream's desired size dropped to zero or below",
			},
			[]string{"stream_kind", "stream_name"},
		),

		StreamsOpened: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gostream",
				Subsystem: "lifecycle",
				Name:      "opened_total",
				Help:      "Total number of streams created",
			},
			[]string{"stream_kind", "stream_name"},
		),

		StreamsClosed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gostream",
				Subsystem: "lifecycle",
				Name:      "closed_total",
				Help:      "Total number of streams that reached the closed state",
			},
			[]string{"stream_kind", "stream_name"},
		),

		StreamErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gostream",
				Subsystem: "lifecycle",
				Name:      "errors_total",
				Help:      "Total number of streams that reached the errored state",
			},
			[]string{"stream_kind", "stream_name"},
		),

		Cancellations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gostream",
				Subsystem: "lifecycle",
				Name:      "cancellations_total",
				Help:      "Total number of reader cancellations and writer aborts",
			},
			[]string{"stream_kind", "stream_name"},
		),
	}
}
