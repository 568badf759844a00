package streams

import (
	"github.com/google/uuid"

	"github.com/vnykmshr/gostream/pkg/metrics"
)

// Options holds optional per-stream configuration.
type Options struct {
	// Name identifies the stream in metrics labels. Defaults to a generated
	// identifier when empty.
	Name string

	// Metrics configures Prometheus instrumentation for this stream.
	// Zero value disables collection.
	Metrics metrics.Config

	// OnBackpressure is called whenever the stream's desired size drops to
	// zero or below after an enqueue or write.
	OnBackpressure func()

	// OnError is called once when the stream transitions to its errored
	// state, with the stored reason.
	OnError func(error)
}

// instruments records per-stream metrics against a registry. A nil registry
// disables recording; all methods are safe to call regardless.
type instruments struct {
	reg  *metrics.Registry
	kind string
	name string
}

func newInstruments(kind string, opts Options) instruments {
	name := opts.Name
	if name == "" {
		name = uuid.NewString()
	}
	in := instruments{reg: opts.Metrics.Resolve(), kind: kind, name: name}
	if in.reg != nil {
		in.reg.StreamsOpened.WithLabelValues(in.kind, in.name).Inc()
	}
	return in
}

func (in instruments) enqueued() {
	if in.reg != nil {
		in.reg.ChunksEnqueued.WithLabelValues(in.kind, in.name).Inc()
	}
}

func (in instruments) read() {
	if in.reg != nil {
		in.reg.ChunksRead.WithLabelValues(in.kind, in.name).Inc()
	}
}

func (in instruments) bytesRead(n int) {
	if in.reg != nil {
		in.reg.BytesRead.WithLabelValues(in.kind, in.name).Add(float64(n))
	}
}

func (in instruments) written() {
	if in.reg != nil {
		in.reg.ChunksWritten.WithLabelValues(in.kind, in.name).Inc()
	}
}

func (in instruments) pendingReads(n int) {
	if in.reg != nil {
		in.reg.PendingReads.WithLabelValues(in.kind, in.name).Set(float64(n))
	}
}

func (in instruments) pendingWrites(n int) {
	if in.reg != nil {
		in.reg.PendingWrites.WithLabelValues(in.kind, in.name).Set(float64(n))
	}
}

func (in instruments) queueSize(size float64) {
	if in.reg != nil {
		in.reg.QueueSize.WithLabelValues(in.kind, in.name).Set(size)
	}
}

func (in instruments) backpressure() {
	if in.reg != nil {
		in.reg.BackpressureEvents.WithLabelValues(in.kind, in.name).Inc()
	}
}

func (in instruments) closed() {
	if in.reg != nil {
		in.reg.StreamsClosed.WithLabelValues(in.kind, in.name).Inc()
	}
}

func (in instruments) errored() {
	if in.reg != nil {
		in.reg.StreamErrors.WithLabelValues(in.kind, in.name).Inc()
	}
}

func (in instruments) cancelled() {
	if in.reg != nil {
		in.reg.Cancellations.WithLabelValues(in.kind, in.name).Inc()
	}
}
