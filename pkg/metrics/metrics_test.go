package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewRegistryRegistersAllFamilies(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRegistry(reg)

	r.ChunksEnqueued.WithLabelValues("readable", "test").Inc()
	r.ChunksRead.WithLabelValues("readable", "test").Add(3)
	r.BytesRead.WithLabelValues("byte", "test").Add(128)
	r.PendingReads.WithLabelValues("readable", "test").Set(2)
	r.QueueSize.WithLabelValues("readable", "test").Set(5)
	r.ChunksWritten.WithLabelValues("writable", "test").Inc()
	r.PendingWrites.WithLabelValues("writable", "test").Set(1)
	r.BackpressureEvents.WithLabelValues("writable", "test").Inc()
	r.StreamsOpened.WithLabelValues("readable", "test").Inc()
	r.StreamsClosed.WithLabelValues("readable", "test").Inc()
	r.StreamErrors.WithLabelValues("readable", "test").Inc()
	r.Cancellations.WithLabelValues("readable", "test").Inc()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}

	want := map[string]bool{
		"gostream_readable_chunks_enqueued_total": false,
		"gostream_readable_chunks_read_total":     false,
		"gostream_readable_bytes_read_total":      false,
		"gostream_readable_pending_reads":         false,
		"gostream_readable_queue_size":            false,
		"gostream_writable_chunks_written_total":  false,
		"gostream_writable_pending_writes":        false,
		"gostream_flow_backpressure_events_total": false,
		"gostream_lifecycle_opened_total":         false,
		"gostream_lifecycle_closed_total":         false,
		"gostream_lifecycle_errors_total":         false,
		"gostream_lifecycle_cancellations_total":  false,
	}
	for _, f := range families {
		if _, ok := want[f.GetName()]; ok {
			want[f.GetName()] = true
		}
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("metric family %s was not registered", name)
		}
	}
}

func TestConfigResolve(t *testing.T) {
	if r := (Config{Enabled: false}).Resolve(); r != nil {
		t.Fatal("disabled config must resolve to nil")
	}

	custom := Config{Enabled: true, Registry: prometheus.NewRegistry()}
	if r := custom.Resolve(); r == nil {
		t.Fatal("enabled config with a registry must resolve to a Registry")
	}

	def := Config{Enabled: true}
	if r := def.Resolve(); r != DefaultRegistry {
		t.Fatal("enabled config without a registry must resolve to the default")
	}
}

func TestConfigResolveSharesRegistryPerRegisterer(t *testing.T) {
	reg := prometheus.NewRegistry()
	cfg := Config{Enabled: true, Registry: reg}

	first := cfg.Resolve()
	second := cfg.Resolve()
	if first == nil || first != second {
		t.Fatal("resolving the same registerer twice must return one Registry")
	}

	other := Config{Enabled: true, Registry: prometheus.NewRegistry()}
	if other.Resolve() == first {
		t.Fatal("distinct registerers must not share a Registry")
	}
}

func TestConfigResolveDefaultConfig(t *testing.T) {
	// DefaultConfig names prometheus.DefaultRegisterer explicitly, which
	// already backs DefaultRegistry; resolving it must not re-register.
	if r := DefaultConfig().Resolve(); r != DefaultRegistry {
		t.Fatal("default config must resolve to the default Registry")
	}
	if r := DefaultConfig().Resolve(); r != DefaultRegistry {
		t.Fatal("repeated resolution must stay on the default Registry")
	}
}
