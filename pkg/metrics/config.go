package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Config holds configuration for metrics collection.
type Config struct {
	// Enabled controls whether metrics collection is active.
	Enabled bool

	// Registry is the Prometheus registry to use. If nil, uses prometheus.DefaultRegisterer.
	Registry prometheus.Registerer
}

// DefaultConfig returns a default metrics configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:  true,
		Registry: prometheus.DefaultRegisterer,
	}
}

// registries memoizes one Registry per registerer. Collectors may only be
// registered once per registerer; a second NewRegistry against the same one
// would panic inside promauto.
var (
	registriesMu sync.Mutex
	registries   = map[prometheus.Registerer]*Registry{}
)

// Resolve returns the Registry to record against for this configuration, or
// nil when metrics are disabled. Configurations sharing a registerer share
// one Registry.
func (c Config) Resolve() *Registry {
	if !c.Enabled {
		return nil
	}
	if c.Registry == nil || c.Registry == prometheus.DefaultRegisterer {
		return DefaultRegistry
	}

	registriesMu.Lock()
	defer registriesMu.Unlock()
	if r, ok := registries[c.Registry]; ok {
		return r
	}
	r := NewRegistry(c.Registry)
	registries[c.Registry] = r
	return r
}
