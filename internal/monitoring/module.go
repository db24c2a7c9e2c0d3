package monitoring

import (
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric the service exports.
const DefaultNamespace = "roadwatch"

// Options control monitoring module configuration.
type Options struct {
	Namespace               string
	DisableGoCollector      bool
	DisableProcessCollector bool
}

// Module owns the service's Prometheus registry, the counters behind the admin summary and
// the health registry.
type Module struct {
	registry *prometheus.Registry
	metrics  *metricSet
	stats    *statStore
	health   *Health
}

// NewModule builds a module with a private registry so tests and instances never share
// collectors.
func NewModule(opts Options) (*Module, error) {
	namespace := opts.Namespace
	if namespace == "" {
		namespace = DefaultNamespace
	}

	registry := prometheus.NewRegistry()
	metrics := newMetricSet(registry, namespace)

	var extra []prometheus.Collector
	if !opts.DisableGoCollector {
		extra = append(extra, collectors.NewGoCollector())
	}
	if !opts.DisableProcessCollector {
		extra = append(extra, collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: namespace}))
	}
	for _, collector := range extra {
		if err := registry.Register(collector); err != nil {
			return nil, fmt.Errorf("monitoring: register collector: %w", err)
		}
	}

	return &Module{
		registry: registry,
		metrics:  metrics,
		stats:    newStatStore(),
		health:   NewHealth(),
	}, nil
}

// Registry exposes the module's Prometheus registry.
func (m *Module) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format. A nil module answers 503.
func (m *Module) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		Registry:      m.registry,
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// Health returns the liveness and readiness registry.
func (m *Module) Health() *Health {
	if m == nil {
		return nil
	}
	return m.health
}

var active atomic.Pointer[Module]

// SetModule makes module the target of the package-level Record helpers. nil is ignored.
func SetModule(module *Module) {
	if module != nil {
		active.Store(module)
	}
}

// CurrentModule returns the module installed by SetModule, or nil.
func CurrentModule() *Module {
	return active.Load()
}
