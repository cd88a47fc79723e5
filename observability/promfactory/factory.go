// Package promfactory adapts Prometheus to the observability
// MetricFactory. Metrics created through it register on the given
// Registerer and surface through the host application's promhttp
// handler.
package promfactory

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/quayside/stockledger/observability"
)

// compile-time interface check
var _ observability.MetricFactory = (*Factory)(nil)

// Factory creates Prometheus-backed counters and histograms.
type Factory struct {
	registerer prometheus.Registerer
}

// New creates a Factory registering on reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Factory {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &Factory{registerer: reg}
}

// Counter implements observability.MetricFactory. It panics if the
// name is already registered, which only happens when two extensions
// share one registerer.
func (f *Factory) Counter(name string) observability.Counter {
	c := prometheus.NewCounter(prometheus.CounterOpts{
		Name: sanitize(name),
		Help: name,
	})
	f.registerer.MustRegister(c)
	return c
}

// Histogram implements observability.MetricFactory.
func (f *Factory) Histogram(name string) observability.Histogram {
	h := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    sanitize(name),
		Help:    name,
		Buckets: prometheus.DefBuckets,
	})
	f.registerer.MustRegister(h)
	return h
}

// sanitize rewrites dotted metric names into the Prometheus character
// set.
func sanitize(name string) string {
	return strings.ReplaceAll(name, ".", "_")
}
