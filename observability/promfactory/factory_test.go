package promfactory_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/quayside/stockledger/observability/promfactory"
)

func TestCounterRegistersAndCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := promfactory.New(reg)

	c := f.Counter("stockledger.stock.created")
	c.Inc()
	c.Add(2)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) != 1 {
		t.Fatalf("got %d metric families, want 1", len(families))
	}
	if name := families[0].GetName(); name != "stockledger_stock_created" {
		t.Errorf("metric name = %q, want dotted name sanitized", name)
	}
	if got := families[0].GetMetric()[0].GetCounter().GetValue(); got != 3 {
		t.Errorf("counter value = %v, want 3", got)
	}
}

func TestHistogramObserves(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := promfactory.New(reg)

	h := f.Histogram("stockledger.sweep.latency_ms")
	h.Observe(250)
	h.Observe(10)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) != 1 {
		t.Fatalf("got %d metric families, want 1", len(families))
	}
	hist := families[0].GetMetric()[0].GetHistogram()
	if hist.GetSampleCount() != 2 {
		t.Errorf("sample count = %d, want 2", hist.GetSampleCount())
	}
	if hist.GetSampleSum() != 260 {
		t.Errorf("sample sum = %v, want 260", hist.GetSampleSum())
	}
}

func TestDuplicateNamePanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := promfactory.New(reg)
	f.Counter("stockledger.dup")

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate metric name")
		}
	}()
	f.Counter("stockledger.dup")
}
