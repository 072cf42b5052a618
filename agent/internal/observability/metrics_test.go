package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNewMetricsNoRegistrationPanic(t *testing.T) {
	m := NewMetrics()
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
	if m.Registry == nil {
		t.Fatal("Registry is nil")
	}
}

func TestNewMetricsCustomRegistry(t *testing.T) {
	m := NewMetrics()

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	defaultFamilies, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("DefaultGatherer.Gather failed: %v", err)
	}

	customNames := make(map[string]bool)
	for _, f := range families {
		customNames[f.GetName()] = true
	}
	for _, f := range defaultFamilies {
		if customNames[f.GetName()] {
			t.Errorf("metric %q found in default registry — should only be in custom registry", f.GetName())
		}
	}
}

func TestNewMetricsAllNamesHavePrefix(t *testing.T) {
	m := NewMetrics()

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	if len(families) == 0 {
		t.Fatal("no metric families gathered")
	}

	const prefix = "flowmesh_agent_"
	for _, f := range families {
		name := f.GetName()
		if len(name) < len(prefix) || name[:len(prefix)] != prefix {
			t.Errorf("metric %q does not start with %s prefix", name, prefix)
		}
	}
}

func TestNewMetricsCounterIncrement(t *testing.T) {
	m := NewMetrics()

	m.TransportReconnects.Inc()
	pb := &dto.Metric{}
	if err := m.TransportReconnects.Write(pb); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if got := pb.GetCounter().GetValue(); got != 1 {
		t.Errorf("TransportReconnects = %v, want 1", got)
	}

	m.BatchesEmitted.WithLabelValues("snappy").Inc()
	m.BatchesEmitted.WithLabelValues("snappy").Inc()
	m.BatchesEmitted.WithLabelValues("gzip").Inc()

	pb = &dto.Metric{}
	if err := m.BatchesEmitted.WithLabelValues("snappy").(prometheus.Metric).Write(pb); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if got := pb.GetCounter().GetValue(); got != 2 {
		t.Errorf("BatchesEmitted(snappy) = %v, want 2", got)
	}
}

func TestNewMetricsHistogramObserve(t *testing.T) {
	m := NewMetrics()

	m.CompressDuration.Observe(0.01)
	m.CompressDuration.Observe(0.02)

	pb := &dto.Metric{}
	if err := m.CompressDuration.Write(pb); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if got := pb.GetHistogram().GetSampleCount(); got != 2 {
		t.Errorf("CompressDuration sample count = %v, want 2", got)
	}
}

func TestNewMetricsGaugeSet(t *testing.T) {
	m := NewMetrics()

	m.BufferDepth.Set(512)
	pb := &dto.Metric{}
	if err := m.BufferDepth.Write(pb); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if got := pb.GetGauge().GetValue(); got != 512 {
		t.Errorf("BufferDepth = %v, want 512", got)
	}
}

func TestNewMetricsVecLabels(t *testing.T) {
	m := NewMetrics()

	m.TransportState.WithLabelValues("connected").Set(1)
	m.TransportState.WithLabelValues("backoff").Set(0)

	pb := &dto.Metric{}
	if err := m.TransportState.WithLabelValues("connected").(prometheus.Metric).Write(pb); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if got := pb.GetGauge().GetValue(); got != 1 {
		t.Errorf("TransportState(connected) = %v, want 1", got)
	}

	m.ProducerEventsTotal.WithLabelValues("logs").Inc()
	pb = &dto.Metric{}
	if err := m.ProducerEventsTotal.WithLabelValues("logs").(prometheus.Metric).Write(pb); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if got := pb.GetCounter().GetValue(); got != 1 {
		t.Errorf("ProducerEventsTotal(logs) = %v, want 1", got)
	}
}

func TestNewMetricsNoDuplicateRegistrationPanic(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("creating Metrics twice panicked: %v", r)
		}
	}()

	_ = NewMetrics()
	_ = NewMetrics()
}
