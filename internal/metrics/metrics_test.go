package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gathered(t *testing.T) map[string]bool {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	names := make(map[string]bool)
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	return names
}

func TestRunLifecycle(t *testing.T) {
	RunStarted()
	RunStarted()
	RunFinished("stopped", "User:", 4, 1500*time.Millisecond)
	RunFinished("timeout", "", 12, 30*time.Second)

	names := gathered(t)
	for _, want := range []string{
		"phi3_generations_total",
		"phi3_generation_duration_seconds",
		"phi3_generation_chunks",
		"phi3_active_runs",
		"phi3_stop_markers_total",
	} {
		if !names[want] {
			t.Errorf("expected metric %s to be registered", want)
		}
	}
}

func TestCounterAccumulates(t *testing.T) {
	c := GenerationsTotal.WithLabelValues("closed")
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatal(err)
	}
	before := counterValue(families, "phi3_generations_total", "closed")

	c.Inc()
	c.Inc()

	families, err = prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatal(err)
	}
	if got := counterValue(families, "phi3_generations_total", "closed"); got != before+2 {
		t.Errorf("expected %v, got %v", before+2, got)
	}
}

func counterValue(families []*dto.MetricFamily, name, outcome string) float64 {
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "outcome" && lp.GetValue() == outcome {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}
