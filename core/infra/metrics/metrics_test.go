package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func withTestRegistry(t *testing.T) *prometheus.Registry {
	t.Helper()
	origReg := prometheus.DefaultRegisterer
	origGather := prometheus.DefaultGatherer
	reg := prometheus.NewRegistry()
	prometheus.DefaultRegisterer = reg
	prometheus.DefaultGatherer = reg
	t.Cleanup(func() {
		prometheus.DefaultRegisterer = origReg
		prometheus.DefaultGatherer = origGather
	})
	return reg
}

func TestNoopMetrics(t *testing.T) {
	var m Noop
	m.IncSubmitted(SubmitAccepted)
	m.IncPublished("relay.work")
	m.IncResult(ResultDelivered)
	m.AddSweepEvictions(3)
}

func TestPromMetrics(t *testing.T) {
	reg := withTestRegistry(t)
	m := NewProm("relay")
	m.IncSubmitted(SubmitDenied)
	m.IncPublished("relay.work")
	m.IncResult(ResultCorrelationMiss)
	m.AddSweepEvictions(2)
	m.AddSweepEvictions(0)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if !hasMetric(families, "relay_submissions_total", map[string]string{"outcome": SubmitDenied}) {
		t.Fatalf("expected submissions metric")
	}
	if !hasMetric(families, "relay_published_total", map[string]string{"subject": "relay.work"}) {
		t.Fatalf("expected published metric")
	}
	if !hasMetric(families, "relay_results_total", map[string]string{"outcome": ResultCorrelationMiss}) {
		t.Fatalf("expected results metric")
	}
	if got := counterValue(families, "relay_sweep_evictions_total"); got != 2 {
		t.Fatalf("expected sweep evictions 2, got %v", got)
	}
}

func TestHandler(t *testing.T) {
	withTestRegistry(t)
	m := NewProm("relay")
	m.IncSubmitted(SubmitAccepted)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Fatalf("expected metrics output")
	}
}

func hasMetric(families []*dto.MetricFamily, name string, labels map[string]string) bool {
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if matchLabels(metric.GetLabel(), labels) {
				return true
			}
		}
	}
	return false
}

func counterValue(families []*dto.MetricFamily, name string) float64 {
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			return metric.GetCounter().GetValue()
		}
	}
	return -1
}

func matchLabels(pairs []*dto.LabelPair, labels map[string]string) bool {
	if len(labels) == 0 {
		return true
	}
	found := 0
	for _, pair := range pairs {
		if val, ok := labels[pair.GetName()]; ok && pair.GetValue() == val {
			found++
		}
	}
	return found == len(labels)
}
