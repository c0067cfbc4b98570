package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics defines counters for the dispatch and delivery paths.
type Metrics interface {
	IncSubmitted(outcome string)
	IncPublished(subject string)
	IncResult(outcome string)
	AddSweepEvictions(n int)
}

// Submission outcomes.
const (
	SubmitAccepted  = "accepted"
	SubmitInvalid   = "invalid"
	SubmitDenied    = "denied"
	SubmitTransport = "transport_error"
)

// Result outcomes.
const (
	ResultDelivered       = "delivered"
	ResultInvalid         = "invalid"
	ResultCorrelationMiss = "correlation_miss"
	ResultExhausted       = "exhausted"
)

// Noop implements Metrics without emitting anything.
type Noop struct{}

func (Noop) IncSubmitted(string)   {}
func (Noop) IncPublished(string)   {}
func (Noop) IncResult(string)      {}
func (Noop) AddSweepEvictions(int) {}

// Prom implements Metrics backed by Prometheus counters.
type Prom struct {
	submitted    *prometheus.CounterVec
	published    *prometheus.CounterVec
	results      *prometheus.CounterVec
	sweepEvicted prometheus.Counter
	once         sync.Once
}

func NewProm(namespace string) *Prom {
	p := &Prom{
		submitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Job submissions by outcome",
		}, []string{"outcome"}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "published_total",
			Help:      "Messages published by subject",
		}, []string{"subject"}),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_total",
			Help:      "Result messages consumed by outcome",
		}, []string{"outcome"}),
		sweepEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_evictions_total",
			Help:      "Correlation entries evicted by the background sweep",
		}),
	}
	p.register()
	return p
}

func (p *Prom) register() {
	p.once.Do(func() {
		prometheus.MustRegister(p.submitted, p.published, p.results, p.sweepEvicted)
	})
}

func (p *Prom) IncSubmitted(outcome string) {
	p.submitted.WithLabelValues(outcome).Inc()
}

func (p *Prom) IncPublished(subject string) {
	p.published.WithLabelValues(subject).Inc()
}

func (p *Prom) IncResult(outcome string) {
	p.results.WithLabelValues(outcome).Inc()
}

func (p *Prom) AddSweepEvictions(n int) {
	if n > 0 {
		p.sweepEvicted.Add(float64(n))
	}
}

// Handler returns an HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
