package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exports generation statistics to Prometheus. Each instance owns its
// registry so several runs can coexist in one process.
type Metrics struct {
	registry    *prometheus.Registry
	generation  prometheus.Gauge
	fitness     *prometheus.GaugeVec
	generations prometheus.Counter
	reports     *prometheus.CounterVec
	duration    prometheus.Histogram
}

// NewMetrics creates and registers the run metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		generation: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "neuroevo_generation",
			Help: "Index of the most recently evaluated generation.",
		}),
		fitness: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "neuroevo_fitness",
			Help: "Fitness summary of the most recently evaluated generation.",
		}, []string{"stat"}),
		generations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "neuroevo_generations_total",
			Help: "Generations evaluated.",
		}),
		reports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "neuroevo_fitness_reports_total",
			Help: "Fitness reports by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "neuroevo_generation_seconds",
			Help:    "Wall time per generation.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 16),
		}),
	}
	m.registry.MustRegister(m.generation, m.fitness, m.generations, m.reports, m.duration)
	return m
}

// Observe records one generation.
func (m *Metrics) Observe(s GenerationStats) {
	if m == nil {
		return
	}
	m.generation.Set(float64(s.Generation))
	m.fitness.With(prometheus.Labels{"stat": "best"}).Set(s.Best)
	m.fitness.With(prometheus.Labels{"stat": "mean"}).Set(s.Mean)
	m.fitness.With(prometheus.Labels{"stat": "worst"}).Set(s.Worst)
	m.fitness.With(prometheus.Labels{"stat": "std"}).Set(s.StdDev)
	m.generations.Inc()
	m.reports.With(prometheus.Labels{"outcome": "accepted"}).Add(float64(s.Reported))
	m.reports.With(prometheus.Labels{"outcome": "rejected"}).Add(float64(s.Rejected))
	m.duration.Observe(s.ElapsedMS / 1000)
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
