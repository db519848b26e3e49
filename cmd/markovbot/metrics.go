package main

import (
	"net/http"

	"github.com/CTAG07/markovbot/pkg/markov"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the bot.
type Metrics struct {
	registry              *prometheus.Registry
	TrainRequestsTotal    *prometheus.CounterVec
	GenerateRequestsTotal *prometheus.CounterVec
	GenerateLatency       *prometheus.HistogramVec
	DatabaseKeys          *prometheus.GaugeVec
	DatabaseTransitions   *prometheus.GaugeVec
}

// NewMetrics creates all collectors and registers them on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		TrainRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "markovbot_train_requests_total",
				Help: "Total number of training requests by database and result.",
			},
			[]string{"database", "result"},
		),
		GenerateRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "markovbot_generate_requests_total",
				Help: "Total number of generation requests by database and result.",
			},
			[]string{"database", "result"},
		),
		GenerateLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "markovbot_generate_duration_seconds",
				Help:    "Generation latency in seconds, retries included.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"database"},
		),
		DatabaseKeys: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "markovbot_database_keys",
				Help: "Number of word pairs in each database.",
			},
			[]string{"database"},
		),
		DatabaseTransitions: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "markovbot_database_transitions",
				Help: "Number of trained transitions in each database.",
			},
			[]string{"database"},
		),
	}

	m.registry.MustRegister(
		m.TrainRequestsTotal,
		m.GenerateRequestsTotal,
		m.GenerateLatency,
		m.DatabaseKeys,
		m.DatabaseTransitions,
	)
	return m
}

// ObserveStore refreshes the per-database gauges from the store.
func (m *Metrics) ObserveStore(store *markov.Store) {
	stats := store.Stats()
	m.DatabaseKeys.Reset()
	m.DatabaseTransitions.Reset()
	for name, s := range stats.Stats {
		m.DatabaseKeys.WithLabelValues(name).Set(float64(s.Keys))
		m.DatabaseTransitions.WithLabelValues(name).Set(float64(s.Transitions))
	}
}

// Handler returns an http.Handler that serves the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// result labels a request outcome for the counters.
func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
