package httpapi

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the HTTP API collectors.
type Metrics struct {
	Requests     *prometheus.CounterVec
	Duration     *prometheus.HistogramVec
	EngineErrors *prometheus.CounterVec
	RateLimited  prometheus.Counter
	Backtests    *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantlab_http_requests_total",
				Help: "HTTP requests by route template, method and status code",
			},
			[]string{"route", "method", "code"},
		),
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quantlab_http_request_duration_seconds",
				Help:    "HTTP request latency by route template",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"route"},
		),
		EngineErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantlab_engine_errors_total",
				Help: "Engine failures by error kind",
			},
			[]string{"kind"},
		),
		RateLimited: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "quantlab_http_rate_limited_total",
				Help: "Requests rejected by the per-client rate limiter",
			},
		),
		Backtests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantlab_backtests_total",
				Help: "Backtests run by strategy, sweep points included",
			},
			[]string{"strategy"},
		),
	}
	reg.MustRegister(m.Requests, m.Duration, m.EngineErrors, m.RateLimited, m.Backtests)
	return m
}
