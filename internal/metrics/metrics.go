// Package metrics exposes the engine's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles every collector the engine and API report to.
type Metrics struct {
	registry *prometheus.Registry

	CycleDuration prometheus.Histogram
	CyclesTotal   *prometheus.CounterVec
	FeedErrors    *prometheus.CounterVec
	TradesTotal   *prometheus.CounterVec

	OpenPositions  prometheus.Gauge
	PortfolioValue prometheus.Gauge
	MaxLeverage    prometheus.Gauge
}

// New creates and registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "leverrun",
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of one full analysis cycle.",
			Buckets:   prometheus.DefBuckets,
		}),
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leverrun",
			Name:      "cycles_total",
			Help:      "Completed analysis cycles by outcome.",
		}, []string{"outcome"}),
		FeedErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leverrun",
			Name:      "feed_errors_total",
			Help:      "Market-data fetch failures by source.",
		}, []string{"source"}),
		TradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leverrun",
			Name:      "trades_total",
			Help:      "Closed trades by close reason.",
		}, []string{"reason"}),
		OpenPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "leverrun",
			Name:      "open_positions",
			Help:      "Currently open positions.",
		}),
		PortfolioValue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "leverrun",
			Name:      "portfolio_value",
			Help:      "Capital plus total P&L in quote currency.",
		}),
		MaxLeverage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "leverrun",
			Name:      "max_leverage",
			Help:      "Highest leverage across open positions.",
		}),
	}

	m.registry.MustRegister(
		m.CycleDuration,
		m.CyclesTotal,
		m.FeedErrors,
		m.TradesTotal,
		m.OpenPositions,
		m.PortfolioValue,
		m.MaxLeverage,
	)
	return m
}

// Registry returns the backing registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
