// Package metrics provides Prometheus instrumentation for the indexing engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// EventsProcessed counts fully applied events by chain and event name.
	EventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sonicindexer_events_processed_total",
		Help: "Events fully applied to the aggregates",
	}, []string{"chain_id", "event"})

	// EventsSkipped counts re-delivered events dropped by the idempotency guard.
	EventsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sonicindexer_events_skipped_total",
		Help: "Duplicate events skipped by the trade-record guard",
	}, []string{"chain_id"})

	// EventsRejected counts permanently rejected events (malformed payloads).
	EventsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sonicindexer_events_rejected_total",
		Help: "Events rejected as permanently invalid",
	}, []string{"chain_id"})

	// ClampedSubtractions counts monetary decrements clamped to zero.
	ClampedSubtractions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sonicindexer_clamped_subtractions_total",
		Help: "Subtractions clamped to zero to protect non-negative counters",
	})

	// SettlementLosses counts loss records written by the settlement scan.
	SettlementLosses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sonicindexer_settlement_losses_total",
		Help: "Position losses recorded on market resolution",
	}, []string{"chain_id"})

	// CandleTicks counts price ticks folded into OHLC buckets.
	CandleTicks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sonicindexer_candle_ticks_total",
		Help: "Price ticks applied to candles",
	}, []string{"chain_id"})

	// RollupDrift reports the absolute difference found by the integrity
	// checker between a platform rollup and the per-market sums.
	RollupDrift = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sonicindexer_rollup_drift",
		Help: "Absolute drift between platform rollups and market sums",
	}, []string{"chain_id", "field"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
