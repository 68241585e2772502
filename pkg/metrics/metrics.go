// Package metrics exposes the prometheus instruments shared by the
// transactor components.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the collectors used by the per-game components.  One
// instance is shared process-wide; series are partitioned by game address.
type Metrics struct {
	registry *prometheus.Registry

	EventsHandled    *prometheus.CounterVec
	EventErrors      *prometheus.CounterVec
	FramesBroadcast  *prometheus.CounterVec
	Subscribers      *prometheus.GaugeVec
	SettlesSubmitted *prometheus.CounterVec
	SquashBatchSize  prometheus.Histogram
	CheckpointsSaved *prometheus.CounterVec
	GamesLoaded      prometheus.Gauge
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		EventsHandled: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "transactor_events_handled_total",
			Help: "Events applied by the event loop.",
		}, []string{"game"}),
		EventErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "transactor_event_errors_total",
			Help: "Events rejected by general handling or the game handler.",
		}, []string{"game"}),
		FramesBroadcast: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "transactor_frames_broadcast_total",
			Help: "Frames published to subscribers.",
		}, []string{"game"}),
		Subscribers: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "transactor_subscribers",
			Help: "Live broadcast subscribers.",
		}, []string{"game"}),
		SettlesSubmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "transactor_settles_submitted_total",
			Help: "Settle transactions confirmed on chain.",
		}, []string{"game"}),
		SquashBatchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "transactor_squash_batch_size",
			Help:    "Number of settle tasks merged per submission.",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		}),
		CheckpointsSaved: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "transactor_checkpoints_saved_total",
			Help: "Off-chain checkpoints persisted to storage.",
		}, []string{"game"}),
		GamesLoaded: factory.NewGauge(prometheus.GaugeOpts{
			Name: "transactor_games_loaded",
			Help: "Game instances currently running.",
		}),
	}
}

// Handler returns the HTTP handler serving the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
