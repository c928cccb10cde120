package geo

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeHit   = "hit"
	outcomeMiss  = "miss"
	outcomeError = "error"

	statusSuccess = "success"
	statusFailure = "failure"
)

type metrics struct {
	lookups    *prometheus.CounterVec
	cacheHits  prometheus.Counter
	reloads    *prometheus.CounterVec
	buildEpoch prometheus.Gauge
}

func newMetrics(r prometheus.Registerer) *metrics {
	return &metrics{
		lookups: promauto.With(r).NewCounterVec(prometheus.CounterOpts{
			Namespace: "ipgeo",
			Name:      "lookups_total",
			Help:      "Total number of database lookups by outcome.",
		}, []string{"outcome"}),
		cacheHits: promauto.With(r).NewCounter(prometheus.CounterOpts{
			Namespace: "ipgeo",
			Name:      "cache_hits_total",
			Help:      "Total number of lookups answered from the cache.",
		}),
		reloads: promauto.With(r).NewCounterVec(prometheus.CounterOpts{
			Namespace: "ipgeo",
			Name:      "database_reloads_total",
			Help:      "Total number of database reloads by status.",
		}, []string{"status"}),
		buildEpoch: promauto.With(r).NewGauge(prometheus.GaugeOpts{
			Namespace: "ipgeo",
			Name:      "database_build_epoch_seconds",
			Help:      "Build time of the loaded database.",
		}),
	}
}
