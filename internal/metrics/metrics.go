package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	MunicipalitiesProcessed *prometheus.CounterVec
	FetchAttempts           *prometheus.CounterVec
	FetchSeconds            prometheus.Histogram
	PointsRetained          prometheus.Counter
	ActiveWorkers           prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		MunicipalitiesProcessed: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "muniflow_municipalities_processed_total",
			Help: "Total number of processed municipalities by outcome.",
		}, []string{"outcome"}),
		FetchAttempts: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "muniflow_wfs_requests_total",
			Help: "Total number of requests sent to the feature service by result.",
		}, []string{"result"}),
		FetchSeconds: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "muniflow_wfs_request_duration_seconds",
			Help:    "Duration of requests to the feature service.",
			Buckets: prometheus.DefBuckets,
		}),
		PointsRetained: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "muniflow_points_retained_total",
			Help: "Total number of counter readings kept after the spatial join.",
		}),
		ActiveWorkers: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "muniflow_active_workers",
			Help: "Current number of workers processing municipalities.",
		}),
	}
}
