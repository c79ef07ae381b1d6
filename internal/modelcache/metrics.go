package modelcache

import "github.com/prometheus/client_golang/prometheus"

var (
	lookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "iotml",
			Subsystem: "modelcache",
			Name:      "lookups_total",
			Help:      "Cache lookups by result (hit, miss)",
		},
		[]string{"result"},
	)

	duplicateLoadsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "iotml",
		Subsystem: "modelcache",
		Name:      "duplicate_loads_total",
		Help:      "Loads discarded because another caller cached the model first",
	})

	evictionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "iotml",
		Subsystem: "modelcache",
		Name:      "evictions_total",
		Help:      "Models evicted by the LRU bound",
	})

	loadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "iotml",
			Subsystem: "modelcache",
			Name:      "load_duration_seconds",
			Help:      "Duration of model loads in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"result"},
	)

	cachedModels = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "iotml",
		Subsystem: "modelcache",
		Name:      "cached_models",
		Help:      "Models currently held in memory",
	})
)

func init() {
	prometheus.MustRegister(lookupsTotal, duplicateLoadsTotal, evictionsTotal, loadDuration, cachedModels)
}

// errorLabel maps a load error to a low-cardinality label.
func errorLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsNotFound(err):
		return "not_found"
	case IsLoadTimeout(err):
		return "timeout"
	case IsTypeMismatch(err):
		return "type_mismatch"
	case IsLoadFailure(err):
		return "failure"
	default:
		return "canceled"
	}
}
