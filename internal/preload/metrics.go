package preload

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricRuns = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "kiosk",
		Subsystem: "preload",
		Name:      "runs_total",
		Help:      "Preload runs started.",
	})
	metricCached = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "kiosk",
		Subsystem: "preload",
		Name:      "cached_total",
		Help:      "Working set items already present in cache.",
	})
	metricFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kiosk",
		Subsystem: "preload",
		Name:      "fetch_total",
		Help:      "Image fetches by result.",
	}, []string{"result"})
)
