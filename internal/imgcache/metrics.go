package imgcache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "kiosk",
		Subsystem: "imgcache",
		Name:      "hits_total",
		Help:      "Image cache lookups served from memory.",
	})
	metricMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "kiosk",
		Subsystem: "imgcache",
		Name:      "misses_total",
		Help:      "Image cache lookups for absent locators.",
	})
	metricEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "kiosk",
		Subsystem: "imgcache",
		Name:      "evictions_total",
		Help:      "Entries removed by FIFO batch eviction.",
	})
	metricEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "kiosk",
		Subsystem: "imgcache",
		Name:      "entries",
		Help:      "Entries after last insertion.",
	})
)
