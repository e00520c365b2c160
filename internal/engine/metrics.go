package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	packetsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "netsentry",
		Name:      "packets_processed_total",
		Help:      "Packets decoded and run through the detection pipeline.",
	})
	packetsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "netsentry",
		Name:      "packets_dropped_total",
		Help:      "Packets dropped before processing, by reason.",
	}, []string{"reason"})
	detectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "netsentry",
		Name:      "detections_total",
		Help:      "Detections produced, by kind and severity.",
	}, []string{"kind", "severity"})
	alertsSuppressed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "netsentry",
		Name:      "alerts_suppressed_total",
		Help:      "Detections suppressed by the deduplication window.",
	})
	queueOccupancy = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "netsentry",
		Name:      "ingest_queue_occupancy",
		Help:      "Current number of packets waiting in the ingest queue.",
	})
	connectionsTracked = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "netsentry",
		Name:      "connections_tracked",
		Help:      "Connections currently held by the tracker.",
	})
	captureRestarts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "netsentry",
		Name:      "capture_restarts_total",
		Help:      "Times the supervisor restarted the capture worker.",
	})
)
