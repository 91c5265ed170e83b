// Package metrics exposes SystemX's Prometheus counters and histograms,
// grounded on LumenPrima-tr-engine's internal/metrics/metrics.go:
// package-level vectors registered once in init, namespaced under one
// prefix.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "systemx"

var (
	ConnectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "connections_active",
		Help:      "Currently live connections held by the registry.",
	})

	FramesReceivedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "frames_received_total",
		Help:      "Total inbound frames processed, by type.",
	}, []string{"type"})

	FramesSentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "frames_sent_total",
		Help:      "Total outbound frames sent, by type.",
	}, []string{"type"})

	DialsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dials_total",
		Help:      "Total DIAL attempts, by outcome.",
	}, []string{"outcome"})

	CallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "call_duration_seconds",
		Help:      "Duration of point-to-point calls, answered or not, ring to hangup or ring timeout.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"concurrency_mode"})

	WakesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "wakes_total",
		Help:      "Total wake-on-ring attempts, by outcome.",
	}, []string{"outcome"})

	DisconnectsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "disconnects_total",
		Help:      "Total disconnects, by reason.",
	}, []string{"reason"})
)

func init() {
	prometheus.MustRegister(
		ConnectionsActive,
		FramesReceivedTotal,
		FramesSentTotal,
		DialsTotal,
		CallDuration,
		WakesTotal,
		DisconnectsTotal,
	)
}
