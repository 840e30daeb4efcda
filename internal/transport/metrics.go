package transport

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "streamhttp_connections_active",
			Help: "Current number of open connections",
		},
	)

	framesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamhttp_frames_total",
			Help: "Total number of frames decoded, by phase",
		},
		[]string{"phase"},
	)

	protocolErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamhttp_protocol_errors_total",
			Help: "Total number of connections torn down by a protocol error, by kind",
		},
		[]string{"kind"},
	)

	requestBodyBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "streamhttp_request_body_bytes",
			Help:    "Size of decoded request bodies in bytes",
			Buckets: []float64{0, 100, 1000, 10000, 100000, 1000000, 2097152},
		},
	)
)
