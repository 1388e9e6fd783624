package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facegate",
		Name:      "events_received_total",
		Help:      "Total number of detection events received from the bus",
	}, []string{"camera"})

	EventsAdmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facegate",
		Name:      "events_admitted_total",
		Help:      "Total number of events that passed admission checks",
	}, []string{"camera"})

	EventsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facegate",
		Name:      "events_rejected_total",
		Help:      "Total number of events rejected at admission",
	}, []string{"camera"})

	DetectorRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facegate",
		Name:      "detector_requests_total",
		Help:      "Total number of recognition calls per detector",
	}, []string{"detector"})

	DetectorFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facegate",
		Name:      "detector_failures_total",
		Help:      "Total number of failed recognition calls per detector",
	}, []string{"detector"})

	DetectorDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "facegate",
		Name:      "detector_duration_seconds",
		Help:      "Duration of detector recognition calls",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{"detector"})

	MatchesSaved = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facegate",
		Name:      "matches_saved_total",
		Help:      "Total number of match records written",
	}, []string{"camera"})

	FacesMatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facegate",
		Name:      "faces_matched_total",
		Help:      "Total number of candidates that passed the match policy",
	}, []string{"detector"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "facegate",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "facegate",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
