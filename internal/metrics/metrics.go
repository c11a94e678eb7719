package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aquasense_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aquasense_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "endpoint", "status"},
	)

	// Ingestion metrics
	ReadingsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aquasense_readings_ingested_total",
			Help: "Total number of inbound readings, by outcome",
		},
		[]string{"status"}, // status: stored, rejected, unroutable
	)

	IngestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "aquasense_ingest_duration_seconds",
			Help:    "Time to resolve, persist, and evaluate one reading",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	// Alert engine metrics
	EvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aquasense_rule_evaluations_total",
			Help: "Total number of rule evaluations, by outcome",
		},
		[]string{"outcome"}, // no_rule, healthy, already_open, opened
	)

	AlertsOpened = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aquasense_alerts_opened_total",
			Help: "Total number of alerts opened, by severity",
		},
		[]string{"severity"},
	)

	AlertsResolved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aquasense_alerts_resolved_total",
			Help: "Total number of alert resolutions",
		},
	)

	RuleConfigNoops = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aquasense_rule_config_noops_total",
			Help: "Evaluations that hit a rule with neither bound configured",
		},
	)

	// MQTT transport metrics
	MQTTMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aquasense_mqtt_messages_total",
			Help: "Total number of MQTT messages received, by status",
		},
		[]string{"status"}, // accepted, malformed, dropped
	)

	// Notification publisher metrics
	NotifyPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aquasense_notify_publish_total",
			Help: "Total number of alert notifications published, by status",
		},
		[]string{"status"}, // success, failed, dropped
	)

	NotifyPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "aquasense_notify_publish_duration_seconds",
			Help:    "Time taken to publish an alert notification batch",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	NotifyQueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "aquasense_notify_queue_size",
			Help: "Current size of the notification queue",
		},
	)

	// Panic recovery
	PanicsRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aquasense_panics_recovered_total",
			Help: "Total number of panics recovered",
		},
		[]string{"component"},
	)
)
