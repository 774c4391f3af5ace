// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WebhooksReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_webhooks_received_total",
			Help: "Total number of webhook calls by outcome",
		},
		[]string{"status"},
	)

	WebhookDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_webhook_duration_seconds",
			Help:    "Duration of webhook handling in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"status"},
	)

	WebhooksActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_webhooks_active",
			Help: "Number of webhook calls currently being handled",
		},
	)

	LeadsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_leads_processed_total",
			Help: "Total number of leads by result (enriched, skipped)",
		},
		[]string{"result"},
	)

	ContactLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_contact_lookups_total",
			Help: "Contact enrichment lookups by outcome (ok, not_configured, failed)",
		},
		[]string{"outcome"},
	)

	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_upstream_requests_total",
			Help: "Outbound requests by upstream, operation and outcome",
		},
		[]string{"upstream", "operation", "outcome"},
	)

	UpstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "relay_upstream_duration_seconds",
			Help: "Duration of outbound requests in seconds",
		},
		[]string{"upstream", "operation"},
	)

	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_notifications_total",
			Help: "Notification messages by channel and status",
		},
		[]string{"channel", "status"},
	)
)
