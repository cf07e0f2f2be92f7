package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhookRequestsTotal counts Stripe webhook requests by event type and status.
	WebhookRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "menushield",
		Name:      "webhook_requests_total",
		Help:      "Total Stripe webhook requests by event type and HTTP status.",
	}, []string{"event_type", "status"})

	// WebhookDuration tracks Stripe webhook processing latency.
	WebhookDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "menushield",
		Name:      "webhook_duration_seconds",
		Help:      "Stripe webhook processing duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"event_type"})

	// ReconcileTotal counts reconciliation outcomes per event type.
	ReconcileTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "menushield",
		Name:      "reconcile_total",
		Help:      "Subscription reconciliation outcomes by event type.",
	}, []string{"event_type", "outcome"})

	// PublicMenuRequestsTotal counts public menu reads by outcome.
	PublicMenuRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "menushield",
		Name:      "public_menu_requests_total",
		Help:      "Public menu endpoint requests by outcome.",
	}, []string{"outcome"})

	// MagicLinksIssuedTotal counts issued sign-in links.
	MagicLinksIssuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "menushield",
		Name:      "magic_links_issued_total",
		Help:      "Total magic sign-in links issued.",
	})

	// ImageUploadsTotal counts dish image uploads by outcome.
	ImageUploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "menushield",
		Name:      "image_uploads_total",
		Help:      "Dish image uploads by outcome.",
	}, []string{"outcome"})
)
