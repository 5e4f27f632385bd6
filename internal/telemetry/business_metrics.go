package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BusinessMetrics holds Prometheus metrics for business-level observability
// of the order lifecycle.
type BusinessMetrics struct {
	// Orders
	OrdersPlaced     prometheus.Counter
	OrderValue       prometheus.Histogram
	OrderItemCount   prometheus.Histogram
	StatusTransition *prometheus.CounterVec

	// Payments
	PaymentsConfirmed prometheus.Counter
	PaymentsFailed    prometheus.Counter

	// Notifications
	EventsPublished    *prometheus.CounterVec
	EventPublishErrors *prometheus.CounterVec
	EmailsSent         *prometheus.CounterVec
	EmailsFailed       *prometheus.CounterVec
}

// NewBusinessMetrics creates and registers business metrics with the given
// registerer. Pass prometheus.DefaultRegisterer in production.
func NewBusinessMetrics(namespace string, reg prometheus.Registerer) *BusinessMetrics {
	if namespace == "" {
		namespace = "storefront"
	}
	factory := promauto.With(reg)

	return &BusinessMetrics{
		OrdersPlaced: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_placed_total",
			Help:      "Total number of orders placed",
		}),
		OrderValue: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "order_value_cents",
			Help:      "Order totals in cents",
			Buckets:   []float64{500, 1000, 2500, 5000, 10000, 25000, 50000, 100000},
		}),
		OrderItemCount: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "order_item_count",
			Help:      "Number of units per order",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21},
		}),
		StatusTransition: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_status_transitions_total",
			Help:      "Fulfillment status transitions by source and target status",
		}, []string{"from", "to"}),
		PaymentsConfirmed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_confirmed_total",
			Help:      "Total number of payments confirmed",
		}),
		PaymentsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_failed_total",
			Help:      "Total number of payments marked failed",
		}),
		EventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Lifecycle events published by subject",
		}, []string{"subject"}),
		EventPublishErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_publish_errors_total",
			Help:      "Lifecycle event publish failures by subject",
		}, []string{"subject"}),
		EmailsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emails_sent_total",
			Help:      "Notification emails sent by template",
		}, []string{"template"}),
		EmailsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emails_failed_total",
			Help:      "Notification email failures by template",
		}, []string{"template"}),
	}
}
