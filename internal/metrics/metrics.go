package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the service counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry prometheus.Gatherer

	// OrdersCreated the total number of checkout orders created (counter)
	OrdersCreated prometheus.Counter

	// WebhooksProcessed payment webhook deliveries by outcome (counter)
	WebhooksProcessed *prometheus.CounterVec

	// TicketsIssued the total number of tickets issued (counter)
	TicketsIssued prometheus.Counter

	// Checkins validation attempts by result and reason (counter)
	Checkins *prometheus.CounterVec

	// Deliveries ticket delivery notifications by outcome (counter)
	Deliveries *prometheus.CounterVec

	// HTTPDuration request latency by route and status (histogram)
	HTTPDuration *prometheus.HistogramVec
}

func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		OrdersCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "cloudtickets",
			Name:      "orders_created_total",
			Help:      "The total number of checkout orders created",
		}),
		WebhooksProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cloudtickets",
			Name:      "webhooks_processed_total",
			Help:      "Payment webhook deliveries by outcome",
		}, []string{"outcome"}),
		TicketsIssued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "cloudtickets",
			Name:      "tickets_issued_total",
			Help:      "The total number of tickets issued",
		}),
		Checkins: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cloudtickets",
			Name:      "checkins_total",
			Help:      "Ticket validation attempts by result and reason",
		}, []string{"result", "reason"}),
		Deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cloudtickets",
			Name:      "deliveries_total",
			Help:      "Ticket delivery notifications by outcome",
		}, []string{"outcome"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cloudtickets",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

func (m *Metrics) OrderCreated() {
	if m == nil {
		return
	}
	m.OrdersCreated.Inc()
}

func (m *Metrics) Webhook(outcome string) {
	if m == nil {
		return
	}
	m.WebhooksProcessed.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Issued(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.TicketsIssued.Add(float64(n))
}

func (m *Metrics) Checkin(result, reason string) {
	if m == nil {
		return
	}
	m.Checkins.WithLabelValues(result, reason).Inc()
}

func (m *Metrics) Delivery(outcome string) {
	if m == nil {
		return
	}
	m.Deliveries.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveHTTP(method, route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPDuration.WithLabelValues(method, route, status).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
