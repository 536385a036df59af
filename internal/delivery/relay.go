// Package delivery moves TicketsIssued events from the outbox to the mailer
// side. Nothing here can change order or ticket state.
package delivery

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	"cloudtickets/internal/config"
	"cloudtickets/internal/logger"
	"cloudtickets/internal/metrics"
	"cloudtickets/internal/models"
)

// Notifier sends one TicketsIssued notification. It may be called more than
// once for the same event.
type Notifier interface {
	Notify(ctx context.Context, task models.TicketsIssued) error
}

// Relay consumes staged events and hands them to the notifier, retrying with
// backoff and parking events that keep failing on the poison topic.
type Relay struct {
	router   *message.Router
	notifier Notifier
	logger   *logger.Logger
	metrics  *metrics.Metrics
}

func NewRelay(backend *Backend, notifier Notifier, cfg config.DeliveryConfig, log *logger.Logger, m *metrics.Metrics) (*Relay, error) {
	wlog := NewWatermillLogger(log)

	router, err := message.NewRouter(message.RouterConfig{}, wlog)
	if err != nil {
		return nil, fmt.Errorf("create delivery router: %w", err)
	}

	poisonQueue, err := middleware.PoisonQueue(backend.Poison, PoisonTopic)
	if err != nil {
		return nil, fmt.Errorf("create poison queue: %w", err)
	}

	r := &Relay{router: router, notifier: notifier, logger: log, metrics: m}

	router.AddMiddleware(
		poisonQueue,
		r.countFailures,
		middleware.Retry{
			MaxRetries:      max(cfg.MaxAttempts-1, 0),
			InitialInterval: cfg.Backoff,
			MaxInterval:     cfg.MaxBackoff,
			Multiplier:      2,
			Logger:          wlog,
		}.Middleware,
		middleware.Recoverer,
	)

	router.AddNoPublisherHandler(
		"notify_tickets_issued",
		TicketsIssuedTopic,
		backend.Subscriber,
		r.handle,
	)
	return r, nil
}

// Run blocks until ctx is done or Close is called.
func (r *Relay) Run(ctx context.Context) error {
	return r.router.Run(ctx)
}

// Running is closed once the relay has subscribed.
func (r *Relay) Running() chan struct{} {
	return r.router.Running()
}

func (r *Relay) Close() error {
	return r.router.Close()
}

func (r *Relay) handle(msg *message.Message) error {
	var event models.TicketsIssued
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		// never deliverable, acked so it does not block the topic
		r.metrics.Delivery("malformed")
		r.logger.Error("DELIVERY", fmt.Sprintf("message %s is not a TicketsIssued event: %v", msg.UUID, err))
		return nil
	}

	if err := r.notifier.Notify(msg.Context(), event); err != nil {
		r.metrics.Delivery("retry")
		r.logger.Warn("DELIVERY", fmt.Sprintf("order %d (%s): notify failed: %v", event.OrderID, event.PaymentReference, err))
		return err
	}

	r.metrics.Delivery("sent")
	r.logger.Info("DELIVERY", fmt.Sprintf("order %d (%s): %d tickets notified", event.OrderID, event.PaymentReference, len(event.TicketIDs)))
	return nil
}

// countFailures sees only errors that survived every retry.
func (r *Relay) countFailures(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		msgs, err := h(msg)
		if err != nil {
			r.metrics.Delivery("failed")
			r.logger.Error("DELIVERY", fmt.Sprintf("message %s (order %s) moved to %s: %v", msg.UUID, msg.Metadata.Get("order_id"), PoisonTopic, err))
		}
		return msgs, err
	}
}
