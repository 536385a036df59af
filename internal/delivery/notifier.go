package delivery

import (
	"context"
	"fmt"
	"strings"

	"cloudtickets/internal/logger"
	"cloudtickets/internal/models"
)

// TicketsPublisher is implemented by *kafka.Producer.
type TicketsPublisher interface {
	PublishTicketsIssued(ctx context.Context, event models.TicketsIssued) error
}

// KafkaNotifier publishes the event for the mailer and other consumers.
type KafkaNotifier struct {
	Publisher TicketsPublisher
}

func (n *KafkaNotifier) Notify(ctx context.Context, task models.TicketsIssued) error {
	if task.Timestamp == 0 {
		return fmt.Errorf("tickets issued event for order %d has no timestamp", task.OrderID)
	}
	return n.Publisher.PublishTicketsIssued(ctx, task)
}

// LogNotifier only records the event. Used when Kafka is disabled.
type LogNotifier struct {
	Logger *logger.Logger
}

func (n *LogNotifier) Notify(_ context.Context, task models.TicketsIssued) error {
	n.Logger.Info("DELIVERY", fmt.Sprintf("order %d (%s): tickets %s ready for %s",
		task.OrderID, task.PaymentReference, strings.Join(task.UniqueCodes, ","), task.BuyerEmail))
	return nil
}
