package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"cloudtickets/internal/logger"
	"cloudtickets/internal/models"
)

// MessageWriter is the part of *kafka.Writer the producer uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	Writer MessageWriter
	Topic  string
	Logger *logger.Logger
}

func NewProducer(brokers []string, topic string, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return &Producer{Writer: writer, Topic: topic, Logger: log}
}

// PublishTicketsIssued streams the issued tickets of a paid order. The order id
// is the message key so every event of an order lands on one partition.
func (p *Producer) PublishTicketsIssued(ctx context.Context, event models.TicketsIssued) error {
	msgBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal tickets issued event: %w", err)
	}

	p.Logger.LogKafka("PUBLISH", p.Topic, fmt.Sprintf("order %d, %d tickets", event.OrderID, len(event.TicketIDs)))

	return p.Writer.WriteMessages(ctx,
		kafka.Message{
			Key:   []byte(strconv.FormatInt(event.OrderID, 10)),
			Value: msgBytes,
			Headers: []kafka.Header{
				{Key: "event", Value: []byte("tickets.issued")},
				{Key: "reference", Value: []byte(event.PaymentReference)},
			},
		},
	)
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
