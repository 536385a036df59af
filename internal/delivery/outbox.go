package delivery

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wsql "github.com/ThreeDotsLabs/watermill-sql/v2/pkg/sql"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/uptrace/bun"

	"cloudtickets/internal/logger"
	"cloudtickets/internal/models"
)

const (
	TicketsIssuedTopic = "tickets_issued"
	PoisonTopic        = "tickets_issued_poison"

	consumerGroup = "cloudtickets_delivery"
)

// Backend pairs the outbox the reconciler writes to with the subscriber the
// relay reads from. Poison receives events that exhausted their retries.
type Backend struct {
	Outbox     Outbox
	Subscriber message.Subscriber
	Poison     message.Publisher
}

// Outbox stages a TicketsIssued event inside the transaction that issued the tickets.
type Outbox interface {
	StageTicketsIssued(ctx context.Context, tx bun.Tx, event models.TicketsIssued) error
}

// SQLOutbox writes events into watermill's Postgres message table using the
// caller's transaction, so the event exists only if the payment commits.
type SQLOutbox struct {
	Logger watermill.LoggerAdapter
}

func (o *SQLOutbox) StageTicketsIssued(_ context.Context, tx bun.Tx, event models.TicketsIssued) error {
	publisher, err := wsql.NewPublisher(tx.Tx, wsql.PublisherConfig{
		SchemaAdapter: wsql.DefaultPostgreSQLSchema{},
	}, o.Logger)
	if err != nil {
		return fmt.Errorf("create outbox publisher: %w", err)
	}

	msg, err := newTicketsIssuedMessage(event)
	if err != nil {
		return err
	}
	if err := publisher.Publish(TicketsIssuedTopic, msg); err != nil {
		return fmt.Errorf("stage tickets issued for order %d: %w", event.OrderID, err)
	}
	return nil
}

// ChannelOutbox publishes straight to an in-process pubsub. It ignores the
// transaction and only backs SQLite runs.
type ChannelOutbox struct {
	Publisher message.Publisher
}

func (o *ChannelOutbox) StageTicketsIssued(_ context.Context, _ bun.Tx, event models.TicketsIssued) error {
	msg, err := newTicketsIssuedMessage(event)
	if err != nil {
		return err
	}
	return o.Publisher.Publish(TicketsIssuedTopic, msg)
}

// NewPostgresBackend creates the message tables up front so the first
// webhook transaction can insert into them.
func NewPostgresBackend(db *sql.DB, pollInterval time.Duration, log *logger.Logger) (*Backend, error) {
	wlog := NewWatermillLogger(log)

	subscriber, err := wsql.NewSubscriber(db, wsql.SubscriberConfig{
		ConsumerGroup:    consumerGroup,
		PollInterval:     pollInterval,
		SchemaAdapter:    wsql.DefaultPostgreSQLSchema{},
		OffsetsAdapter:   wsql.DefaultPostgreSQLOffsetsAdapter{},
		InitializeSchema: true,
	}, wlog)
	if err != nil {
		return nil, fmt.Errorf("create outbox subscriber: %w", err)
	}
	if err := subscriber.SubscribeInitialize(TicketsIssuedTopic); err != nil {
		return nil, fmt.Errorf("initialize outbox table: %w", err)
	}

	poison, err := wsql.NewPublisher(db, wsql.PublisherConfig{
		SchemaAdapter:        wsql.DefaultPostgreSQLSchema{},
		AutoInitializeSchema: true,
	}, wlog)
	if err != nil {
		return nil, fmt.Errorf("create poison publisher: %w", err)
	}

	log.Info("DELIVERY", "Outbox backed by PostgreSQL")
	return &Backend{
		Outbox:     &SQLOutbox{Logger: wlog},
		Subscriber: subscriber,
		Poison:     poison,
	}, nil
}

// NewMemoryBackend keeps events in process. Events published before the relay
// subscribes are replayed to it.
func NewMemoryBackend(log *logger.Logger) *Backend {
	pubSub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 64,
		Persistent:          true,
	}, NewWatermillLogger(log))

	return &Backend{
		Outbox:     &ChannelOutbox{Publisher: pubSub},
		Subscriber: pubSub,
		Poison:     pubSub,
	}
}

func (b *Backend) Close() error {
	subErr := b.Subscriber.Close()
	if any(b.Poison) == any(b.Subscriber) {
		return subErr
	}
	if err := b.Poison.Close(); err != nil {
		return err
	}
	return subErr
}

// The message carries no request context: the relay handles it after the request is gone.
func newTicketsIssuedMessage(event models.TicketsIssued) (*message.Message, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal tickets issued for order %d: %w", event.OrderID, err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("order_id", strconv.FormatInt(event.OrderID, 10))
	msg.Metadata.Set("reference", event.PaymentReference)
	return msg, nil
}
