package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ckafka "cloudtickets/internal/kafka"
	"cloudtickets/internal/logger"
	"cloudtickets/internal/models"
)

type memoryWriter struct {
	msgs []kafka.Message
}

func (w *memoryWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *memoryWriter) Close() error { return nil }

func TestKafkaNotifier_PublishesEvent(t *testing.T) {
	w := &memoryWriter{}
	producer := &ckafka.Producer{Writer: w, Topic: "cloudtickets.tickets.issued", Logger: testLog}
	n := &KafkaNotifier{Publisher: producer}

	event := models.TicketsIssued{
		OrderID:          12,
		PaymentReference: "CT-1700000000000-0007-0a1b2c3d",
		BuyerEmail:       "ana@example.com",
		TicketIDs:        []int64{1, 2},
		UniqueCodes:      []string{"a", "b"},
		Timestamp:        1700000000,
	}
	require.NoError(t, n.Notify(context.Background(), event))

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "12", string(w.msgs[0].Key))

	var got models.TicketsIssued
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, event, got)
}

func TestKafkaNotifier_RejectsUnstampedEvent(t *testing.T) {
	w := &memoryWriter{}
	n := &KafkaNotifier{Publisher: &ckafka.Producer{Writer: w, Logger: testLog}}

	assert.Error(t, n.Notify(context.Background(), models.TicketsIssued{OrderID: 1}))
	assert.Empty(t, w.msgs)
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := &LogNotifier{Logger: logger.NewWriterLogger(&buf)}

	require.NoError(t, n.Notify(context.Background(), models.TicketsIssued{OrderID: 3, UniqueCodes: []string{"x", "y"}, BuyerEmail: "ana@example.com"}))
	assert.Contains(t, buf.String(), "x,y")
	assert.Contains(t, buf.String(), "ana@example.com")
}
