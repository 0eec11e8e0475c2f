// Package kafkanotify publishes "message stored" metadata to Kafka for
// downstream notification services. Message text is never published.
package kafkanotify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ericfisherdev/roomvault/internal/domain/model"
	"github.com/ericfisherdev/roomvault/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.MessageNotifier = (*Notifier)(nil)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// storedEvent is the JSON value of each Kafka record.
type storedEvent struct {
	MessageID int64  `json:"message_id"`
	RoomID    string `json:"room_id"`
	Sender    string `json:"sender"`
	CreatedAt string `json:"created_at"`
}

// Notifier implements driven.MessageNotifier with a kafka-go writer.
type Notifier struct {
	w messageWriter
}

// NewNotifier creates a Notifier writing to topic. Records are keyed by room
// so that one room's notifications stay ordered within a partition.
func NewNotifier(brokers []string, topic string) *Notifier {
	return &Notifier{w: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           50 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}}
}

// MessageStored publishes m.
func (n *Notifier) MessageStored(ctx context.Context, m model.MessageStored) error {
	value, err := json.Marshal(storedEvent{
		MessageID: m.MessageID,
		RoomID:    m.RoomID,
		Sender:    m.Sender,
		CreatedAt: m.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("encode message stored: %w", err)
	}

	err = n.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(m.RoomID),
		Value: value,
		Time:  m.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("write message stored: %w", err)
	}
	return nil
}

// Close flushes pending records and closes the writer.
func (n *Notifier) Close() error {
	return n.w.Close()
}
