// Package natsrelay carries room events between service instances over NATS
// core pub/sub. Each room maps to its own subject so that a future instance
// could subscribe to a subset of rooms.
package natsrelay

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/ericfisherdev/roomvault/internal/domain/model"
	"github.com/ericfisherdev/roomvault/internal/domain/port/driven"
)

// DefaultSubjectPrefix is the subject namespace used for room events.
const DefaultSubjectPrefix = "roomvault.rooms"

// Compile-time interface satisfaction check.
var _ driven.EventRelay = (*Relay)(nil)

// envelope is the wire form of a relayed event.
type envelope struct {
	Type      string    `json:"type"`
	RoomID    string    `json:"room_id"`
	Username  string    `json:"username"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Origin    string    `json:"origin"`
}

// Relay implements driven.EventRelay on a NATS connection.
type Relay struct {
	nc     *nats.Conn
	prefix string
}

// Connect dials the NATS server at url, reconnecting indefinitely.
func Connect(url, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return nc, nil
}

// NewRelay creates a Relay publishing under prefix, or DefaultSubjectPrefix
// when prefix is empty.
func NewRelay(nc *nats.Conn, prefix string) *Relay {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &Relay{nc: nc, prefix: prefix}
}

// Publish sends event on its room's subject.
func (r *Relay) Publish(ctx context.Context, event model.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := encode(event)
	if err != nil {
		return err
	}
	if err := r.nc.Publish(subjectFor(r.prefix, event.RoomID), data); err != nil {
		return fmt.Errorf("publish room event: %w", err)
	}
	return nil
}

// Subscribe delivers every room event to handler. Undecodable messages are
// logged and skipped.
func (r *Relay) Subscribe(handler func(model.Event)) (func() error, error) {
	sub, err := r.nc.Subscribe(r.prefix+".*", messageHandler(handler))
	if err != nil {
		return nil, fmt.Errorf("subscribe to room events: %w", err)
	}
	return sub.Unsubscribe, nil
}

func messageHandler(handler func(model.Event)) nats.MsgHandler {
	return func(m *nats.Msg) {
		event, err := decode(m.Data)
		if err != nil {
			slog.Warn("dropping malformed relay message", "subject", m.Subject, "error", err)
			return
		}
		handler(event)
	}
}

// subjectFor encodes roomID as a single subject token. Room IDs may contain
// characters NATS reserves, such as '.', '*' and '>'.
func subjectFor(prefix, roomID string) string {
	return prefix + "." + base64.RawURLEncoding.EncodeToString([]byte(roomID))
}

func encode(e model.Event) ([]byte, error) {
	data, err := json.Marshal(envelope{
		Type:      string(e.Type),
		RoomID:    e.RoomID,
		Username:  e.Username,
		Message:   e.Message,
		CreatedAt: e.CreatedAt,
		Origin:    e.Origin,
	})
	if err != nil {
		return nil, fmt.Errorf("encode room event: %w", err)
	}
	return data, nil
}

func decode(data []byte) (model.Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return model.Event{}, fmt.Errorf("decode room event: %w", err)
	}
	if env.RoomID == "" || env.Type == "" {
		return model.Event{}, fmt.Errorf("decode room event: missing room or type")
	}
	return model.Event{
		Type:      model.EventType(env.Type),
		RoomID:    env.RoomID,
		Username:  env.Username,
		Message:   env.Message,
		CreatedAt: env.CreatedAt,
		Origin:    env.Origin,
	}, nil
}
