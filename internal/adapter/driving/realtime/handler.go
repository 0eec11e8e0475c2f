// Package realtime serves the room event protocol over WebSocket. Each frame
// is a JSON object {"event": name, "data": {...}}.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"github.com/ericfisherdev/roomvault/internal/adapter/driving/auth"
	"github.com/ericfisherdev/roomvault/internal/application"
	"github.com/ericfisherdev/roomvault/internal/domain/model"
)

// RoomChannel is the fan-out service the handler drives.
type RoomChannel interface {
	Join(ctx context.Context, roomID string, conn application.Subscriber, username string) error
	Leave(ctx context.Context, roomID string, conn application.Subscriber, username string) error
	Send(ctx context.Context, roomID string, conn application.Subscriber, username, body string) (model.Event, error)
	Disconnect(ctx context.Context, conn application.Subscriber)
}

// Config tunes the WebSocket handler. Zero values use the defaults.
type Config struct {
	// OriginPatterns lists extra hosts allowed to open cross-origin sockets.
	OriginPatterns []string
	// Sanitize strips HTML from inbound message bodies.
	Sanitize        bool
	SendBuffer      int
	MaxMessageBytes int64
	PingInterval    time.Duration
	WriteTimeout    time.Duration
}

const (
	defaultSendBuffer      = 256
	defaultMaxMessageBytes = 64 << 10
	defaultPingInterval    = 30 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	cleanupTimeout         = 5 * time.Second
)

// Handler upgrades authenticated requests and runs one read loop and one
// write loop per connection.
type Handler struct {
	channel  RoomChannel
	verifier *auth.Verifier
	policy   *bluemonday.Policy
	cfg      Config
	logger   *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(channel RoomChannel, verifier *auth.Verifier, cfg Config, logger *slog.Logger) *Handler {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaultSendBuffer
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = defaultMaxMessageBytes
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}

	h := &Handler{
		channel:  channel,
		verifier: verifier,
		cfg:      cfg,
		logger:   logger,
	}
	if cfg.Sanitize {
		h.policy = bluemonday.StrictPolicy()
	}
	return h
}

// ServeHTTP authenticates the request, upgrades it and serves the connection
// until either side closes it. The connection leaves every room it joined on
// the way out.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	username, err := h.verifier.Verify(auth.TokenFromRequest(r))
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.cfg.OriginPatterns,
	})
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "username", username, "error", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(h.cfg.MaxMessageBytes)

	c := newClient(uuid.NewString(), username, h.cfg.SendBuffer)
	h.logger.Info("client connected", "conn_id", c.id, "username", username)

	ctx, cancel := context.WithCancel(r.Context())
	defer func() {
		cancel()
		cleanupCtx, done := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
		h.channel.Disconnect(cleanupCtx, c)
		done()
		h.logger.Info("client disconnected", "conn_id", c.id, "username", username)
	}()

	go h.writeLoop(ctx, cancel, conn, c)
	h.readLoop(ctx, conn, c)
}

func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, c *client) {
	for {
		var f inboundFrame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && ctx.Err() == nil {
				h.logger.Debug("websocket read ended", "conn_id", c.id, "error", err)
			}
			return
		}
		h.dispatch(ctx, c, f)
	}
}

// writeLoop drains the client's queue and keeps the connection alive with
// pings. Any write failure tears the connection down.
func (h *Handler) writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, c *client) {
	defer cancel()

	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return
		case f := <-c.send:
			wctx, done := context.WithTimeout(ctx, h.cfg.WriteTimeout)
			err := wsjson.Write(wctx, conn, f)
			done()
			if err != nil {
				h.logger.Debug("websocket write failed", "conn_id", c.id, "error", err)
				return
			}
		case <-ticker.C:
			pctx, done := context.WithTimeout(ctx, h.cfg.WriteTimeout)
			err := conn.Ping(pctx)
			done()
			if err != nil {
				h.logger.Debug("websocket ping failed", "conn_id", c.id, "error", err)
				return
			}
		}
	}
}

func (h *Handler) dispatch(ctx context.Context, c *client, f inboundFrame) {
	switch f.Event {
	case eventJoinRoom, eventLeaveRoom, eventSendMessage:
	default:
		c.queue(errorFrame("", "unknown event"))
		return
	}

	var p clientPayload
	if len(f.Data) > 0 {
		if err := json.Unmarshal(f.Data, &p); err != nil {
			c.queue(errorFrame("", "malformed frame"))
			return
		}
	}
	if p.Username != "" && p.Username != c.username {
		c.queue(errorFrame(p.Room, "username does not match authenticated user"))
		return
	}
	if p.Room == "" {
		c.queue(errorFrame("", "room is required"))
		return
	}

	var err error
	switch f.Event {
	case eventJoinRoom:
		err = h.channel.Join(ctx, p.Room, c, c.username)
	case eventLeaveRoom:
		err = h.channel.Leave(ctx, p.Room, c, c.username)
	case eventSendMessage:
		body := p.Message
		if h.policy != nil {
			body = h.policy.Sanitize(body)
		}
		if strings.TrimSpace(body) == "" {
			c.queue(errorFrame(p.Room, "message is empty"))
			return
		}
		_, err = h.channel.Send(ctx, p.Room, c, c.username, body)
	}

	if err != nil {
		c.queue(errorFrame(p.Room, errorMessage(err)))
	}
}

// errorMessage turns a domain error into the text shown to the client.
func errorMessage(err error) string {
	switch {
	case errors.Is(err, model.ErrRoomNotFound):
		return "room not found"
	case errors.Is(err, model.ErrRateLimited):
		return "rate limited, slow down"
	case errors.Is(err, model.ErrStorageUnavailable):
		return "storage unavailable, retry"
	default:
		return "internal error"
	}
}
