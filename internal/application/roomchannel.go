package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ericfisherdev/roomvault/internal/domain/model"
	"github.com/ericfisherdev/roomvault/internal/domain/port/driven"
	"github.com/ericfisherdev/roomvault/internal/telemetry"
)

// Subscriber is one live connection that can receive room events.
type Subscriber interface {
	// ID identifies the connection. It must be unique among live connections.
	ID() string
	// Deliver queues event for the connection without blocking. It returns
	// false when the event could not be queued.
	Deliver(event model.Event) bool
}

// MessageSender persists messages and answers membership questions for the
// channel. *RoomService implements it.
type MessageSender interface {
	SendMessage(ctx context.Context, roomID, username, plaintext string, createdAt time.Time) (model.MessageRecord, error)
	CheckMember(ctx context.Context, roomID, username string) error
}

// RoomChannelConfig configures a RoomChannel. Limiter, Relay and Metrics are
// optional.
type RoomChannelConfig struct {
	// SelfAnnounce delivers a join announcement to the joining connection too.
	SelfAnnounce bool
	Limiter      driven.RateLimiter
	Relay        driven.EventRelay
	Metrics      *telemetry.Metrics
	// Origin identifies this instance on the relay. A random ID is used when empty.
	Origin string
	// Now is the clock used to stamp events. Defaults to time.Now.
	Now func() time.Time
}

type subscription struct {
	conn     Subscriber
	username string
}

// roomSubscribers is the live subscriber set of one room. Once closed it has
// been removed from the registry and must not gain subscribers.
type roomSubscribers struct {
	mu     sync.Mutex
	subs   map[string]subscription
	closed bool
}

// RoomChannel fans room events out to the connections subscribed to each
// room. The registry lock guards only the room map; each room has its own
// lock, held while its subscriber set changes or an event is delivered to it.
type RoomChannel struct {
	sender       MessageSender
	limiter      driven.RateLimiter
	relay        driven.EventRelay
	metrics      *telemetry.Metrics
	selfAnnounce bool
	origin       string
	now          func() time.Time

	mu    sync.Mutex
	rooms map[string]*roomSubscribers
}

// NewRoomChannel creates a RoomChannel with no rooms.
func NewRoomChannel(sender MessageSender, cfg RoomChannelConfig) *RoomChannel {
	if cfg.Origin == "" {
		cfg.Origin = uuid.NewString()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &RoomChannel{
		sender:       sender,
		limiter:      cfg.Limiter,
		relay:        cfg.Relay,
		metrics:      cfg.Metrics,
		selfAnnounce: cfg.SelfAnnounce,
		origin:       cfg.Origin,
		now:          cfg.Now,
		rooms:        make(map[string]*roomSubscribers),
	}
}

// Origin returns the instance ID stamped on locally produced events.
func (c *RoomChannel) Origin() string {
	return c.origin
}

// Run relays events published by other instances to local subscribers until
// ctx is canceled. It returns immediately when no relay is configured.
func (c *RoomChannel) Run(ctx context.Context) error {
	if c.relay == nil {
		return nil
	}

	unsubscribe, err := c.relay.Subscribe(c.handleRelayed)
	if err != nil {
		return fmt.Errorf("subscribe to relay: %w", err)
	}

	<-ctx.Done()
	if err := unsubscribe(); err != nil {
		slog.Warn("relay unsubscribe failed", "error", err)
	}
	slog.Info("room relay stopped")
	return nil
}

// Join subscribes conn to roomID and announces it. Only members may join;
// anyone else gets model.ErrRoomNotFound.
func (c *RoomChannel) Join(ctx context.Context, roomID string, conn Subscriber, username string) error {
	if err := c.sender.CheckMember(ctx, roomID, username); err != nil {
		return err
	}

	event := model.Event{
		Type:     model.EventJoinAnnouncement,
		RoomID:   roomID,
		Username: username,
		Origin:   c.origin,
	}

	skip := ""
	if !c.selfAnnounce {
		skip = conn.ID()
	}

	for {
		room := c.room(roomID, true)
		room.mu.Lock()
		if room.closed {
			room.mu.Unlock()
			continue
		}
		if _, ok := room.subs[conn.ID()]; !ok {
			roomDelta := 0.0
			if len(room.subs) == 0 {
				roomDelta = 1
			}
			c.metrics.SubscriptionsChanged(1, roomDelta)
		}
		room.subs[conn.ID()] = subscription{conn: conn, username: username}
		c.deliverLocked(room, event, skip)
		room.mu.Unlock()
		break
	}

	slog.Debug("joined room", "room_id", roomID, "username", username, "conn_id", conn.ID())
	c.publish(ctx, event)
	return nil
}

// Leave unsubscribes conn from roomID and announces the departure to the
// remaining subscribers under the name conn joined with. Leaving a room the
// connection is not in is a no-op.
func (c *RoomChannel) Leave(ctx context.Context, roomID string, conn Subscriber, username string) error {
	event, ok := c.remove(roomID, conn.ID())
	if !ok {
		return nil
	}
	slog.Debug("left room", "room_id", roomID, "username", username, "conn_id", conn.ID())
	c.publish(ctx, event)
	return nil
}

// Send persists body as a message from username and, once stored, broadcasts
// it to the room. On any failure nothing is broadcast and the error is
// returned to the caller only.
func (c *RoomChannel) Send(ctx context.Context, roomID string, conn Subscriber, username, body string) (model.Event, error) {
	if err := c.sender.CheckMember(ctx, roomID, username); err != nil {
		c.metrics.SendFailed(failureReason(err))
		return model.Event{}, err
	}

	if err := c.allow(ctx, username); err != nil {
		c.metrics.SendFailed(failureReason(err))
		return model.Event{}, err
	}

	rec, err := c.sender.SendMessage(ctx, roomID, username, body, c.now().UTC())
	if err != nil {
		c.metrics.SendFailed(failureReason(err))
		slog.Warn("send failed", "room_id", roomID, "username", username,
			"conn_id", conn.ID(), "error", err)
		return model.Event{}, err
	}

	event := model.Event{
		Type:      model.EventReceiveMessage,
		RoomID:    roomID,
		Username:  username,
		Message:   body,
		CreatedAt: rec.CreatedAt,
		Origin:    c.origin,
	}
	c.broadcast(event)
	c.publish(ctx, event)
	return event, nil
}

// Disconnect removes conn from every room it joined, announcing each
// departure.
func (c *RoomChannel) Disconnect(ctx context.Context, conn Subscriber) {
	c.mu.Lock()
	roomIDs := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		roomIDs = append(roomIDs, id)
	}
	c.mu.Unlock()

	for _, roomID := range roomIDs {
		if event, ok := c.remove(roomID, conn.ID()); ok {
			c.publish(ctx, event)
		}
	}
}

// Subscribers returns the number of live connections in roomID.
func (c *RoomChannel) Subscribers(roomID string) int {
	room := c.room(roomID, false)
	if room == nil {
		return 0
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	return len(room.subs)
}

// ActiveRooms returns the number of rooms with at least one subscriber.
func (c *RoomChannel) ActiveRooms() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.rooms)
}

// room returns the subscriber set for roomID, creating it when create is set.
func (c *RoomChannel) room(roomID string, create bool) *roomSubscribers {
	c.mu.Lock()
	defer c.mu.Unlock()

	room, ok := c.rooms[roomID]
	if !ok && create {
		room = &roomSubscribers{subs: make(map[string]subscription)}
		c.rooms[roomID] = room
	}
	return room
}

// remove drops connID from roomID and delivers the leave announcement. The
// room is deleted from the registry when its last subscriber goes.
func (c *RoomChannel) remove(roomID, connID string) (model.Event, bool) {
	room := c.room(roomID, false)
	if room == nil {
		return model.Event{}, false
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	sub, ok := room.subs[connID]
	if !ok {
		return model.Event{}, false
	}
	delete(room.subs, connID)

	event := model.Event{
		Type:     model.EventLeaveAnnouncement,
		RoomID:   roomID,
		Username: sub.username,
		Origin:   c.origin,
	}

	if len(room.subs) == 0 {
		room.closed = true
		c.mu.Lock()
		if c.rooms[roomID] == room {
			delete(c.rooms, roomID)
		}
		c.mu.Unlock()
		c.metrics.SubscriptionsChanged(-1, -1)
		return event, true
	}

	c.metrics.SubscriptionsChanged(-1, 0)
	c.deliverLocked(room, event, "")
	return event, true
}

// broadcast delivers event to every local subscriber of its room.
func (c *RoomChannel) broadcast(event model.Event) {
	room := c.room(event.RoomID, false)
	if room == nil {
		return
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	c.deliverLocked(room, event, "")
}

// deliverLocked hands event to every subscriber except skip. room.mu must be held.
func (c *RoomChannel) deliverLocked(room *roomSubscribers, event model.Event, skip string) {
	for id, sub := range room.subs {
		if id == skip {
			continue
		}
		if sub.conn.Deliver(event) {
			c.metrics.EventDelivered(string(event.Type))
			continue
		}
		c.metrics.EventDropped()
		slog.Warn("subscriber buffer full, event dropped",
			"room_id", event.RoomID, "conn_id", id, "event", event.Type)
	}
}

// allow applies the optional send rate limit. A limiter failure lets the
// message through.
func (c *RoomChannel) allow(ctx context.Context, username string) error {
	if c.limiter == nil {
		return nil
	}
	ok, err := c.limiter.Allow(ctx, username)
	if err != nil {
		slog.Warn("rate limiter unavailable, allowing send", "username", username, "error", err)
		return nil
	}
	if !ok {
		return model.ErrRateLimited
	}
	return nil
}

func (c *RoomChannel) publish(ctx context.Context, event model.Event) {
	if c.relay == nil {
		return
	}
	if err := c.relay.Publish(ctx, event); err != nil {
		slog.Warn("relay publish failed", "room_id", event.RoomID, "event", event.Type, "error", err)
	}
}

// handleRelayed broadcasts an event from another instance. Events this
// instance produced are dropped since they were already delivered locally.
func (c *RoomChannel) handleRelayed(event model.Event) {
	if event.Origin == c.origin {
		return
	}
	c.broadcast(event)
}
