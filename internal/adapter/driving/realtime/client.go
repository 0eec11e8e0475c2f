package realtime

import (
	"github.com/ericfisherdev/roomvault/internal/domain/model"
)

// client is one authenticated WebSocket connection. Outbound frames are
// queued on send and written by the connection's write loop.
type client struct {
	id       string
	username string
	send     chan Frame
}

func newClient(id, username string, buffer int) *client {
	return &client{
		id:       id,
		username: username,
		send:     make(chan Frame, buffer),
	}
}

func (c *client) ID() string {
	return c.id
}

// Deliver queues a room event without blocking.
func (c *client) Deliver(e model.Event) bool {
	return c.queue(eventFrame(e))
}

func (c *client) queue(f Frame) bool {
	select {
	case c.send <- f:
		return true
	default:
		return false
	}
}
