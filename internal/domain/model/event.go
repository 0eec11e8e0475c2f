package model

import "time"

// EventType names a real-time room event.
type EventType string

const (
	EventJoinAnnouncement  EventType = "join_room_announcement"
	EventLeaveAnnouncement EventType = "leave_room_announcement"
	EventReceiveMessage    EventType = "receive_message"
)

// Event is a room-scoped real-time event fanned out to subscribers.
type Event struct {
	Type      EventType
	RoomID    string
	Username  string
	Message   string    // Set for EventReceiveMessage only.
	CreatedAt time.Time // Set for EventReceiveMessage only.
	Origin    string    // Instance that produced the event; used to drop relay echoes.
}

// MessageStored is the metadata published after a message is durably appended.
// It never carries the message text.
type MessageStored struct {
	MessageID int64
	RoomID    string
	Sender    string
	CreatedAt time.Time
}
