package realtime

import (
	"encoding/json"
	"time"

	"github.com/ericfisherdev/roomvault/internal/domain/model"
)

// Client event names.
const (
	eventJoinRoom    = "join_room"
	eventSendMessage = "send_message"
	eventLeaveRoom   = "leave_room"
	eventError       = "error"
)

// inboundFrame is a client frame; Data is decoded once the event is known.
type inboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type clientPayload struct {
	Username string `json:"username"`
	Room     string `json:"room"`
	Message  string `json:"message"`
}

// Frame is a server frame as written to the socket.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// AnnouncementData is the payload of join and leave announcements.
type AnnouncementData struct {
	Username string `json:"username"`
	Room     string `json:"room"`
}

// MessageData is the payload of receive_message.
type MessageData struct {
	Username  string `json:"username"`
	Room      string `json:"room"`
	Message   string `json:"message"`
	CreatedAt string `json:"created_at"`
}

// ErrorData is the payload of error frames, sent only to the offending client.
type ErrorData struct {
	Room  string `json:"room"`
	Error string `json:"error"`
}

func eventFrame(e model.Event) Frame {
	if e.Type == model.EventReceiveMessage {
		return Frame{Event: string(e.Type), Data: MessageData{
			Username:  e.Username,
			Room:      e.RoomID,
			Message:   e.Message,
			CreatedAt: e.CreatedAt.UTC().Format(time.RFC3339),
		}}
	}
	return Frame{Event: string(e.Type), Data: AnnouncementData{
		Username: e.Username,
		Room:     e.RoomID,
	}}
}

func errorFrame(room, msg string) Frame {
	return Frame{Event: eventError, Data: ErrorData{Room: room, Error: msg}}
}
