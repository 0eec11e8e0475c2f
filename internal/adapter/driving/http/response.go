package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ericfisherdev/roomvault/internal/application"
	"github.com/ericfisherdev/roomvault/internal/domain/model"
)

const (
	msgRoomNotFound       = "room not found"
	msgStorageUnavailable = "storage unavailable, retry"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// HistoryEntryResponse is the JSON representation of one history message.
type HistoryEntryResponse struct {
	Sender      string `json:"sender"`
	CreatedAt   string `json:"created_at"`
	Text        string `json:"text"`
	Unavailable bool   `json:"unavailable,omitempty"`
}

// RoomResponse is the JSON representation of a room as seen by a member.
type RoomResponse struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	CreatedBy string           `json:"created_by"`
	CreatedAt string           `json:"created_at"`
	IsAdmin   bool             `json:"is_admin"`
	Members   []MemberResponse `json:"members"`
}

// MemberResponse is the JSON representation of a room member.
type MemberResponse struct {
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
	AddedAt  string `json:"added_at"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status  string `json:"status"`
	Storage string `json:"storage"`
	Time    string `json:"time"`
}

func toHistoryEntryResponse(e model.HistoryEntry) HistoryEntryResponse {
	return HistoryEntryResponse{
		Sender:      e.Sender,
		CreatedAt:   e.CreatedAt.UTC().Format(time.RFC3339),
		Text:        e.Text,
		Unavailable: e.Unavailable,
	}
}

func toRoomResponse(v model.RoomView) RoomResponse {
	members := make([]MemberResponse, 0, len(v.Members))
	for _, m := range v.Members {
		members = append(members, MemberResponse{
			Username: m.Username,
			IsAdmin:  m.IsAdmin,
			AddedAt:  m.AddedAt.UTC().Format(time.RFC3339),
		})
	}
	return RoomResponse{
		ID:        v.Room.ID,
		Name:      v.Room.Name,
		CreatedBy: v.Room.CreatedBy,
		CreatedAt: v.Room.CreatedAt.UTC().Format(time.RFC3339),
		IsAdmin:   v.IsAdmin,
		Members:   members,
	}
}

func toHealthResponse(r application.HealthReport) HealthResponse {
	return HealthResponse{
		Status:  r.Status,
		Storage: r.Storage,
		Time:    r.Time.UTC().Format(time.RFC3339),
	}
}
