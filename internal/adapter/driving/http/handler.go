package httphandler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ericfisherdev/roomvault/internal/adapter/driving/auth"
	"github.com/ericfisherdev/roomvault/internal/application"
	"github.com/ericfisherdev/roomvault/internal/domain/model"
)

// RoomQueries is the slice of the room service the HTTP API needs.
type RoomQueries interface {
	FetchHistory(ctx context.Context, roomID string, pageIndex int) ([]model.HistoryEntry, error)
	CheckMember(ctx context.Context, roomID, username string) error
	ViewRoom(ctx context.Context, roomID, username string) (model.RoomView, error)
}

// HealthChecker reports dependency health.
type HealthChecker interface {
	Check(ctx context.Context) application.HealthReport
}

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	rooms  RoomQueries
	health HealthChecker
	logger *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(rooms RoomQueries, health HealthChecker, logger *slog.Logger) *Handler {
	return &Handler{
		rooms:  rooms,
		health: health,
		logger: logger,
	}
}

// Routes holds the handlers mounted next to the REST API. Nil entries are
// not mounted.
type Routes struct {
	WebSocket http.Handler
	Metrics   http.Handler
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging and recovery middleware.
func NewServeMux(h *Handler, verifier *auth.Verifier, extra Routes, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /api/v1/rooms/{roomID}", verifier.Identify(http.HandlerFunc(h.Room)))
	mux.Handle("GET /api/v1/rooms/{roomID}/messages", verifier.Identify(http.HandlerFunc(h.History)))
	mux.HandleFunc("GET /api/v1/health", h.Health)
	if extra.Metrics != nil {
		mux.Handle("GET /metrics", extra.Metrics)
	}
	if extra.WebSocket != nil {
		mux.Handle("GET /ws", extra.WebSocket)
	}

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// History returns one page of a room's decrypted history, newest first.
// Callers that are unauthenticated or not members get the same 404 as for a
// room that does not exist.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("roomID")

	username, ok := auth.UsernameFrom(r.Context())
	if !ok {
		writeError(w, http.StatusNotFound, msgRoomNotFound)
		return
	}

	page := 0
	if raw := r.URL.Query().Get("page"); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil || p < 0 {
			writeError(w, http.StatusBadRequest, "invalid page")
			return
		}
		page = p
	}

	if err := h.rooms.CheckMember(r.Context(), roomID, username); err != nil {
		h.writeServiceError(w, err, "membership check failed", roomID)
		return
	}

	entries, err := h.rooms.FetchHistory(r.Context(), roomID, page)
	if err != nil {
		h.writeServiceError(w, err, "failed to fetch history", roomID)
		return
	}

	resp := make([]HistoryEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, toHistoryEntryResponse(e))
	}

	writeJSON(w, http.StatusOK, resp)
}

// Room returns the room's details, its members and whether the caller is an
// admin. Non-members get 404, as for History.
func (h *Handler) Room(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("roomID")

	username, ok := auth.UsernameFrom(r.Context())
	if !ok {
		writeError(w, http.StatusNotFound, msgRoomNotFound)
		return
	}

	view, err := h.rooms.ViewRoom(r.Context(), roomID, username)
	if err != nil {
		h.writeServiceError(w, err, "failed to view room", roomID)
		return
	}

	writeJSON(w, http.StatusOK, toRoomResponse(view))
}

// Health reports whether the service and its storage are reachable.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	report := h.health.Check(r.Context())

	status := http.StatusOK
	if !report.Healthy() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, toHealthResponse(report))
}

// writeServiceError maps domain errors to status codes.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error, msg, roomID string) {
	switch {
	case errors.Is(err, model.ErrRoomNotFound):
		writeError(w, http.StatusNotFound, msgRoomNotFound)
	case errors.Is(err, model.ErrInvalidPageIndex), errors.Is(err, model.ErrInvalidPageSize):
		writeError(w, http.StatusBadRequest, "invalid page")
	case errors.Is(err, model.ErrStorageUnavailable):
		h.logger.Warn(msg, "room_id", roomID, "error", err)
		writeError(w, http.StatusServiceUnavailable, msgStorageUnavailable)
	default:
		h.logger.Error(msg, "room_id", roomID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
