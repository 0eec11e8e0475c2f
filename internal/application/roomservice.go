// Package application contains use-case orchestration services.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ericfisherdev/roomvault/internal/domain/model"
	"github.com/ericfisherdev/roomvault/internal/domain/port/driven"
	"github.com/ericfisherdev/roomvault/internal/roomcrypto"
	"github.com/ericfisherdev/roomvault/internal/telemetry"
)

const (
	defaultPageSize     = 20
	defaultStoreTimeout = 5 * time.Second
	notifyTimeout       = 5 * time.Second
)

var tracer = otel.Tracer("github.com/ericfisherdev/roomvault/internal/application")

// KeyProvider resolves the symmetric key for a room. roomcrypto.KeyCache and
// roomcrypto.Direct both satisfy it.
type KeyProvider interface {
	Key(roomID string, secret model.RoomSecret) ([]byte, error)
	Invalidate(roomID string)
}

// RoomServiceConfig holds the tunables of a RoomService. Zero values fall
// back to the defaults.
type RoomServiceConfig struct {
	PageSize     int
	StoreTimeout time.Duration
}

// RoomService encrypts messages on the way into the store and decrypts them
// on the way out, using the room's derived key.
type RoomService struct {
	directory    driven.RoomDirectory
	store        driven.MessageStore
	keys         KeyProvider
	notifier     driven.MessageNotifier
	metrics      *telemetry.Metrics
	pageSize     int
	storeTimeout time.Duration
}

// NewRoomService creates a RoomService. notifier and metrics may be nil.
func NewRoomService(
	directory driven.RoomDirectory,
	store driven.MessageStore,
	keys KeyProvider,
	notifier driven.MessageNotifier,
	metrics *telemetry.Metrics,
	cfg RoomServiceConfig,
) *RoomService {
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = defaultStoreTimeout
	}
	return &RoomService{
		directory:    directory,
		store:        store,
		keys:         keys,
		notifier:     notifier,
		metrics:      metrics,
		pageSize:     cfg.PageSize,
		storeTimeout: cfg.StoreTimeout,
	}
}

// PageSize returns the number of messages per history page.
func (s *RoomService) PageSize() int {
	return s.pageSize
}

// SendMessage encrypts plaintext with the room key and appends it to the
// store. Nothing is persisted when any step fails.
func (s *RoomService) SendMessage(ctx context.Context, roomID, username, plaintext string, createdAt time.Time) (model.MessageRecord, error) {
	ctx, span := tracer.Start(ctx, "RoomService.SendMessage", trace.WithAttributes(
		attribute.String("room.id", roomID),
	))
	defer span.End()

	key, err := s.roomKey(ctx, roomID)
	if err != nil {
		return model.MessageRecord{}, failSpan(span, err)
	}

	ciphertext, err := roomcrypto.Encrypt(key, plaintext)
	if err != nil {
		return model.MessageRecord{}, failSpan(span, fmt.Errorf("encrypt message: %w", err))
	}

	rec := model.MessageRecord{
		RoomID:     roomID,
		Sender:     username,
		CreatedAt:  createdAt.UTC(),
		Ciphertext: ciphertext,
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	rec.ID, err = s.store.Append(storeCtx, roomID, username, rec.CreatedAt, ciphertext)
	if err != nil {
		return model.MessageRecord{}, failSpan(span, fmt.Errorf("append message: %w", err))
	}
	span.SetAttributes(attribute.Int64("message.id", rec.ID))
	s.metrics.MessageStored()

	if s.notifier != nil {
		go s.notify(context.WithoutCancel(ctx), rec)
	}

	return rec, nil
}

// FetchHistory returns one page of the room's history, newest first. A
// record that cannot be decrypted is returned as a placeholder entry.
func (s *RoomService) FetchHistory(ctx context.Context, roomID string, pageIndex int) ([]model.HistoryEntry, error) {
	ctx, span := tracer.Start(ctx, "RoomService.FetchHistory", trace.WithAttributes(
		attribute.String("room.id", roomID),
		attribute.Int("page.index", pageIndex),
	))
	defer span.End()

	key, err := s.roomKey(ctx, roomID)
	if err != nil {
		return nil, failSpan(span, err)
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	records, err := s.store.FetchPage(storeCtx, roomID, pageIndex, s.pageSize)
	if err != nil {
		return nil, failSpan(span, fmt.Errorf("fetch page: %w", err))
	}

	entries := make([]model.HistoryEntry, 0, len(records))
	for _, rec := range records {
		entry := model.HistoryEntry{
			ID:        rec.ID,
			Sender:    rec.Sender,
			CreatedAt: rec.CreatedAt,
		}
		text, err := roomcrypto.Decrypt(key, rec.Ciphertext)
		if err != nil {
			slog.Warn("history record unavailable",
				"room_id", roomID, "message_id", rec.ID, "error", err)
			s.metrics.DecryptFailed()
			entry.Text = model.UnavailablePlaceholder
			entry.Unavailable = true
		} else {
			entry.Text = text
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// CheckMember returns model.ErrRoomNotFound unless username is a member of
// roomID. Missing rooms and non-members are indistinguishable to the caller.
func (s *RoomService) CheckMember(ctx context.Context, roomID, username string) error {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	ok, err := s.directory.IsRoomMember(ctx, roomID, username)
	if err != nil {
		return fmt.Errorf("check membership: %w", err)
	}
	if !ok {
		return model.ErrRoomNotFound
	}
	return nil
}

// CheckAdmin is CheckMember for the admin predicate.
func (s *RoomService) CheckAdmin(ctx context.Context, roomID, username string) error {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	ok, err := s.directory.IsRoomAdmin(ctx, roomID, username)
	if err != nil {
		return fmt.Errorf("check admin: %w", err)
	}
	if !ok {
		return model.ErrRoomNotFound
	}
	return nil
}

// ViewRoom describes roomID to username: the room without its secret, its
// members and whether username is an admin. Non-members get
// model.ErrRoomNotFound, the same as for a missing room.
func (s *RoomService) ViewRoom(ctx context.Context, roomID, username string) (model.RoomView, error) {
	ctx, span := tracer.Start(ctx, "RoomService.ViewRoom", trace.WithAttributes(
		attribute.String("room.id", roomID),
	))
	defer span.End()

	if err := s.CheckMember(ctx, roomID, username); err != nil {
		return model.RoomView{}, failSpan(span, err)
	}

	isAdmin := true
	if err := s.CheckAdmin(ctx, roomID, username); err != nil {
		if !errors.Is(err, model.ErrRoomNotFound) {
			return model.RoomView{}, failSpan(span, err)
		}
		isAdmin = false
	}

	readCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	room, err := s.directory.GetRoom(readCtx, roomID)
	if err != nil {
		return model.RoomView{}, failSpan(span, fmt.Errorf("get room: %w", err))
	}
	if room == nil {
		return model.RoomView{}, failSpan(span, model.ErrRoomNotFound)
	}
	room.Secret = model.RoomSecret{}

	members, err := s.directory.ListMembers(readCtx, roomID)
	if err != nil {
		return model.RoomView{}, failSpan(span, fmt.Errorf("list members: %w", err))
	}

	return model.RoomView{Room: *room, Members: members, IsAdmin: isAdmin}, nil
}

// InvalidateKey drops the cached key for roomID. Nothing in this process
// rotates secrets; it is the hook for a rotation workflow to call after
// changing a room's secret. Stale keys are never served either way, because
// the cache is keyed by the secret it was derived from.
func (s *RoomService) InvalidateKey(roomID string) {
	s.keys.Invalidate(roomID)
}

// roomKey reads the room's current secret and resolves its key. The secret is
// looked up on every call so that a deleted room stops resolving.
func (s *RoomService) roomKey(ctx context.Context, roomID string) ([]byte, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	secret, err := s.directory.GetRoomSecret(lookupCtx, roomID)
	if err != nil {
		return nil, fmt.Errorf("get room secret: %w", err)
	}

	key, err := s.keys.Key(roomID, secret)
	if err != nil {
		return nil, fmt.Errorf("derive room key: %w", err)
	}
	return key, nil
}

func (s *RoomService) notify(ctx context.Context, rec model.MessageRecord) {
	ctx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()

	err := s.notifier.MessageStored(ctx, model.MessageStored{
		MessageID: rec.ID,
		RoomID:    rec.RoomID,
		Sender:    rec.Sender,
		CreatedAt: rec.CreatedAt,
	})
	if err != nil {
		slog.Warn("message notification failed",
			"room_id", rec.RoomID, "message_id", rec.ID, "error", err)
	}
}

func failSpan(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// failureReason maps a send error to a low-cardinality metric label.
func failureReason(err error) string {
	switch {
	case errors.Is(err, model.ErrRoomNotFound):
		return "room_not_found"
	case errors.Is(err, model.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, model.ErrStorageUnavailable):
		return "storage"
	case errors.Is(err, model.ErrInvalidSecret), errors.Is(err, model.ErrInvalidKey):
		return "key"
	default:
		return "internal"
	}
}
