package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ericfisherdev/roomvault/internal/domain/model"
	"github.com/ericfisherdev/roomvault/internal/domain/port/driven"
)

// Compile-time interface satisfaction checks.
var (
	_ driven.RoomDirectory = (*RoomRepo)(nil)
	_ driven.RoomRegistrar = (*RoomRepo)(nil)
)

// RoomRepo is the SQLite implementation of the RoomDirectory and RoomRegistrar ports.
type RoomRepo struct {
	db *DB
}

// NewRoomRepo creates a new RoomRepo backed by the given DB.
func NewRoomRepo(db *DB) *RoomRepo {
	return &RoomRepo{db: db}
}

// CreateRoom inserts the room, its creator as admin, and the remaining members
// in one transaction.
func (r *RoomRepo) CreateRoom(ctx context.Context, room model.Room, members []string) error {
	createdAt := room.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create room: %w: %w", model.ErrStorageUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()

	const insertRoom = `INSERT INTO rooms (id, name, created_by, secret, kdf_salt, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, insertRoom,
		room.ID, room.Name, room.CreatedBy, room.Secret.Blob, room.Secret.Salt, formatTime(createdAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return fmt.Errorf("create room %q: %w", room.Name, driven.ErrRoomAlreadyExists)
		}
		return fmt.Errorf("create room %q: %w: %w", room.Name, model.ErrStorageUnavailable, err)
	}

	const insertMember = `
		INSERT INTO room_members (room_id, username, is_admin, added_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(room_id, username) DO NOTHING
	`
	if _, err := tx.ExecContext(ctx, insertMember, room.ID, room.CreatedBy, 1, formatTime(createdAt)); err != nil {
		return fmt.Errorf("add admin %q: %w: %w", room.CreatedBy, model.ErrStorageUnavailable, err)
	}
	for _, username := range members {
		if username == "" || username == room.CreatedBy {
			continue
		}
		if _, err := tx.ExecContext(ctx, insertMember, room.ID, username, 0, formatTime(createdAt)); err != nil {
			return fmt.Errorf("add member %q: %w: %w", username, model.ErrStorageUnavailable, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create room: %w: %w", model.ErrStorageUnavailable, err)
	}
	return nil
}

// GetRoomSecret returns the stored secret for roomID.
func (r *RoomRepo) GetRoomSecret(ctx context.Context, roomID string) (model.RoomSecret, error) {
	const query = `SELECT secret, kdf_salt FROM rooms WHERE id = ?`

	var secret model.RoomSecret
	err := r.db.Reader.QueryRowContext(ctx, query, roomID).Scan(&secret.Blob, &secret.Salt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.RoomSecret{}, fmt.Errorf("room %q: %w", roomID, model.ErrRoomNotFound)
	}
	if err != nil {
		return model.RoomSecret{}, fmt.Errorf("get room secret %q: %w: %w", roomID, model.ErrStorageUnavailable, err)
	}
	return secret, nil
}

// GetRoom returns the room with roomID, or nil if it does not exist.
func (r *RoomRepo) GetRoom(ctx context.Context, roomID string) (*model.Room, error) {
	const query = `SELECT id, name, created_by, secret, kdf_salt, created_at FROM rooms WHERE id = ?`

	var room model.Room
	var createdAt string
	err := r.db.Reader.QueryRowContext(ctx, query, roomID).Scan(
		&room.ID, &room.Name, &room.CreatedBy, &room.Secret.Blob, &room.Secret.Salt, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get room %q: %w: %w", roomID, model.ErrStorageUnavailable, err)
	}

	room.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at for room %q: %w", roomID, err)
	}
	return &room, nil
}

// IsRoomMember reports whether username is a member of roomID.
func (r *RoomRepo) IsRoomMember(ctx context.Context, roomID, username string) (bool, error) {
	const query = `SELECT COUNT(*) FROM room_members WHERE room_id = ? AND username = ?`
	return r.exists(ctx, query, roomID, username)
}

// IsRoomAdmin reports whether username is an admin of roomID.
func (r *RoomRepo) IsRoomAdmin(ctx context.Context, roomID, username string) (bool, error) {
	const query = `SELECT COUNT(*) FROM room_members WHERE room_id = ? AND username = ? AND is_admin = 1`
	return r.exists(ctx, query, roomID, username)
}

// ListMembers returns the room's members ordered by username.
func (r *RoomRepo) ListMembers(ctx context.Context, roomID string) ([]model.Membership, error) {
	const query = `
		SELECT room_id, username, is_admin, added_at
		FROM room_members
		WHERE room_id = ?
		ORDER BY username
	`

	rows, err := r.db.Reader.QueryContext(ctx, query, roomID)
	if err != nil {
		return nil, fmt.Errorf("list members of %q: %w: %w", roomID, model.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var members []model.Membership
	for rows.Next() {
		var m model.Membership
		var isAdmin int
		var addedAt string
		if err := rows.Scan(&m.RoomID, &m.Username, &isAdmin, &addedAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		m.IsAdmin = isAdmin == 1
		m.AddedAt, err = parseTime(addedAt)
		if err != nil {
			return nil, fmt.Errorf("parse added_at for %q: %w", m.Username, err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}

	return members, nil
}

func (r *RoomRepo) exists(ctx context.Context, query, roomID, username string) (bool, error) {
	var count int
	if err := r.db.Reader.QueryRowContext(ctx, query, roomID, username).Scan(&count); err != nil {
		return false, fmt.Errorf("membership %q/%q: %w: %w", roomID, username, model.ErrStorageUnavailable, err)
	}
	return count > 0, nil
}
