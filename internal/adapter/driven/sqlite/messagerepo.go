package sqlite

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ericfisherdev/roomvault/internal/domain/model"
	"github.com/ericfisherdev/roomvault/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.MessageStore = (*MessageRepo)(nil)

// MessageRepo is the SQLite implementation of the MessageStore port interface.
// The AUTOINCREMENT id is the insertion sequence, so pages are ordered by id
// alone and equal timestamps never reorder.
type MessageRepo struct {
	db *DB
}

// NewMessageRepo creates a new MessageRepo backed by the given DB.
func NewMessageRepo(db *DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// Append inserts an encrypted message and returns its id.
func (r *MessageRepo) Append(ctx context.Context, roomID, sender string, createdAt time.Time, ciphertext []byte) (int64, error) {
	const query = `INSERT INTO messages (room_id, sender, created_at, ciphertext) VALUES (?, ?, ?, ?)`

	result, err := r.db.Writer.ExecContext(ctx, query, roomID, sender, formatTime(createdAt), ciphertext)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint") {
			return 0, fmt.Errorf("append message to %q: %w", roomID, model.ErrRoomNotFound)
		}
		return 0, fmt.Errorf("append message to %q: %w: %w", roomID, model.ErrStorageUnavailable, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w: %w", model.ErrStorageUnavailable, err)
	}
	return id, nil
}

// FetchPage returns page pageIndex of roomID's messages, newest first.
func (r *MessageRepo) FetchPage(ctx context.Context, roomID string, pageIndex, pageSize int) ([]model.MessageRecord, error) {
	if pageSize <= 0 {
		return nil, fmt.Errorf("page size %d: %w", pageSize, model.ErrInvalidPageSize)
	}
	if pageIndex < 0 {
		return nil, fmt.Errorf("page index %d: %w", pageIndex, model.ErrInvalidPageIndex)
	}

	// An offset that does not fit in an int is past the end of any room.
	if pageIndex > math.MaxInt/pageSize {
		return []model.MessageRecord{}, nil
	}

	const query = `
		SELECT id, room_id, sender, created_at, ciphertext
		FROM messages
		WHERE room_id = ?
		ORDER BY id DESC
		LIMIT ? OFFSET ?
	`

	rows, err := r.db.Reader.QueryContext(ctx, query, roomID, pageSize, pageIndex*pageSize)
	if err != nil {
		return nil, fmt.Errorf("fetch page %d of %q: %w: %w", pageIndex, roomID, model.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	records := []model.MessageRecord{}
	for rows.Next() {
		var rec model.MessageRecord
		var createdAt string
		if err := rows.Scan(&rec.ID, &rec.RoomID, &rec.Sender, &createdAt, &rec.Ciphertext); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}

		rec.CreatedAt, err = parseTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse created_at for message %d: %w", rec.ID, err)
		}

		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w: %w", model.ErrStorageUnavailable, err)
	}

	return records, nil
}
