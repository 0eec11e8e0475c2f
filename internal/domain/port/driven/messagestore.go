package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/roomvault/internal/domain/model"
)

// MessageStore defines the driven port for encrypted message persistence.
// Backend failures are reported wrapped in model.ErrStorageUnavailable and are
// never retried by the implementation.
type MessageStore interface {
	// Append persists a message and returns its insertion sequence.
	Append(ctx context.Context, roomID, sender string, createdAt time.Time, ciphertext []byte) (int64, error)

	// FetchPage returns one page of the room's messages, most recent first.
	// A page past the end yields an empty slice. pageSize <= 0 returns
	// model.ErrInvalidPageSize; pageIndex < 0 returns model.ErrInvalidPageIndex.
	FetchPage(ctx context.Context, roomID string, pageIndex, pageSize int) ([]model.MessageRecord, error)
}
