package model

import "time"

// UnavailablePlaceholder replaces the text of a history entry whose ciphertext
// could not be decrypted with the current room key.
const UnavailablePlaceholder = "message unavailable"

// MessageRecord is a persisted, encrypted message. ID is the store-assigned
// insertion sequence and is the only ordering key within a room.
type MessageRecord struct {
	ID         int64
	RoomID     string
	Sender     string
	CreatedAt  time.Time
	Ciphertext []byte // nonce || ciphertext || tag
}

// HistoryEntry is a decrypted message ready for display.
type HistoryEntry struct {
	ID          int64
	Sender      string
	CreatedAt   time.Time
	Text        string
	Unavailable bool
}
