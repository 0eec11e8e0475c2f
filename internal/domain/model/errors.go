package model

import "errors"

// Sentinel errors shared by the encryption core, its ports and its adapters.
// Callers match them with errors.Is.
var (
	// ErrInvalidSecret indicates an empty or undecodable room secret.
	ErrInvalidSecret = errors.New("invalid room secret")

	// ErrInvalidKey indicates a room key of the wrong length.
	ErrInvalidKey = errors.New("invalid room key")

	// ErrDecryptionFailed indicates a malformed ciphertext blob or a key mismatch.
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrRoomNotFound indicates the room does not exist or the caller is not a member.
	ErrRoomNotFound = errors.New("room not found")

	// ErrStorageUnavailable indicates the storage backend failed; the caller may retry.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrInvalidPageSize indicates a non-positive page size.
	ErrInvalidPageSize = errors.New("invalid page size")

	// ErrInvalidPageIndex indicates a negative page index.
	ErrInvalidPageIndex = errors.New("invalid page index")

	// ErrRateLimited indicates the sender exceeded the configured send rate.
	ErrRateLimited = errors.New("send rate limit exceeded")
)
