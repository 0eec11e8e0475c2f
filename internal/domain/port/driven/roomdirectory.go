// Package driven defines secondary port interfaces for external adapters.
package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/roomvault/internal/domain/model"
)

// ErrRoomAlreadyExists indicates the creator already owns a room with that name.
var ErrRoomAlreadyExists = errors.New("room already exists")

// RoomDirectory defines the driven port for the external room directory.
// The core reads secrets and membership predicates from it; room details and
// member lists are only read to describe a room to its members.
type RoomDirectory interface {
	// GetRoomSecret returns the stored secret for the room.
	// Returns model.ErrRoomNotFound if the room does not exist.
	GetRoomSecret(ctx context.Context, roomID string) (model.RoomSecret, error)

	// IsRoomMember reports whether username belongs to the room. A missing
	// room yields (false, nil).
	IsRoomMember(ctx context.Context, roomID, username string) (bool, error)

	// IsRoomAdmin reports whether username administers the room.
	IsRoomAdmin(ctx context.Context, roomID, username string) (bool, error)

	// GetRoom returns the room, or nil if it does not exist.
	GetRoom(ctx context.Context, roomID string) (*model.Room, error)

	// ListMembers returns the room's members ordered by username.
	ListMembers(ctx context.Context, roomID string) ([]model.Membership, error)
}

// RoomRegistrar creates rooms. It is used by operator tooling only; room
// bookkeeping beyond the secret belongs to the external directory.
type RoomRegistrar interface {
	// CreateRoom stores the room and its members. The creator is added as an
	// admin member. Returns ErrRoomAlreadyExists when the creator already has
	// a room with the same name.
	CreateRoom(ctx context.Context, room model.Room, members []string) error
}
