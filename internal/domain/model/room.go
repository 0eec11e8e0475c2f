package model

import "time"

// Room is a chat room as seen by the encryption core. Name and membership are
// owned by the room directory; the core only reads the secret.
type Room struct {
	ID        string
	Name      string
	CreatedBy string
	Secret    RoomSecret
	CreatedAt time.Time
}

// RoomSecret is the password-derived source material for a room key.
// Blob is the room password, standard base64 encoded at creation time.
// Salt is the per-room KDF salt; legacy rooms have none and fall back to the
// application salt.
type RoomSecret struct {
	Blob string
	Salt []byte
}

// Membership relates a user to a room.
type Membership struct {
	RoomID   string
	Username string
	IsAdmin  bool
	AddedAt  time.Time
}

// RoomView is what a member sees of a room: its details, its members and
// whether the viewer administers it. Room.Secret is always empty.
type RoomView struct {
	Room    Room
	Members []Membership
	IsAdmin bool
}
