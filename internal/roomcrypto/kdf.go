// Package roomcrypto derives room keys from room secrets and seals message
// bodies for storage.
package roomcrypto

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/argon2"

	"github.com/ericfisherdev/roomvault/internal/domain/model"
)

// KeySize is the length of a room key in bytes (AES-256).
const KeySize = 32

// SaltSize is the length of a freshly generated per-room salt.
const SaltSize = 16

// legacySalt is used for rooms created without a stored salt. Every such room
// shares it, so two rooms with the same password share a key.
var legacySalt = []byte("roomvault/v1/room-key")

// KDFParams are the Argon2id work factors. They are fixed per deployment:
// changing them changes every room key and makes stored history undecryptable.
type KDFParams struct {
	Time      uint32
	MemoryKiB uint32
	Threads   uint8
}

// DefaultKDFParams returns the documented work factor: one pass over 64 MiB
// with four lanes.
func DefaultKDFParams() KDFParams {
	return KDFParams{
		Time:      1,
		MemoryKiB: 64 * 1024,
		Threads:   4,
	}
}

// Validate reports whether the parameters are usable by Argon2id.
func (p KDFParams) Validate() error {
	if p.Time == 0 {
		return fmt.Errorf("kdf time must be at least 1")
	}
	if p.Threads == 0 {
		return fmt.Errorf("kdf threads must be at least 1")
	}
	if p.MemoryKiB < 8*uint32(p.Threads) {
		return fmt.Errorf("kdf memory must be at least %d KiB for %d threads", 8*uint32(p.Threads), p.Threads)
	}
	return nil
}

// KeyDeriver turns room secrets into room keys.
type KeyDeriver struct {
	params KDFParams
}

// NewKeyDeriver creates a KeyDeriver with the given work factors.
func NewKeyDeriver(params KDFParams) *KeyDeriver {
	return &KeyDeriver{params: params}
}

// DeriveKey returns the KeySize-byte key for secret. The same secret always
// yields the same key. Returns model.ErrInvalidSecret when the blob is empty or
// is not valid base64.
func (d *KeyDeriver) DeriveKey(secret model.RoomSecret) ([]byte, error) {
	password, err := decodeBlob(secret.Blob)
	if err != nil {
		return nil, err
	}

	salt := secret.Salt
	if len(salt) == 0 {
		salt = legacySalt
	}

	return argon2.IDKey(password, salt, d.params.Time, d.params.MemoryKiB, d.params.Threads, KeySize), nil
}

// NewSecret encodes a room password the way rooms store it and draws a fresh
// random salt for it.
func NewSecret(password string) (model.RoomSecret, error) {
	if password == "" {
		return model.RoomSecret{}, fmt.Errorf("empty password: %w", model.ErrInvalidSecret)
	}

	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return model.RoomSecret{}, fmt.Errorf("rand salt: %w", err)
	}

	return model.RoomSecret{
		Blob: base64.StdEncoding.EncodeToString([]byte(password)),
		Salt: salt,
	}, nil
}

func decodeBlob(blob string) ([]byte, error) {
	if blob == "" {
		return nil, fmt.Errorf("empty secret: %w", model.ErrInvalidSecret)
	}

	password, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, fmt.Errorf("decode secret: %w: %w", model.ErrInvalidSecret, err)
	}
	if len(password) == 0 {
		return nil, fmt.Errorf("empty secret: %w", model.ErrInvalidSecret)
	}

	return password, nil
}
