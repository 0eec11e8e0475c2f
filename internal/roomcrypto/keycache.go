package roomcrypto

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/ericfisherdev/roomvault/internal/domain/model"
)

// Deriver derives a room key from a room secret.
type Deriver interface {
	DeriveKey(secret model.RoomSecret) ([]byte, error)
}

type cachedKey struct {
	fingerprint string
	key         []byte
}

// KeyCache memoizes derived room keys per room. An entry is only reused while
// the room's secret is unchanged, so a rotated secret is re-derived even
// without an explicit Invalidate. Concurrent misses for the same room share a
// single derivation.
type KeyCache struct {
	deriver Deriver

	mu    sync.RWMutex
	keys  map[string]cachedKey
	gens  map[string]uint64 // bumped by Invalidate
	group singleflight.Group
}

// NewKeyCache creates an empty cache in front of deriver.
func NewKeyCache(deriver Deriver) *KeyCache {
	return &KeyCache{
		deriver: deriver,
		keys:    make(map[string]cachedKey),
		gens:    make(map[string]uint64),
	}
}

// Key returns the key for roomID derived from secret, deriving it on a miss.
// The returned slice is shared and must not be modified.
func (c *KeyCache) Key(roomID string, secret model.RoomSecret) ([]byte, error) {
	fp := fingerprint(secret)

	c.mu.RLock()
	entry, ok := c.keys[roomID]
	c.mu.RUnlock()
	if ok && entry.fingerprint == fp {
		return entry.key, nil
	}

	v, err, _ := c.group.Do(roomID+":"+fp, func() (any, error) {
		c.mu.RLock()
		gen := c.gens[roomID]
		c.mu.RUnlock()

		key, err := c.deriver.DeriveKey(secret)
		if err != nil {
			return nil, err
		}

		// A derivation that raced with Invalidate is returned but not kept.
		c.mu.Lock()
		if c.gens[roomID] == gen {
			c.keys[roomID] = cachedKey{fingerprint: fp, key: key}
		}
		c.mu.Unlock()
		return key, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Invalidate drops the cached key for roomID. A derivation for roomID that
// is in flight when Invalidate runs does not repopulate the cache.
func (c *KeyCache) Invalidate(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.keys, roomID)
	c.gens[roomID]++
}

// Len returns the number of cached keys.
func (c *KeyCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.keys)
}

func fingerprint(secret model.RoomSecret) string {
	h := sha256.New()
	h.Write([]byte(secret.Blob))
	h.Write([]byte{0})
	h.Write(secret.Salt)
	return hex.EncodeToString(h.Sum(nil))
}

// Direct derives the key on every call. It is the uncached counterpart of
// KeyCache.
type Direct struct {
	deriver Deriver
}

// NewDirect wraps deriver.
func NewDirect(deriver Deriver) Direct {
	return Direct{deriver: deriver}
}

// Key derives the key for secret. roomID is ignored.
func (d Direct) Key(_ string, secret model.RoomSecret) ([]byte, error) {
	return d.deriver.DeriveKey(secret)
}

// Invalidate is a no-op.
func (Direct) Invalidate(string) {}
