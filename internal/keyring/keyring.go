// Package keyring holds derived master keys for the lifetime of an owner
// session. Keys live only in process memory: they are wiped on logout, on
// session expiry, and on teardown. Nothing here ever touches durable storage.
package keyring

import (
	"time"

	"github.com/dmitrijs2005/keywarden/internal/common"
	cache "github.com/patrickmn/go-cache"
)

// Keyring is a TTL-bounded, in-memory store of per-session master keys.
// Every removal path (explicit clear, expiry, replacement) goes through the
// eviction hook, which zeroes the key bytes.
type Keyring struct {
	sessions *cache.Cache
}

// New creates a Keyring whose entries expire after sessionTTL.
func New(sessionTTL time.Duration) *Keyring {
	c := cache.New(sessionTTL, time.Minute)
	c.OnEvicted(func(_ string, v any) {
		if key, ok := v.([]byte); ok {
			common.WipeByteArray(key)
		}
	})
	return &Keyring{sessions: c}
}

// Put stores a copy of masterKey under sessionID. The caller keeps ownership
// of its own slice and should wipe it when done.
func (k *Keyring) Put(sessionID string, masterKey []byte) {
	cp := make([]byte, len(masterKey))
	copy(cp, masterKey)
	k.sessions.SetDefault(sessionID, cp)
}

// Get returns the master key for sessionID, or false if the session is
// unknown or expired. The returned slice is owned by the keyring; callers
// must not retain or wipe it.
func (k *Keyring) Get(sessionID string) ([]byte, bool) {
	v, ok := k.sessions.Get(sessionID)
	if !ok {
		return nil, false
	}
	key, ok := v.([]byte)
	return key, ok
}

// Clear wipes and removes the session's master key. Called on logout.
func (k *Keyring) Clear(sessionID string) {
	k.sessions.Delete(sessionID)
}

// Close wipes every stored key. Called on process teardown.
func (k *Keyring) Close() {
	for id := range k.sessions.Items() {
		k.sessions.Delete(id)
	}
}
