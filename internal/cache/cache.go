package cache

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"VoiceOrder/internal/nlu"
)

// entry is a cached interpreter reply
type entry struct {
	reply     nlu.Reply
	timestamp time.Time
}

// Cache holds interpreter replies keyed by conversation state, so a
// repeated utterance against an unchanged order skips the model call.
// Entries expire after ttl; an expired entry is dropped on read.
type Cache struct {
	entries sync.Map
	ttl     time.Duration

	// Now is the clock used for expiry. Tests override it.
	Now func() time.Time
}

// New creates a reply cache with the given entry lifetime
func New(ttl time.Duration) *Cache {
	return &Cache{ttl: ttl, Now: time.Now}
}

// Key hashes the given parts into a cache key
func Key(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Get returns a cached reply if present and fresh
func (c *Cache) Get(key string) (nlu.Reply, bool) {
	val, ok := c.entries.Load(key)
	if !ok {
		return nlu.Reply{}, false
	}
	e := val.(entry)
	if c.ttl > 0 && c.Now().Sub(e.timestamp) > c.ttl {
		c.entries.Delete(key)
		return nlu.Reply{}, false
	}
	return e.reply, true
}

// Put stores a reply under key
func (c *Cache) Put(key string, reply nlu.Reply) {
	c.entries.Store(key, entry{reply: reply, timestamp: c.Now()})
}
