// Package querycache is the client-side read-through cache shared by the
// pollers. Entries are keyed by query name and carry the sequence number of
// the response that produced them, so a response that completes late can
// never overwrite a newer one.
package querycache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

// Query names used by the conversation view.
const (
	KeyMessages = "chat-messages"
	KeyTyping   = "typing-indicators"
)

// Entry is a snapshot of one cached query.
type Entry struct {
	Value     any
	Seq       uint64
	UpdatedAt time.Time
}

// Cache holds the latest applied response per query.
type Cache struct {
	seq atomic.Uint64

	mu      sync.RWMutex
	clock   clockwork.Clock
	entries map[string]*Entry
	floor   uint64
	epoch   uint64
}

// New creates an empty cache using the real clock.
func New() *Cache {
	return NewWithClock(clockwork.NewRealClock())
}

// NewWithClock creates an empty cache stamping entries with clock.
func NewWithClock(clock clockwork.Clock) *Cache {
	return &Cache{
		clock:   clock,
		entries: make(map[string]*Entry),
	}
}

// NextSeq issues the next sequence number. Sequence numbers are shared by
// every writer of the cache and survive Clear, so a poller restarted within
// the same process never issues a number lower than one already applied.
func (c *Cache) NextSeq() uint64 {
	return c.seq.Add(1)
}

// Apply stores value under key if seq is newer than the entry's sequence.
// It reports whether the value was written. A response issued earlier that
// completes after a newer one has been applied is discarded, as is any
// response issued before the last Clear.
func (c *Cache) Apply(key string, seq uint64, value any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if seq <= c.floor {
		return false
	}
	if e, ok := c.entries[key]; ok && seq <= e.Seq {
		return false
	}
	c.entries[key] = &Entry{Value: value, Seq: seq, UpdatedAt: c.clock.Now()}
	return true
}

// Update rewrites the entry for key through fn and raises its sequence floor
// to seq. fn receives nil when the key is absent. Update is refused when the
// entry already carries a sequence newer than seq or seq predates the last
// Clear.
func (c *Cache) Update(key string, seq uint64, fn func(old any) any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.update(key, seq, fn)
}

// UpdateIn is Update restricted to the epoch returned by Epoch. It is refused
// once the cache has been cleared since that epoch was read.
func (c *Cache) UpdateIn(epoch uint64, key string, seq uint64, fn func(old any) any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.epoch {
		return false
	}
	return c.update(key, seq, fn)
}

func (c *Cache) update(key string, seq uint64, fn func(old any) any) bool {
	if seq <= c.floor {
		return false
	}
	var old any
	if e, ok := c.entries[key]; ok {
		if seq < e.Seq {
			return false
		}
		old = e.Value
	}
	c.entries[key] = &Entry{Value: fn(old), Seq: seq, UpdatedAt: c.clock.Now()}
	return true
}

// Get returns a copy of the entry for key.
func (c *Cache) Get(key string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Len reports the number of cached queries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Epoch identifies the cache generation. It changes on every Clear.
func (c *Cache) Epoch() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.epoch
}

// Clear drops every entry and rejects all sequence numbers issued so far.
// Called when the session ends.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*Entry)
	c.floor = c.seq.Load()
	c.epoch++
}

// Lookup returns the cached value for key as a T. It reports false when the
// key is absent or holds a value of another type.
func Lookup[T any](c *Cache, key string) (T, bool) {
	var zero T
	e, ok := c.Get(key)
	if !ok {
		return zero, false
	}
	v, ok := e.Value.(T)
	if !ok {
		return zero, false
	}
	return v, true
}
