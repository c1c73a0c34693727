package network

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"lanshare/models"
)

// DefaultOfferTTL is how long an offer stays downloadable.
const DefaultOfferTTL = time.Hour

// OfferEntry maps an offered file id to the bytes that back it on this device.
type OfferEntry struct {
	Metadata models.Metadata
	From     models.Identity
	Path     string
	Expires  time.Time
}

// OfferTable is the process-wide id to file mapping served by GET /download/{id}.
// Entries are not consumed by a download; they expire after the table TTL.
type OfferTable struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[uuid.UUID]OfferEntry
}

// NewOfferTable creates an empty table. A ttl <= 0 keeps entries until removed.
func NewOfferTable(ttl time.Duration) *OfferTable {
	return &OfferTable{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[uuid.UUID]OfferEntry),
	}
}

// Put records entry, replacing any entry with the same id.
func (t *OfferTable) Put(entry OfferEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.ttl > 0 {
		entry.Expires = t.now().Add(t.ttl)
	} else {
		entry.Expires = time.Time{}
	}
	t.entries[entry.Metadata.ID] = entry
}

// PutIfAbsent records every entry only when none of their ids holds a live
// entry. On a clash nothing is recorded and the clashing id is returned.
func (t *OfferTable) PutIfAbsent(entries ...OfferEntry) (uuid.UUID, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, entry := range entries {
		if existing, ok := t.entries[entry.Metadata.ID]; ok && !t.expiredLocked(existing) {
			return entry.Metadata.ID, false
		}
	}

	var expires time.Time
	if t.ttl > 0 {
		expires = t.now().Add(t.ttl)
	}
	for _, entry := range entries {
		entry.Expires = expires
		t.entries[entry.Metadata.ID] = entry
	}
	return uuid.Nil, true
}

// Lookup returns the live entry for id. It never mutates the table.
func (t *OfferTable) Lookup(id uuid.UUID) (OfferEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[id]
	if !ok || t.expiredLocked(entry) {
		return OfferEntry{}, false
	}
	return entry, true
}

// Remove deletes id and reports whether it was present.
func (t *OfferTable) Remove(id uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.entries[id]; !ok {
		return false
	}
	delete(t.entries, id)
	return true
}

// Sweep drops expired entries and returns their ids.
func (t *OfferTable) Sweep() []uuid.UUID {
	t.mu.Lock()
	defer t.mu.Unlock()

	var expired []uuid.UUID
	for id, entry := range t.entries {
		if t.expiredLocked(entry) {
			delete(t.entries, id)
			expired = append(expired, id)
		}
	}
	return expired
}

// Len returns the number of stored entries, expired or not.
func (t *OfferTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func (t *OfferTable) expiredLocked(entry OfferEntry) bool {
	return !entry.Expires.IsZero() && !t.now().Before(entry.Expires)
}
