package discovery

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"lanshare/models"
)

// Entry is a registered peer and the time of its most recent announce.
type Entry struct {
	Peer     models.Peer
	LastSeen time.Time
}

// Registry maps peer id to Entry. Every access goes through one mutex.
type Registry struct {
	mu      sync.Mutex
	entries map[uuid.UUID]Entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[uuid.UUID]Entry)}
}

// Observe records an announce from peer at now. It reports true when the id
// was not registered before. A known id only has LastSeen refreshed; its
// address is kept as first observed.
func (r *Registry) Observe(peer models.Peer, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := peer.Info.ID
	if entry, ok := r.entries[id]; ok {
		if now.After(entry.LastSeen) {
			entry.LastSeen = now
			r.entries[id] = entry
		}
		return false
	}

	r.entries[id] = Entry{Peer: peer, LastSeen: now}
	return true
}

// Expire removes every entry older than timeout at now and returns the removed ids.
func (r *Registry) Expire(now time.Time, timeout time.Duration) []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()

	var evicted []uuid.UUID
	for id, entry := range r.entries {
		if now.Sub(entry.LastSeen) > timeout {
			delete(r.entries, id)
			evicted = append(evicted, id)
		}
	}

	sort.Slice(evicted, func(i, j int) bool {
		return evicted[i].String() < evicted[j].String()
	})
	return evicted
}

// Get returns the entry for id.
func (r *Registry) Get(id uuid.UUID) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[id]
	return entry, ok
}

// Len returns the number of registered peers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Entries returns a snapshot of all entries ordered by alias, then id.
func (r *Registry) Entries() []Entry {
	r.mu.Lock()
	out := make([]Entry, 0, len(r.entries))
	for _, entry := range r.entries {
		out = append(out, entry)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Peer.Info, out[j].Peer.Info
		if a.Alias == b.Alias {
			return a.ID.String() < b.ID.String()
		}
		return a.Alias < b.Alias
	})
	return out
}

// Peers returns the registered peers in the same order as Entries.
func (r *Registry) Peers() []models.Peer {
	entries := r.Entries()
	out := make([]models.Peer, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entry.Peer)
	}
	return out
}
