package lifecycle

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ryanbastic/go-geodrop/internal/object"
)

type mirrorEntry struct {
	obj     *object.WorldObject
	prev    *object.WorldObject
	pending bool
}

// Mirror is a session-local cache of object snapshots. Local writes are
// recorded as pending until the store answers: Confirm installs the
// authoritative snapshot, Rollback restores the previous one or replaces it
// with refreshed truth. Reads never touch the store.
type Mirror struct {
	mu       sync.RWMutex
	entries  map[uuid.UUID]*mirrorEntry
	loadedAt time.Time
}

func NewMirror() *Mirror {
	return &Mirror{entries: make(map[uuid.UUID]*mirrorEntry)}
}

// Load replaces every settled entry with objects. Pending entries survive
// until they are reconciled.
func (m *Mirror) Load(objects []*object.WorldObject, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[uuid.UUID]bool, len(objects))
	for _, o := range objects {
		seen[o.ID] = true
		if e, ok := m.entries[o.ID]; ok && e.pending {
			continue
		}
		m.entries[o.ID] = &mirrorEntry{obj: o.Clone()}
	}
	for id, e := range m.entries {
		if !seen[id] && !e.pending {
			delete(m.entries, id)
		}
	}
	m.loadedAt = at
}

// LoadedAt reports when Load last ran.
func (m *Mirror) LoadedAt() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loadedAt
}

// Get returns a copy of the cached object and whether it is pending.
func (m *Mirror) Get(id uuid.UUID) (o *object.WorldObject, pending bool, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, false, false
	}
	return e.obj.Clone(), e.pending, true
}

// Snapshot returns copies of all cached objects ordered by creation time.
func (m *Mirror) Snapshot() []*object.WorldObject {
	m.mu.RLock()
	out := make([]*object.WorldObject, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.obj.Clone())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// Apply records o as a pending local write.
func (m *Mirror) Apply(o *object.WorldObject) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[o.ID]
	switch {
	case !ok:
		m.entries[o.ID] = &mirrorEntry{obj: o.Clone(), pending: true}
	case e.pending:
		e.obj = o.Clone()
	default:
		e.prev, e.obj, e.pending = e.obj, o.Clone(), true
	}
}

// Confirm installs the store's snapshot and settles the entry.
func (m *Mirror) Confirm(o *object.WorldObject) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[o.ID] = &mirrorEntry{obj: o.Clone()}
}

// Rollback settles a pending entry. With truth it becomes the refreshed
// snapshot; without it the pre-write snapshot is restored.
func (m *Mirror) Rollback(id uuid.UUID, truth *object.WorldObject) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if truth != nil {
		m.entries[id] = &mirrorEntry{obj: truth.Clone()}
		return
	}
	e, ok := m.entries[id]
	if !ok {
		return
	}
	if e.pending && e.prev == nil {
		delete(m.entries, id)
		return
	}
	if e.pending {
		e.obj, e.prev, e.pending = e.prev, nil, false
	}
}

// Forget drops an entry, pending or not.
func (m *Mirror) Forget(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
}

func (m *Mirror) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
