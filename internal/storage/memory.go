package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/ryanbastic/go-geodrop/internal/object"
)

// MemoryStore is an in-process ObjectStore. Every method holds one mutex,
// which makes UpdateIf atomic.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[uuid.UUID]*object.WorldObject
	seq     map[uuid.UUID]int64
	nextSeq int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[uuid.UUID]*object.WorldObject),
		seq:     make(map[uuid.UUID]int64),
	}
}

func (s *MemoryStore) Insert(ctx context.Context, o *object.WorldObject, capacity *Capacity) (*object.WorldObject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.objects[o.ID]; exists {
		return nil, ErrDuplicate
	}
	if capacity != nil && s.countHeldLocked(capacity.HolderID) >= capacity.Max {
		return nil, ErrAtCapacity
	}

	stored := o.Clone()
	stored.Version = 1
	s.objects[stored.ID] = stored
	s.nextSeq++
	s.seq[stored.ID] = s.nextSeq
	return stored.Clone(), nil
}

func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*object.WorldObject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[id]
	if !ok {
		return nil, ErrNotFound
	}
	return o.Clone(), nil
}

func (s *MemoryStore) List(ctx context.Context) ([]*object.WorldObject, error) {
	return s.filter(func(*object.WorldObject) bool { return true }), nil
}

func (s *MemoryStore) ListByStatus(ctx context.Context, status object.Status) ([]*object.WorldObject, error) {
	return s.filter(func(o *object.WorldObject) bool { return o.Status == status }), nil
}

func (s *MemoryStore) ListHeldBy(ctx context.Context, holderID string) ([]*object.WorldObject, error) {
	return s.filter(func(o *object.WorldObject) bool {
		return o.Status == object.StatusHeld && o.HolderID == holderID
	}), nil
}

func (s *MemoryStore) CountHeld(ctx context.Context, holderID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countHeldLocked(holderID), nil
}

func (s *MemoryStore) UpdateIf(ctx context.Context, o *object.WorldObject, cond Condition) (*object.WorldObject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.objects[o.ID]
	if !ok {
		return nil, ErrNotFound
	}
	if cur.Status != cond.Status || cur.Version != cond.Version {
		return nil, ErrConflict
	}
	if cond.Capacity != nil && s.countHeldLocked(cond.Capacity.HolderID) >= cond.Capacity.Max {
		return nil, ErrAtCapacity
	}

	stored := o.Clone()
	stored.Version = cond.Version + 1
	s.objects[stored.ID] = stored
	return stored.Clone(), nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryStore) countHeldLocked(holderID string) int {
	n := 0
	for _, o := range s.objects {
		if o.Status == object.StatusHeld && o.HolderID == holderID {
			n++
		}
	}
	return n
}

func (s *MemoryStore) filter(keep func(*object.WorldObject) bool) []*object.WorldObject {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*object.WorldObject
	for _, o := range s.objects {
		if keep(o) {
			out = append(out, o.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return s.seq[out[i].ID] < s.seq[out[j].ID] })
	return out
}
