package lifecycle

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ryanbastic/go-geodrop/internal/geo"
	"github.com/ryanbastic/go-geodrop/internal/object"
	"github.com/ryanbastic/go-geodrop/internal/placement"
	"github.com/ryanbastic/go-geodrop/internal/position"
	"github.com/ryanbastic/go-geodrop/internal/proximity"
)

// Session is one actor's view of the world: where they stand and a mirror
// of the objects they can see.
type Session struct {
	actorID string
	mgr     *Manager
	pos     *position.Fallback
	mirror  *Mirror
}

// NewSession creates a session whose position comes from src, falling back
// to def.
func (m *Manager) NewSession(actorID string, src position.Source, def geo.Coordinate) *Session {
	return &Session{
		actorID: actorID,
		mgr:     m,
		pos:     position.NewFallback(src, def),
		mirror:  NewMirror(),
	}
}

func (s *Session) ActorID() string { return s.actorID }
func (s *Session) Mirror() *Mirror { return s.mirror }

// Position returns the actor's current position, or the default.
func (s *Session) Position(ctx context.Context) geo.Coordinate {
	c, _ := s.pos.Position(ctx)
	return c
}

// Sync reloads the mirror from the store.
func (s *Session) Sync(ctx context.Context) error {
	objects, err := s.mgr.ListVisible(ctx, s.actorID)
	if err != nil {
		return err
	}
	s.mirror.Load(objects, s.mgr.now())
	return nil
}

// SyncIfStale reloads the mirror when it is older than maxAge.
func (s *Session) SyncIfStale(ctx context.Context, maxAge time.Duration) error {
	if loaded := s.mirror.LoadedAt(); !loaded.IsZero() && s.mgr.now().Sub(loaded) < maxAge {
		return nil
	}
	return s.Sync(ctx)
}

// Nearby projects the mirrored objects around the current position.
func (s *Session) Nearby(ctx context.Context) []proximity.Sighting {
	at := s.Position(ctx)
	radii := s.mgr.radii
	return proximity.Project(proximity.WithinRadius(at, s.mirror.Snapshot(), radii.DiscoveryM), radii)
}

// Nearest returns the closest mirrored dropped object.
func (s *Session) Nearest(ctx context.Context) (proximity.Hit, bool) {
	return proximity.Nearest(s.Position(ctx), s.mirror.Snapshot())
}

// Collect optimistically marks the letter collected in the mirror, then
// reconciles with the store's answer.
func (s *Session) Collect(ctx context.Context, id uuid.UUID) (CollectResult, error) {
	at := s.Position(ctx)
	if cur, pending, ok := s.mirror.Get(id); ok && !pending && cur.Status == object.StatusDropped {
		now := s.mgr.now()
		guess := cur.Clone()
		guess.Status = object.StatusCollected
		guess.FinderID = s.actorID
		guess.CollectedAt = &now
		guess.CollectedLocation = guess.Location
		guess.Location = nil
		s.mirror.Apply(guess)
	}

	res, err := s.mgr.CollectLetter(ctx, s.actorID, id, at)
	s.reconcile(id, res.Outcome, res.Object, err)
	return res, err
}

// Pick optimistically moves the item into the actor's hold in the mirror,
// then reconciles with the store's answer.
func (s *Session) Pick(ctx context.Context, id uuid.UUID) (PickResult, error) {
	at := s.Position(ctx)
	if cur, pending, ok := s.mirror.Get(id); ok && !pending && cur.Status == object.StatusDropped {
		guess := cur.Clone()
		guess.Status = object.StatusHeld
		guess.HolderID = s.actorID
		guess.Location = nil
		s.mirror.Apply(guess)
	}

	res, err := s.mgr.PickItem(ctx, s.actorID, id, at)
	s.reconcile(id, res.Outcome, res.Object, err)
	return res, err
}

// Drop throws a held item from the current position.
func (s *Session) Drop(ctx context.Context, id uuid.UUID, t placement.Throw, observe placement.Observer) (*object.WorldObject, error) {
	o, err := s.mgr.DropItem(ctx, s.actorID, id, s.Position(ctx), t, observe)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.mirror.Forget(id)
		}
		return nil, err
	}
	s.mirror.Confirm(o)
	return o, nil
}

// Release puts a held item down where the actor stands.
func (s *Session) Release(ctx context.Context, id uuid.UUID, observe placement.Observer) (*object.WorldObject, error) {
	return s.Drop(ctx, id, placement.Throw{}, observe)
}

// Send throws a new letter from the current position and mirrors it.
func (s *Session) Send(ctx context.Context, t placement.Throw, d LetterDraft, observe placement.Observer) (*object.WorldObject, error) {
	o, err := s.mgr.SendLetter(ctx, s.actorID, s.Position(ctx), t, d, observe)
	if err != nil {
		return nil, err
	}
	if o.VisibleTo(s.actorID) {
		s.mirror.Confirm(o)
	}
	return o, nil
}

func (s *Session) reconcile(id uuid.UUID, outcome Outcome, truth *object.WorldObject, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		s.mirror.Forget(id)
	case err != nil:
		s.mirror.Rollback(id, nil)
	case outcome == OutcomeOK:
		s.mirror.Confirm(truth)
	case outcome == OutcomeNotAvailable && truth == nil:
		s.mirror.Forget(id)
	default:
		s.mirror.Rollback(id, truth)
	}
}

// Sessions hands out one Session per actor, sharing position trackers with
// the rest of the service. Entries untouched for longer than the idle
// timeout are dropped by Sweep unless a stream is still subscribed, so the
// table is bounded by the actors active within that window.
type Sessions struct {
	mu        sync.Mutex
	mgr       *Manager
	positions *position.Registry
	def       geo.Coordinate
	byActor   map[string]*sessionEntry
}

type sessionEntry struct {
	sess    *Session
	tracker *position.Tracker
	touched time.Time
}

func NewSessions(mgr *Manager, positions *position.Registry, def geo.Coordinate) *Sessions {
	return &Sessions{
		mgr:       mgr,
		positions: positions,
		def:       def,
		byActor:   make(map[string]*sessionEntry),
	}
}

// For returns the actor's session, creating it on first use.
func (s *Sessions) For(actorID string) *Session {
	return s.entry(actorID).sess
}

// Tracker exposes the actor's position tracker.
func (s *Sessions) Tracker(actorID string) *position.Tracker {
	return s.entry(actorID).tracker
}

func (s *Sessions) entry(actorID string) *sessionEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byActor[actorID]
	if !ok {
		t := s.positions.Tracker(actorID)
		e = &sessionEntry{sess: s.mgr.NewSession(actorID, t, s.def), tracker: t}
		s.byActor[actorID] = e
	}
	e.touched = s.mgr.now()
	return e
}

// Sweep drops sessions idle for longer than idle and returns how many went.
func (s *Sessions) Sweep(idle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.mgr.now().Add(-idle)
	n := 0
	for actor, e := range s.byActor {
		if e.touched.After(cutoff) {
			continue
		}
		if !s.positions.Forget(actor) {
			continue
		}
		delete(s.byActor, actor)
		n++
	}
	return n
}

// Run sweeps every interval until ctx is done.
func (s *Sessions) Run(ctx context.Context, every, idle time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(idle); n > 0 {
				s.mgr.logger.Debug("idle sessions evicted", "count", n, "remaining", s.Len())
			}
		}
	}
}

func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byActor)
}
