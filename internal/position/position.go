// Package position supplies the device position an actor is standing at.
package position

import (
	"context"
	"sync"

	"github.com/ryanbastic/go-geodrop/internal/geo"
)

// TokyoStation is the default position used when nothing better is known.
var TokyoStation = geo.Coordinate{Lat: 35.6812, Lng: 139.7671}

// Source reports the latest known position. ok is false when no fix is
// available yet.
type Source interface {
	Current(ctx context.Context) (c geo.Coordinate, ok bool)
}

// Fixed is a Source that always reports the same coordinate.
type Fixed geo.Coordinate

func (f Fixed) Current(context.Context) (geo.Coordinate, bool) {
	return geo.Coordinate(f), true
}

// Fallback wraps a Source so that a position is always available.
type Fallback struct {
	src Source
	def geo.Coordinate
}

// NewFallback returns src backed by def. src may be nil.
func NewFallback(src Source, def geo.Coordinate) *Fallback {
	return &Fallback{src: src, def: def}
}

// Position returns the source's fix, or the default when there is none.
// The bool reports whether the default was used.
func (f *Fallback) Position(ctx context.Context) (geo.Coordinate, bool) {
	if f.src != nil {
		if c, ok := f.src.Current(ctx); ok {
			return c, false
		}
	}
	return f.def, true
}

const subscriberBuffer = 8

// Tracker holds the latest position fed by a change stream and fans updates
// out to subscribers. Slow subscribers miss intermediate positions.
type Tracker struct {
	mu     sync.Mutex
	cur    geo.Coordinate
	known  bool
	subs   map[int]chan geo.Coordinate
	nextID int
}

func NewTracker() *Tracker {
	return &Tracker{subs: make(map[int]chan geo.Coordinate)}
}

// Update records c as the current position and notifies subscribers.
func (t *Tracker) Update(c geo.Coordinate) error {
	if err := geo.Validate(c); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cur, t.known = c, true
	for _, ch := range t.subs {
		select {
		case ch <- c:
		default:
		}
	}
	return nil
}

func (t *Tracker) Current(context.Context) (geo.Coordinate, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cur, t.known
}

// Subscribe returns a channel of position updates that is closed when ctx
// is done.
func (t *Tracker) Subscribe(ctx context.Context) <-chan geo.Coordinate {
	ch := make(chan geo.Coordinate, subscriberBuffer)

	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.subs[id] = ch
	t.mu.Unlock()

	go func() {
		<-ctx.Done()
		t.mu.Lock()
		delete(t.subs, id)
		close(ch)
		t.mu.Unlock()
	}()
	return ch
}

// Subscribers returns the number of open subscriptions.
func (t *Tracker) Subscribers() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

// Registry keeps one Tracker per actor.
type Registry struct {
	mu       sync.Mutex
	trackers map[string]*Tracker
}

func NewRegistry() *Registry {
	return &Registry{trackers: make(map[string]*Tracker)}
}

// Tracker returns the actor's tracker, creating it on first use.
func (r *Registry) Tracker(actorID string) *Tracker {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.trackers[actorID]
	if !ok {
		t = NewTracker()
		r.trackers[actorID] = t
	}
	return t
}

// Forget removes the actor's tracker unless it still has subscribers. It
// reports whether the actor is gone.
func (r *Registry) Forget(actorID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.trackers[actorID]
	if !ok {
		return true
	}
	if t.Subscribers() > 0 {
		return false
	}
	delete(r.trackers, actorID)
	return true
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.trackers)
}
