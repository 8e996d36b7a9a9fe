package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ryanbastic/go-geodrop/internal/geo"
	"github.com/ryanbastic/go-geodrop/internal/object"
	"github.com/ryanbastic/go-geodrop/internal/placement"
	"github.com/ryanbastic/go-geodrop/internal/proximity"
	"github.com/ryanbastic/go-geodrop/internal/storage"
)

// Options configures a Manager. Zero values select defaults.
type Options struct {
	Capacity int
	Radii    proximity.Radii
	Now      func() time.Time
	NewID    func() uuid.UUID
	Logger   *slog.Logger
	Recorder Recorder
}

// Manager applies object transitions against an explicit store handle.
// It keeps no object state of its own.
type Manager struct {
	store    storage.ObjectStore
	planner  *placement.Planner
	capacity int
	radii    proximity.Radii
	now      func() time.Time
	newID    func() uuid.UUID
	logger   *slog.Logger
	recorder Recorder
}

func NewManager(store storage.ObjectStore, planner *placement.Planner, opts Options) (*Manager, error) {
	if store == nil || planner == nil {
		return nil, fmt.Errorf("lifecycle: store and planner are required")
	}
	m := &Manager{
		store:    store,
		planner:  planner,
		capacity: opts.Capacity,
		radii:    opts.Radii,
		now:      opts.Now,
		newID:    opts.NewID,
		logger:   opts.Logger,
		recorder: opts.Recorder,
	}
	if m.capacity == 0 {
		m.capacity = DefaultCapacity
	}
	if m.capacity < 0 {
		return nil, fmt.Errorf("lifecycle: capacity %d must be positive", m.capacity)
	}
	if m.radii == (proximity.Radii{}) {
		m.radii = proximity.DefaultRadii()
	}
	if err := m.radii.Validate(); err != nil {
		return nil, fmt.Errorf("lifecycle: %w", err)
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.newID == nil {
		m.newID = uuid.New
	}
	if m.logger == nil {
		m.logger = slog.New(slog.DiscardHandler)
	}
	if m.recorder == nil {
		m.recorder = nopRecorder{}
	}
	return m, nil
}

func (m *Manager) Capacity() int               { return m.capacity }
func (m *Manager) Radii() proximity.Radii      { return m.radii }
func (m *Manager) Planner() *placement.Planner { return m.planner }

// Get returns a fresh store snapshot of the object.
func (m *Manager) Get(ctx context.Context, id uuid.UUID) (*object.WorldObject, error) {
	o, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, m.readErr(err)
	}
	if err := o.Validate(); err != nil {
		m.logger.Error("corrupt object read", "object_id", id, "error", err)
		return nil, err
	}
	return o, nil
}

// Refresh re-reads o from the store, discarding any local changes.
func (m *Manager) Refresh(ctx context.Context, o *object.WorldObject) (*object.WorldObject, error) {
	return m.Get(ctx, o.ID)
}

// GetVisible is Get restricted to objects actorID may see. Hidden objects
// are reported as ErrNotFound.
func (m *Manager) GetVisible(ctx context.Context, actorID string, id uuid.UUID) (*object.WorldObject, error) {
	o, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !o.VisibleTo(actorID) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return o, nil
}

// Visible filters objects down to those actorID may see, preserving order.
func Visible(actorID string, objects []*object.WorldObject) []*object.WorldObject {
	out := make([]*object.WorldObject, 0, len(objects))
	for _, o := range objects {
		if o.VisibleTo(actorID) {
			out = append(out, o)
		}
	}
	return out
}

// ListVisible returns every object actorID may see: dropped objects plus
// the actor's own held items and collected letters.
func (m *Manager) ListVisible(ctx context.Context, actorID string) ([]*object.WorldObject, error) {
	all, err := m.store.List(ctx)
	if err != nil {
		return nil, m.readErr(err)
	}
	if err := m.validateAll(all); err != nil {
		return nil, err
	}
	return Visible(actorID, all), nil
}

// Dropped returns the dropped objects visible to actorID.
func (m *Manager) Dropped(ctx context.Context, actorID string) ([]*object.WorldObject, error) {
	dropped, err := m.store.ListByStatus(ctx, object.StatusDropped)
	if err != nil {
		return nil, m.readErr(err)
	}
	if err := m.validateAll(dropped); err != nil {
		return nil, err
	}
	return Visible(actorID, dropped), nil
}

// Nearby returns the sightings within the discovery radius of at, nearest
// first. Visibility is applied before any distance is computed.
func (m *Manager) Nearby(ctx context.Context, actorID string, at geo.Coordinate) ([]proximity.Sighting, error) {
	if err := validateActorAt(actorID, at); err != nil {
		return nil, err
	}
	objects, err := m.Dropped(ctx, actorID)
	if err != nil {
		return nil, err
	}
	return proximity.Project(proximity.WithinRadius(at, objects, m.radii.DiscoveryM), m.radii), nil
}

// Nearest returns the closest dropped object visible to actorID.
func (m *Manager) Nearest(ctx context.Context, actorID string, at geo.Coordinate) (proximity.Hit, bool, error) {
	if err := validateActorAt(actorID, at); err != nil {
		return proximity.Hit{}, false, err
	}
	objects, err := m.Dropped(ctx, actorID)
	if err != nil {
		return proximity.Hit{}, false, err
	}
	hit, ok := proximity.Nearest(at, objects)
	return hit, ok, nil
}

// Held returns the items currently held by actorID.
func (m *Manager) Held(ctx context.Context, actorID string) ([]*object.WorldObject, error) {
	if strings.TrimSpace(actorID) == "" {
		return nil, fmt.Errorf("%w: actor is required", ErrValidation)
	}
	held, err := m.store.ListHeldBy(ctx, actorID)
	if err != nil {
		return nil, m.readErr(err)
	}
	if err := m.validateAll(held); err != nil {
		return nil, err
	}
	return held, nil
}

func (m *Manager) validateAll(objects []*object.WorldObject) error {
	for _, o := range objects {
		if err := o.Validate(); err != nil {
			m.logger.Error("corrupt object read", "object_id", o.ID, "error", err)
			return err
		}
	}
	return nil
}

func (m *Manager) readErr(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotFound
	}
	m.logger.Warn("store read failed", "error", err)
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func (m *Manager) writeErr(id uuid.UUID, err error) error {
	m.logger.Warn("store write failed", "object_id", id, "error", err)
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func validateActorAt(actorID string, at geo.Coordinate) error {
	if strings.TrimSpace(actorID) == "" {
		return fmt.Errorf("%w: actor is required", ErrValidation)
	}
	if err := geo.Validate(at); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}
