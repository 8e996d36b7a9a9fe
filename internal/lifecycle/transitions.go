package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/ryanbastic/go-geodrop/internal/geo"
	"github.com/ryanbastic/go-geodrop/internal/object"
	"github.com/ryanbastic/go-geodrop/internal/placement"
	"github.com/ryanbastic/go-geodrop/internal/storage"
)

// casAttempts bounds how often a transition re-reads after losing a race
// that left its precondition intact.
const casAttempts = 3

// SendLetter authors a letter and drops it where the throw lands, in one
// store write. Naming problems never fail the send.
func (m *Manager) SendLetter(ctx context.Context, actorID string, origin geo.Coordinate, t placement.Throw, d LetterDraft, observe placement.Observer) (*object.WorldObject, error) {
	if err := validateActorAt(actorID, origin); err != nil {
		return nil, err
	}
	d.Message = strings.TrimSpace(d.Message)
	if d.Message == "" {
		return nil, fmt.Errorf("%w: message is empty", ErrValidation)
	}
	if utf8.RuneCountInString(d.Message) > maxMessageLen {
		return nil, fmt.Errorf("%w: message longer than %d characters", ErrValidation, maxMessageLen)
	}
	if d.Visibility == "" {
		d.Visibility = object.VisibilityEveryone
	}
	switch d.Visibility {
	case object.VisibilityEveryone, object.VisibilityToSelf:
		d.RecipientID = ""
	case object.VisibilitySpecific:
		if strings.TrimSpace(d.RecipientID) == "" {
			return nil, fmt.Errorf("%w: recipient is required for %s letters", ErrValidation, d.Visibility)
		}
	default:
		return nil, fmt.Errorf("%w: unknown visibility %q", ErrValidation, d.Visibility)
	}

	pl, err := m.place(ctx, origin, t, observe)
	if err != nil {
		return nil, err
	}

	now := m.now()
	o := &object.WorldObject{
		ID:          m.newID(),
		Kind:        object.KindLetter,
		OwnerID:     actorID,
		Visibility:  d.Visibility,
		RecipientID: d.RecipientID,
		Letter:      &object.LetterPayload{Message: d.Message},
		CreatedAt:   now,
	}
	o.Append(object.Event{Type: object.EventCreated, Timestamp: now, Location: &origin, ActorID: actorID})
	applyDrop(o, actorID, pl, now)

	if err := o.Validate(); err != nil {
		return nil, err
	}
	stored, err := m.store.Insert(context.WithoutCancel(ctx), o, nil)
	if err != nil {
		return nil, m.writeErr(o.ID, err)
	}
	m.recordDrop(stored, pl)
	m.logger.Info("letter sent",
		"object_id", stored.ID,
		"actor", actorID,
		"redirected", pl.Plan.WasRedirected,
		"arrival", pl.ArrivalName,
	)
	return stored, nil
}

// CreateItem creates a new item held by actorID. Capacity applies.
func (m *Manager) CreateItem(ctx context.Context, actorID string, d ItemDraft) (PickResult, error) {
	if strings.TrimSpace(actorID) == "" {
		return PickResult{}, fmt.Errorf("%w: actor is required", ErrValidation)
	}
	d.Name = strings.TrimSpace(d.Name)
	if d.Name == "" || utf8.RuneCountInString(d.Name) > maxNameLen {
		return PickResult{}, fmt.Errorf("%w: item name must be 1-%d characters", ErrValidation, maxNameLen)
	}
	if strings.TrimSpace(d.Emoji) == "" {
		return PickResult{}, fmt.Errorf("%w: item emoji is required", ErrValidation)
	}

	now := m.now()
	o := &object.WorldObject{
		ID:        m.newID(),
		Kind:      object.KindItem,
		Status:    object.StatusHeld,
		OwnerID:   actorID,
		HolderID:  actorID,
		Item:      &object.ItemPayload{Name: d.Name, Emoji: d.Emoji, Description: d.Description},
		CreatedAt: now,
		UpdatedAt: now,
	}
	o.Append(object.Event{Type: object.EventCreated, Timestamp: now, ActorID: actorID})
	if err := o.Validate(); err != nil {
		return PickResult{}, err
	}

	stored, err := m.store.Insert(ctx, o, &storage.Capacity{HolderID: actorID, Max: m.capacity})
	switch {
	case errors.Is(err, storage.ErrAtCapacity):
		m.recorder.PickAttempt(string(OutcomeAtCapacity))
		return PickResult{Outcome: OutcomeAtCapacity, Held: m.capacity}, nil
	case err != nil:
		return PickResult{}, m.writeErr(o.ID, err)
	}
	m.recorder.PickAttempt(string(OutcomeOK))
	return PickResult{Outcome: OutcomeOK, Object: stored, Held: m.heldCount(ctx, actorID)}, nil
}

// DropItem throws an item the actor holds. The landing names are fixed by
// this transaction.
func (m *Manager) DropItem(ctx context.Context, actorID string, id uuid.UUID, origin geo.Coordinate, t placement.Throw, observe placement.Observer) (*object.WorldObject, error) {
	if err := validateActorAt(actorID, origin); err != nil {
		return nil, err
	}
	cur, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur.Kind != object.KindItem {
		return nil, fmt.Errorf("%w: %s is not an item", ErrValidation, id)
	}
	if cur.Status != object.StatusHeld || cur.HolderID != actorID {
		return nil, fmt.Errorf("%w: item %s is not held by %s", ErrValidation, id, actorID)
	}

	pl, err := m.place(ctx, origin, t, observe)
	if err != nil {
		return nil, err
	}

	next := cur.Clone()
	applyDrop(next, actorID, pl, m.now())
	if err := next.Validate(); err != nil {
		return nil, err
	}

	stored, err := m.store.UpdateIf(context.WithoutCancel(ctx), next, storage.Condition{
		Status:  object.StatusHeld,
		Version: cur.Version,
	})
	switch {
	case errors.Is(err, storage.ErrConflict):
		return nil, fmt.Errorf("%w: item %s", ErrConflict, id)
	case errors.Is(err, storage.ErrNotFound):
		return nil, ErrNotFound
	case err != nil:
		return nil, m.writeErr(id, err)
	}
	m.recordDrop(stored, pl)
	m.logger.Info("item dropped", "object_id", id, "actor", actorID, "redirected", pl.Plan.WasRedirected)
	return stored, nil
}

// ReleaseItem puts a held item down where the actor stands.
func (m *Manager) ReleaseItem(ctx context.Context, actorID string, id uuid.UUID, at geo.Coordinate) (*object.WorldObject, error) {
	return m.DropItem(ctx, actorID, id, at, placement.Throw{}, nil)
}

// PickItem moves a dropped item into the actor's hold. The capacity check
// is part of the store's conditional update, so a rejected pick leaves the
// item untouched.
func (m *Manager) PickItem(ctx context.Context, actorID string, id uuid.UUID, at geo.Coordinate) (PickResult, error) {
	res, err := m.pick(ctx, actorID, id, at)
	if err == nil {
		m.recorder.PickAttempt(string(res.Outcome))
	}
	return res, err
}

func (m *Manager) pick(ctx context.Context, actorID string, id uuid.UUID, at geo.Coordinate) (PickResult, error) {
	if err := validateActorAt(actorID, at); err != nil {
		return PickResult{}, err
	}
	cur, err := m.Get(ctx, id)
	if err != nil {
		return PickResult{}, err
	}
	if cur.Kind != object.KindItem {
		return PickResult{}, fmt.Errorf("%w: %s is not an item", ErrValidation, id)
	}

	for range casAttempts {
		// Someone else's hold stays private: the outcome carries no snapshot.
		if cur.Status != object.StatusDropped {
			res := PickResult{Outcome: OutcomeNotAvailable}
			if cur.VisibleTo(actorID) {
				res.Object = cur
			}
			return res, nil
		}
		if !cur.VisibleTo(actorID) {
			return PickResult{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if !m.radii.CanInteract(geo.DistanceMeters(at, *cur.Location)) {
			return PickResult{Outcome: OutcomeOutOfRange}, nil
		}

		now := m.now()
		next := cur.Clone()
		next.Status = object.StatusHeld
		next.HolderID = actorID
		next.Location = nil
		next.UpdatedAt = now
		next.Append(object.Event{Type: object.EventPicked, Timestamp: now, Location: &at, ActorID: actorID})
		if err := next.Validate(); err != nil {
			return PickResult{}, err
		}

		stored, err := m.store.UpdateIf(ctx, next, storage.Condition{
			Status:   object.StatusDropped,
			Version:  cur.Version,
			Capacity: &storage.Capacity{HolderID: actorID, Max: m.capacity},
		})
		switch {
		case err == nil:
			m.logger.Info("item picked", "object_id", id, "actor", actorID)
			return PickResult{Outcome: OutcomeOK, Object: stored, Held: m.heldCount(ctx, actorID)}, nil
		case errors.Is(err, storage.ErrAtCapacity):
			return PickResult{Outcome: OutcomeAtCapacity, Object: cur, Held: m.capacity}, nil
		case errors.Is(err, storage.ErrNotFound):
			return PickResult{}, ErrNotFound
		case !errors.Is(err, storage.ErrConflict):
			return PickResult{}, m.writeErr(id, err)
		}
		if cur, err = m.Get(ctx, id); err != nil {
			return PickResult{}, err
		}
	}
	return PickResult{}, fmt.Errorf("%w: item %s", ErrConflict, id)
}

// CollectLetter claims a dropped letter for actorID. It is a compare-and-swap
// on the letter's status and version: of many concurrent collectors exactly
// one gets OutcomeOK and the rest see OutcomeAlreadyCollected.
func (m *Manager) CollectLetter(ctx context.Context, actorID string, id uuid.UUID, at geo.Coordinate) (CollectResult, error) {
	res, err := m.collect(ctx, actorID, id, at)
	if err == nil {
		m.recorder.CollectAttempt(string(res.Outcome))
	}
	return res, err
}

func (m *Manager) collect(ctx context.Context, actorID string, id uuid.UUID, at geo.Coordinate) (CollectResult, error) {
	if err := validateActorAt(actorID, at); err != nil {
		return CollectResult{}, err
	}
	cur, err := m.Get(ctx, id)
	if err != nil {
		return CollectResult{}, err
	}
	if cur.Kind != object.KindLetter {
		return CollectResult{}, fmt.Errorf("%w: %s is not a letter", ErrValidation, id)
	}
	if !cur.VisibleTo(actorID) {
		return CollectResult{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	for range casAttempts {
		if cur.Status == object.StatusCollected {
			return CollectResult{Outcome: OutcomeAlreadyCollected, Object: cur}, nil
		}
		distance := geo.DistanceMeters(at, *cur.Location)
		if !m.radii.CanInteract(distance) {
			return CollectResult{Outcome: OutcomeOutOfRange, DistanceM: distance}, nil
		}

		now := m.now()
		next := cur.Clone()
		next.Status = object.StatusCollected
		next.FinderID = actorID
		next.CollectedAt = &now
		next.CollectedLocation = next.Location
		next.Location = nil
		next.UpdatedAt = now
		next.Append(object.Event{Type: object.EventCollected, Timestamp: now, Location: &at, ActorID: actorID})
		if err := next.Validate(); err != nil {
			return CollectResult{}, err
		}

		stored, err := m.store.UpdateIf(ctx, next, storage.Condition{
			Status:  object.StatusDropped,
			Version: cur.Version,
		})
		switch {
		case err == nil:
			m.logger.Info("letter collected", "object_id", id, "finder", actorID, "distance_m", distance)
			return CollectResult{Outcome: OutcomeOK, Object: stored, DistanceM: distance}, nil
		case errors.Is(err, storage.ErrNotFound):
			return CollectResult{}, ErrNotFound
		case !errors.Is(err, storage.ErrConflict):
			return CollectResult{}, m.writeErr(id, err)
		}
		if cur, err = m.Get(ctx, id); err != nil {
			return CollectResult{}, err
		}
	}
	return CollectResult{}, fmt.Errorf("%w: letter %s", ErrConflict, id)
}

// Annotate attaches the finder's one-time note to a collected letter.
func (m *Manager) Annotate(ctx context.Context, actorID string, id uuid.UUID, note string) (AnnotateResult, error) {
	if strings.TrimSpace(actorID) == "" {
		return AnnotateResult{}, fmt.Errorf("%w: actor is required", ErrValidation)
	}
	note = strings.TrimSpace(note)
	if note == "" {
		return AnnotateResult{}, fmt.Errorf("%w: note is empty", ErrValidation)
	}
	if utf8.RuneCountInString(note) > maxNoteLen {
		return AnnotateResult{}, fmt.Errorf("%w: note longer than %d characters", ErrValidation, maxNoteLen)
	}

	cur, err := m.Get(ctx, id)
	if err != nil {
		return AnnotateResult{}, err
	}
	if cur.Kind != object.KindLetter {
		return AnnotateResult{}, fmt.Errorf("%w: %s is not a letter", ErrValidation, id)
	}

	for range casAttempts {
		if cur.Status != object.StatusCollected || cur.FinderID != actorID {
			return AnnotateResult{Outcome: OutcomeNotFinder}, nil
		}
		if cur.Note != "" {
			return AnnotateResult{Outcome: OutcomeAlreadyAnnotated, Object: cur}, nil
		}

		now := m.now()
		next := cur.Clone()
		next.Note = note
		next.NotedAt = &now
		next.UpdatedAt = now
		next.Append(object.Event{Type: object.EventAnnotated, Timestamp: now, ActorID: actorID})
		if err := next.Validate(); err != nil {
			return AnnotateResult{}, err
		}

		stored, err := m.store.UpdateIf(ctx, next, storage.Condition{
			Status:  object.StatusCollected,
			Version: cur.Version,
		})
		switch {
		case err == nil:
			return AnnotateResult{Outcome: OutcomeOK, Object: stored}, nil
		case errors.Is(err, storage.ErrNotFound):
			return AnnotateResult{}, ErrNotFound
		case !errors.Is(err, storage.ErrConflict):
			return AnnotateResult{}, m.writeErr(id, err)
		}
		if cur, err = m.Get(ctx, id); err != nil {
			return AnnotateResult{}, err
		}
	}
	return AnnotateResult{}, fmt.Errorf("%w: letter %s", ErrConflict, id)
}

// place runs the placement state machine and maps its validation failures.
func (m *Manager) place(ctx context.Context, origin geo.Coordinate, t placement.Throw, observe placement.Observer) (placement.Placement, error) {
	pl, err := m.planner.Place(ctx, origin, t, observe)
	if err != nil {
		if errors.Is(err, placement.ErrInvalidThrow) {
			return placement.Placement{}, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		return placement.Placement{}, err
	}
	if pl.NamingDegraded {
		m.recorder.NamingFallback()
		m.logger.Warn("placement committed with fallback names", "final", pl.Plan.Final.String())
	}
	return pl, nil
}

// applyDrop moves o onto the ground at the placement's final coordinate.
func applyDrop(o *object.WorldObject, actorID string, pl placement.Placement, now time.Time) {
	origin, final := pl.Plan.Origin, pl.Plan.Final
	o.Status = object.StatusDropped
	o.HolderID = ""
	o.Location = &final
	o.Origin = &origin
	o.OriginName = pl.OriginName
	o.ArrivalName = pl.ArrivalName
	o.Redirected = pl.Plan.WasRedirected
	o.RedirectReason = pl.Plan.Reason
	o.UpdatedAt = now
	o.Append(object.Event{Type: object.EventDropped, Timestamp: now, Location: &final, ActorID: actorID})
}

func (m *Manager) recordDrop(o *object.WorldObject, pl placement.Placement) {
	m.recorder.Drop(string(o.Kind), pl.Plan.WasRedirected)
}

// heldCount is best effort; the authoritative check lives in the store.
func (m *Manager) heldCount(ctx context.Context, actorID string) int {
	n, err := m.store.CountHeld(ctx, actorID)
	if err != nil {
		m.logger.Warn("count held failed", "actor", actorID, "error", err)
		return 0
	}
	return n
}
