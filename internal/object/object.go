// Package object defines the world object record shared by the engine,
// the stores and the HTTP surface.
package object

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ryanbastic/go-geodrop/internal/geo"
)

// ErrCorrupt marks a record that violates an object invariant.
var ErrCorrupt = errors.New("corrupt world object")

type Kind string

const (
	KindItem   Kind = "ITEM"
	KindLetter Kind = "LETTER"
)

type Status string

const (
	StatusHeld      Status = "HELD"
	StatusDropped   Status = "DROPPED"
	StatusCollected Status = "COLLECTED"
)

// Visibility controls who may see a letter.
type Visibility string

const (
	VisibilityEveryone Visibility = "EVERYONE"
	VisibilityToSelf   Visibility = "TO_SELF"
	VisibilitySpecific Visibility = "SPECIFIC"
)

type EventType string

const (
	EventCreated   EventType = "CREATED"
	EventDropped   EventType = "DROPPED"
	EventPicked    EventType = "PICKED"
	EventCollected EventType = "COLLECTED"
	EventAnnotated EventType = "ANNOTATED"
)

// Event is one entry of an object's append-only history.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Location  *geo.Coordinate `json:"location,omitempty"`
	ActorID   string          `json:"actor_id"`
}

// LetterPayload is the content of a letter.
type LetterPayload struct {
	Message string `json:"message"`
}

// ItemPayload is the content of an item.
type ItemPayload struct {
	Name        string `json:"name"`
	Emoji       string `json:"emoji"`
	Description string `json:"description,omitempty"`
}

// WorldObject is a droppable item or a one-shot letter.
type WorldObject struct {
	ID     uuid.UUID `json:"id"`
	Kind   Kind      `json:"kind"`
	Status Status    `json:"status"`

	Location    *geo.Coordinate `json:"location,omitempty"`
	Origin      *geo.Coordinate `json:"origin,omitempty"`
	OriginName  string          `json:"origin_name,omitempty"`
	ArrivalName string          `json:"arrival_name,omitempty"`

	Redirected     bool   `json:"redirected,omitempty"`
	RedirectReason string `json:"redirect_reason,omitempty"`

	OwnerID  string `json:"owner_id"`
	HolderID string `json:"holder_id,omitempty"`

	// Letters only.
	Visibility        Visibility      `json:"visibility,omitempty"`
	RecipientID       string          `json:"recipient_id,omitempty"`
	FinderID          string          `json:"finder_id,omitempty"`
	CollectedAt       *time.Time      `json:"collected_at,omitempty"`
	CollectedLocation *geo.Coordinate `json:"collected_location,omitempty"`
	Note              string          `json:"note,omitempty"`
	NotedAt           *time.Time      `json:"noted_at,omitempty"`

	Letter *LetterPayload `json:"letter,omitempty"`
	Item   *ItemPayload   `json:"item,omitempty"`

	History []Event `json:"history"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy so snapshots never share mutable state.
func (o *WorldObject) Clone() *WorldObject {
	if o == nil {
		return nil
	}
	c := *o
	c.Location = cloneCoord(o.Location)
	c.Origin = cloneCoord(o.Origin)
	c.CollectedLocation = cloneCoord(o.CollectedLocation)
	if o.CollectedAt != nil {
		t := *o.CollectedAt
		c.CollectedAt = &t
	}
	if o.NotedAt != nil {
		t := *o.NotedAt
		c.NotedAt = &t
	}
	if o.Letter != nil {
		l := *o.Letter
		c.Letter = &l
	}
	if o.Item != nil {
		i := *o.Item
		c.Item = &i
	}
	c.History = make([]Event, len(o.History))
	for i, e := range o.History {
		e.Location = cloneCoord(e.Location)
		c.History[i] = e
	}
	return &c
}

func cloneCoord(c *geo.Coordinate) *geo.Coordinate {
	if c == nil {
		return nil
	}
	v := *c
	return &v
}

// VisibleTo reports whether actorID may see the object at all. Items are
// public while dropped and private to their holder while held. A SPECIFIC
// letter is seen by its recipient alone, not even by its sender.
func (o *WorldObject) VisibleTo(actorID string) bool {
	switch o.Kind {
	case KindItem:
		if o.Status == StatusHeld {
			return o.HolderID == actorID
		}
		return true
	case KindLetter:
		switch o.Visibility {
		case VisibilityEveryone:
			return true
		case VisibilityToSelf:
			return o.OwnerID == actorID
		case VisibilitySpecific:
			return o.RecipientID == actorID
		}
	}
	return false
}

// Append adds an event, keeping timestamps strictly increasing even when
// the clock did not advance between two transitions.
func (o *WorldObject) Append(e Event) Event {
	if n := len(o.History); n > 0 {
		last := o.History[n-1].Timestamp
		if !e.Timestamp.After(last) {
			e.Timestamp = last.Add(time.Nanosecond)
		}
	}
	e.Location = cloneCoord(e.Location)
	o.History = append(o.History, e)
	return e
}

// Validate checks the structural invariants of o. A failure means the
// record must not be written or handed out.
func (o *WorldObject) Validate() error {
	if o.ID == uuid.Nil {
		return fmt.Errorf("%w: missing id", ErrCorrupt)
	}
	if o.OwnerID == "" {
		return fmt.Errorf("%w: object %s has no owner", ErrCorrupt, o.ID)
	}

	switch o.Kind {
	case KindItem:
		if o.Item == nil {
			return fmt.Errorf("%w: item %s has no payload", ErrCorrupt, o.ID)
		}
		switch o.Status {
		case StatusHeld:
			if o.Location != nil {
				return fmt.Errorf("%w: held item %s has a location", ErrCorrupt, o.ID)
			}
			if o.HolderID == "" {
				return fmt.Errorf("%w: held item %s has no holder", ErrCorrupt, o.ID)
			}
		case StatusDropped:
			if o.HolderID != "" {
				return fmt.Errorf("%w: dropped item %s has a holder", ErrCorrupt, o.ID)
			}
		default:
			return fmt.Errorf("%w: item %s in status %q", ErrCorrupt, o.ID, o.Status)
		}
	case KindLetter:
		if o.Letter == nil {
			return fmt.Errorf("%w: letter %s has no payload", ErrCorrupt, o.ID)
		}
		switch o.Visibility {
		case VisibilityEveryone, VisibilityToSelf:
		case VisibilitySpecific:
			if o.RecipientID == "" {
				return fmt.Errorf("%w: letter %s addressed to nobody", ErrCorrupt, o.ID)
			}
		default:
			return fmt.Errorf("%w: letter %s has visibility %q", ErrCorrupt, o.ID, o.Visibility)
		}
		switch o.Status {
		case StatusDropped:
			if o.FinderID != "" {
				return fmt.Errorf("%w: dropped letter %s has a finder", ErrCorrupt, o.ID)
			}
		case StatusCollected:
			if o.FinderID == "" || o.CollectedAt == nil {
				return fmt.Errorf("%w: collected letter %s has no finder", ErrCorrupt, o.ID)
			}
			if o.Location != nil {
				return fmt.Errorf("%w: collected letter %s still has a location", ErrCorrupt, o.ID)
			}
		default:
			return fmt.Errorf("%w: letter %s in status %q", ErrCorrupt, o.ID, o.Status)
		}
	default:
		return fmt.Errorf("%w: object %s has kind %q", ErrCorrupt, o.ID, o.Kind)
	}

	if o.Status == StatusDropped {
		if o.Location == nil {
			return fmt.Errorf("%w: dropped object %s has no location", ErrCorrupt, o.ID)
		}
		if err := geo.Validate(*o.Location); err != nil {
			return fmt.Errorf("%w: object %s: %v", ErrCorrupt, o.ID, err)
		}
		if len(o.History) == 0 {
			return fmt.Errorf("%w: dropped object %s has no history", ErrCorrupt, o.ID)
		}
	}
	for i := 1; i < len(o.History); i++ {
		if !o.History[i].Timestamp.After(o.History[i-1].Timestamp) {
			return fmt.Errorf("%w: object %s history not strictly increasing at %d", ErrCorrupt, o.ID, i)
		}
	}
	return nil
}
