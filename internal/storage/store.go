package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/ryanbastic/go-geodrop/internal/object"
)

var (
	// ErrNotFound is returned when no object has the requested id.
	ErrNotFound = errors.New("object not found")

	// ErrConflict is returned by UpdateIf when the stored status or version
	// no longer matches the expectation.
	ErrConflict = errors.New("object changed concurrently")

	// ErrAtCapacity is returned when the new holder already holds the
	// maximum number of items.
	ErrAtCapacity = errors.New("holder at capacity")

	// ErrDuplicate is returned by Insert for an id that already exists.
	ErrDuplicate = errors.New("object already exists")
)

// Capacity limits how many HELD items a holder may have after a write.
type Capacity struct {
	HolderID string
	Max      int
}

// Condition is the expected state of a row for a conditional update.
type Condition struct {
	Status  object.Status
	Version int64

	// Capacity, when set, is checked atomically with the update.
	Capacity *Capacity
}

// ObjectStore is the authoritative store of world objects. Implementations
// must make UpdateIf a single indivisible check-and-write.
type ObjectStore interface {
	// Insert stores a new object with version 1. If capacity is non-nil the
	// insert fails with ErrAtCapacity when the holder is already full.
	Insert(ctx context.Context, o *object.WorldObject, capacity *Capacity) (*object.WorldObject, error)

	// Get returns the current snapshot of an object.
	Get(ctx context.Context, id uuid.UUID) (*object.WorldObject, error)

	// List returns every object ordered by creation time.
	List(ctx context.Context) ([]*object.WorldObject, error)

	// ListByStatus returns objects in the given status ordered by creation time.
	ListByStatus(ctx context.Context, status object.Status) ([]*object.WorldObject, error)

	// ListHeldBy returns the items currently held by holderID.
	ListHeldBy(ctx context.Context, holderID string) ([]*object.WorldObject, error)

	// CountHeld returns the number of items currently held by holderID.
	CountHeld(ctx context.Context, holderID string) (int, error)

	// UpdateIf replaces the object with o only if the stored row still has
	// cond.Status and cond.Version. On success the stored version is
	// cond.Version+1 and the new snapshot is returned.
	UpdateIf(ctx context.Context, o *object.WorldObject, cond Condition) (*object.WorldObject, error)

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error
}
