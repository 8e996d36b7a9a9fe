package storage

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ryanbastic/go-geodrop/internal/geo"
	"github.com/ryanbastic/go-geodrop/internal/object"
)

var testEpoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func droppedLetter(owner string) *object.WorldObject {
	loc := geo.Coordinate{Lat: 35.6902, Lng: 139.7671}
	return &object.WorldObject{
		ID:         uuid.New(),
		Kind:       object.KindLetter,
		Status:     object.StatusDropped,
		Location:   &loc,
		OwnerID:    owner,
		Visibility: object.VisibilityEveryone,
		Letter:     &object.LetterPayload{Message: "hello"},
		History: []object.Event{
			{Type: object.EventCreated, Timestamp: testEpoch, ActorID: owner},
			{Type: object.EventDropped, Timestamp: testEpoch.Add(time.Millisecond), Location: &loc, ActorID: owner},
		},
		CreatedAt: testEpoch,
		UpdatedAt: testEpoch,
	}
}

func heldItem(holder string) *object.WorldObject {
	return &object.WorldObject{
		ID:       uuid.New(),
		Kind:     object.KindItem,
		Status:   object.StatusHeld,
		OwnerID:  holder,
		HolderID: holder,
		Item:     &object.ItemPayload{Name: "Acorn", Emoji: "🌰"},
		History: []object.Event{
			{Type: object.EventCreated, Timestamp: testEpoch, ActorID: holder},
		},
		CreatedAt: testEpoch,
		UpdatedAt: testEpoch,
	}
}

func collected(o *object.WorldObject, finder string) *object.WorldObject {
	next := o.Clone()
	at := testEpoch.Add(time.Minute)
	next.Status = object.StatusCollected
	next.CollectedLocation = next.Location
	next.Location = nil
	next.FinderID = finder
	next.CollectedAt = &at
	next.Append(object.Event{Type: object.EventCollected, Timestamp: at, ActorID: finder})
	return next
}

// testObjectStore runs the behaviour every ObjectStore must share.
func testObjectStore(t *testing.T, newStore func(t *testing.T) ObjectStore) {
	t.Run("InsertAndGet", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		in := droppedLetter("alice")

		got, err := s.Insert(ctx, in, nil)
		if err != nil {
			t.Fatalf("Insert: %v", err)
		}
		if got.Version != 1 {
			t.Errorf("Version = %d, want 1", got.Version)
		}

		read, err := s.Get(ctx, in.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if read.ID != in.ID || read.Status != object.StatusDropped || read.Version != 1 {
			t.Errorf("unexpected read: %+v", read)
		}
		if read.Letter == nil || read.Letter.Message != "hello" {
			t.Errorf("payload lost: %+v", read.Letter)
		}
		if len(read.History) != 2 {
			t.Errorf("history length = %d, want 2", len(read.History))
		}
		if err := read.Validate(); err != nil {
			t.Errorf("stored object invalid: %v", err)
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.Get(context.Background(), uuid.New()); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("InsertDuplicate", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		o := droppedLetter("alice")
		if _, err := s.Insert(ctx, o, nil); err != nil {
			t.Fatalf("Insert: %v", err)
		}
		if _, err := s.Insert(ctx, o, nil); !errors.Is(err, ErrDuplicate) {
			t.Errorf("expected ErrDuplicate, got %v", err)
		}
	})

	t.Run("ListOrdering", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		var ids []uuid.UUID
		for i := range 3 {
			o := droppedLetter("alice")
			o.CreatedAt = testEpoch.Add(time.Duration(i) * time.Second)
			if _, err := s.Insert(ctx, o, nil); err != nil {
				t.Fatalf("Insert: %v", err)
			}
			ids = append(ids, o.ID)
		}
		if _, err := s.Insert(ctx, heldItem("bob"), nil); err != nil {
			t.Fatalf("Insert: %v", err)
		}

		all, err := s.List(ctx)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(all) != 4 {
			t.Fatalf("List returned %d, want 4", len(all))
		}

		dropped, err := s.ListByStatus(ctx, object.StatusDropped)
		if err != nil {
			t.Fatalf("ListByStatus: %v", err)
		}
		if len(dropped) != 3 {
			t.Fatalf("ListByStatus returned %d, want 3", len(dropped))
		}
		for i, o := range dropped {
			if o.ID != ids[i] {
				t.Errorf("position %d: got %s, want %s", i, o.ID, ids[i])
			}
		}
	})

	t.Run("UpdateIfAdvancesVersion", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		o, err := s.Insert(ctx, droppedLetter("alice"), nil)
		if err != nil {
			t.Fatalf("Insert: %v", err)
		}

		got, err := s.UpdateIf(ctx, collected(o, "bob"), Condition{Status: object.StatusDropped, Version: 1})
		if err != nil {
			t.Fatalf("UpdateIf: %v", err)
		}
		if got.Version != 2 || got.Status != object.StatusCollected || got.FinderID != "bob" {
			t.Errorf("unexpected result: %+v", got)
		}

		read, err := s.Get(ctx, o.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if read.Version != 2 || read.Location != nil {
			t.Errorf("stored state not updated: %+v", read)
		}
	})

	t.Run("UpdateIfStale", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		o, err := s.Insert(ctx, droppedLetter("alice"), nil)
		if err != nil {
			t.Fatalf("Insert: %v", err)
		}
		if _, err := s.UpdateIf(ctx, collected(o, "bob"), Condition{Status: object.StatusDropped, Version: 1}); err != nil {
			t.Fatalf("first UpdateIf: %v", err)
		}
		_, err = s.UpdateIf(ctx, collected(o, "carol"), Condition{Status: object.StatusDropped, Version: 1})
		if !errors.Is(err, ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}
		read, _ := s.Get(ctx, o.ID)
		if read.FinderID != "bob" {
			t.Errorf("losing write leaked: finder = %q", read.FinderID)
		}
	})

	t.Run("UpdateIfMissing", func(t *testing.T) {
		s := newStore(t)
		o := droppedLetter("alice")
		_, err := s.UpdateIf(context.Background(), o, Condition{Status: object.StatusDropped, Version: 1})
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ConcurrentUpdateIfSingleWinner", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		o, err := s.Insert(ctx, droppedLetter("alice"), nil)
		if err != nil {
			t.Fatalf("Insert: %v", err)
		}

		const n = 16
		var wins, conflicts atomic.Int32
		var wg sync.WaitGroup
		for i := range n {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				finder := string(rune('a' + i))
				_, err := s.UpdateIf(ctx, collected(o, finder), Condition{Status: object.StatusDropped, Version: 1})
				switch {
				case err == nil:
					wins.Add(1)
				case errors.Is(err, ErrConflict):
					conflicts.Add(1)
				default:
					t.Errorf("UpdateIf: %v", err)
				}
			}(i)
		}
		wg.Wait()

		if wins.Load() != 1 {
			t.Errorf("winners = %d, want 1", wins.Load())
		}
		if conflicts.Load() != n-1 {
			t.Errorf("conflicts = %d, want %d", conflicts.Load(), n-1)
		}
	})

	t.Run("CapacityOnInsert", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		limit := &Capacity{HolderID: "bob", Max: 2}
		for range 2 {
			if _, err := s.Insert(ctx, heldItem("bob"), limit); err != nil {
				t.Fatalf("Insert: %v", err)
			}
		}
		if _, err := s.Insert(ctx, heldItem("bob"), limit); !errors.Is(err, ErrAtCapacity) {
			t.Fatalf("expected ErrAtCapacity, got %v", err)
		}
		n, err := s.CountHeld(ctx, "bob")
		if err != nil {
			t.Fatalf("CountHeld: %v", err)
		}
		if n != 2 {
			t.Errorf("CountHeld = %d, want 2", n)
		}
	})

	t.Run("CapacityOnUpdate", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		if _, err := s.Insert(ctx, heldItem("bob"), nil); err != nil {
			t.Fatalf("Insert: %v", err)
		}

		loc := geo.Coordinate{Lat: 35.0, Lng: 139.0}
		floor := heldItem("alice")
		floor.Status = object.StatusDropped
		floor.HolderID = ""
		floor.Location = &loc
		stored, err := s.Insert(ctx, floor, nil)
		if err != nil {
			t.Fatalf("Insert: %v", err)
		}

		picked := stored.Clone()
		picked.Status = object.StatusHeld
		picked.HolderID = "bob"
		picked.Location = nil
		_, err = s.UpdateIf(ctx, picked, Condition{
			Status:   object.StatusDropped,
			Version:  stored.Version,
			Capacity: &Capacity{HolderID: "bob", Max: 1},
		})
		if !errors.Is(err, ErrAtCapacity) {
			t.Fatalf("expected ErrAtCapacity, got %v", err)
		}

		read, _ := s.Get(ctx, stored.ID)
		if read.Status != object.StatusDropped || read.Version != stored.Version {
			t.Errorf("rejected pick mutated the object: %+v", read)
		}
	})

	t.Run("StaleVersionBeatsCapacity", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		if _, err := s.Insert(ctx, heldItem("bob"), nil); err != nil {
			t.Fatalf("Insert: %v", err)
		}

		loc := geo.Coordinate{Lat: 35.0, Lng: 139.0}
		floor := heldItem("alice")
		floor.Status = object.StatusDropped
		floor.HolderID = ""
		floor.Location = &loc
		stored, err := s.Insert(ctx, floor, nil)
		if err != nil {
			t.Fatalf("Insert: %v", err)
		}

		taken := stored.Clone()
		taken.Status = object.StatusHeld
		taken.HolderID = "carol"
		taken.Location = nil
		if _, err := s.UpdateIf(ctx, taken, Condition{Status: object.StatusDropped, Version: stored.Version}); err != nil {
			t.Fatalf("UpdateIf (carol): %v", err)
		}

		late := stored.Clone()
		late.Status = object.StatusHeld
		late.HolderID = "bob"
		late.Location = nil
		_, err = s.UpdateIf(ctx, late, Condition{
			Status:   object.StatusDropped,
			Version:  stored.Version,
			Capacity: &Capacity{HolderID: "bob", Max: 1},
		})
		if !errors.Is(err, ErrConflict) {
			t.Fatalf("expected ErrConflict for a lost race by a full holder, got %v", err)
		}
	})

	t.Run("ListHeldBy", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		for range 3 {
			if _, err := s.Insert(ctx, heldItem("bob"), nil); err != nil {
				t.Fatalf("Insert: %v", err)
			}
		}
		if _, err := s.Insert(ctx, heldItem("carol"), nil); err != nil {
			t.Fatalf("Insert: %v", err)
		}
		held, err := s.ListHeldBy(ctx, "bob")
		if err != nil {
			t.Fatalf("ListHeldBy: %v", err)
		}
		if len(held) != 3 {
			t.Errorf("ListHeldBy = %d, want 3", len(held))
		}
		for _, o := range held {
			if o.HolderID != "bob" {
				t.Errorf("foreign item %s held by %q", o.ID, o.HolderID)
			}
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := newStore(t).Ping(context.Background()); err != nil {
			t.Errorf("Ping: %v", err)
		}
	})
}
