package placement

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/ryanbastic/go-geodrop/internal/geo"
	"github.com/ryanbastic/go-geodrop/internal/naming"
	"github.com/ryanbastic/go-geodrop/internal/zone"
)

var tokyoStation = geo.Coordinate{Lat: 35.6812, Lng: 139.7671}

func newTestPlanner(t *testing.T, r naming.Resolver) *Planner {
	t.Helper()
	policy, err := zone.NewPolicy(zone.DefaultZones(), zone.WithRand(rand.New(rand.NewPCG(1, 2))))
	if err != nil {
		t.Fatalf("NewPolicy: %v", err)
	}
	return NewPlanner(policy, r, 50*time.Millisecond)
}

func TestPlanThrow_TokyoStationNorth(t *testing.T) {
	p := newTestPlanner(t, nil)

	plan, err := p.PlanThrow(tokyoStation, 0, 1)
	if err != nil {
		t.Fatalf("PlanThrow: %v", err)
	}
	if math.Abs(plan.Final.Lat-35.6902) > 0.001 || math.Abs(plan.Final.Lng-139.7671) > 0.001 {
		t.Errorf("final: got %v, want ~(35.6902, 139.7671)", plan.Final)
	}
	if plan.WasRedirected {
		t.Error("unexpected redirection")
	}
	if plan.Final != plan.Requested {
		t.Errorf("final %v should equal requested %v", plan.Final, plan.Requested)
	}
}

func TestPlanThrow_IntoRestrictedZone(t *testing.T) {
	p := newTestPlanner(t, nil)
	palace := zone.Bounds{MinLat: 35.680, MaxLat: 35.690, MinLng: 139.745, MaxLng: 139.760}

	// From Tokyo Station, ~1.1 km west lands inside the palace grounds.
	plan, err := p.PlanThrow(tokyoStation, 280, 1.1)
	if err != nil {
		t.Fatalf("PlanThrow: %v", err)
	}
	if !palace.Contains(plan.Requested) {
		t.Fatalf("test setup: requested %v should be inside the palace", plan.Requested)
	}
	if !plan.WasRedirected {
		t.Error("expected redirection")
	}
	if palace.Contains(plan.Final) {
		t.Errorf("final %v is inside the palace", plan.Final)
	}
	if plan.ZoneID != "imperial-palace" || plan.Reason == "" {
		t.Errorf("zone/reason: got %q / %q", plan.ZoneID, plan.Reason)
	}
}

func TestPlanThrow_NoCeiling(t *testing.T) {
	p := newTestPlanner(t, nil)
	plan, err := p.PlanThrow(tokyoStation, 90, 5000)
	if err != nil {
		t.Fatalf("PlanThrow: %v", err)
	}
	d := geo.Distance(tokyoStation, plan.Final)
	if math.Abs(d-5000) > 5 {
		t.Errorf("distance: got %f km, want ~5000", d)
	}
}

func TestPlanThrow_Invalid(t *testing.T) {
	p := newTestPlanner(t, nil)
	tests := []struct {
		name     string
		origin   geo.Coordinate
		bearing  float64
		distance float64
	}{
		{"bad origin", geo.Coordinate{Lat: 95}, 0, 1},
		{"negative distance", tokyoStation, 0, -1},
		{"nan distance", tokyoStation, 0, math.NaN()},
		{"inf bearing", tokyoStation, math.Inf(1), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := p.PlanThrow(tt.origin, tt.bearing, tt.distance); !errors.Is(err, ErrInvalidThrow) {
				t.Errorf("expected ErrInvalidThrow, got %v", err)
			}
		})
	}
}

func TestPlace_PhasesInOrder(t *testing.T) {
	p := newTestPlanner(t, naming.Static("Marunouchi, Japan"))

	var phases []Phase
	pl, err := p.Place(context.Background(), tokyoStation, Throw{BearingDeg: 0, DistanceKm: 1}, func(ph Phase, _ Placement) {
		phases = append(phases, ph)
	})
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	want := []Phase{PhasePlanning, PhaseRedirectCheck, PhaseNameResolving, PhaseCommitted}
	if len(phases) != len(want) {
		t.Fatalf("phases: got %v", phases)
	}
	for i := range want {
		if phases[i] != want[i] {
			t.Errorf("phase %d: got %s, want %s", i, phases[i], want[i])
		}
	}
	if pl.Phase != PhaseCommitted {
		t.Errorf("final phase: got %s", pl.Phase)
	}
	if pl.OriginName != "Marunouchi, Japan" || pl.ArrivalName != "Marunouchi, Japan" {
		t.Errorf("names: got %q / %q", pl.OriginName, pl.ArrivalName)
	}
	if pl.NamingDegraded {
		t.Error("naming should not be degraded")
	}
}

func TestPlace_ArrivalNamedAfterRedirect(t *testing.T) {
	var mu sync.Mutex
	var asked []geo.Coordinate
	r := naming.Func(func(ctx context.Context, c geo.Coordinate) (string, error) {
		mu.Lock()
		asked = append(asked, c)
		mu.Unlock()
		if c == tokyoStation {
			return "Tokyo Station", nil
		}
		return "Near Tokyo Station", nil
	})
	p := newTestPlanner(t, r)

	pl, err := p.Place(context.Background(), tokyoStation, Throw{BearingDeg: 280, DistanceKm: 1.1}, nil)
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	if !pl.Plan.WasRedirected {
		t.Fatal("expected redirection")
	}
	found := false
	for _, c := range asked {
		if c == pl.Plan.Requested {
			t.Error("requested (restricted) point must not be named")
		}
		if c == pl.Plan.Final {
			found = true
		}
	}
	if !found {
		t.Error("final coordinate was never named")
	}
	if pl.ArrivalName != "Near Tokyo Station" {
		t.Errorf("arrival name: got %q", pl.ArrivalName)
	}
}

func TestPlace_NamingFailureFallsBack(t *testing.T) {
	r := naming.Func(func(ctx context.Context, c geo.Coordinate) (string, error) {
		return "", errors.New("rate limited")
	})
	p := newTestPlanner(t, r)

	pl, err := p.Place(context.Background(), tokyoStation, Throw{DistanceKm: 0.5}, nil)
	if err != nil {
		t.Fatalf("Place must not fail on naming errors: %v", err)
	}
	if pl.OriginName != naming.UnknownLocation || pl.ArrivalName != naming.UnknownLocation {
		t.Errorf("names: got %q / %q", pl.OriginName, pl.ArrivalName)
	}
	if !pl.NamingDegraded {
		t.Error("expected degraded naming")
	}
	if pl.Phase != PhaseCommitted {
		t.Errorf("phase: got %s", pl.Phase)
	}
}

func TestPlace_NamingTimeoutDoesNotBlock(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	r := naming.Func(func(ctx context.Context, c geo.Coordinate) (string, error) {
		<-block
		return "never", nil
	})
	p := newTestPlanner(t, r)

	start := time.Now()
	pl, err := p.Place(context.Background(), tokyoStation, Throw{DistanceKm: 0.5}, nil)
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("placement blocked on naming")
	}
	if pl.ArrivalName != naming.UnknownLocation {
		t.Errorf("arrival: got %q", pl.ArrivalName)
	}
}

func TestPlace_CancelledContextStillCommits(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := newTestPlanner(t, naming.Func(func(ctx context.Context, c geo.Coordinate) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}))

	pl, err := p.Place(ctx, tokyoStation, Throw{DistanceKm: 0.5}, nil)
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	if pl.Phase != PhaseCommitted || pl.ArrivalName != naming.UnknownLocation {
		t.Errorf("got %+v", pl)
	}
}

func TestPlace_InvalidThrow(t *testing.T) {
	p := newTestPlanner(t, nil)
	if _, err := p.Place(context.Background(), tokyoStation, Throw{DistanceKm: -3}, nil); !errors.Is(err, ErrInvalidThrow) {
		t.Errorf("expected ErrInvalidThrow, got %v", err)
	}
}

func TestTiers(t *testing.T) {
	tiers := DefaultTiers()
	medium, err := tiers.Lookup("medium")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got := medium.Distance(0); got != 1 {
		t.Errorf("power 0: got %f", got)
	}
	if got := medium.Distance(1); got != 10 {
		t.Errorf("power 1: got %f", got)
	}
	if got := medium.Distance(0.5); got != 5.5 {
		t.Errorf("power 0.5: got %f", got)
	}
	if got := medium.Distance(3); got != 10 {
		t.Errorf("clamped power: got %f", got)
	}
	if _, err := tiers.Lookup("orbital"); !errors.Is(err, ErrInvalidThrow) {
		t.Errorf("unknown tier: got %v", err)
	}
}
