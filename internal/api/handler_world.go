package api

import (
	"context"
	"log/slog"
	"strconv"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/ryanbastic/go-geodrop/internal/geo"
	"github.com/ryanbastic/go-geodrop/internal/lifecycle"
	"github.com/ryanbastic/go-geodrop/internal/object"
	"github.com/ryanbastic/go-geodrop/internal/placement"
)

// --- Shared request/response types ---

// ThrowRequest selects a throw either by explicit distance or by a named
// range tier and a power in [0,1].
type ThrowRequest struct {
	BearingDeg float64  `json:"bearing_deg" doc:"Compass bearing in degrees, 0 is north"`
	DistanceKm *float64 `json:"distance_km,omitempty" doc:"Explicit throw distance in km"`
	Tier       string   `json:"tier,omitempty" doc:"Range tier name (short, medium, long)"`
	Power      float64  `json:"power,omitempty" doc:"Throw power within the tier" minimum:"0" maximum:"1"`
}

// DropResponse is returned by every operation that places an object.
type DropResponse struct {
	Object         *object.WorldObject `json:"object" doc:"Stored object after the drop"`
	Phases         []placement.Phase   `json:"phases" doc:"Placement phases in the order they ran"`
	NamingDegraded bool                `json:"naming_degraded" doc:"A place name fell back to the unknown label"`
}

type DropOutput struct {
	Body DropResponse
}

// --- Handler ---

// WorldHandler exposes the lifecycle engine over HTTP.
type WorldHandler struct {
	mgr      *lifecycle.Manager
	sessions *lifecycle.Sessions
	tiers    placement.Tiers
	logger   *slog.Logger
}

func NewWorldHandler(mgr *lifecycle.Manager, sessions *lifecycle.Sessions, tiers placement.Tiers, logger *slog.Logger) *WorldHandler {
	return &WorldHandler{mgr: mgr, sessions: sessions, tiers: tiers, logger: logger}
}

// locate returns where the actor stands. A supplied fix is recorded on the
// actor's tracker first so later requests and the position stream agree.
func (h *WorldHandler) locate(ctx context.Context, actor string, fix *geo.Coordinate) (geo.Coordinate, error) {
	if fix != nil {
		if err := h.sessions.Tracker(actor).Update(*fix); err != nil {
			return geo.Coordinate{}, huma.Error422UnprocessableEntity(err.Error())
		}
		return *fix, nil
	}
	return h.sessions.For(actor).Position(ctx), nil
}

// locateQuery is locate for string query parameters; both or neither of
// lat and lng must be set.
func (h *WorldHandler) locateQuery(ctx context.Context, actor, lat, lng string) (geo.Coordinate, error) {
	if lat == "" && lng == "" {
		return h.locate(ctx, actor, nil)
	}
	c, err := parseCoordinate(lat, lng)
	if err != nil {
		return geo.Coordinate{}, err
	}
	return h.locate(ctx, actor, &c)
}

func (h *WorldHandler) throw(r ThrowRequest) (placement.Throw, error) {
	if r.Tier != "" {
		tier, err := h.tiers.Lookup(r.Tier)
		if err != nil {
			return placement.Throw{}, huma.Error422UnprocessableEntity(err.Error())
		}
		return placement.Throw{BearingDeg: r.BearingDeg, DistanceKm: tier.Distance(r.Power)}, nil
	}
	if r.DistanceKm == nil {
		return placement.Throw{}, huma.Error422UnprocessableEntity("throw needs distance_km or tier")
	}
	return placement.Throw{BearingDeg: r.BearingDeg, DistanceKm: *r.DistanceKm}, nil
}

// phaseLog collects placement phases for the response.
type phaseLog struct {
	mu       sync.Mutex
	phases   []placement.Phase
	degraded bool
}

func (l *phaseLog) observe(ph placement.Phase, pl placement.Placement) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.phases = append(l.phases, ph)
	l.degraded = pl.NamingDegraded
}

func (l *phaseLog) output(o *object.WorldObject) *DropOutput {
	l.mu.Lock()
	defer l.mu.Unlock()
	return &DropOutput{Body: DropResponse{Object: o, Phases: l.phases, NamingDegraded: l.degraded}}
}

func parseID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, huma.Error400BadRequest("invalid id")
	}
	return id, nil
}

func parseCoordinate(lat, lng string) (geo.Coordinate, error) {
	if lat == "" || lng == "" {
		return geo.Coordinate{}, huma.Error400BadRequest("lat and lng must be given together")
	}
	la, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return geo.Coordinate{}, huma.Error400BadRequest("invalid lat")
	}
	ln, err := strconv.ParseFloat(lng, 64)
	if err != nil {
		return geo.Coordinate{}, huma.Error400BadRequest("invalid lng")
	}
	c := geo.Coordinate{Lat: la, Lng: ln}
	if err := geo.Validate(c); err != nil {
		return geo.Coordinate{}, huma.Error422UnprocessableEntity(err.Error())
	}
	return c, nil
}
