// Package placement turns a throw (origin, bearing, distance) into a final
// landing coordinate and fixes the place names for it.
package placement

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ryanbastic/go-geodrop/internal/geo"
	"github.com/ryanbastic/go-geodrop/internal/naming"
	"github.com/ryanbastic/go-geodrop/internal/zone"
)

// ErrInvalidThrow is returned for throws that cannot be planned.
var ErrInvalidThrow = errors.New("invalid throw")

// Throw is the caller-supplied launch parameters.
type Throw struct {
	BearingDeg float64 `json:"bearing_deg"`
	DistanceKm float64 `json:"distance_km"`
}

// Plan is the geometric result of a throw.
type Plan struct {
	Origin        geo.Coordinate `json:"origin"`
	Requested     geo.Coordinate `json:"requested"`
	Final         geo.Coordinate `json:"final"`
	WasRedirected bool           `json:"was_redirected"`
	Reason        string         `json:"reason,omitempty"`
	ZoneID        string         `json:"zone_id,omitempty"`
}

// Planner computes landings. It holds no mutable state beyond the policy.
type Planner struct {
	policy        *zone.Policy
	resolver      naming.Resolver
	namingTimeout time.Duration
}

// NewPlanner creates a Planner. resolver may be nil, in which case every
// placement is labelled naming.UnknownLocation.
func NewPlanner(policy *zone.Policy, resolver naming.Resolver, namingTimeout time.Duration) *Planner {
	return &Planner{policy: policy, resolver: resolver, namingTimeout: namingTimeout}
}

// Policy returns the zone policy used by the planner.
func (p *Planner) Policy() *zone.Policy {
	return p.policy
}

// PlanThrow projects the throw and applies the zone policy. The final
// coordinate is never inside a restricted zone. Distance has no upper
// bound here; range limits belong to the caller.
func (p *Planner) PlanThrow(origin geo.Coordinate, bearingDeg, distanceKm float64) (Plan, error) {
	if err := geo.Validate(origin); err != nil {
		return Plan{}, fmt.Errorf("%w: origin: %v", ErrInvalidThrow, err)
	}
	if math.IsNaN(bearingDeg) || math.IsInf(bearingDeg, 0) {
		return Plan{}, fmt.Errorf("%w: bearing %f", ErrInvalidThrow, bearingDeg)
	}
	if math.IsNaN(distanceKm) || math.IsInf(distanceKm, 0) || distanceKm < 0 {
		return Plan{}, fmt.Errorf("%w: distance %f", ErrInvalidThrow, distanceKm)
	}

	requested := geo.Project(origin, bearingDeg, distanceKm)
	landing := p.policy.ResolveLanding(requested)
	return Plan{
		Origin:        origin,
		Requested:     requested,
		Final:         landing.Location,
		WasRedirected: landing.WasRedirected,
		Reason:        landing.Reason,
		ZoneID:        landing.ZoneID,
	}, nil
}
