// Package proximity ranks dropped objects by distance from an actor.
//
// Callers pass an already visibility-filtered set; nothing here decides who
// may see what.
package proximity

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ryanbastic/go-geodrop/internal/geo"
	"github.com/ryanbastic/go-geodrop/internal/object"
)

const (
	DefaultDiscoveryRadiusM   = 1000.0
	DefaultInteractionRadiusM = 50.0
)

// ErrInvalidRadii is returned by Radii.Validate.
var ErrInvalidRadii = errors.New("invalid radii")

// Hit is an object seen from a position.
type Hit struct {
	Object     *object.WorldObject
	DistanceM  float64
	BearingDeg float64
}

// Nearest returns the closest dropped object. When several objects are
// equally close the first one in input order wins, so the result depends
// on the order the caller supplies.
func Nearest(at geo.Coordinate, objects []*object.WorldObject) (Hit, bool) {
	var (
		best  Hit
		found bool
	)
	for _, o := range objects {
		if o == nil || o.Status != object.StatusDropped || o.Location == nil {
			continue
		}
		d := geo.DistanceMeters(at, *o.Location)
		if !found || d < best.DistanceM {
			best = Hit{Object: o, DistanceM: d, BearingDeg: geo.Bearing(at, *o.Location)}
			found = true
		}
	}
	return best, found
}

// WithinRadius returns dropped objects no farther than radiusM, closest
// first. Equal distances keep input order.
func WithinRadius(at geo.Coordinate, objects []*object.WorldObject, radiusM float64) []Hit {
	var hits []Hit
	for _, o := range objects {
		if o == nil || o.Status != object.StatusDropped || o.Location == nil {
			continue
		}
		d := geo.DistanceMeters(at, *o.Location)
		if d > radiusM {
			continue
		}
		hits = append(hits, Hit{Object: o, DistanceM: d, BearingDeg: geo.Bearing(at, *o.Location)})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].DistanceM < hits[j].DistanceM })
	return hits
}

// Radii pairs the coarse discovery radius with the fine interaction radius.
type Radii struct {
	DiscoveryM   float64
	InteractionM float64
}

// DefaultRadii returns the standard 1 km discovery / 50 m interaction pair.
func DefaultRadii() Radii {
	return Radii{DiscoveryM: DefaultDiscoveryRadiusM, InteractionM: DefaultInteractionRadiusM}
}

func (r Radii) Validate() error {
	if r.InteractionM <= 0 {
		return fmt.Errorf("%w: interaction radius %f must be positive", ErrInvalidRadii, r.InteractionM)
	}
	if r.DiscoveryM < r.InteractionM {
		return fmt.Errorf("%w: discovery radius %f is smaller than interaction radius %f", ErrInvalidRadii, r.DiscoveryM, r.InteractionM)
	}
	return nil
}

// Reach classifies how close an object is.
type Reach int

const (
	Hidden       Reach = iota // beyond the discovery radius
	Mystery                   // discoverable, shown as a hint only
	Interactable              // close enough to pick or collect
)

func (r Reach) String() string {
	switch r {
	case Mystery:
		return "mystery"
	case Interactable:
		return "interactable"
	}
	return "hidden"
}

// Classify maps a distance to a Reach.
func (r Radii) Classify(distanceM float64) Reach {
	switch {
	case distanceM <= r.InteractionM:
		return Interactable
	case distanceM <= r.DiscoveryM:
		return Mystery
	default:
		return Hidden
	}
}

// CanInteract reports whether distanceM is within the interaction radius.
func (r Radii) CanInteract(distanceM float64) bool {
	return r.Classify(distanceM) == Interactable
}
