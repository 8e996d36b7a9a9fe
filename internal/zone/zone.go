// Package zone decides whether a landing point is restricted and, if so,
// where the wind carries it instead.
package zone

import (
	"errors"
	"fmt"

	"github.com/ryanbastic/go-geodrop/internal/geo"
)

// ErrInvalidZone is returned when a zone definition cannot be used.
var ErrInvalidZone = errors.New("invalid zone")

// Bounds is an inclusive latitude/longitude rectangle.
type Bounds struct {
	MinLat float64 `yaml:"min_lat" json:"min_lat"`
	MaxLat float64 `yaml:"max_lat" json:"max_lat"`
	MinLng float64 `yaml:"min_lng" json:"min_lng"`
	MaxLng float64 `yaml:"max_lng" json:"max_lng"`
}

// Contains reports whether c lies inside or on the edge of b.
func (b Bounds) Contains(c geo.Coordinate) bool {
	return c.Lat >= b.MinLat && c.Lat <= b.MaxLat && c.Lng >= b.MinLng && c.Lng <= b.MaxLng
}

// Zone is a restricted area with a safe anchor outside every zone.
// Exactly one of Bounds or Polygon is set.
type Zone struct {
	ID      string
	Name    string
	Reason  string
	Bounds  *Bounds
	Polygon []geo.Coordinate
	Anchor  geo.Coordinate
}

// Contains reports whether c falls inside the zone. Points on a polygon
// edge count as inside.
func (z Zone) Contains(c geo.Coordinate) bool {
	if z.Bounds != nil {
		return z.Bounds.Contains(c)
	}
	return polygonContains(z.Polygon, c)
}

func (z Zone) validate() error {
	if z.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidZone)
	}
	switch {
	case z.Bounds != nil && len(z.Polygon) > 0:
		return fmt.Errorf("%w: zone %q has both bounds and polygon", ErrInvalidZone, z.ID)
	case z.Bounds != nil:
		b := z.Bounds
		if b.MinLat > b.MaxLat || b.MinLng > b.MaxLng {
			return fmt.Errorf("%w: zone %q has inverted bounds", ErrInvalidZone, z.ID)
		}
		for _, c := range []geo.Coordinate{{Lat: b.MinLat, Lng: b.MinLng}, {Lat: b.MaxLat, Lng: b.MaxLng}} {
			if err := geo.Validate(c); err != nil {
				return fmt.Errorf("%w: zone %q bounds: %v", ErrInvalidZone, z.ID, err)
			}
		}
	case len(z.Polygon) >= 3:
		for i, c := range z.Polygon {
			if err := geo.Validate(c); err != nil {
				return fmt.Errorf("%w: zone %q vertex %d: %v", ErrInvalidZone, z.ID, i, err)
			}
		}
	case len(z.Polygon) > 0:
		return fmt.Errorf("%w: zone %q polygon needs at least 3 vertices", ErrInvalidZone, z.ID)
	default:
		return fmt.Errorf("%w: zone %q has no shape", ErrInvalidZone, z.ID)
	}
	if err := geo.Validate(z.Anchor); err != nil {
		return fmt.Errorf("%w: zone %q anchor: %v", ErrInvalidZone, z.ID, err)
	}
	return nil
}

// polygonContains is an even-odd ray cast in the lat/lng plane. Restricted
// areas are small enough that planar treatment is accurate.
func polygonContains(poly []geo.Coordinate, c geo.Coordinate) bool {
	if len(poly) < 3 {
		return false
	}
	inside := false
	j := len(poly) - 1
	for i := range poly {
		a, b := poly[i], poly[j]
		if onSegment(a, b, c) {
			return true
		}
		if (a.Lat > c.Lat) != (b.Lat > c.Lat) {
			x := (b.Lng-a.Lng)*(c.Lat-a.Lat)/(b.Lat-a.Lat) + a.Lng
			if c.Lng < x {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

func onSegment(a, b, c geo.Coordinate) bool {
	const eps = 1e-12
	cross := (b.Lng-a.Lng)*(c.Lat-a.Lat) - (b.Lat-a.Lat)*(c.Lng-a.Lng)
	if cross > eps || cross < -eps {
		return false
	}
	return c.Lat >= min(a.Lat, b.Lat)-eps && c.Lat <= max(a.Lat, b.Lat)+eps &&
		c.Lng >= min(a.Lng, b.Lng)-eps && c.Lng <= max(a.Lng, b.Lng)+eps
}

// DefaultZones returns the built-in restricted areas: the Tokyo Imperial
// Palace grounds, anchored at the Tokyo Station plaza.
func DefaultZones() []Zone {
	return []Zone{
		{
			ID:     "imperial-palace",
			Name:   "Imperial Palace",
			Bounds: &Bounds{MinLat: 35.680, MaxLat: 35.690, MinLng: 139.745, MaxLng: 139.760},
			Anchor: geo.Coordinate{Lat: 35.6812, Lng: 139.7671},
		},
	}
}
