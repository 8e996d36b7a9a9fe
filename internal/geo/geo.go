// Package geo implements great-circle math on a spherical earth model.
package geo

import (
	"errors"
	"fmt"
	"math"
)

// EarthRadiusKm is the mean radius used for every calculation in this package.
const EarthRadiusKm = 6371.0

// ErrInvalidCoordinate is returned when a coordinate is outside WGS84 ranges.
var ErrInvalidCoordinate = errors.New("invalid coordinate")

// Coordinate is a point in degrees. It is a value type; copy freely.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Validate checks that c is finite and inside latitude/longitude ranges.
func Validate(c Coordinate) error {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lng) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lng, 0) {
		return fmt.Errorf("%w: non-finite value %v", ErrInvalidCoordinate, c)
	}
	if c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("%w: latitude %f must be between -90 and 90", ErrInvalidCoordinate, c.Lat)
	}
	if c.Lng < -180 || c.Lng > 180 {
		return fmt.Errorf("%w: longitude %f must be between -180 and 180", ErrInvalidCoordinate, c.Lng)
	}
	return nil
}

func (c Coordinate) String() string {
	return fmt.Sprintf("(%.6f, %.6f)", c.Lat, c.Lng)
}

// Distance returns the haversine great-circle distance between a and b in km.
func Distance(a, b Coordinate) float64 {
	phi1 := radians(a.Lat)
	phi2 := radians(b.Lat)
	dPhi := radians(b.Lat - a.Lat)
	dLambda := radians(b.Lng - a.Lng)

	h := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	// Rounding can push h a hair past 1 for antipodal points.
	h = math.Min(1, math.Max(0, h))
	return EarthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// DistanceMeters is Distance expressed in meters.
func DistanceMeters(a, b Coordinate) float64 {
	return Distance(a, b) * 1000
}

// Bearing returns the initial compass bearing from a towards b in [0, 360).
// Coincident points have no direction; 0 is returned.
func Bearing(a, b Coordinate) float64 {
	if a == b {
		return 0
	}
	phi1 := radians(a.Lat)
	phi2 := radians(b.Lat)
	dLambda := radians(b.Lng - a.Lng)

	y := math.Sin(dLambda) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLambda)
	return normalizeBearing(degrees(math.Atan2(y, x)))
}

// Project returns the point reached by travelling distanceKm from origin
// along the great circle that starts at bearingDeg.
func Project(origin Coordinate, bearingDeg, distanceKm float64) Coordinate {
	if distanceKm == 0 {
		return origin
	}
	delta := distanceKm / EarthRadiusKm
	theta := radians(bearingDeg)
	phi1 := radians(origin.Lat)
	lambda1 := radians(origin.Lng)

	sinPhi2 := math.Sin(phi1)*math.Cos(delta) + math.Cos(phi1)*math.Sin(delta)*math.Cos(theta)
	sinPhi2 = math.Min(1, math.Max(-1, sinPhi2))
	phi2 := math.Asin(sinPhi2)

	y := math.Sin(theta) * math.Sin(delta) * math.Cos(phi1)
	x := math.Cos(delta) - math.Sin(phi1)*sinPhi2
	lambda2 := lambda1 + math.Atan2(y, x)

	return Coordinate{Lat: degrees(phi2), Lng: normalizeLng(degrees(lambda2))}
}

func normalizeBearing(deg float64) float64 {
	b := math.Mod(deg+360, 360)
	if b >= 360 {
		b = 0
	}
	return b
}

// normalizeLng wraps a longitude into [-180, 180).
func normalizeLng(deg float64) float64 {
	l := math.Mod(deg+540, 360) - 180
	if l < -180 {
		l += 360
	}
	return l
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
func degrees(rad float64) float64 { return rad * 180 / math.Pi }
