package geo

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"
)

var tokyoStation = Coordinate{Lat: 35.6812, Lng: 139.7671}

func TestDistance_Symmetric(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 500; i++ {
		a := randomCoordinate(r)
		b := randomCoordinate(r)
		ab := Distance(a, b)
		ba := Distance(b, a)
		if math.Abs(ab-ba) > 1e-9 {
			t.Fatalf("Distance(%v,%v)=%f but Distance(%v,%v)=%f", a, b, ab, b, a, ba)
		}
	}
}

func TestDistance_ZeroForSamePoint(t *testing.T) {
	if d := Distance(tokyoStation, tokyoStation); d != 0 {
		t.Errorf("got %f, want 0", d)
	}
}

func TestDistance_KnownPair(t *testing.T) {
	// Tokyo Station to Osaka Station is roughly 403 km on the sphere.
	osaka := Coordinate{Lat: 34.7025, Lng: 135.4959}
	d := Distance(tokyoStation, osaka)
	if d < 395 || d > 410 {
		t.Errorf("Tokyo-Osaka: got %f km, want ~403", d)
	}
}

func TestDistance_TriangleInequality(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 4))
	for i := 0; i < 300; i++ {
		a, b, c := randomCoordinate(r), randomCoordinate(r), randomCoordinate(r)
		if Distance(a, c) > Distance(a, b)+Distance(b, c)+1e-6 {
			t.Fatalf("triangle inequality violated for %v %v %v", a, b, c)
		}
	}
}

func TestBearing_Cardinal(t *testing.T) {
	tests := []struct {
		name string
		to   Coordinate
		want float64
	}{
		{"north", Coordinate{Lat: 36.6812, Lng: 139.7671}, 0},
		{"south", Coordinate{Lat: 34.6812, Lng: 139.7671}, 180},
		{"east", Coordinate{Lat: 35.6812, Lng: 139.7771}, 90},
		{"west", Coordinate{Lat: 35.6812, Lng: 139.7571}, 270},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Bearing(tokyoStation, tt.to)
			if math.Abs(got-tt.want) > 0.01 {
				t.Errorf("got %f, want %f", got, tt.want)
			}
		})
	}
}

func TestBearing_Range(t *testing.T) {
	r := rand.New(rand.NewPCG(5, 6))
	for i := 0; i < 500; i++ {
		b := Bearing(randomCoordinate(r), randomCoordinate(r))
		if b < 0 || b >= 360 {
			t.Fatalf("bearing %f outside [0,360)", b)
		}
	}
}

func TestBearing_SamePointIsZero(t *testing.T) {
	if b := Bearing(tokyoStation, tokyoStation); b != 0 {
		t.Errorf("got %f, want 0", b)
	}
}

func TestProject_TokyoStationOneKmNorth(t *testing.T) {
	got := Project(tokyoStation, 0, 1)
	if math.Abs(got.Lat-35.6902) > 0.001 {
		t.Errorf("lat: got %f, want ~35.6902", got.Lat)
	}
	if math.Abs(got.Lng-139.7671) > 0.001 {
		t.Errorf("lng: got %f, want ~139.7671", got.Lng)
	}
}

func TestProject_DistanceRoundTrip(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 8))
	for i := 0; i < 500; i++ {
		a := randomCoordinate(r)
		a.Lat = math.Max(-85, math.Min(85, a.Lat))
		bearing := r.Float64() * 360
		d := r.Float64() * 2000
		got := Distance(a, Project(a, bearing, d))
		tol := math.Max(d*0.001, 0.001)
		if math.Abs(got-d) > tol {
			t.Fatalf("Distance(a, Project(a, %f, %f)) = %f", bearing, d, got)
		}
	}
}

func TestProject_InverseOfBearingAndDistance(t *testing.T) {
	r := rand.New(rand.NewPCG(9, 10))
	for i := 0; i < 500; i++ {
		a := Coordinate{Lat: r.Float64()*140 - 70, Lng: r.Float64()*340 - 170}
		// Keep b within ~1000 km of a.
		b := Project(a, r.Float64()*360, r.Float64()*999)
		back := Project(a, Bearing(a, b), Distance(a, b))
		if math.Abs(back.Lat-b.Lat) > 1e-6 || math.Abs(lngDiff(back.Lng, b.Lng)) > 1e-6 {
			t.Fatalf("round trip from %v: got %v, want %v", a, back, b)
		}
	}
}

func TestProject_WrapsAntimeridian(t *testing.T) {
	got := Project(Coordinate{Lat: 0, Lng: 179.99}, 90, 10)
	if got.Lng >= 180 || got.Lng < -180 {
		t.Fatalf("longitude not normalised: %f", got.Lng)
	}
	if got.Lng > 0 {
		t.Errorf("expected crossing to western hemisphere, got %f", got.Lng)
	}
}

func TestProject_ZeroDistance(t *testing.T) {
	if got := Project(tokyoStation, 123, 0); got != tokyoStation {
		t.Errorf("got %v, want %v", got, tokyoStation)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		c       Coordinate
		wantErr bool
	}{
		{"tokyo", tokyoStation, false},
		{"poles", Coordinate{Lat: 90, Lng: -180}, false},
		{"lat too high", Coordinate{Lat: 90.1, Lng: 0}, true},
		{"lng too low", Coordinate{Lat: 0, Lng: -180.5}, true},
		{"nan", Coordinate{Lat: math.NaN(), Lng: 0}, true},
		{"inf", Coordinate{Lat: 0, Lng: math.Inf(1)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.c)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate(%v) error = %v, wantErr %v", tt.c, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidCoordinate) {
				t.Errorf("expected ErrInvalidCoordinate, got %v", err)
			}
		})
	}
}

func randomCoordinate(r *rand.Rand) Coordinate {
	return Coordinate{Lat: r.Float64()*180 - 90, Lng: r.Float64()*360 - 180}
}

func lngDiff(a, b float64) float64 {
	d := math.Mod(a-b+540, 360) - 180
	return d
}
