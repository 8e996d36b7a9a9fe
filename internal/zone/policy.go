package zone

import (
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/ryanbastic/go-geodrop/internal/geo"
)

const (
	// DefaultJitterDeg bounds the random offset around a safe anchor, per axis.
	DefaultJitterDeg = 0.005

	jitterAttempts = 8
)

// Landing is the outcome of ResolveLanding.
type Landing struct {
	Location      geo.Coordinate `json:"location"`
	WasRedirected bool           `json:"was_redirected"`
	Reason        string         `json:"reason,omitempty"`
	ZoneID        string         `json:"zone_id,omitempty"`
}

// Policy holds the configured restricted zones. It is safe for concurrent use.
type Policy struct {
	zones  []Zone
	jitter float64

	mu  sync.Mutex
	rng *rand.Rand
}

// Option configures a Policy.
type Option func(*Policy)

// WithJitter sets the maximum per-axis offset, in degrees, applied around an anchor.
func WithJitter(deg float64) Option {
	return func(p *Policy) { p.jitter = deg }
}

// WithRand replaces the random source, for deterministic tests.
func WithRand(r *rand.Rand) Option {
	return func(p *Policy) { p.rng = r }
}

// NewPolicy validates zones and returns a Policy. Every anchor must lie
// outside all zones, otherwise redirection could land inside another one.
func NewPolicy(zones []Zone, opts ...Option) (*Policy, error) {
	p := &Policy{
		zones:  append([]Zone(nil), zones...),
		jitter: DefaultJitterDeg,
		rng:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.jitter < 0 {
		return nil, fmt.Errorf("%w: negative jitter %f", ErrInvalidZone, p.jitter)
	}

	seen := make(map[string]bool, len(p.zones))
	for _, z := range p.zones {
		if err := z.validate(); err != nil {
			return nil, err
		}
		if seen[z.ID] {
			return nil, fmt.Errorf("%w: duplicate zone id %q", ErrInvalidZone, z.ID)
		}
		seen[z.ID] = true
	}
	for _, z := range p.zones {
		if other, ok := p.IsRestricted(z.Anchor); ok {
			return nil, fmt.Errorf("%w: anchor of zone %q lies inside zone %q", ErrInvalidZone, z.ID, other.ID)
		}
	}
	return p, nil
}

// Zones returns a copy of the configured zones.
func (p *Policy) Zones() []Zone {
	return append([]Zone(nil), p.zones...)
}

// IsRestricted returns the first configured zone containing c.
func (p *Policy) IsRestricted(c geo.Coordinate) (Zone, bool) {
	for _, z := range p.zones {
		if z.Contains(c) {
			return z, true
		}
	}
	return Zone{}, false
}

// ResolveLanding returns c unchanged when it is unrestricted. Otherwise the
// landing moves to a jittered point around the zone's anchor; the result is
// never restricted.
func (p *Policy) ResolveLanding(c geo.Coordinate) Landing {
	z, ok := p.IsRestricted(c)
	if !ok {
		return Landing{Location: c}
	}

	loc := z.Anchor
	for range jitterAttempts {
		candidate := p.jittered(z.Anchor)
		if geo.Validate(candidate) != nil {
			continue
		}
		if _, restricted := p.IsRestricted(candidate); !restricted {
			loc = candidate
			break
		}
	}

	return Landing{
		Location:      loc,
		WasRedirected: true,
		Reason:        reasonFor(z),
		ZoneID:        z.ID,
	}
}

func (p *Policy) jittered(anchor geo.Coordinate) geo.Coordinate {
	if p.jitter == 0 {
		return anchor
	}
	p.mu.Lock()
	dLat := (p.rng.Float64()*2 - 1) * p.jitter
	dLng := (p.rng.Float64()*2 - 1) * p.jitter
	p.mu.Unlock()
	return geo.Coordinate{Lat: anchor.Lat + dLat, Lng: anchor.Lng + dLng}
}

func reasonFor(z Zone) string {
	if z.Reason != "" {
		return z.Reason
	}
	name := z.Name
	if name == "" {
		name = z.ID
	}
	return "Strong winds blew your throw away from " + name
}
