package proximity

import (
	"github.com/google/uuid"

	"github.com/ryanbastic/go-geodrop/internal/object"
)

// Sighting is what an actor is shown about a nearby object. Objects outside
// the interaction radius are masked: kind, distance and bearing only.
type Sighting struct {
	ID         uuid.UUID   `json:"id"`
	Kind       object.Kind `json:"kind"`
	DistanceM  float64     `json:"distance_m"`
	BearingDeg float64     `json:"bearing_deg"`
	Reach      string      `json:"reach"`
	Mystery    bool        `json:"mystery"`

	// Set only when interactable.
	Object *object.WorldObject `json:"object,omitempty"`
}

// Project turns hits into sightings for the given radii. Hits beyond the
// discovery radius are dropped.
func Project(hits []Hit, radii Radii) []Sighting {
	out := make([]Sighting, 0, len(hits))
	for _, h := range hits {
		if radii.Classify(h.DistanceM) == Hidden {
			continue
		}
		out = append(out, Sight(h, radii))
	}
	return out
}

// Sight describes a single hit. A hit beyond the discovery radius is still
// reported, as a masked direction hint.
func Sight(h Hit, radii Radii) Sighting {
	reach := radii.Classify(h.DistanceM)
	s := Sighting{
		ID:         h.Object.ID,
		Kind:       h.Object.Kind,
		DistanceM:  h.DistanceM,
		BearingDeg: h.BearingDeg,
		Reach:      reach.String(),
		Mystery:    reach != Interactable,
	}
	if reach == Interactable {
		s.Object = h.Object.Clone()
	}
	return s
}
