package zone

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/ryanbastic/go-geodrop/internal/geo"
)

// File is the on-disk layout of a zone configuration file.
type File struct {
	JitterDeg *float64    `yaml:"jitter_deg"`
	Zones     []ZoneEntry `yaml:"zones"`
}

// ZoneEntry describes a single restricted zone in a zone file.
type ZoneEntry struct {
	ID      string           `yaml:"id"`
	Name    string           `yaml:"name"`
	Reason  string           `yaml:"reason"`
	Bounds  *Bounds          `yaml:"bounds"`
	Polygon []geo.Coordinate `yaml:"polygon"`
	Anchor  geo.Coordinate   `yaml:"anchor"`
}

const fileSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["zones"],
  "additionalProperties": false,
  "properties": {
    "jitter_deg": {"type": "number", "minimum": 0, "maximum": 1},
    "zones": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "anchor"],
        "additionalProperties": false,
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "name": {"type": "string"},
          "reason": {"type": "string"},
          "bounds": {
            "type": "object",
            "required": ["min_lat", "max_lat", "min_lng", "max_lng"],
            "additionalProperties": false,
            "properties": {
              "min_lat": {"type": "number"},
              "max_lat": {"type": "number"},
              "min_lng": {"type": "number"},
              "max_lng": {"type": "number"}
            }
          },
          "polygon": {
            "type": "array",
            "minItems": 3,
            "items": {"$ref": "#/definitions/coordinate"}
          },
          "anchor": {"$ref": "#/definitions/coordinate"}
        },
        "oneOf": [
          {"required": ["bounds"]},
          {"required": ["polygon"]}
        ]
      }
    }
  },
  "definitions": {
    "coordinate": {
      "type": "object",
      "required": ["lat", "lng"],
      "additionalProperties": false,
      "properties": {
        "lat": {"type": "number", "minimum": -90, "maximum": 90},
        "lng": {"type": "number", "minimum": -180, "maximum": 180}
      }
    }
  }
}`

var compiledSchema = jsonschema.MustCompileString("zones.schema.json", fileSchema)

// LoadFile reads a YAML zone file, validates it against the zone schema and
// returns the zones and the configured jitter (nil when not set).
func LoadFile(path string) ([]Zone, *float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read zone file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates zone file content.
func Parse(data []byte) ([]Zone, *float64, error) {
	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return nil, nil, fmt.Errorf("parse zone file: %w", err)
	}
	// The schema validator expects JSON-shaped values.
	raw, err := json.Marshal(generic)
	if err != nil {
		return nil, nil, fmt.Errorf("zone file: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, nil, fmt.Errorf("zone file: %w", err)
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidZone, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, nil, fmt.Errorf("parse zone file: %w", err)
	}

	zones := make([]Zone, len(f.Zones))
	for i, e := range f.Zones {
		zones[i] = Zone{
			ID:      e.ID,
			Name:    e.Name,
			Reason:  e.Reason,
			Bounds:  e.Bounds,
			Polygon: e.Polygon,
			Anchor:  e.Anchor,
		}
	}
	return zones, f.JitterDeg, nil
}
