// Package metric defines the sample model shared by the ingest surface
// and the grouping pipeline.
package metric

import (
	"encoding/json"
	"fmt"
)

// Sample is one timestamped metric observation. Samples are immutable
// once received; Attributes carries the per-sample keys that
// definitions may name as identity tags.
type Sample struct {
	// Source is the emitting subsystem, e.g. "OpenMotics".
	Source string
	// Family is the metric family ("type" in the wire schema),
	// e.g. "energy". It becomes the line-protocol measurement.
	Family string
	// Name is the metric name within the family, e.g. "power".
	// It becomes a field key.
	Name string
	// Timestamp is seconds since the Unix epoch.
	Timestamp int64
	// Value is the observed scalar.
	Value Value
	// Attributes holds the remaining sample keys.
	Attributes map[string]Value
}

// Attribute returns the named extra attribute.
func (s Sample) Attribute(key string) (Value, bool) {
	v, ok := s.Attributes[key]

	return v, ok
}

// UnmarshalJSON decodes the flat wire schema: the well-known keys
// source/type/metric/timestamp/value plus arbitrary extra attributes
// at the same level.
func (s *Sample) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage

	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decoding sample object: %w", err)
	}

	decoded := Sample{Attributes: make(map[string]Value, len(raw))}

	for key, msg := range raw {
		switch key {
		case "source":
			if err := json.Unmarshal(msg, &decoded.Source); err != nil {
				return fmt.Errorf("decoding sample source: %w", err)
			}
		case "type":
			if err := json.Unmarshal(msg, &decoded.Family); err != nil {
				return fmt.Errorf("decoding sample type: %w", err)
			}
		case "metric":
			if err := json.Unmarshal(msg, &decoded.Name); err != nil {
				return fmt.Errorf("decoding sample metric: %w", err)
			}
		case "timestamp":
			if err := json.Unmarshal(msg, &decoded.Timestamp); err != nil {
				return fmt.Errorf("decoding sample timestamp: %w", err)
			}
		case "value":
			if err := json.Unmarshal(msg, &decoded.Value); err != nil {
				return fmt.Errorf("decoding sample value: %w", err)
			}
		default:
			var v Value
			if err := json.Unmarshal(msg, &v); err != nil {
				return fmt.Errorf("decoding sample attribute %q: %w", key, err)
			}

			decoded.Attributes[key] = v
		}
	}

	if decoded.Source == "" {
		return fmt.Errorf("sample is missing source")
	}

	if decoded.Family == "" {
		return fmt.Errorf("sample is missing type")
	}

	if decoded.Name == "" {
		return fmt.Errorf("sample is missing metric")
	}

	*s = decoded

	return nil
}
