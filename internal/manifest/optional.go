package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// OptionalPath is an artifact path that may be absent. A JSON/YAML null and
// a missing key both decode to the unset state.
type OptionalPath struct {
	Value string
	Valid bool
}

// Path returns a set OptionalPath.
func Path(value string) OptionalPath {
	return OptionalPath{Value: value, Valid: true}
}

// None returns an unset OptionalPath.
func None() OptionalPath {
	return OptionalPath{}
}

// Get returns the path and whether it is set.
func (p OptionalPath) Get() (string, bool) {
	return p.Value, p.Valid
}

// IsZero lets yaml omitempty drop unset paths.
func (p OptionalPath) IsZero() bool {
	return !p.Valid
}

func (p OptionalPath) String() string {
	if !p.Valid {
		return "<none>"
	}
	return p.Value
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (p *OptionalPath) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode && node.ShortTag() == "!!null" {
		*p = OptionalPath{}
		return nil
	}
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("manifest: line %d: path must be a string or null", node.Line)
	}
	var value string
	if err := node.Decode(&value); err != nil {
		return err
	}
	*p = OptionalPath{Value: value, Valid: true}
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (p OptionalPath) MarshalYAML() (any, error) {
	if !p.Valid {
		return nil, nil
	}
	return p.Value, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *OptionalPath) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*p = OptionalPath{}
		return nil
	}
	var value string
	if err := json.Unmarshal(data, &value); err != nil {
		return fmt.Errorf("manifest: path must be a string or null: %w", err)
	}
	*p = OptionalPath{Value: value, Valid: true}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (p OptionalPath) MarshalJSON() ([]byte, error) {
	if !p.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(p.Value)
}
