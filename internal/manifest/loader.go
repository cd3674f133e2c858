package manifest

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Parse decodes a manifest from JSON or YAML bytes. Semantic problems are left
// for the validator so they can be reported together.
func Parse(data []byte) (Manifest, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Manifest{}, fmt.Errorf("manifest: payload is empty")
	}
	var probe struct {
		Processors *yaml.Node `yaml:"processors"`
	}
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return Manifest{}, fmt.Errorf("manifest: decode: %w", err)
	}
	if probe.Processors == nil {
		return Manifest{}, fmt.Errorf("manifest: processors list is required")
	}
	if probe.Processors.Kind != yaml.SequenceNode {
		return Manifest{}, fmt.Errorf("manifest: processors must be a list")
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("manifest: decode: %w", err)
	}
	return m, nil
}

// LoadReader reads manifest data from an io.Reader.
func LoadReader(r io.Reader) (Manifest, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return Manifest{}, fmt.Errorf("manifest: read: %w", err)
	}
	return Parse(content)
}

// LoadFile loads a manifest from an explicit file path.
func LoadFile(path string) (Manifest, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("manifest: read %s: %w", path, err)
	}
	m, parseErr := Parse(content)
	if parseErr != nil {
		return Manifest{}, fmt.Errorf("manifest: %s: %w", path, parseErr)
	}
	m.Source = path
	return m, nil
}
