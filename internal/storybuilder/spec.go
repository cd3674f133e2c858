// Package storybuilder turns a requirement spec into user stories, maps the
// requirements onto their acceptance criteria, and writes the story files,
// the stories manifest and the traceability report.
package storybuilder

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/gfenimore/service-software-factory-v2-sub000/internal/traceability"
)

// Feature is an optional story outline in the spec. Criteria are free text.
type Feature struct {
	ID       string   `json:"id,omitempty"`
	Title    string   `json:"title"`
	Role     string   `json:"role,omitempty"`
	Goal     string   `json:"goal,omitempty"`
	Benefit  string   `json:"benefit,omitempty"`
	Category string   `json:"category,omitempty"`
	Criteria []string `json:"criteria"`
}

// storyIDPattern keeps story ids usable as file names below stories/ and
// readable from a story title line.
var storyIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// StoryID returns the id of the story generated for the feature at index i.
func (f Feature) StoryID(i int) string {
	if id := strings.TrimSpace(f.ID); id != "" {
		return id
	}
	return storyID(i + 1)
}

// Spec is the story builder input: the requirement document plus optional
// feature outlines.
type Spec struct {
	traceability.Document
	Features []Feature `json:"features,omitempty"`
}

// ParseSpec decodes a spec and validates its requirement set.
func ParseSpec(data []byte) (Spec, traceability.RequirementSet, error) {
	var spec Spec
	if err := json.Unmarshal(data, &spec); err != nil {
		return Spec{}, traceability.RequirementSet{}, fmt.Errorf("storybuilder: parse spec: %w", err)
	}
	set, err := spec.Set()
	if err != nil {
		return Spec{}, traceability.RequirementSet{}, err
	}
	if err := spec.validateFeatures(); err != nil {
		return Spec{}, traceability.RequirementSet{}, err
	}
	return spec, set, nil
}

func (s Spec) validateFeatures() error {
	seen := make(map[string]int, len(s.Features))
	for i, f := range s.Features {
		if strings.TrimSpace(f.Title) == "" {
			return fmt.Errorf("storybuilder: features[%d]: title is required", i)
		}
		id := f.StoryID(i)
		if !storyIDPattern.MatchString(id) {
			return fmt.Errorf("storybuilder: features[%d]: invalid story id %q", i, id)
		}
		if prev, dup := seen[id]; dup {
			return fmt.Errorf("storybuilder: features[%d]: story id %q already used by features[%d]", i, id, prev)
		}
		seen[id] = i
	}
	return nil
}

// LoadSpec reads a spec file.
func LoadSpec(path string) (Spec, traceability.RequirementSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Spec{}, traceability.RequirementSet{}, fmt.Errorf("storybuilder: read %s: %w", path, err)
	}
	return ParseSpec(data)
}
