// Package traceability attaches requirement ids to generated stories and
// guarantees that mandatory requirements are never silently dropped.
package traceability

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Priority is mandatory or optional.
type Priority string

const (
	PriorityMandatory Priority = "mandatory"
	PriorityOptional  Priority = "optional"
)

// ParsePriority normalizes free-form priority labels. Anything that is not a
// recognized mandatory label is optional.
func ParsePriority(s string) Priority {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mandatory", "must", "required", "critical":
		return PriorityMandatory
	default:
		return PriorityOptional
	}
}

// Requirement is one upstream unit of required work.
type Requirement struct {
	ID       string   `json:"id"`
	Text     string   `json:"text"`
	Priority Priority `json:"priority"`
	Category string   `json:"category,omitempty"`
}

// Mandatory reports whether the requirement must be traced.
func (r Requirement) Mandatory() bool {
	return r.Priority == PriorityMandatory
}

// RequirementSet holds every requirement plus the derived mandatory ids in
// requirement order.
type RequirementSet struct {
	Requirements []Requirement
	Mandatory    []string
}

// Document is the JSON requirement input.
type Document struct {
	Requirements          []Requirement `json:"requirements"`
	MandatoryRequirements []string      `json:"mandatoryRequirements,omitempty"`
}

// NewRequirementSet validates requirements and derives the mandatory subset:
// ids listed in mandatory plus every mandatory-priority requirement.
func NewRequirementSet(requirements []Requirement, mandatory []string) (RequirementSet, error) {
	index := make(map[string]int, len(requirements))
	out := make([]Requirement, 0, len(requirements))
	for i, req := range requirements {
		req.ID = strings.TrimSpace(req.ID)
		req.Text = strings.TrimSpace(req.Text)
		req.Category = strings.TrimSpace(req.Category)
		req.Priority = ParsePriority(string(req.Priority))
		if req.ID == "" {
			return RequirementSet{}, fmt.Errorf("traceability: requirements[%d]: id is required", i)
		}
		if _, dup := index[req.ID]; dup {
			return RequirementSet{}, fmt.Errorf("traceability: requirement %s declared twice", req.ID)
		}
		index[req.ID] = len(out)
		out = append(out, req)
	}
	for _, id := range mandatory {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		pos, ok := index[id]
		if !ok {
			return RequirementSet{}, fmt.Errorf("traceability: mandatory requirement %s is not declared", id)
		}
		out[pos].Priority = PriorityMandatory
	}

	set := RequirementSet{Requirements: out}
	for _, req := range out {
		if req.Mandatory() {
			set.Mandatory = append(set.Mandatory, req.ID)
		}
	}
	return set, nil
}

// Set validates the document into a RequirementSet.
func (d Document) Set() (RequirementSet, error) {
	return NewRequirementSet(d.Requirements, d.MandatoryRequirements)
}

// ParseRequirements decodes the JSON requirement input.
func ParseRequirements(data []byte) (RequirementSet, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return RequirementSet{}, fmt.Errorf("traceability: parse requirements: %w", err)
	}
	return doc.Set()
}

// LoadRequirements reads a requirement file.
func LoadRequirements(path string) (RequirementSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RequirementSet{}, fmt.Errorf("traceability: read %s: %w", path, err)
	}
	set, err := ParseRequirements(data)
	if err != nil {
		return RequirementSet{}, fmt.Errorf("%w (%s)", err, path)
	}
	return set, nil
}

// Get returns the requirement with id.
func (s RequirementSet) Get(id string) (Requirement, bool) {
	for _, req := range s.Requirements {
		if req.ID == id {
			return req, true
		}
	}
	return Requirement{}, false
}

// IsMandatory reports whether id is in the mandatory subset.
func (s RequirementSet) IsMandatory(id string) bool {
	for _, m := range s.Mandatory {
		if m == id {
			return true
		}
	}
	return false
}

// Categories returns requirement categories in first-appearance order.
// Requirements without a category are grouped under "uncategorized".
func (s RequirementSet) Categories() []string {
	seen := map[string]bool{}
	var out []string
	for _, req := range s.Requirements {
		c := categoryOf(req)
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

func categoryOf(req Requirement) string {
	if req.Category == "" {
		return "uncategorized"
	}
	return req.Category
}
