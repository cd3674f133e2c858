package traceability

import "strings"

// AcceptanceCriterion is one checklist item of a story. Requirements holds
// the ids it satisfies in the order they were attached.
type AcceptanceCriterion struct {
	ID           string   `json:"id"`
	Text         string   `json:"text"`
	Requirements []string `json:"requirements"`
}

// Attach adds id unless it is already present.
func (c *AcceptanceCriterion) Attach(id string) {
	if c.Has(id) {
		return
	}
	c.Requirements = append(c.Requirements, id)
}

// Has reports whether id is attached.
func (c *AcceptanceCriterion) Has(id string) bool {
	for _, existing := range c.Requirements {
		if existing == id {
			return true
		}
	}
	return false
}

// Story owns ordered acceptance criteria.
type Story struct {
	ID       string                `json:"id"`
	Title    string                `json:"title"`
	Category string                `json:"category,omitempty"`
	Role     string                `json:"role,omitempty"`
	Goal     string                `json:"goal,omitempty"`
	Benefit  string                `json:"benefit,omitempty"`
	Criteria []AcceptanceCriterion `json:"acceptanceCriteria"`
}

// Requirements returns every attached id across criteria, deduplicated in
// first-seen order.
func (s *Story) Requirements() []string {
	seen := map[string]bool{}
	var out []string
	for _, c := range s.Criteria {
		for _, id := range c.Requirements {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}

// text is everything the mapper may compare against.
func (s *Story) text() string {
	parts := []string{s.Title, s.Goal, s.Benefit}
	for _, c := range s.Criteria {
		parts = append(parts, c.Text)
	}
	return strings.Join(parts, " ")
}
