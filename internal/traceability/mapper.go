package traceability

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// DefaultCriticalRequirements are forced onto a story even without any text
// match.
var DefaultCriticalRequirements = []string{"NAV-004"}

// ForcedRule is the Rule name recorded for fallback mappings.
const ForcedRule = "forced"

// Mapping places one requirement on a story criterion.
type Mapping struct {
	RequirementID string `json:"requirement"`
	StoryID       string `json:"story"`
	CriterionID   string `json:"criterion"`
	Rule          string `json:"rule"`
	Forced        bool   `json:"forced,omitempty"`
}

// Unmapped partitions requirements that found no home.
type Unmapped struct {
	Mandatory []string `json:"mandatory"`
	Optional  []string `json:"optional"`
}

// Result is the outcome of a mapping pass. Mappings follow requirement order.
type Result struct {
	Mappings []Mapping `json:"mappings"`
	Unmapped Unmapped  `json:"unmapped"`
}

// Mapper attaches requirement ids to story criteria.
type Mapper struct {
	rules    []Rule
	critical []string
	logger   *zap.Logger
}

// Option customizes a Mapper.
type Option func(*Mapper)

// WithRules replaces the rule list.
func WithRules(rules ...Rule) Option {
	return func(m *Mapper) {
		m.rules = append([]Rule(nil), rules...)
	}
}

// WithAdditionalRules appends rules after the current list.
func WithAdditionalRules(rules ...Rule) Option {
	return func(m *Mapper) {
		m.rules = append(m.rules, rules...)
	}
}

// WithCriticalRequirements sets the ids forced first by the fallback.
func WithCriticalRequirements(ids ...string) Option {
	return func(m *Mapper) {
		m.critical = append([]string(nil), ids...)
	}
}

// WithLogger sets the logger that records forced mappings.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Mapper) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewMapper returns a mapper with DefaultRules(nil) and the default critical
// ids unless overridden.
func NewMapper(opts ...Option) *Mapper {
	m := &Mapper{
		rules:    DefaultRules(nil),
		critical: append([]string(nil), DefaultCriticalRequirements...),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Rules returns the rule names in evaluation order.
func (m *Mapper) Rules() []string {
	names := make([]string, len(m.rules))
	for i, r := range m.rules {
		names[i] = r.Name()
	}
	return names
}

// Map attaches requirement ids to criteria in stories, mutating them.
//
// Each requirement is tried against every rule in order, each rule across all
// stories and criteria; the first match wins and is never revisited. The
// fallback then forces critical ids, followed by every other mandatory id,
// onto the best-fit criterion. A mandatory id stays unmapped only when no
// story has a criterion.
func (m *Mapper) Map(set RequirementSet, stories []*Story) Result {
	placed := map[string]Mapping{}

	for _, req := range set.Requirements {
		if mapping, ok := m.match(req, stories); ok {
			placed[req.ID] = mapping
		}
	}

	for _, id := range m.fallbackOrder(set) {
		if _, ok := placed[id]; ok {
			continue
		}
		req, _ := set.Get(id)
		story, criterion := bestFit(req, stories)
		if criterion == nil {
			m.logger.Error("mandatory requirement has no candidate criterion", zap.String("requirement", id))
			continue
		}
		criterion.Attach(id)
		placed[id] = Mapping{RequirementID: id, StoryID: story.ID, CriterionID: criterion.ID, Rule: ForcedRule, Forced: true}
		m.logger.Warn("forced requirement mapping",
			zap.String("requirement", id),
			zap.String("story", story.ID),
			zap.String("criterion", criterion.ID),
			zap.String("category", req.Category),
		)
	}

	var result Result
	for _, req := range set.Requirements {
		if mapping, ok := placed[req.ID]; ok {
			result.Mappings = append(result.Mappings, mapping)
			continue
		}
		if set.IsMandatory(req.ID) {
			result.Unmapped.Mandatory = append(result.Unmapped.Mandatory, req.ID)
		} else {
			result.Unmapped.Optional = append(result.Unmapped.Optional, req.ID)
		}
	}
	return result
}

func (m *Mapper) match(req Requirement, stories []*Story) (Mapping, bool) {
	for _, rule := range m.rules {
		for _, story := range stories {
			for i := range story.Criteria {
				criterion := &story.Criteria[i]
				if !rule.Match(req, story, criterion) {
					continue
				}
				criterion.Attach(req.ID)
				m.logger.Debug("requirement mapped",
					zap.String("requirement", req.ID),
					zap.String("story", story.ID),
					zap.String("criterion", criterion.ID),
					zap.String("rule", rule.Name()),
				)
				return Mapping{RequirementID: req.ID, StoryID: story.ID, CriterionID: criterion.ID, Rule: rule.Name()}, true
			}
		}
	}
	return Mapping{}, false
}

// fallbackOrder lists critical ids present in set, then the remaining
// mandatory ids.
func (m *Mapper) fallbackOrder(set RequirementSet) []string {
	seen := map[string]bool{}
	var order []string
	for _, id := range m.critical {
		if _, ok := set.Get(id); ok && !seen[id] {
			seen[id] = true
			order = append(order, id)
		}
	}
	for _, id := range set.Mandatory {
		if !seen[id] {
			seen[id] = true
			order = append(order, id)
		}
	}
	return order
}

// bestFit prefers stories in the requirement's category, then keyword
// overlap with the story text. Ties keep declaration order. Within the story
// the criterion with the most keyword overlap wins, ties to the first.
func bestFit(req Requirement, stories []*Story) (*Story, *AcceptanceCriterion) {
	var best *Story
	bestCategory, bestOverlap := false, -1
	for _, story := range stories {
		if len(story.Criteria) == 0 {
			continue
		}
		category := req.Category != "" && strings.EqualFold(req.Category, story.Category)
		score := overlap(req.Text, story.text())
		if best == nil || (category && !bestCategory) || (category == bestCategory && score > bestOverlap) {
			best, bestCategory, bestOverlap = story, category, score
		}
	}
	if best == nil {
		return nil, nil
	}
	pick, pickScore := 0, -1
	for i := range best.Criteria {
		if score := overlap(req.Text, best.Criteria[i].Text); score > pickScore {
			pick, pickScore = i, score
		}
	}
	return best, &best.Criteria[pick]
}

// Lookup returns the mapping for a requirement id.
func (r Result) Lookup(id string) (Mapping, bool) {
	for _, m := range r.Mappings {
		if m.RequirementID == id {
			return m, true
		}
	}
	return Mapping{}, false
}

// Forced returns the fallback mappings.
func (r Result) Forced() []Mapping {
	var out []Mapping
	for _, m := range r.Mappings {
		if m.Forced {
			out = append(out, m)
		}
	}
	return out
}

// CategoryCoverage summarizes one requirement category.
type CategoryCoverage struct {
	Category string  `json:"category"`
	Total    int     `json:"total"`
	Mapped   int     `json:"mapped"`
	Percent  float64 `json:"percent"`
}

// Coverage computes per-category coverage in category first-appearance order.
func (r Result) Coverage(set RequirementSet) []CategoryCoverage {
	byCategory := map[string]*CategoryCoverage{}
	var out []*CategoryCoverage
	for _, req := range set.Requirements {
		c := categoryOf(req)
		cov, ok := byCategory[c]
		if !ok {
			cov = &CategoryCoverage{Category: c}
			byCategory[c] = cov
			out = append(out, cov)
		}
		cov.Total++
		if _, mapped := r.Lookup(req.ID); mapped {
			cov.Mapped++
		}
	}
	result := make([]CategoryCoverage, len(out))
	for i, cov := range out {
		cov.Percent = percent(cov.Mapped, cov.Total)
		result[i] = *cov
	}
	return result
}

// TotalCoverage is the share of all requirements that were mapped.
func (r Result) TotalCoverage(set RequirementSet) float64 {
	return percent(len(r.Mappings), len(set.Requirements))
}

func percent(part, total int) float64 {
	if total == 0 {
		return 100
	}
	return float64(part) * 100 / float64(total)
}

// Gap returns a *GapError when mandatory requirements are still unmapped.
func (r Result) Gap() error {
	if len(r.Unmapped.Mandatory) == 0 {
		return nil
	}
	return &GapError{Requirements: append([]string(nil), r.Unmapped.Mandatory...)}
}

// GapError lists mandatory requirements that no story covers. It never halts
// a run; callers surface it in the traceability report.
type GapError struct {
	Requirements []string
}

func (e *GapError) Error() string {
	return fmt.Sprintf("traceability: %d mandatory requirement(s) unmapped: %s",
		len(e.Requirements), strings.Join(e.Requirements, ", "))
}
