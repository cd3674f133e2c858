package traceability

import (
	"regexp"
	"strings"
)

// Rule decides whether a requirement belongs on a criterion. Rules are
// evaluated in order; the first rule that matches any criterion wins.
type Rule interface {
	Name() string
	Match(req Requirement, story *Story, criterion *AcceptanceCriterion) bool
}

// RuleFunc adapts a function into a Rule.
type RuleFunc struct {
	RuleName string
	Fn       func(req Requirement, story *Story, criterion *AcceptanceCriterion) bool
}

func (r RuleFunc) Name() string { return r.RuleName }

func (r RuleFunc) Match(req Requirement, story *Story, criterion *AcceptanceCriterion) bool {
	return r.Fn != nil && r.Fn(req, story, criterion)
}

// DefaultAnchors are per-category phrases that signal a criterion belongs to
// that category.
var DefaultAnchors = map[string][]string{
	"navigation":    {"navigate", "navigation", "click", "clicks", "menu", "link", "breadcrumb", "back button", "tab"},
	"display":       {"display", "displays", "show", "shows", "view", "render", "list", "column", "visible"},
	"data":          {"save", "saved", "store", "persist", "load", "fetch", "record"},
	"validation":    {"validate", "validation", "required field", "invalid", "error message"},
	"performance":   {"load time", "seconds", "milliseconds", "response time", "fast"},
	"accessibility": {"keyboard", "screen reader", "contrast", "aria", "focus"},
	"security":      {"permission", "authorized", "unauthorized", "login", "role", "access"},
}

// MergeAnchors returns DefaultAnchors extended with extra. Category keys are
// compared case-insensitively.
func MergeAnchors(extra map[string][]string) map[string][]string {
	out := make(map[string][]string, len(DefaultAnchors)+len(extra))
	for category, phrases := range DefaultAnchors {
		out[category] = append([]string(nil), phrases...)
	}
	for category, phrases := range extra {
		key := strings.ToLower(strings.TrimSpace(category))
		out[key] = append(out[key], phrases...)
	}
	return out
}

// DefaultRules returns the built-in rules in evaluation order: literal,
// identifier, then category anchor using anchors merged over DefaultAnchors.
func DefaultRules(anchors map[string][]string) []Rule {
	return []Rule{
		LiteralRule{},
		IdentifierRule{},
		CategoryAnchorRule{Anchors: MergeAnchors(anchors)},
	}
}

// LiteralRule matches on normalized text: containment, a shared number plus a
// shared keyword, or a keyword overlap of at least 60% of the requirement's
// keywords (two or more).
type LiteralRule struct{}

func (LiteralRule) Name() string { return "literal" }

func (LiteralRule) Match(req Requirement, _ *Story, criterion *AcceptanceCriterion) bool {
	rn, cn := normalize(req.Text), normalize(criterion.Text)
	if rn == "" || cn == "" {
		return false
	}
	if len(rn) >= 6 && containsPhrase(cn, rn) {
		return true
	}
	if len(cn) >= 6 && containsPhrase(rn, cn) {
		return true
	}
	rk := keywords(req.Text)
	shared := intersect(rk, keywords(criterion.Text))
	if len(shared) >= 1 && len(intersect(numbers(req.Text), numbers(criterion.Text))) > 0 {
		return true
	}
	return len(shared) >= 2 && float64(len(shared)) >= 0.6*float64(len(rk))
}

var requirementIDPattern = regexp.MustCompile(`\b[A-Z][A-Z0-9]*-\d+\b`)

// IdentifierRule matches when the criterion names the requirement id or
// shares a structural identifier (event names, field paths, constants) with
// the requirement text.
type IdentifierRule struct{}

func (IdentifierRule) Name() string { return "identifier" }

func (IdentifierRule) Match(req Requirement, _ *Story, criterion *AcceptanceCriterion) bool {
	for _, ref := range requirementIDPattern.FindAllString(criterion.Text, -1) {
		if strings.EqualFold(ref, req.ID) {
			return true
		}
	}
	return len(intersect(identifiers(req.Text), identifiers(criterion.Text))) > 0
}

// CategoryAnchorRule matches when the story shares the requirement's category
// and the criterion contains one of that category's anchor phrases.
type CategoryAnchorRule struct {
	Anchors map[string][]string
}

func (CategoryAnchorRule) Name() string { return "category-anchor" }

func (r CategoryAnchorRule) Match(req Requirement, story *Story, criterion *AcceptanceCriterion) bool {
	category := strings.ToLower(strings.TrimSpace(req.Category))
	if category == "" || !strings.EqualFold(category, strings.TrimSpace(story.Category)) {
		return false
	}
	text := normalize(criterion.Text)
	for _, phrase := range r.Anchors[category] {
		if containsPhrase(text, phrase) {
			return true
		}
	}
	return false
}

// PhraseRule matches when both the requirement and the criterion mention one
// of Phrases. Category, when set, restricts the rule to requirements of that
// category. Project rule plugins compile to PhraseRules.
type PhraseRule struct {
	RuleName string
	Category string
	Phrases  []string
}

func (r PhraseRule) Name() string { return r.RuleName }

func (r PhraseRule) Match(req Requirement, _ *Story, criterion *AcceptanceCriterion) bool {
	if r.Category != "" && !strings.EqualFold(r.Category, req.Category) {
		return false
	}
	reqText, critText := normalize(req.Text), normalize(criterion.Text)
	for _, phrase := range r.Phrases {
		if containsPhrase(reqText, phrase) && containsPhrase(critText, phrase) {
			return true
		}
	}
	return false
}
