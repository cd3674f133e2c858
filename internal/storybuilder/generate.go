package storybuilder

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/gfenimore/service-software-factory-v2-sub000/internal/traceability"
)

const defaultRole = "user"

// Generate creates stories from the spec. Features become stories in order;
// without features, requirements are grouped into one story per category
// with one criterion per requirement.
func Generate(spec Spec, set traceability.RequirementSet) []*traceability.Story {
	if len(spec.Features) > 0 {
		return fromFeatures(spec.Features)
	}
	return fromCategories(set)
}

func fromFeatures(features []Feature) []*traceability.Story {
	stories := make([]*traceability.Story, 0, len(features))
	for i, f := range features {
		s := &traceability.Story{
			ID:       f.StoryID(i),
			Title:    singleLine(f.Title),
			Category: singleLine(f.Category),
			Role:     orDefault(singleLine(f.Role), defaultRole),
			Goal:     singleLine(f.Goal),
			Benefit:  singleLine(f.Benefit),
		}
		for j, text := range f.Criteria {
			text = singleLine(text)
			if text == "" {
				continue
			}
			s.Criteria = append(s.Criteria, traceability.AcceptanceCriterion{ID: criterionID(i+1, j+1), Text: text})
		}
		stories = append(stories, s)
	}
	return stories
}

func fromCategories(set traceability.RequirementSet) []*traceability.Story {
	var stories []*traceability.Story
	for i, category := range set.Categories() {
		s := &traceability.Story{
			ID:       storyID(i + 1),
			Title:    capitalize(category) + " capabilities",
			Category: category,
			Role:     defaultRole,
			Goal:     "the " + category + " capabilities to behave as specified",
		}
		n := 0
		for _, req := range set.Requirements {
			if categoryName(req) != category || req.Text == "" {
				continue
			}
			n++
			s.Criteria = append(s.Criteria, traceability.AcceptanceCriterion{ID: criterionID(i+1, n), Text: singleLine(req.Text)})
		}
		stories = append(stories, s)
	}
	return stories
}

func storyID(n int) string {
	return fmt.Sprintf("US-%03d", n)
}

func criterionID(story, n int) string {
	return fmt.Sprintf("AC-%03d-%d", story, n)
}

func categoryName(req traceability.Requirement) string {
	if req.Category == "" {
		return "uncategorized"
	}
	return req.Category
}

// singleLine collapses runs of whitespace, newlines included, so the text
// fits on one markdown line.
func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func orDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}

func capitalize(s string) string {
	for i, r := range s {
		return string(unicode.ToUpper(r)) + s[i+len(string(r)):]
	}
	return s
}
