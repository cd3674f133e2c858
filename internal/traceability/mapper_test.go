package traceability

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func mustSet(t *testing.T, reqs []Requirement, mandatory ...string) RequirementSet {
	t.Helper()
	set, err := NewRequirementSet(reqs, mandatory)
	require.NoError(t, err)
	return set
}

func story(id, category string, criteria ...string) *Story {
	s := &Story{ID: id, Title: id, Category: category}
	for i, text := range criteria {
		s.Criteria = append(s.Criteria, AcceptanceCriterion{ID: id + "-" + string(rune('1'+i)), Text: text})
	}
	return s
}

func TestForcedFallbackPlacesCriticalRequirement(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	set := mustSet(t, []Requirement{{ID: "NAV-004", Text: "max 3 clicks", Priority: "mandatory"}})
	stories := []*Story{story("US-001", "accounts", "Account list displays the account name")}

	result := NewMapper(WithLogger(zap.New(core))).Map(set, stories)

	mapping, ok := result.Lookup("NAV-004")
	require.True(t, ok, "NAV-004 must be mapped")
	assert.True(t, mapping.Forced)
	assert.Equal(t, ForcedRule, mapping.Rule)
	assert.Equal(t, "US-001", mapping.StoryID)
	assert.Empty(t, result.Unmapped.Mandatory)
	assert.Empty(t, result.Unmapped.Optional)
	assert.Equal(t, []string{"NAV-004"}, stories[0].Criteria[0].Requirements)
	require.NoError(t, result.Gap())

	entries := logs.FilterMessage("forced requirement mapping").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "NAV-004", entries[0].ContextMap()["requirement"])
	assert.Equal(t, "US-001-1", entries[0].ContextMap()["criterion"])
}

func TestRulesMatchInOrder(t *testing.T) {
	tests := []struct {
		name     string
		req      Requirement
		story    *Story
		wantRule string
	}{
		{
			name:     "shared-number",
			req:      Requirement{ID: "PERF-001", Text: "Search results load within 2 seconds"},
			story:    story("US-001", "", "Results appear in under 2 seconds"),
			wantRule: "literal",
		},
		{
			name:     "keyword-overlap",
			req:      Requirement{ID: "DISP-001", Text: "Display customer email address"},
			story:    story("US-001", "", "Customer email address is displayed"),
			wantRule: "literal",
		},
		{
			name:     "containment",
			req:      Requirement{ID: "DISP-002", Text: "Sort by due date"},
			story:    story("US-001", "", "Users can sort by due date from the header"),
			wantRule: "literal",
		},
		{
			name:     "dotted-identifier",
			req:      Requirement{ID: "EVT-001", Text: "Emit account.selected event when a row is chosen"},
			story:    story("US-001", "", "Selecting a row fires account.selected"),
			wantRule: "identifier",
		},
		{
			name:     "requirement-id-reference",
			req:      Requirement{ID: "NAV-002", Text: "Keep hierarchy shallow"},
			story:    story("US-001", "", "Meets NAV-002 depth limit"),
			wantRule: "identifier",
		},
		{
			name:     "category-anchor",
			req:      Requirement{ID: "NAV-001", Text: "Breadcrumbs show the current location", Category: "navigation"},
			story:    story("US-001", "Navigation", "Breadcrumb trail updates on every click"),
			wantRule: "category-anchor",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := mustSet(t, []Requirement{tt.req})
			result := NewMapper(WithCriticalRequirements()).Map(set, []*Story{tt.story})
			mapping, ok := result.Lookup(tt.req.ID)
			require.True(t, ok, "expected %s to map", tt.req.ID)
			assert.Equal(t, tt.wantRule, mapping.Rule)
			assert.False(t, mapping.Forced)
		})
	}
}

func TestEarlierRuleWinsAcrossStories(t *testing.T) {
	req := Requirement{ID: "NAV-010", Text: "Menu opens within 1 second", Category: "navigation"}
	anchored := story("US-001", "navigation", "The menu link is visible")
	literal := story("US-002", "display", "Menu opens in 1 second")
	set := mustSet(t, []Requirement{req})

	result := NewMapper().Map(set, []*Story{anchored, literal})

	mapping, ok := result.Lookup("NAV-010")
	require.True(t, ok)
	assert.Equal(t, "literal", mapping.Rule)
	assert.Equal(t, "US-002", mapping.StoryID)
	assert.Empty(t, anchored.Criteria[0].Requirements, "no re-evaluation once mapped")
}

func TestEveryMandatoryRequirementEndsMapped(t *testing.T) {
	set := mustSet(t, []Requirement{
		{ID: "SEC-001", Text: "Audit trail retained for seven years", Category: "compliance"},
		{ID: "SEC-002", Text: "Passwords rotate quarterly", Category: "security"},
		{ID: "OPT-001", Text: "Dark theme toggle", Priority: "optional"},
		{ID: "NAV-004", Text: "max 3 clicks", Priority: "optional"},
	}, "SEC-001", "SEC-002")
	stories := []*Story{
		story("US-001", "accounts", "Account list displays the account name"),
		story("US-002", "security", "Blank usernames are rejected"),
	}
	core, logs := observer.New(zapcore.WarnLevel)

	result := NewMapper(WithLogger(zap.New(core))).Map(set, stories)

	for _, id := range set.Mandatory {
		_, ok := result.Lookup(id)
		assert.True(t, ok, "mandatory %s dropped", id)
	}
	assert.Empty(t, result.Unmapped.Mandatory)
	assert.Equal(t, []string{"OPT-001"}, result.Unmapped.Optional)

	forced := result.Forced()
	require.Len(t, forced, 3)
	// Critical ids are forced first even when optional; SEC-002 lands on its category.
	assert.Equal(t, "NAV-004", logs.All()[0].ContextMap()["requirement"])
	sec2, _ := result.Lookup("SEC-002")
	assert.Equal(t, "US-002", sec2.StoryID)
	assert.Equal(t, 3, logs.FilterMessage("forced requirement mapping").Len())
}

func TestGapWhenNoCriteriaExist(t *testing.T) {
	set := mustSet(t, []Requirement{
		{ID: "NAV-004", Text: "max 3 clicks", Priority: "mandatory"},
		{ID: "OPT-001", Text: "Dark theme toggle"},
	})
	result := NewMapper().Map(set, []*Story{{ID: "US-001", Title: "Empty"}})

	assert.Equal(t, []string{"NAV-004"}, result.Unmapped.Mandatory)
	assert.Equal(t, []string{"OPT-001"}, result.Unmapped.Optional)

	var gap *GapError
	require.True(t, errors.As(result.Gap(), &gap))
	assert.Equal(t, []string{"NAV-004"}, gap.Requirements)
	assert.Contains(t, gap.Error(), "1 mandatory requirement(s) unmapped: NAV-004")
}

func TestBestFitPrefersCategoryThenOverlap(t *testing.T) {
	req := Requirement{ID: "RPT-001", Text: "Monthly invoice totals exported", Priority: "mandatory", Category: "reporting"}
	stories := []*Story{
		story("US-001", "billing", "Invoice totals are visible"),
		story("US-002", "reporting", "Charts render", "Invoice export is available"),
	}
	result := NewMapper(WithRules()).Map(mustSet(t, []Requirement{req}), stories)

	mapping, ok := result.Lookup("RPT-001")
	require.True(t, ok)
	assert.Equal(t, "US-002", mapping.StoryID)
	assert.Equal(t, "US-002-2", mapping.CriterionID)

	tie := []*Story{
		story("US-010", "", "Nothing related"),
		story("US-011", "", "Also unrelated"),
	}
	result = NewMapper(WithRules()).Map(mustSet(t, []Requirement{req}), tie)
	mapping, _ = result.Lookup("RPT-001")
	assert.Equal(t, "US-010", mapping.StoryID, "ties keep declaration order")
}

func TestAdditionalRulesRunAfterDefaults(t *testing.T) {
	rule := PhraseRule{RuleName: "plugin:billing", Phrases: []string{"ledger"}}
	set := mustSet(t, []Requirement{{ID: "BIL-001", Text: "Ledger reconciles nightly"}})
	stories := []*Story{story("US-001", "", "General ledger view")}

	mapper := NewMapper(WithAdditionalRules(rule), WithCriticalRequirements())
	assert.Equal(t, []string{"literal", "identifier", "category-anchor", "plugin:billing"}, mapper.Rules())

	result := mapper.Map(set, stories)
	mapping, ok := result.Lookup("BIL-001")
	require.True(t, ok)
	assert.Equal(t, "plugin:billing", mapping.Rule)
}

func TestCoverageByCategory(t *testing.T) {
	set := mustSet(t, []Requirement{
		{ID: "NAV-001", Text: "Breadcrumbs show the current location", Category: "navigation"},
		{ID: "NAV-002", Text: "Unmatched thing", Category: "navigation"},
		{ID: "DISP-001", Text: "Display customer email address", Category: "display"},
		{ID: "X-1", Text: "Loose end"},
	})
	stories := []*Story{
		story("US-001", "navigation", "Breadcrumbs show the current location on each page"),
		story("US-002", "display", "Customer email address is displayed"),
	}
	result := NewMapper().Map(set, stories)

	want := []CategoryCoverage{
		{Category: "navigation", Total: 2, Mapped: 1, Percent: 50},
		{Category: "display", Total: 1, Mapped: 1, Percent: 100},
		{Category: "uncategorized", Total: 1, Mapped: 0, Percent: 0},
	}
	assert.Equal(t, want, result.Coverage(set))
	assert.InDelta(t, 50.0, result.TotalCoverage(set), 0.001)
}
