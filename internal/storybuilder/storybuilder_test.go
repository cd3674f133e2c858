package storybuilder

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/gfenimore/service-software-factory-v2-sub000/internal/artifact"
	"github.com/gfenimore/service-software-factory-v2-sub000/internal/traceability"
)

const accountSpec = `{
  "requirements": [
    {"id": "NAV-001", "text": "Account list displays all accounts", "priority": "mandatory", "category": "navigation"},
    {"id": "NAV-004", "text": "max 3 clicks", "priority": "mandatory", "category": "navigation"},
    {"id": "DATA-002", "text": "Export accounts to CSV", "priority": "optional", "category": "data"}
  ],
  "mandatoryRequirements": ["NAV-001", "NAV-004"],
  "features": [
    {
      "title": "Browse accounts",
      "role": "dispatcher",
      "goal": "to browse every account",
      "benefit": "I can find customers quickly",
      "category": "navigation",
      "criteria": ["Account list displays all accounts", "Selecting an account opens its detail view"]
    }
  ]
}`

func fixedClock() time.Time {
	return time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
}

func writeSpec(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "spec.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestGenerateFromFeatures(t *testing.T) {
	spec, set, err := ParseSpec([]byte(accountSpec))
	require.NoError(t, err)

	stories := Generate(spec, set)
	require.Len(t, stories, 1)
	story := stories[0]
	assert.Equal(t, "US-001", story.ID)
	assert.Equal(t, "dispatcher", story.Role)
	require.Len(t, story.Criteria, 2)
	assert.Equal(t, "AC-001-1", story.Criteria[0].ID)
	assert.Equal(t, "AC-001-2", story.Criteria[1].ID)
}

func TestGenerateByCategory(t *testing.T) {
	spec, set, err := ParseSpec([]byte(`{
	  "requirements": [
	    {"id": "NAV-001", "text": "Menu lists every section", "priority": "mandatory", "category": "navigation"},
	    {"id": "SEC-001", "text": "Sessions expire after inactivity", "priority": "optional", "category": "security"},
	    {"id": "NAV-002", "text": "Back button returns to the list", "priority": "optional", "category": "navigation"},
	    {"id": "MISC-1", "text": "Footer shows the version", "priority": "optional"}
	  ],
	  "mandatoryRequirements": ["NAV-001"]
	}`))
	require.NoError(t, err)

	stories := Generate(spec, set)
	require.Len(t, stories, 3)
	assert.Equal(t, []string{"navigation", "security", "uncategorized"},
		[]string{stories[0].Category, stories[1].Category, stories[2].Category})
	assert.Equal(t, "Navigation capabilities", stories[0].Title)
	require.Len(t, stories[0].Criteria, 2)
	assert.Equal(t, "AC-001-2", stories[0].Criteria[1].ID)
	assert.Equal(t, "Back button returns to the list", stories[0].Criteria[1].Text)
	assert.Equal(t, "US-003", stories[2].ID)
}

func TestParseSpecErrors(t *testing.T) {
	cases := map[string]string{
		"invalid json":      `{`,
		"undeclared":        `{"requirements": [], "mandatoryRequirements": ["X-1"]}`,
		"feature no title":  `{"requirements": [], "features": [{"criteria": ["a"]}]}`,
		"requirement no id": `{"requirements": [{"text": "x"}]}`,
		"duplicate story id": `{"requirements": [], "features": [
		  {"id": "US-1", "title": "a", "criteria": ["a"]},
		  {"id": "US-1", "title": "b", "criteria": ["b"]}]}`,
		"id clashes with generated id": `{"requirements": [], "features": [
		  {"title": "a", "criteria": ["a"]},
		  {"id": "US-001", "title": "b", "criteria": ["b"]}]}`,
		"id escapes stories dir": `{"requirements": [], "features": [{"id": "../../escaped", "title": "a"}]}`,
		"id with whitespace":     `{"requirements": [], "features": [{"id": "US 1", "title": "a"}]}`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := ParseSpec([]byte(content))
			require.Error(t, err)
		})
	}
}

func TestStoryMarkdownRoundTrip(t *testing.T) {
	story := &traceability.Story{
		ID:       "US-007",
		Title:    "Assign technicians",
		Category: "data",
		Role:     "operations manager",
		Goal:     "to assign technicians to jobs",
		Benefit:  "work is balanced",
		Criteria: []traceability.AcceptanceCriterion{
			{ID: "AC-007-1", Text: "Unassigned jobs are listed first", Requirements: []string{"DATA-004", "NAV-004", "DATA-001"}},
			{ID: "AC-007-2", Text: "Assignment saves immediately"},
			{ID: "AC-007-3", Text: "Technician workload is shown", Requirements: []string{"DISP-9"}},
		},
	}

	body := RenderStory(story)
	assert.Contains(t, string(body), "# US-007: Assign technicians")
	assert.Contains(t, string(body), "As an **operations manager**, I want **to assign technicians to jobs** so that **work is balanced**.")
	assert.Contains(t, string(body), "- [ ] **AC-007-1**: Unassigned jobs are listed first (req: DATA-004, NAV-004, DATA-001)")

	parsed, err := ParseStory(body)
	require.NoError(t, err)
	assert.Equal(t, story, parsed)

	store := artifact.NewStore(t.TempDir(), artifact.WithClock(fixedClock))
	ref := artifact.StoryDoc(story.ID)
	require.NoError(t, store.Write(ref, body, artifact.Metadata{Processor: ProcessorName, Version: ProcessorVersion}))
	content, err := os.ReadFile(ref.Path(store.Root()))
	require.NoError(t, err)
	fromFile, err := ParseStory(content)
	require.NoError(t, err)
	assert.Equal(t, story, fromFile)
}

func TestStoryMarkdownCollapsesLineBreaks(t *testing.T) {
	story := &traceability.Story{
		ID:    "US-002",
		Title: "Schedule\nvisits",
		Goal:  "to plan\n  the route",
		Criteria: []traceability.AcceptanceCriterion{
			{ID: "AC-002-1", Text: "Line one\nline two", Requirements: []string{"NAV-001"}},
		},
	}
	parsed, err := ParseStory(RenderStory(story))
	require.NoError(t, err)
	assert.Equal(t, "Schedule visits", parsed.Title)
	assert.Equal(t, "to plan the route", parsed.Goal)
	require.Len(t, parsed.Criteria, 1)
	assert.Equal(t, "Line one line two", parsed.Criteria[0].Text)
	assert.Equal(t, []string{"NAV-001"}, parsed.Criteria[0].Requirements)

	spec, set, err := ParseSpec([]byte(`{"requirements": [], "features": [
	  {"title": "Plan\nday", "criteria": ["first\n\tsecond"]}]}`))
	require.NoError(t, err)
	stories := Generate(spec, set)
	require.Len(t, stories, 1)
	assert.Equal(t, "Plan day", stories[0].Title)
	assert.Equal(t, "first second", stories[0].Criteria[0].Text)
}

func TestParseStoryWithoutBenefit(t *testing.T) {
	story := &traceability.Story{
		ID:       "US-001",
		Title:    "Browse",
		Role:     "user",
		Goal:     "to browse",
		Criteria: []traceability.AcceptanceCriterion{{ID: "AC-001-1", Text: "List shows rows"}},
	}
	parsed, err := ParseStory(RenderStory(story))
	require.NoError(t, err)
	assert.Equal(t, story, parsed)

	_, err = ParseStory([]byte("no title here\n"))
	require.Error(t, err)
}

func TestBuildWritesArtifacts(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)
	specPath := writeSpec(t, accountSpec)
	outDir := filepath.Join(t.TempDir(), "out")

	summary, err := New(WithLogger(logger), WithClock(fixedClock)).Build(context.Background(), specPath, outDir)
	require.NoError(t, err)
	require.NoError(t, summary.Gap())
	assert.Len(t, summary.Paths, 4)

	nav4, ok := summary.Result.Lookup("NAV-004")
	require.True(t, ok)
	assert.True(t, nav4.Forced)
	assert.Equal(t, traceability.ForcedRule, nav4.Rule)
	assert.Equal(t, 1, logs.FilterMessage("forced requirement mapping").Len())
	assert.Equal(t, []string{"DATA-002"}, summary.Result.Unmapped.Optional)

	content, err := os.ReadFile(filepath.Join(outDir, "stories", "US-001.md"))
	require.NoError(t, err)
	story, err := ParseStory(content)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"NAV-001", "NAV-004"}, story.Requirements())

	data, err := os.ReadFile(filepath.Join(outDir, "stories.json"))
	require.NoError(t, err)
	var doc struct {
		Stories  []traceability.Story   `json:"stories"`
		Mappings []traceability.Mapping `json:"mappings"`
		Meta     map[string]any         `json:"_factory"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Len(t, doc.Stories, 1)
	assert.Len(t, doc.Mappings, 2)
	assert.Equal(t, ProcessorName, doc.Meta["processor"])

	report, err := os.ReadFile(filepath.Join(outDir, "TRACEABILITY.md"))
	require.NoError(t, err)
	text := string(report)
	assert.NotContains(t, text, "## Traceability Gaps")
	assert.Contains(t, text, "## Forced Mappings")
	assert.Contains(t, text, "| NAV-004 | US-001 | AC-001-")
	assert.Contains(t, text, "| navigation | 2 | 2 | 100.0% |")
	assert.Contains(t, text, "| DATA-002 | optional | data | - | - | unmapped |")
	assert.Contains(t, text, "## Unmapped Optional Requirements")
}

func TestBuildWithoutStoriesFails(t *testing.T) {
	specPath := writeSpec(t, `{"requirements": []}`)
	_, err := New().Build(context.Background(), specPath, t.TempDir())
	require.Error(t, err)

	_, err = New().Build(context.Background(), filepath.Join(t.TempDir(), "missing.json"), t.TempDir())
	require.Error(t, err)
}

func TestBuildRejectsUnsafeStoryIDs(t *testing.T) {
	cases := map[string]string{
		"duplicate": `{"requirements": [
		    {"id": "NAV-001", "text": "Menu lists sections", "priority": "mandatory", "category": "navigation"},
		    {"id": "BIL-001", "text": "Invoices total correctly", "priority": "mandatory", "category": "billing"}
		  ], "features": [
		    {"id": "US-1", "title": "Browse", "criteria": ["Menu lists sections"]},
		    {"id": "US-1", "title": "Bill", "criteria": ["Invoices total correctly"]}]}`,
		"traversal": `{"requirements": [], "features": [{"id": "../../escaped", "title": "Escape", "criteria": ["x"]}]}`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			root := t.TempDir()
			outDir := filepath.Join(root, "a", "b", "out")
			_, err := New().Build(context.Background(), writeSpec(t, content), outDir)
			require.Error(t, err)
			assert.NoDirExists(t, outDir)
			assert.NoFileExists(t, filepath.Join(root, "a", "b", "escaped.md"))
		})
	}

	err := checkStoryIDs([]*traceability.Story{{ID: "US-001"}, {ID: "US-001"}})
	require.ErrorContains(t, err, "duplicate story id")
}

func TestBuildHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Build(ctx, writeSpec(t, accountSpec), t.TempDir())
	require.ErrorIs(t, err, context.Canceled)
}

func TestReportListsGapsFirst(t *testing.T) {
	set, err := traceability.NewRequirementSet([]traceability.Requirement{
		{ID: "NAV-001", Text: "Menu lists every section", Priority: traceability.PriorityMandatory, Category: "navigation"},
	}, nil)
	require.NoError(t, err)
	result := traceability.Result{Unmapped: traceability.Unmapped{Mandatory: []string{"NAV-001"}}}

	report := string(RenderReport(set, nil, result))
	gaps := strings.Index(report, "## Traceability Gaps")
	coverage := strings.Index(report, "## Coverage by Category")
	require.True(t, gaps > 0 && gaps < coverage, report)
	assert.Contains(t, report, "- **NAV-001**: Menu lists every section")
	assert.Contains(t, report, "| navigation | 0 | 1 | 0.0% |")
}
