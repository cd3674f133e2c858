package manifest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const pipelineJSON = `{
  "storyId": "US-004",
  "version": "2",
  "processors": [
    {"sequence": 1, "processor": "story-builder", "input": null, "output": "stories/US-004.md"},
    {"sequence": 2, "processor": "html-generator", "input": "./stories/US-004.md", "output": "mockups/us-004.html"},
    {"sequence": 3, "processor": "component-stringifier", "input": "mockups/us-004.html", "target_file": "src/app/page.tsx", "args": ["--strict"]}
  ]
}`

func TestParseDecodesOptionalPaths(t *testing.T) {
	m, err := Parse([]byte(pipelineJSON))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if m.StoryID != "US-004" || m.Version != "2" {
		t.Fatalf("metadata not decoded: %+v", m)
	}
	if len(m.Processors) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(m.Processors))
	}
	first := m.Processors[0]
	if first.Input.Valid {
		t.Fatalf("null input should decode as unset, got %+v", first.Input)
	}
	if !first.Output.Valid || first.Output.Value != "stories/US-004.md" {
		t.Fatalf("output not decoded: %+v", first.Output)
	}
	if first.TargetFile.Valid {
		t.Fatalf("missing target_file should be unset")
	}
	third := m.Processors[2]
	if third.Output.Valid {
		t.Fatalf("missing output should be unset")
	}
	if diff := cmp.Diff([]string{"--strict"}, third.Args); diff != "" {
		t.Fatalf("args mismatch (-want +got):\n%s", diff)
	}
}

func TestParseAcceptsYAML(t *testing.T) {
	const payload = `
processors:
  - sequence: 1
    processor: doc-exporter
    input: docs/spec.md
    output: out/spec.pdf
`
	m, err := Parse([]byte(payload))
	if err != nil {
		t.Fatalf("parse yaml: %v", err)
	}
	if got, ok := m.Processors[0].Input.Get(); !ok || got != "docs/spec.md" {
		t.Fatalf("input = %q/%v", got, ok)
	}
}

func TestParseRejectsMalformedPayloads(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{name: "empty", payload: "  \n", want: "payload is empty"},
		{name: "missing-processors", payload: `{"storyId": "US-1"}`, want: "processors list is required"},
		{name: "processors-not-list", payload: `{"processors": {"sequence": 1}}`, want: "processors must be a list"},
		{name: "path-not-scalar", payload: `{"processors": [{"sequence": 1, "processor": "a", "input": ["x"]}]}`, want: "path must be a string or null"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.payload))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadFileRecordsSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")
	if err := os.WriteFile(path, []byte(pipelineJSON), 0o644); err != nil {
		t.Fatal(err)
	}
	m, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if m.Source != path {
		t.Fatalf("source = %q, want %q", m.Source, path)
	}
	if m.Label() != "US-004@2" {
		t.Fatalf("label = %q", m.Label())
	}
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("expected error for missing manifest file")
	}
}

func TestDependenciesFollowEarlierOutputs(t *testing.T) {
	m, err := Parse([]byte(pipelineJSON))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	m.Processors = append(m.Processors, ProcessorStep{
		Sequence:   4,
		Processor:  "doc-exporter",
		TargetFile: Path("mockups/us-004.html"),
	})
	want := []Dependency{
		{From: StepRef{1, "story-builder"}, To: StepRef{2, "html-generator"}, Path: "stories/US-004.md", Via: "input"},
		{From: StepRef{2, "html-generator"}, To: StepRef{3, "component-stringifier"}, Path: "mockups/us-004.html", Via: "input"},
		{From: StepRef{2, "html-generator"}, To: StepRef{4, "doc-exporter"}, Path: "mockups/us-004.html", Via: "target_file"},
	}
	if diff := cmp.Diff(want, m.Dependencies()); diff != "" {
		t.Fatalf("dependencies mismatch (-want +got):\n%s", diff)
	}
}

func TestProducedBeforeIgnoresLaterAndSameStep(t *testing.T) {
	m := Manifest{Processors: []ProcessorStep{
		{Sequence: 1, Processor: "a", Input: Path("x.ts"), Output: Path("x.ts")},
		{Sequence: 2, Processor: "b", Output: Path("y.ts")},
	}}
	if _, ok := m.ProducedBefore(0, "x.ts"); ok {
		t.Fatalf("a step must not depend on its own output")
	}
	if step, ok := m.ProducedBefore(1, "./x.ts"); !ok || step.Sequence != 1 {
		t.Fatalf("expected step 1 to produce x.ts, got %+v/%v", step, ok)
	}
	if _, ok := m.ProducedBefore(1, "y.ts"); ok {
		t.Fatalf("later outputs must not count")
	}
}

func TestOptionalPathJSONRoundTrip(t *testing.T) {
	step := ProcessorStep{Sequence: 1, Processor: "a", Output: Path("out.ts")}
	data, err := json.Marshal(step)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"input":null`) || !strings.Contains(string(data), `"output":"out.ts"`) {
		t.Fatalf("unexpected encoding: %s", data)
	}
	var decoded ProcessorStep
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if diff := cmp.Diff(step, decoded); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestCleanPath(t *testing.T) {
	tests := map[string]string{
		"./src/types/user.ts": "src/types/user.ts",
		"src//hooks/../x.ts":  "src/x.ts",
		"  out.ts ":           "out.ts",
		"":                    "",
	}
	for in, want := range tests {
		if got := CleanPath(in); got != want {
			t.Fatalf("CleanPath(%q) = %q, want %q", in, got, want)
		}
	}
}
