// Package manifest models the ordered processor pipeline that one factory run
// executes. Each step declares the artifact paths it reads, writes, or mutates;
// dependencies between steps are inferred from those paths.
package manifest

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Manifest is an ordered list of processor steps plus run metadata.
type Manifest struct {
	StoryID    string          `json:"storyId,omitempty" yaml:"storyId,omitempty"`
	Version    string          `json:"version,omitempty" yaml:"version,omitempty"`
	Processors []ProcessorStep `json:"processors" yaml:"processors"`

	// Source is the file the manifest was loaded from, if any.
	Source string `json:"-" yaml:"-"`
}

// ProcessorStep describes one processor invocation and its file contract.
type ProcessorStep struct {
	Sequence    int          `json:"sequence" yaml:"sequence"`
	Processor   string       `json:"processor" yaml:"processor"`
	Input       OptionalPath `json:"input" yaml:"input"`
	Output      OptionalPath `json:"output,omitempty" yaml:"output,omitempty"`
	TargetFile  OptionalPath `json:"target_file,omitempty" yaml:"target_file,omitempty"`
	Args        []string     `json:"args,omitempty" yaml:"args,omitempty"`
	Description string       `json:"description,omitempty" yaml:"description,omitempty"`
}

// Ref returns the identity used in messages about this step.
func (s ProcessorStep) Ref() StepRef {
	return StepRef{Sequence: s.Sequence, Processor: s.Processor}
}

// StepRef identifies a step by sequence number and processor name.
type StepRef struct {
	Sequence  int    `json:"sequence" yaml:"sequence"`
	Processor string `json:"processor" yaml:"processor"`
}

func (r StepRef) String() string {
	if strings.TrimSpace(r.Processor) == "" {
		return fmt.Sprintf("step %d", r.Sequence)
	}
	return fmt.Sprintf("step %d (%s)", r.Sequence, r.Processor)
}

// Dependency is a structural edge: To reads or modifies a path From writes.
type Dependency struct {
	From StepRef
	To   StepRef
	Path string
	// Via is the field on To that references the path ("input" or "target_file").
	Via string
}

// ProducedBefore returns the earliest step declared before index whose output
// equals path.
func (m Manifest) ProducedBefore(index int, path string) (ProcessorStep, bool) {
	target := CleanPath(path)
	if index > len(m.Processors) {
		index = len(m.Processors)
	}
	for i := 0; i < index; i++ {
		step := m.Processors[i]
		if step.Output.Valid && CleanPath(step.Output.Value) == target {
			return step, true
		}
	}
	return ProcessorStep{}, false
}

// Dependencies infers edges from earlier outputs to later inputs and targets.
func (m Manifest) Dependencies() []Dependency {
	var deps []Dependency
	for i, step := range m.Processors {
		if step.Input.Valid {
			if producer, ok := m.ProducedBefore(i, step.Input.Value); ok {
				deps = append(deps, Dependency{From: producer.Ref(), To: step.Ref(), Path: CleanPath(step.Input.Value), Via: "input"})
			}
		}
		if step.TargetFile.Valid {
			if producer, ok := m.ProducedBefore(i, step.TargetFile.Value); ok {
				deps = append(deps, Dependency{From: producer.Ref(), To: step.Ref(), Path: CleanPath(step.TargetFile.Value), Via: "target_file"})
			}
		}
	}
	return deps
}

// Label returns a short human identifier for the manifest.
func (m Manifest) Label() string {
	switch {
	case m.StoryID != "" && m.Version != "":
		return fmt.Sprintf("%s@%s", m.StoryID, m.Version)
	case m.StoryID != "":
		return m.StoryID
	case m.Source != "":
		return filepath.Base(m.Source)
	default:
		return "manifest"
	}
}

// CleanPath normalizes a manifest path for comparisons: slash separated,
// cleaned, without a leading "./".
func CleanPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		return ""
	}
	cleaned := filepath.ToSlash(filepath.Clean(filepath.FromSlash(trimmed)))
	return strings.TrimPrefix(cleaned, "./")
}
