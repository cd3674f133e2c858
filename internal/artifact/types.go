// Package artifact defines the files the story builder exchanges with later
// pipeline steps. Each artifact has a stable identifier, kind, and a resolver
// that maps it to a path below an output directory.

package artifact

import (
	"fmt"
	"path/filepath"
	"time"
)

// Kind captures the storage shape and serialization format for an artifact.
type Kind string

const (
	// KindDocument represents a markdown document with YAML frontmatter.
	KindDocument Kind = "document"
	// KindJSON represents a JSON document enriched with a _factory metadata block.
	KindJSON Kind = "json"
	// KindDirectory represents a directory that must exist.
	KindDirectory Kind = "directory"
)

// MetadataKey is the frontmatter key and JSON field holding provenance.
const MetadataKey = "factory"

// PathResolver returns the fully-qualified path to an artifact below root.
type PathResolver func(root string) string

// ArtifactRef declares a stable identifier and metadata for an artifact.
type ArtifactRef struct {
	ID          string
	Name        string
	Description string
	Kind        Kind
	path        PathResolver
}

// Path resolves the artifact path below root.
func (r ArtifactRef) Path(root string) string {
	if root == "" || r.path == nil {
		return ""
	}
	return filepath.Clean(r.path(root))
}

// Validate ensures the reference is well-formed.
func (r ArtifactRef) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("artifact: id is required")
	}
	if r.Kind == "" {
		return fmt.Errorf("artifact: kind is required for %s", r.ID)
	}
	if r.path == nil {
		return fmt.Errorf("artifact: path resolver missing for %s", r.ID)
	}
	return nil
}

// Metadata captures provenance stored inside artifact frontmatter or metadata blocks.
type Metadata struct {
	ArtifactID string
	Processor  string
	Version    string
	Story      string
	Inputs     []string
	CreatedAt  time.Time
	Checksum   string
	Notes      map[string]string
}

// WithDefaults ensures metadata carries the artifact ID and timestamps.
func (m Metadata) WithDefaults(ref ArtifactRef, now time.Time) Metadata {
	clone := m
	if clone.ArtifactID == "" {
		clone.ArtifactID = ref.ID
	}
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = now.UTC()
	} else {
		clone.CreatedAt = clone.CreatedAt.UTC()
	}
	return clone
}

// ValidateFor ensures metadata matches the artifact contract.
func (m Metadata) ValidateFor(ref ArtifactRef) error {
	if m.ArtifactID != ref.ID {
		return fmt.Errorf("artifact: metadata id %s does not match ref %s", m.ArtifactID, ref.ID)
	}
	if m.Processor == "" {
		return fmt.Errorf("artifact: processor is required for %s", ref.ID)
	}
	if m.Version == "" {
		return fmt.Errorf("artifact: version is required for %s", ref.ID)
	}
	return nil
}

// State captures the readiness of an artifact on disk.
type State string

const (
	StateMissing State = "missing"
	StateReady   State = "ready"
	StateInvalid State = "invalid"
	StateError   State = "error"
)

// CheckResult captures Store.Check results.
type CheckResult struct {
	Ref      ArtifactRef
	Path     string
	State    State
	Metadata *Metadata
	Err      error
}

func newDocRef(id, name, desc string, resolver PathResolver) ArtifactRef {
	return ArtifactRef{ID: id, Name: name, Description: desc, Kind: KindDocument, path: resolver}
}

func newJSONRef(id, name, desc string, resolver PathResolver) ArtifactRef {
	return ArtifactRef{ID: id, Name: name, Description: desc, Kind: KindJSON, path: resolver}
}

func newDirectoryRef(id, name, desc string, resolver PathResolver) ArtifactRef {
	return ArtifactRef{ID: id, Name: name, Description: desc, Kind: KindDirectory, path: resolver}
}

// Canonical story builder outputs.
var (
	StoriesDir = newDirectoryRef("stories-dir", "Stories Directory", "stories/ folder holding one markdown file per story", func(root string) string {
		return filepath.Join(root, "stories")
	})
	StoriesJSON = newJSONRef("stories-json", "Stories Manifest", "stories.json for machine consumption", func(root string) string {
		return filepath.Join(root, "stories.json")
	})
	TraceabilityReport = newDocRef("traceability-report", "Traceability Report", "TRACEABILITY.md with coverage and gaps", func(root string) string {
		return filepath.Join(root, "TRACEABILITY.md")
	})
)

// StoryDoc returns the reference for one story's markdown file.
func StoryDoc(storyID string) ArtifactRef {
	return newDocRef("story:"+storyID, storyID, "user story "+storyID, func(root string) string {
		return filepath.Join(root, "stories", storyID+".md")
	})
}
