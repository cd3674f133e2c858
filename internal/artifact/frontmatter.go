package artifact

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	// ErrMissingFrontMatter indicates the document did not start with a YAML fence.
	ErrMissingFrontMatter = errors.New("artifact: missing frontmatter")
	// ErrMalformedFrontMatter indicates the YAML block could not be parsed.
	ErrMalformedFrontMatter = errors.New("artifact: malformed frontmatter")
)

// ParseFrontMatter extracts the metadata block and body from a document that starts
// with `---` YAML fences.
func ParseFrontMatter(content []byte) (Metadata, []byte, error) {
	if len(content) == 0 {
		return Metadata{}, nil, ErrMissingFrontMatter
	}
	normalized := normalizeNewlines(content)
	if !bytes.HasPrefix(normalized, []byte("---\n")) {
		return Metadata{}, nil, ErrMissingFrontMatter
	}
	rest := normalized[4:]
	parts := bytes.SplitN(rest, []byte("\n---\n"), 2)
	if len(parts) < 2 {
		return Metadata{}, nil, ErrMalformedFrontMatter
	}
	metaBytes := parts[0]
	body := bytes.TrimPrefix(parts[1], []byte("\n"))
	var envelope factoryEnvelope
	if err := yaml.Unmarshal(metaBytes, &envelope); err != nil {
		return Metadata{}, nil, fmt.Errorf("artifact: parse frontmatter: %w", err)
	}
	meta, err := envelope.toMetadata()
	if err != nil {
		return Metadata{}, nil, err
	}
	return meta, body, nil
}

// WriteFrontMatter renders metadata + body with YAML fences.
func WriteFrontMatter(meta Metadata, body []byte) ([]byte, error) {
	if meta.ArtifactID == "" {
		return nil, fmt.Errorf("artifact: metadata missing artifact id")
	}
	envelope := factoryEnvelope{}
	envelope.fromMetadata(meta)
	data, err := yaml.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("artifact: encode frontmatter: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(bytes.TrimRight(data, "\n"))
	buf.WriteString("\n---\n\n")
	buf.Write(body)
	return buf.Bytes(), nil
}

// Checksum returns the hex sha256 of body.
func Checksum(body []byte) string {
	sum := sha256.Sum256(normalizeNewlines(body))
	return hex.EncodeToString(sum[:])
}

type factoryEnvelope struct {
	Factory factoryMetadata `yaml:"factory"`
}

type factoryMetadata struct {
	Artifact  string            `yaml:"artifact"`
	Processor string            `yaml:"processor"`
	Version   string            `yaml:"version"`
	Story     string            `yaml:"story,omitempty"`
	Inputs    []string          `yaml:"inputs,omitempty"`
	Created   string            `yaml:"created"`
	Checksum  string            `yaml:"checksum,omitempty"`
	Notes     map[string]string `yaml:"notes,omitempty"`
}

func (e factoryEnvelope) toMetadata() (Metadata, error) {
	if e.Factory.Artifact == "" || e.Factory.Processor == "" || e.Factory.Version == "" {
		return Metadata{}, ErrMalformedFrontMatter
	}
	created, err := parseTime(e.Factory.Created)
	if err != nil {
		return Metadata{}, fmt.Errorf("artifact: parse created timestamp: %w", err)
	}
	return Metadata{
		ArtifactID: e.Factory.Artifact,
		Processor:  e.Factory.Processor,
		Version:    e.Factory.Version,
		Story:      e.Factory.Story,
		Inputs:     append([]string{}, e.Factory.Inputs...),
		CreatedAt:  created,
		Checksum:   e.Factory.Checksum,
		Notes:      cloneNotes(e.Factory.Notes),
	}, nil
}

func (e *factoryEnvelope) fromMetadata(meta Metadata) {
	e.Factory.Artifact = meta.ArtifactID
	e.Factory.Processor = meta.Processor
	e.Factory.Version = meta.Version
	e.Factory.Story = meta.Story
	e.Factory.Inputs = append([]string{}, meta.Inputs...)
	e.Factory.Created = meta.CreatedAt.UTC().Format(timeLayout)
	e.Factory.Checksum = meta.Checksum
	e.Factory.Notes = cloneNotes(meta.Notes)
}

func cloneNotes(notes map[string]string) map[string]string {
	if len(notes) == 0 {
		return nil
	}
	cloned := make(map[string]string, len(notes))
	for k, v := range notes {
		cloned[k] = v
	}
	return cloned
}

const timeLayout = "2006-01-02T15:04:05Z07:00"

func parseTime(value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, fmt.Errorf("artifact: empty created timestamp")
	}
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func normalizeNewlines(content []byte) []byte {
	return bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
}
