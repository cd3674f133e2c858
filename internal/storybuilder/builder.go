package storybuilder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gfenimore/service-software-factory-v2-sub000/internal/artifact"
	"github.com/gfenimore/service-software-factory-v2-sub000/internal/traceability"
)

const (
	// ProcessorName is recorded in every artifact's metadata.
	ProcessorName = "story-builder"
	// ProcessorVersion tracks the output layout.
	ProcessorVersion = "1"
)

// Builder generates stories and traceability artifacts from a spec file.
type Builder struct {
	mapper *traceability.Mapper
	logger *zap.Logger
	clock  func() time.Time
}

// Option customizes a Builder.
type Option func(*Builder)

// WithMapper replaces the default mapper.
func WithMapper(m *traceability.Mapper) Option {
	return func(b *Builder) {
		if m != nil {
			b.mapper = m
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithClock overrides the metadata timestamp source.
func WithClock(clock func() time.Time) Option {
	return func(b *Builder) {
		if clock != nil {
			b.clock = clock
		}
	}
}

// New returns a Builder. Without WithMapper it uses the default rules and
// critical requirements.
func New(opts ...Option) *Builder {
	b := &Builder{logger: zap.NewNop(), clock: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	if b.mapper == nil {
		b.mapper = traceability.NewMapper(traceability.WithLogger(b.logger))
	}
	return b
}

// Summary describes a completed build.
type Summary struct {
	OutDir  string
	Stories []*traceability.Story
	Set     traceability.RequirementSet
	Result  traceability.Result
	Report  []byte
	Paths   []string
}

// Gap returns the mandatory coverage gap, if any. A gap never fails the
// build; it is reported.
func (s *Summary) Gap() error {
	return s.Result.Gap()
}

// storiesDocument is the stories.json payload.
type storiesDocument struct {
	Stories  []*traceability.Story           `json:"stories"`
	Mappings []traceability.Mapping          `json:"mappings"`
	Unmapped traceability.Unmapped           `json:"unmapped"`
	Coverage []traceability.CategoryCoverage `json:"coverage"`
}

// Build reads specPath and writes the stories directory, stories.json and
// TRACEABILITY.md under outDir, then verifies every artifact it wrote.
func (b *Builder) Build(ctx context.Context, specPath, outDir string) (*Summary, error) {
	spec, set, err := LoadSpec(specPath)
	if err != nil {
		return nil, err
	}
	stories := Generate(spec, set)
	if len(stories) == 0 {
		return nil, errors.New("storybuilder: spec has no requirements or features to build stories from")
	}
	if err := checkStoryIDs(stories); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := b.mapper.Map(set, stories)
	if gap := result.Gap(); gap != nil {
		b.logger.Warn("traceability gap", zap.Strings("requirements", result.Unmapped.Mandatory))
	}

	store := artifact.NewStore(outDir, artifact.WithClock(b.clock))
	meta := artifact.Metadata{Processor: ProcessorName, Version: ProcessorVersion, Inputs: []string{specPath}}
	if err := store.Write(artifact.StoriesDir, nil, meta); err != nil {
		return nil, fmt.Errorf("storybuilder: create stories dir: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, story := range stories {
		story := story
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			storyMeta := meta
			storyMeta.Story = story.ID
			storyMeta.Notes = map[string]string{"requirements": strings.Join(story.Requirements(), ",")}
			if story.Category != "" {
				storyMeta.Notes["category"] = story.Category
			}
			if err := store.Write(artifact.StoryDoc(story.ID), RenderStory(story), storyMeta); err != nil {
				return fmt.Errorf("storybuilder: write %s: %w", story.ID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(storiesDocument{
		Stories:  stories,
		Mappings: nonNil(result.Mappings),
		Unmapped: result.Unmapped,
		Coverage: result.Coverage(set),
	})
	if err != nil {
		return nil, fmt.Errorf("storybuilder: encode stories: %w", err)
	}
	if err := store.Write(artifact.StoriesJSON, payload, meta); err != nil {
		return nil, fmt.Errorf("storybuilder: write stories.json: %w", err)
	}
	report := RenderReport(set, stories, result)
	if err := store.Write(artifact.TraceabilityReport, report, meta); err != nil {
		return nil, fmt.Errorf("storybuilder: write report: %w", err)
	}

	refs := []artifact.ArtifactRef{artifact.StoriesDir, artifact.StoriesJSON, artifact.TraceabilityReport}
	for _, story := range stories {
		refs = append(refs, artifact.StoryDoc(story.ID))
	}
	summary := &Summary{OutDir: outDir, Stories: stories, Set: set, Result: result, Report: report}
	for _, ref := range refs {
		check, err := store.Check(ref)
		if err != nil {
			return nil, fmt.Errorf("storybuilder: verify %s: %w", ref.ID, err)
		}
		if check.State != artifact.StateReady {
			return nil, fmt.Errorf("storybuilder: verify %s: %s", ref.ID, check.State)
		}
		summary.Paths = append(summary.Paths, check.Path)
	}

	b.logger.Info("stories built",
		zap.Int("stories", len(stories)),
		zap.Int("requirements", len(set.Requirements)),
		zap.Int("forced", len(result.Forced())),
		zap.String("out", outDir),
	)
	return summary, nil
}

// checkStoryIDs rejects ids that would share a story file or resolve
// outside the stories directory.
func checkStoryIDs(stories []*traceability.Story) error {
	seen := make(map[string]bool, len(stories))
	for _, s := range stories {
		if !storyIDPattern.MatchString(s.ID) {
			return fmt.Errorf("storybuilder: invalid story id %q", s.ID)
		}
		if seen[s.ID] {
			return fmt.Errorf("storybuilder: duplicate story id %q", s.ID)
		}
		seen[s.ID] = true
	}
	return nil
}

func nonNil(mappings []traceability.Mapping) []traceability.Mapping {
	if mappings == nil {
		return []traceability.Mapping{}
	}
	return mappings
}
