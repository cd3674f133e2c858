package main

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/gfenimore/service-software-factory-v2-sub000/internal/storybuilder"
	"github.com/gfenimore/service-software-factory-v2-sub000/internal/traceability"
	"github.com/gfenimore/service-software-factory-v2-sub000/plugins"
)

func newStoryBuilderCommand(app *cli) *cobra.Command {
	var render bool
	cmd := &cobra.Command{
		Use:   "story-builder <spec-file> <output-dir>",
		Short: "Generate user stories and a traceability report from a spec",
		Long: `Reads a requirement spec, generates one user story file per feature (or per
requirement category), maps every requirement onto an acceptance criterion and
writes stories/<id>.md, stories.json and TRACEABILITY.md under output-dir.
Mandatory requirements that no rule matched are forced onto the closest
criterion and listed in the report.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mapper, err := app.mapper()
			if err != nil {
				return exitCode(1, err)
			}
			builder := storybuilder.New(storybuilder.WithMapper(mapper), storybuilder.WithLogger(app.log()))
			summary, err := builder.Build(cmd.Context(), args[0], args[1])
			if err != nil {
				app.journal.Error("story-builder %s: %v", args[0], err)
				return exitCode(1, err)
			}
			app.journal.Info("story-builder wrote %d stories to %s", len(summary.Stories), summary.OutDir)
			return app.printBuildSummary(summary, render)
		},
	}
	cmd.Flags().BoolVar(&render, "render", false, "print the traceability report as rendered markdown")
	return cmd
}

// mapper builds the traceability mapper from project config and rule plugins.
func (c *cli) mapper() (*traceability.Mapper, error) {
	extra, err := plugins.ProjectRules(c.cfg)
	if err != nil {
		return nil, err
	}
	return traceability.NewMapper(
		traceability.WithRules(traceability.DefaultRules(c.cfg.Anchors())...),
		traceability.WithAdditionalRules(extra...),
		traceability.WithCriticalRequirements(c.cfg.CriticalRequirements()...),
		traceability.WithLogger(c.log()),
	), nil
}

func (c *cli) printBuildSummary(summary *storybuilder.Summary, render bool) error {
	fmt.Fprintf(c.stdout, "Wrote %d stories to %s\n", len(summary.Stories), summary.OutDir)
	fmt.Fprintf(c.stdout, "Requirements mapped: %d of %d (%.1f%%)\n",
		len(summary.Result.Mappings), len(summary.Set.Requirements), summary.Result.TotalCoverage(summary.Set))
	if forced := summary.Result.Forced(); len(forced) > 0 {
		fmt.Fprintf(c.stdout, "Forced mappings: %d (review TRACEABILITY.md)\n", len(forced))
	}
	var gap *traceability.GapError
	if err := summary.Gap(); errors.As(err, &gap) {
		c.journal.Warn("%v", gap)
		fmt.Fprintf(c.stderr, "warning: %v\n", gap)
	}
	if !render {
		return nil
	}
	renderer, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	if err != nil {
		return exitCode(1, fmt.Errorf("render report: %w", err))
	}
	out, err := renderer.Render(string(summary.Report))
	if err != nil {
		return exitCode(1, fmt.Errorf("render report: %w", err))
	}
	fmt.Fprint(c.stdout, out)
	return nil
}
