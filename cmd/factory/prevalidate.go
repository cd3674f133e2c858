package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gfenimore/service-software-factory-v2-sub000/internal/manifest"
	"github.com/gfenimore/service-software-factory-v2-sub000/internal/tui"
	"github.com/gfenimore/service-software-factory-v2-sub000/internal/validator"
	"github.com/gfenimore/service-software-factory-v2-sub000/internal/watch"
)

func newPreValidateCommand(app *cli) *cobra.Command {
	var watchMode bool
	cmd := &cobra.Command{
		Use:   "pre-validate <manifest-path|->",
		Short: "Check that a manifest can succeed before running it",
		Long: `Checks step ordering, duplicate outputs, missing inputs and targets, and
dependencies between steps, plus advisory naming and similar-file notes.
Exits 0 when the manifest has no errors, 1 otherwise. A path of "-" reads
the manifest from standard input.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if watchMode {
				if args[0] == stdinPath {
					return exitCode(1, fmt.Errorf("--watch needs a manifest file, not standard input"))
				}
				return app.watchManifest(cmd.Context(), args[0])
			}
			ok, err := app.preValidate(args[0])
			if err != nil {
				return exitCode(1, err)
			}
			if !ok {
				return exitCode(1, nil)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&watchMode, "watch", "w", false, "re-validate whenever the manifest or project files change")
	return cmd
}

// preValidate prints the report and returns the verdict.
func (c *cli) preValidate(path string) (bool, error) {
	m, report, err := c.loadAndValidate(path)
	if err != nil {
		c.journal.Error("pre-validate %s: %v", path, err)
		return false, err
	}
	printReport(c.stdout, m, report)
	if report.OK() {
		c.journal.Info("pre-validate %s passed (%d warning(s), %d note(s))", m.Label(), len(report.Warnings()), len(report.Infos()))
	} else {
		c.journal.Error("pre-validate %s failed with %d error(s)", m.Label(), len(report.Errors()))
	}
	c.log().Info("manifest validated",
		zap.String("manifest", m.Label()),
		zap.Bool("ok", report.OK()),
		zap.Int("errors", len(report.Errors())),
		zap.Int("warnings", len(report.Warnings())),
	)
	return report.OK(), nil
}

func (c *cli) watchManifest(parent context.Context, path string) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ok, err := c.preValidate(path)
	if err != nil {
		fmt.Fprintf(c.stderr, "factory: %v\n", err)
	}
	manifestDir, _ := filepath.Abs(filepath.Dir(path))
	w, err := watch.New([]string{manifestDir, c.projectDir}, func(_ context.Context, changed []string) {
		fmt.Fprintf(c.stdout, "\n%s changed, re-validating\n", strings.Join(relativeAll(c.projectDir, changed), ", "))
		var err error
		ok, err = c.preValidate(path)
		if err != nil {
			fmt.Fprintf(c.stderr, "factory: %v\n", err)
		}
	}, watch.WithLogger(c.log()), watch.WithFilter(func(name string) bool {
		return !strings.Contains(name, string(filepath.Separator)+".factory"+string(filepath.Separator)) &&
			!strings.HasSuffix(name, "~")
	}))
	if err != nil {
		return exitCode(1, err)
	}
	fmt.Fprintln(c.stdout, "Watching for changes (Ctrl+C to stop)")
	if err := w.Run(ctx); err != nil {
		return exitCode(1, err)
	}
	if !ok {
		return exitCode(1, nil)
	}
	return nil
}

var (
	headingStyle = lipgloss.NewStyle().Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
)

// printReport writes the issues grouped by severity, errors first.
func printReport(w io.Writer, m manifest.Manifest, report validator.Report) {
	source := m.Source
	if source == "" {
		source = "-"
	}
	fmt.Fprintf(w, "%s %s (%s, %d step(s))\n",
		headingStyle.Render("Manifest"), m.Label(), source, len(m.Processors))

	groups := []struct {
		severity validator.Severity
		title    string
		issues   []validator.Issue
	}{
		{validator.SeverityError, "Errors", report.Errors()},
		{validator.SeverityWarning, "Warnings", report.Warnings()},
		{validator.SeverityInfo, "Notes", report.Infos()},
	}
	for _, g := range groups {
		if len(g.issues) == 0 {
			continue
		}
		style := tui.SeverityStyle(g.severity)
		fmt.Fprintf(w, "\n%s\n", style.Render(fmt.Sprintf("%s (%d)", g.title, len(g.issues))))
		for _, issue := range g.issues {
			fmt.Fprintf(w, "  %s %s %s\n", style.Render("•"), issue.Message, mutedStyle.Render("["+issue.Check+"]"))
		}
	}

	verdict := tui.SeverityStyle("").Render("PASS")
	if !report.OK() {
		verdict = tui.SeverityStyle(validator.SeverityError).Render("FAIL")
	}
	fmt.Fprintf(w, "\n%s %d error(s), %d warning(s), %d note(s)\n",
		verdict, len(report.Errors()), len(report.Warnings()), len(report.Infos()))
}

func relativeAll(base string, paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		if rel, err := filepath.Rel(base, p); err == nil && !strings.HasPrefix(rel, "..") {
			out[i] = rel
			continue
		}
		out[i] = p
	}
	return out
}
