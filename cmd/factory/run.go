package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gfenimore/service-software-factory-v2-sub000/internal/manifest"
	"github.com/gfenimore/service-software-factory-v2-sub000/internal/registry"
	"github.com/gfenimore/service-software-factory-v2-sub000/internal/runner"
	"github.com/gfenimore/service-software-factory-v2-sub000/internal/validator"
)

// lastRunFile is the pipeline result saved under .factory/state.
const lastRunFile = "last-run.json"

func newRunCommand(app *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "run <manifest-path|->",
		Short: "Validate a manifest and run its steps in order",
		Long: `Runs pre-validation and, when the manifest has no errors, executes each
processor step in declared order. The first failing step stops the pipeline
and its exit status becomes the command's. The result is saved to
.factory/state/last-run.json.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := app.loadManifest(args[0])
			if err != nil {
				return exitCode(1, err)
			}
			reg, err := registry.FromConfig(app.cfg)
			if err != nil {
				return exitCode(1, err)
			}

			interrupts := make(chan os.Signal, 1)
			signal.Notify(interrupts, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(interrupts)

			r := runner.New(reg,
				runner.WithEnvironment(app.cfg.Environment()),
				runner.WithDir(app.projectDir),
				runner.WithStdio(app.stdin, app.stdout, app.stderr),
				runner.WithInterrupts(interrupts),
				runner.WithLogger(app.log()),
				runner.WithJournal(app.journal),
			)
			result, runErr := r.RunManifest(cmd.Context(), m, validator.DirFS(app.projectDir), app.validatorOptions()...)

			statePath := filepath.Join(app.cfg.StateDir(), lastRunFile)
			if err := result.Save(statePath); err != nil {
				app.log().Warn("save pipeline result", zap.String("path", statePath), zap.Error(err))
			}
			return app.reportRun(m, result, runErr)
		},
	}
}

func (c *cli) reportRun(m manifest.Manifest, result runner.PipelineResult, runErr error) error {
	if result.Status == runner.PipelineBlocked {
		printReport(c.stdout, m, result.Report)
		return exitCode(1, nil)
	}
	for _, step := range result.Steps {
		line := fmt.Sprintf("  %-10s %s", step.Status, step.Step)
		if step.Outcome != nil && step.Status == runner.StepSucceeded {
			line += fmt.Sprintf(" (%s)", step.Outcome.Duration().Round(time.Millisecond))
		}
		fmt.Fprintln(c.stdout, line)
	}
	fmt.Fprintf(c.stdout, "Pipeline %s: %s (run %s)\n", result.Manifest, result.Status, result.RunID)
	if runErr == nil {
		return nil
	}
	var process *runner.ProcessError
	if errors.As(runErr, &process) {
		return exitCode(process.ExitCode(), runErr)
	}
	var interrupted *runner.InterruptError
	if errors.As(runErr, &interrupted) {
		return exitCode(interrupted.ExitCode(), runErr)
	}
	return exitCode(1, runErr)
}
