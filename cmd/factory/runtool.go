package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gfenimore/service-software-factory-v2-sub000/internal/registry"
	"github.com/gfenimore/service-software-factory-v2-sub000/internal/runner"
)

func newRunToolCommand(app *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run-tool <tool-name> [args...]",
		Short: "Run one registered processor and mirror its exit status",
		Long: `Resolves a processor through the tool registry and runs it with the
remaining arguments, passed through unchanged. Interrupts are forwarded to the
processor. Without a name, or with an unknown one, the registry is listed with
each tool's status and the command exits 1.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.runTool(cmd.Context(), args)
		},
	}
	// Everything after the tool name belongs to the tool.
	cmd.Flags().SetInterspersed(false)
	return cmd
}

func (c *cli) runTool(ctx context.Context, args []string) error {
	reg, err := registry.FromConfig(c.cfg)
	if err != nil {
		return exitCode(1, err)
	}
	if len(args) == 0 {
		fmt.Fprintln(c.stdout, "usage: factory run-tool <tool-name> [args...]")
		fmt.Fprintln(c.stdout, "\nRegistered tools:")
		registry.WriteStatus(c.stdout, reg.Statuses())
		return exitCode(1, nil)
	}

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupts)

	r := runner.New(reg,
		runner.WithEnvironment(c.cfg.Environment()),
		runner.WithDir(c.projectDir),
		runner.WithStdio(c.stdin, c.stdout, c.stderr),
		runner.WithInterrupts(interrupts),
		runner.WithLogger(c.log()),
		runner.WithJournal(c.journal),
	)
	name := args[0]
	c.journal.Info("run-tool %s started", name)
	outcome, err := r.Run(ctx, name, args[1:])

	var resolution *registry.ResolutionError
	var process *runner.ProcessError
	switch {
	case errors.As(err, &resolution):
		c.journal.Error("run-tool %s: %s", name, resolution.Reason)
		fmt.Fprintf(c.stderr, "factory: %v\n\nRegistered tools:\n", resolution)
		registry.WriteStatus(c.stderr, resolution.Statuses)
		return exitCode(1, nil)
	case errors.As(err, &process):
		c.journal.Error("run-tool %s exited with code %d", name, process.ExitCode())
		return exitCode(process.ExitCode(), nil)
	case err != nil:
		c.journal.Error("run-tool %s: %v", name, err)
		return exitCode(1, err)
	}
	c.journal.Info("run-tool %s finished in %s", name, outcome.Duration())
	return nil
}
