package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/gfenimore/service-software-factory-v2-sub000/internal/logbook"
	"github.com/gfenimore/service-software-factory-v2-sub000/internal/runner"
)

func newStatusCommand(app *cli) *cobra.Command {
	var (
		lines int
		runID string
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the last pipeline result and recent journal entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.printLastRun(); err != nil {
				return exitCode(1, err)
			}
			var match func(logbook.Entry) bool
			if runID != "" {
				match = logbook.InRun(runID)
			}
			entries, total := app.journal.Select(match, lines)
			if total == 0 {
				if runID != "" {
					fmt.Fprintf(app.stdout, "No journal entries for run %s.\n", runID)
					return nil
				}
				fmt.Fprintln(app.stdout, "Journal is empty.")
				return nil
			}
			fmt.Fprintf(app.stdout, "\nJournal (%d of %d entries, %s)\n", len(entries), total, app.journal.Path())
			for _, entry := range entries {
				fmt.Fprintln(app.stdout, "  "+entry.String())
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 20, "number of journal entries to show")
	cmd.Flags().StringVar(&runID, "run", "", "only show entries of the pipeline run with this id prefix")
	return cmd
}

func (c *cli) printLastRun() error {
	path := filepath.Join(c.cfg.StateDir(), lastRunFile)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(c.stdout, "No pipeline has run in this project yet.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	var result runner.PipelineResult
	if err := json.Unmarshal(data, &result); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	fmt.Fprintf(c.stdout, "Last run: %s %s (run %s, %s)\n",
		result.Manifest, result.Status, result.RunID, result.FinishedAt.Format("2006-01-02 15:04:05"))
	if failed, ok := result.Failed(); ok {
		fmt.Fprintf(c.stdout, "  failed at %s: %s\n", failed.Step, failed.Error)
	}
	return nil
}
