package main

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/gfenimore/service-software-factory-v2-sub000/internal/manifest"
	"github.com/gfenimore/service-software-factory-v2-sub000/internal/tui"
	"github.com/gfenimore/service-software-factory-v2-sub000/internal/validator"
)

func newInspectCommand(app *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <manifest-path>",
		Short: "Browse a manifest's steps and validation findings interactively",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			inspector := tui.NewInspector(func() (manifest.Manifest, validator.Report, error) {
				return app.loadAndValidate(path)
			}, tui.WithJournal(app.journal))

			p := tea.NewProgram(inspector,
				tea.WithAltScreen(),
				tea.WithContext(cmd.Context()),
				tea.WithInput(app.stdin),
				tea.WithOutput(app.stdout),
			)
			if _, err := p.Run(); err != nil {
				return exitCode(1, err)
			}
			return nil
		},
	}
}
