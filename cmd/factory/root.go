package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gfenimore/service-software-factory-v2-sub000/internal/config"
	"github.com/gfenimore/service-software-factory-v2-sub000/internal/logbook"
	"github.com/gfenimore/service-software-factory-v2-sub000/internal/logging"
	"github.com/gfenimore/service-software-factory-v2-sub000/internal/manifest"
	"github.com/gfenimore/service-software-factory-v2-sub000/internal/validator"
)

// cli holds the state shared by every command of one invocation.
type cli struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	projectDir string
	verbose    bool

	cfg     *config.Config
	logger  *logging.Logger
	journal *logbook.Logbook
}

func newRootCommand(app *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "factory",
		Short: "Validate and run manifest-driven processor pipelines",
		Long: `factory runs a story's processor pipeline from its manifest.

A manifest is an ordered list of processor steps, each declaring the files it
reads, writes or mutates. pre-validate proves the manifest can succeed before
anything runs; run executes it step by step; run-tool invokes one registered
processor directly; story-builder turns a requirement spec into user stories
with a traceability report.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: app.setup,
	}
	root.PersistentFlags().StringVar(&app.projectDir, "project", "", "project directory (default: current directory)")
	root.PersistentFlags().BoolVarP(&app.verbose, "verbose", "v", false, "print debug logs to stderr")

	root.AddCommand(
		newPreValidateCommand(app),
		newRunToolCommand(app),
		newStoryBuilderCommand(app),
		newRunCommand(app),
		newInspectCommand(app),
		newStatusCommand(app),
	)
	return root
}

// setup resolves the project, creates .factory/ and opens the loggers.
func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	dir := c.projectDir
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("resolve working directory: %w", err)
		}
		dir = cwd
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolve project directory: %w", err)
	}
	c.projectDir = abs

	if err := config.InitFactoryDir(abs); err != nil {
		return fmt.Errorf("initialize %s: %w", config.FactoryDir, err)
	}
	cfg, err := config.NewConfig(abs)
	if err != nil {
		return err
	}
	c.cfg = cfg

	logger, err := logging.New(abs, logging.Options{Verbose: c.verbose, Console: c.stderr})
	if err != nil {
		return err
	}
	c.logger = logger

	journal, err := logbook.New(cfg.JournalPath())
	if err != nil {
		return err
	}
	c.journal = journal

	c.logger.Debug("command started",
		zap.String("command", cmd.CommandPath()),
		zap.String("project", abs),
		zap.String("factory_root", cfg.FactoryRoot),
	)
	return nil
}

func (c *cli) close() {
	if c.logger != nil {
		_ = c.logger.Close()
	}
}

func (c *cli) log() *zap.Logger {
	if c.logger == nil {
		c.logger = logging.Nop()
	}
	return c.logger.Logger
}

// validatorOptions applies the project's naming conventions.
func (c *cli) validatorOptions() []validator.Option {
	return []validator.Option{validator.WithConventions(c.cfg.Conventions())}
}

// stdinPath names standard input as the manifest source.
const stdinPath = "-"

// loadManifest reads the manifest at path, or from stdin for "-".
func (c *cli) loadManifest(path string) (manifest.Manifest, error) {
	if path == stdinPath {
		return manifest.LoadReader(c.stdin)
	}
	return manifest.LoadFile(path)
}

// loadAndValidate loads the manifest and validates it against the project
// directory.
func (c *cli) loadAndValidate(path string) (manifest.Manifest, validator.Report, error) {
	m, err := c.loadManifest(path)
	if err != nil {
		return manifest.Manifest{}, validator.Report{}, err
	}
	return m, validator.Validate(m, validator.DirFS(c.projectDir), c.validatorOptions()...), nil
}
