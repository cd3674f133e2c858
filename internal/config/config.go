// internal/config/config.go
//
// This package handles configuration and the .factory directory structure.
// Every project that runs the factory gets a .factory/ folder in its root.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// FactoryDir is the name of the directory we create in each project
	FactoryDir = ".factory"

	// RootEnv overrides where processors and shared factory assets live.
	RootEnv = "FACTORY_ROOT"
	// ProjectRootEnv is exported to every processor alongside RootEnv.
	ProjectRootEnv = "FACTORY_PROJECT_ROOT"
	// LegacyModeEnv toggles legacy processor behaviour for children.
	LegacyModeEnv = "FACTORY_LEGACY_MODE"
)

const defaultProjectConfigYAML = `# factory project configuration
version: 1

# Run processors in legacy mode (exported to children as FACTORY_LEGACY_MODE).
legacy_mode: false

# Logical processor names mapped to executables. Relative paths resolve against
# the factory root (FACTORY_ROOT, or the project directory when unset).
# Leave empty to use the built-in processor layout under processors/.
tools: {}
#  html-generator:
#    path: processors/html-generator.js
#    interpreter: node

# Output naming conventions checked by pre-validate.
conventions:
  - directory: types
    suffix: .types.ts
  - directory: hooks
    prefix: use

traceability:
  # Requirements that must always land on a story, even without a text match.
  critical_requirements:
    - NAV-004
`

// ToolConfig declares one processor entry inside .factory/config.yaml.
type ToolConfig struct {
	Path        string `yaml:"path"`
	Interpreter string `yaml:"interpreter,omitempty"`
}

// NamingConvention describes the expected shape of outputs written below a
// directory with the given name.
type NamingConvention struct {
	Directory string `yaml:"directory"`
	Prefix    string `yaml:"prefix,omitempty"`
	Suffix    string `yaml:"suffix,omitempty"`
}

// TraceabilityConfig tunes the requirement mapper.
type TraceabilityConfig struct {
	CriticalRequirements []string            `yaml:"critical_requirements,omitempty"`
	Anchors              map[string][]string `yaml:"anchors,omitempty"`
}

// ProjectConfig models .factory/config.yaml.
type ProjectConfig struct {
	Version      int                   `yaml:"version"`
	LegacyMode   bool                  `yaml:"legacy_mode"`
	Tools        map[string]ToolConfig `yaml:"tools"`
	Conventions  []NamingConvention    `yaml:"conventions,omitempty"`
	Traceability TraceabilityConfig    `yaml:"traceability,omitempty"`
}

// Config holds the runtime configuration for the factory.
type Config struct {
	// ProjectDir is the directory the pipeline operates on
	ProjectDir string

	// FactoryRoot is where processors and shared assets live
	FactoryRoot string

	// FactoryProjectDir is ProjectDir/.factory
	FactoryProjectDir string

	Project ProjectConfig
}

// InitFactoryDir creates the .factory directory structure in the given project directory.
//
// Structure created:
// .factory/
// ├── config.yaml
// ├── logs/         <- zap log and the pipeline run journal
// ├── state/        <- last pipeline result
// └── rules/        <- extra traceability match rules (*.yaml, *.go)
func InitFactoryDir(projectDir string) error {
	factoryDir := filepath.Join(projectDir, FactoryDir)

	dirs := []string{
		filepath.Join(factoryDir, "logs"),
		filepath.Join(factoryDir, "state"),
		filepath.Join(factoryDir, "rules"),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	if err := ensureProjectConfig(filepath.Join(factoryDir, "config.yaml")); err != nil {
		return err
	}

	return nil
}

// NewConfig creates a new Config instance populated with project settings.
func NewConfig(projectDir string) (*Config, error) {
	root := strings.TrimSpace(os.Getenv(RootEnv))
	if root == "" {
		root = projectDir
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("config: resolve %s: %w", RootEnv, err)
	}

	cfg := &Config{
		ProjectDir:        projectDir,
		FactoryRoot:       absRoot,
		FactoryProjectDir: filepath.Join(projectDir, FactoryDir),
		Project:           defaultProjectConfig(),
	}

	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LogsDir returns the path to the logs directory
func (c *Config) LogsDir() string {
	return filepath.Join(c.FactoryProjectDir, "logs")
}

// StateDir returns the path to the state directory
func (c *Config) StateDir() string {
	return filepath.Join(c.FactoryProjectDir, "state")
}

// RulesDir returns the directory scanned for traceability rule plugins
func (c *Config) RulesDir() string {
	return filepath.Join(c.FactoryProjectDir, "rules")
}

// JournalPath returns the human-readable pipeline journal location
func (c *Config) JournalPath() string {
	return filepath.Join(c.LogsDir(), "pipeline.log")
}

// ProjectConfigPath returns the on-disk location for the project config file.
func (c *Config) ProjectConfigPath() string {
	return filepath.Join(c.FactoryProjectDir, "config.yaml")
}

// LegacyMode reports whether processors should run in legacy mode.
func (c *Config) LegacyMode() bool {
	return c.Project.LegacyMode
}

// Tools returns configured processors with paths resolved against the factory root.
func (c *Config) Tools() map[string]ToolConfig {
	out := make(map[string]ToolConfig, len(c.Project.Tools))
	for name, tool := range c.Project.Tools {
		tool.Path = resolvePath(c.FactoryRoot, tool.Path)
		out[name] = tool
	}
	return out
}

// Conventions returns the naming conventions checked by the validator.
func (c *Config) Conventions() []NamingConvention {
	return append([]NamingConvention{}, c.Project.Conventions...)
}

// CriticalRequirements returns the ids the mapper must always place.
func (c *Config) CriticalRequirements() []string {
	return append([]string{}, c.Project.Traceability.CriticalRequirements...)
}

// Anchors returns per-category anchor phrases that extend the built-in set.
func (c *Config) Anchors() map[string][]string {
	return c.Project.Traceability.Anchors
}

// Environment returns the pipeline variables exported to every processor.
func (c *Config) Environment() []string {
	legacy := "0"
	if c.Project.LegacyMode {
		legacy = "1"
	}
	return []string{
		RootEnv + "=" + c.FactoryRoot,
		ProjectRootEnv + "=" + c.ProjectDir,
		LegacyModeEnv + "=" + legacy,
	}
}

func (c *Config) loadProjectConfig() error {
	path := c.ProjectConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var parsed ProjectConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	parsed.applyDefaults()
	parsed.normalize()
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	c.Project = parsed
	return nil
}

func defaultProjectConfig() ProjectConfig {
	return ProjectConfig{
		Version:     1,
		Tools:       map[string]ToolConfig{},
		Conventions: defaultConventions(),
		Traceability: TraceabilityConfig{
			CriticalRequirements: []string{"NAV-004"},
		},
	}
}

func defaultConventions() []NamingConvention {
	return []NamingConvention{
		{Directory: "types", Suffix: ".types.ts"},
		{Directory: "hooks", Prefix: "use"},
	}
}

func (pc *ProjectConfig) applyDefaults() {
	if pc.Version == 0 {
		pc.Version = 1
	}
	if pc.Tools == nil {
		pc.Tools = map[string]ToolConfig{}
	}
	if pc.Conventions == nil {
		pc.Conventions = defaultConventions()
	}
	if pc.Traceability.CriticalRequirements == nil {
		pc.Traceability.CriticalRequirements = []string{"NAV-004"}
	}
}

func (pc *ProjectConfig) normalize() {
	tools := make(map[string]ToolConfig, len(pc.Tools))
	for name, tool := range pc.Tools {
		tool.Path = strings.TrimSpace(tool.Path)
		tool.Interpreter = strings.TrimSpace(tool.Interpreter)
		tools[strings.TrimSpace(name)] = tool
	}
	pc.Tools = tools
	for i := range pc.Conventions {
		conv := &pc.Conventions[i]
		conv.Directory = strings.Trim(strings.TrimSpace(conv.Directory), "/")
		conv.Prefix = strings.TrimSpace(conv.Prefix)
		conv.Suffix = strings.TrimSpace(conv.Suffix)
	}
	pc.Traceability.CriticalRequirements = dedupe(pc.Traceability.CriticalRequirements)
	if len(pc.Traceability.Anchors) > 0 {
		anchors := make(map[string][]string, len(pc.Traceability.Anchors))
		for category, phrases := range pc.Traceability.Anchors {
			key := strings.ToLower(strings.TrimSpace(category))
			anchors[key] = append(anchors[key], dedupe(phrases)...)
		}
		pc.Traceability.Anchors = anchors
	}
}

func (pc *ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	for name, tool := range pc.Tools {
		if name == "" {
			return fmt.Errorf("tools: name is required")
		}
		if tool.Path == "" {
			return fmt.Errorf("tools[%s]: path is required", name)
		}
	}
	for i, conv := range pc.Conventions {
		if conv.Directory == "" {
			return fmt.Errorf("conventions[%d]: directory is required", i)
		}
		if conv.Prefix == "" && conv.Suffix == "" {
			return fmt.Errorf("conventions[%d]: prefix or suffix is required", i)
		}
	}
	return nil
}

func dedupe(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return ""
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultProjectConfigYAML), 0644)
}
