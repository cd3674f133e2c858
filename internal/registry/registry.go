// Package registry maps logical processor names to the executables that
// implement them. Registries are built explicitly and injected into the
// runner so tests can substitute their own entries.
package registry

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/gfenimore/service-software-factory-v2-sub000/internal/config"
)

// DefaultTools lists the processors of the standard factory layout, relative
// to the factory root. They are registered when the project config declares
// no tools of its own.
var DefaultTools = map[string]string{
	"story-builder":         filepath.Join("processors", "story-builder"),
	"html-generator":        filepath.Join("processors", "html-generator"),
	"component-stringifier": filepath.Join("processors", "component-stringifier"),
	"doc-exporter":          filepath.Join("processors", "doc-exporter"),
}

// Tool is one resolvable processor.
type Tool struct {
	Name string
	Path string
	// Interpreter, when set, is invoked with Path as its first argument.
	Interpreter string
}

// ToolStatus reports whether a registered tool resolves on disk.
type ToolStatus struct {
	Name        string
	Path        string
	Interpreter string
	Exists      bool
}

// Registry maintains known processors.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	stat  func(string) (fs.FileInfo, error)
}

// Option customizes a Registry during construction.
type Option func(*Registry)

// WithStat overrides the function used to check executables on disk.
func WithStat(stat func(string) (fs.FileInfo, error)) Option {
	return func(r *Registry) {
		if stat != nil {
			r.stat = stat
		}
	}
}

// New returns an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{tools: map[string]Tool{}, stat: os.Stat}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FromConfig builds a registry from the project config, falling back to
// DefaultTools under the factory root.
func FromConfig(cfg *config.Config, opts ...Option) (*Registry, error) {
	if cfg == nil {
		return nil, fmt.Errorf("registry: config is required")
	}
	r := New(opts...)
	tools := cfg.Tools()
	if len(tools) == 0 {
		for name, rel := range DefaultTools {
			tools[name] = config.ToolConfig{Path: filepath.Join(cfg.FactoryRoot, rel)}
		}
	}
	for name, tool := range tools {
		if err := r.Register(Tool{Name: name, Path: tool.Path, Interpreter: tool.Interpreter}); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register installs a tool. Returns an error if the name already exists.
func (r *Registry) Register(tool Tool) error {
	name := strings.TrimSpace(tool.Name)
	if name == "" {
		return fmt.Errorf("registry: tool name is required")
	}
	if strings.TrimSpace(tool.Path) == "" {
		return fmt.Errorf("registry: path is required for %s", name)
	}
	tool.Name = name
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("registry: %s already registered", name)
	}
	r.tools[name] = tool
	return nil
}

// MustRegister panics if registration fails.
func (r *Registry) MustRegister(tool Tool) {
	if err := r.Register(tool); err != nil {
		panic(err)
	}
}

// Lookup returns the registered tool without checking the filesystem.
func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// GetPath returns the executable path for name. Unknown names and tools
// missing on disk yield a *ResolutionError carrying the full registry status.
func (r *Registry) GetPath(name string) (string, error) {
	tool, err := r.Resolve(name)
	if err != nil {
		return "", err
	}
	return tool.Path, nil
}

// Resolve returns the tool registered under name once it is known to exist.
func (r *Registry) Resolve(name string) (Tool, error) {
	tool, ok := r.Lookup(name)
	if !ok {
		return Tool{}, &ResolutionError{Name: name, Reason: "unknown tool", Statuses: r.Statuses()}
	}
	if !r.exists(tool.Path) {
		return Tool{}, &ResolutionError{Name: name, Reason: fmt.Sprintf("executable not found at %s", tool.Path), Statuses: r.Statuses()}
	}
	return tool, nil
}

// ValidateTool reports whether name is registered and its executable exists.
func (r *Registry) ValidateTool(name string) bool {
	tool, ok := r.Lookup(name)
	return ok && r.exists(tool.Path)
}

// AvailableTools returns every registered name mapped to its path.
func (r *Registry) AvailableTools() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.tools))
	for name, tool := range r.tools {
		out[name] = tool.Path
	}
	return out
}

// Names returns a sorted list of registered tool names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Statuses reports every registered tool with its on-disk existence, sorted
// by name.
func (r *Registry) Statuses() []ToolStatus {
	names := r.Names()
	out := make([]ToolStatus, 0, len(names))
	for _, name := range names {
		tool, _ := r.Lookup(name)
		out = append(out, ToolStatus{
			Name:        name,
			Path:        tool.Path,
			Interpreter: tool.Interpreter,
			Exists:      r.exists(tool.Path),
		})
	}
	return out
}

func (r *Registry) exists(path string) bool {
	info, err := r.stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
