// Package validator proves a manifest is achievable before any processor runs.
// Every check runs against a read-only filesystem view and contributes issues
// to a single report; no check stops the others.
package validator

import (
	"fmt"
	"io/fs"
	"strings"

	"github.com/gfenimore/service-software-factory-v2-sub000/internal/config"
	"github.com/gfenimore/service-software-factory-v2-sub000/internal/manifest"
)

// Severity classifies an issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Issue is one finding. Step is nil for manifest-wide findings.
type Issue struct {
	Severity Severity
	Check    string
	Message  string
	Step     *manifest.StepRef
	Path     string
}

func (i Issue) String() string {
	return fmt.Sprintf("[%s] %s: %s", i.Severity, i.Check, i.Message)
}

// Report is the full result of one validation pass.
type Report struct {
	Manifest string
	Issues   []Issue
}

// Errors returns the issues that block execution.
func (r Report) Errors() []Issue { return r.filter(SeverityError) }

// Warnings returns the judgment-call issues.
func (r Report) Warnings() []Issue { return r.filter(SeverityWarning) }

// Infos returns advisory notes.
func (r Report) Infos() []Issue { return r.filter(SeverityInfo) }

// OK reports whether the manifest can structurally succeed. Warnings and
// infos never affect the verdict.
func (r Report) OK() bool {
	return len(r.Errors()) == 0
}

// Err returns a *StructuralError when the report carries errors.
func (r Report) Err() error {
	errs := r.Errors()
	if len(errs) == 0 {
		return nil
	}
	return &StructuralError{Manifest: r.Manifest, Issues: errs}
}

func (r Report) filter(severity Severity) []Issue {
	var out []Issue
	for _, issue := range r.Issues {
		if issue.Severity == severity {
			out = append(out, issue)
		}
	}
	return out
}

// StructuralError means the manifest cannot succeed as written.
type StructuralError struct {
	Manifest string
	Issues   []Issue
}

func (e *StructuralError) Error() string {
	msgs := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		msgs = append(msgs, issue.Message)
	}
	noun := "errors"
	if len(e.Issues) == 1 {
		noun = "error"
	}
	return fmt.Sprintf("validator: %s has %d structural %s: %s", e.Manifest, len(e.Issues), noun, strings.Join(msgs, "; "))
}

// Option customizes a validation pass.
type Option func(*options)

type options struct {
	conventions     []config.NamingConvention
	suggestionLimit int
	minPrefix       int
}

// WithConventions replaces the default naming conventions.
func WithConventions(conventions []config.NamingConvention) Option {
	return func(o *options) {
		if conventions != nil {
			o.conventions = conventions
		}
	}
}

// WithSuggestionLimit caps how many similar files are reported per output.
func WithSuggestionLimit(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.suggestionLimit = n
		}
	}
}

// DefaultConventions are applied when no conventions are configured.
func DefaultConventions() []config.NamingConvention {
	return []config.NamingConvention{
		{Directory: "types", Suffix: ".types.ts"},
		{Directory: "hooks", Prefix: "use"},
	}
}

type check struct {
	name string
	run  func(*pass) []Issue
}

var checks = []check{
	{name: "sequence", run: checkSequence},
	{name: "duplicate-output", run: checkDuplicateOutputs},
	{name: "missing-input", run: checkInputs},
	{name: "missing-target", run: checkTargets},
	{name: "existing-output", run: checkExistingOutputs},
	{name: "dependency", run: checkDependencies},
	{name: "naming-convention", run: checkNaming},
	{name: "similar-file", run: checkSimilarFiles},
}

// Validate runs every check over m and fsys.
func Validate(m manifest.Manifest, fsys FileSystem, opts ...Option) Report {
	o := options{conventions: DefaultConventions(), suggestionLimit: 3, minPrefix: 4}
	for _, opt := range opts {
		opt(&o)
	}
	p := &pass{manifest: m, fsys: fsys, opts: o}
	report := Report{Manifest: m.Label()}
	for _, c := range checks {
		for _, issue := range c.run(p) {
			issue.Check = c.name
			report.Issues = append(report.Issues, issue)
		}
	}
	return report
}

// pass carries shared state for the checks of one Validate call.
type pass struct {
	manifest manifest.Manifest
	fsys     FileSystem
	opts     options
}

func (p *pass) stat(name string) (fs.FileInfo, bool) {
	if p.fsys == nil || name == "" {
		return nil, false
	}
	info, err := p.fsys.Stat(name)
	if err != nil {
		return nil, false
	}
	return info, true
}

func stepIssue(severity Severity, step manifest.ProcessorStep, path, format string, args ...any) Issue {
	ref := step.Ref()
	return Issue{
		Severity: severity,
		Message:  ref.String() + ": " + fmt.Sprintf(format, args...),
		Step:     &ref,
		Path:     path,
	}
}
