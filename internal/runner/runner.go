// Package runner resolves processor names through the registry and supervises
// them as child processes, one at a time.
package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/gfenimore/service-software-factory-v2-sub000/internal/logbook"
	"github.com/gfenimore/service-software-factory-v2-sub000/internal/registry"
)

// Status is how a single processor invocation ended.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSignaled  Status = "signaled"
)

// Outcome describes one finished processor run.
type Outcome struct {
	Tool         string    `json:"tool"`
	Path         string    `json:"path,omitempty"`
	Args         []string  `json:"args,omitempty"`
	Pid          int       `json:"pid,omitempty"`
	Status       Status    `json:"status,omitempty"`
	ExitCode     int       `json:"exit_code"`
	Signal       string    `json:"signal,omitempty"`
	SignalNumber int       `json:"signal_number,omitempty"`
	Interrupted  bool      `json:"interrupted,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
}

// Code returns the exit code the CLI should mirror. Signal deaths follow the
// shell convention of 128 plus the signal number.
func (o Outcome) Code() int {
	switch o.Status {
	case StatusSucceeded:
		return 0
	case StatusSignaled:
		if o.SignalNumber > 0 {
			return 128 + o.SignalNumber
		}
		return 1
	default:
		if o.ExitCode == 0 {
			return 1
		}
		return o.ExitCode
	}
}

// Duration is the wall time between spawn and exit.
func (o Outcome) Duration() time.Duration {
	if o.FinishedAt.IsZero() {
		return 0
	}
	return o.FinishedAt.Sub(o.StartedAt)
}

// Runner executes registered processors.
type Runner struct {
	registry   *registry.Registry
	spawner    Spawner
	env        []string
	baseEnv    func() []string
	dir        string
	stdin      io.Reader
	stdout     io.Writer
	stderr     io.Writer
	interrupts <-chan os.Signal
	logger     *zap.Logger
	journal    *logbook.Logbook
	now        func() time.Time
}

// Option customizes a Runner.
type Option func(*Runner)

// WithSpawner replaces the os/exec spawner.
func WithSpawner(s Spawner) Option {
	return func(r *Runner) {
		if s != nil {
			r.spawner = s
		}
	}
}

// WithEnvironment adds KEY=VALUE pairs exported to every processor on top of
// the parent environment.
func WithEnvironment(vars []string) Option {
	return func(r *Runner) {
		r.env = append(r.env, vars...)
	}
}

// WithBaseEnvironment replaces os.Environ as the inherited environment.
func WithBaseEnvironment(fn func() []string) Option {
	return func(r *Runner) {
		if fn != nil {
			r.baseEnv = fn
		}
	}
}

// WithDir sets the working directory for processors.
func WithDir(dir string) Option {
	return func(r *Runner) {
		r.dir = dir
	}
}

// WithStdio overrides the inherited standard streams.
func WithStdio(stdin io.Reader, stdout, stderr io.Writer) Option {
	return func(r *Runner) {
		r.stdin, r.stdout, r.stderr = stdin, stdout, stderr
	}
}

// WithInterrupts forwards every signal received on ch to the active child.
func WithInterrupts(ch <-chan os.Signal) Option {
	return func(r *Runner) {
		r.interrupts = ch
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithJournal records pipeline transitions in the run journal.
func WithJournal(journal *logbook.Logbook) Option {
	return func(r *Runner) {
		r.journal = journal
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// New builds a runner over reg.
func New(reg *registry.Registry, opts ...Option) *Runner {
	r := &Runner{
		registry: reg,
		spawner:  ExecSpawner{},
		baseEnv:  os.Environ,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run resolves name and runs it to completion with args. Resolution failures
// return a *registry.ResolutionError before anything is spawned; nonzero
// exits and signal deaths return a *ProcessError alongside the outcome.
func (r *Runner) Run(ctx context.Context, name string, args []string) (Outcome, error) {
	return r.run(ctx, name, args, nil)
}

func (r *Runner) run(ctx context.Context, name string, args []string, extraEnv []string) (Outcome, error) {
	outcome := Outcome{Tool: name, Args: append([]string(nil), args...)}
	if r.registry == nil {
		return outcome, fmt.Errorf("runner: registry is required")
	}
	tool, err := r.registry.Resolve(name)
	if err != nil {
		r.logger.Warn("tool resolution failed", zap.String("tool", name), zap.Error(err))
		return outcome, err
	}
	outcome.Path = tool.Path

	path, argv := tool.Path, outcome.Args
	if tool.Interpreter != "" {
		path = tool.Interpreter
		argv = append([]string{tool.Path}, argv...)
	}

	outcome.StartedAt = r.now()
	proc, err := r.spawner.Spawn(Command{
		Path:   path,
		Args:   argv,
		Env:    mergeEnv(r.baseEnv(), r.env, extraEnv),
		Dir:    r.dir,
		Stdin:  r.stdin,
		Stdout: r.stdout,
		Stderr: r.stderr,
	})
	if err != nil {
		outcome.FinishedAt = r.now()
		return outcome, fmt.Errorf("runner: start %s: %w", name, err)
	}
	outcome.Pid = proc.Pid()
	r.logger.Info("processor started",
		zap.String("tool", name),
		zap.String("path", path),
		zap.Strings("args", argv),
		zap.Int("pid", outcome.Pid),
	)

	status, err := r.supervise(ctx, proc, &outcome)
	outcome.FinishedAt = r.now()
	if err != nil {
		return outcome, fmt.Errorf("runner: wait %s: %w", name, err)
	}

	switch {
	case status.Signaled:
		outcome.Status = StatusSignaled
		outcome.ExitCode = status.Code
		outcome.Signal = status.Signal
		outcome.SignalNumber = status.SignalNumber
	case status.Code != 0:
		outcome.Status = StatusFailed
		outcome.ExitCode = status.Code
	default:
		outcome.Status = StatusSucceeded
	}

	fields := []zap.Field{
		zap.String("tool", name),
		zap.String("status", string(outcome.Status)),
		zap.Int("exit_code", outcome.Code()),
		zap.Duration("duration", outcome.Duration()),
	}
	if outcome.Status != StatusSucceeded {
		r.logger.Warn("processor failed", append(fields, zap.String("signal", outcome.Signal))...)
		return outcome, &ProcessError{Processor: name, Path: tool.Path, Outcome: outcome}
	}
	r.logger.Info("processor finished", fields...)
	return outcome, nil
}

type waitResult struct {
	status ExitStatus
	err    error
}

// supervise blocks on the child's single wait point. Interrupts and context
// cancellation are forwarded to the child and waiting continues so the
// child's own cleanup can finish.
func (r *Runner) supervise(ctx context.Context, proc Process, outcome *Outcome) (ExitStatus, error) {
	done := make(chan waitResult, 1)
	go func() {
		status, err := proc.Wait()
		done <- waitResult{status: status, err: err}
	}()

	interrupts := r.interrupts
	cancelled := ctx.Done()
	for {
		select {
		case res := <-done:
			return res.status, res.err
		case sig, ok := <-interrupts:
			if !ok {
				interrupts = nil
				continue
			}
			outcome.Interrupted = true
			r.forward(proc, sig, outcome.Tool)
		case <-cancelled:
			cancelled = nil
			outcome.Interrupted = true
			r.forward(proc, os.Interrupt, outcome.Tool)
		}
	}
}

func (r *Runner) forward(proc Process, sig os.Signal, tool string) {
	r.logger.Info("forwarding signal", zap.String("tool", tool), zap.String("signal", sig.String()), zap.Int("pid", proc.Pid()))
	if err := proc.Signal(sig); err != nil {
		r.logger.Warn("signal forward failed", zap.String("tool", tool), zap.Error(err))
	}
}

// mergeEnv concatenates KEY=VALUE lists; later keys replace earlier ones in
// place.
func mergeEnv(lists ...[]string) []string {
	index := map[string]int{}
	var out []string
	for _, list := range lists {
		for _, kv := range list {
			key := kv
			if i := strings.IndexByte(kv, '='); i >= 0 {
				key = kv[:i]
			}
			if pos, ok := index[key]; ok {
				out[pos] = kv
				continue
			}
			index[key] = len(out)
			out = append(out, kv)
		}
	}
	return out
}
