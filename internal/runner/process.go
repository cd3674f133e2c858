package runner

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// Command is everything needed to start one processor.
type Command struct {
	Path   string
	Args   []string
	Env    []string
	Dir    string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// ExitStatus is how a child process ended.
type ExitStatus struct {
	Code         int
	Signaled     bool
	Signal       string
	SignalNumber int
}

// Process is a handle on a running child.
type Process interface {
	Pid() int
	Signal(sig os.Signal) error
	// Wait blocks until the child exits. A non-nil error means the wait
	// itself failed, not that the child exited nonzero.
	Wait() (ExitStatus, error)
}

// Spawner starts processes. Tests substitute a fake.
type Spawner interface {
	Spawn(cmd Command) (Process, error)
}

// SpawnFunc adapts a function to the Spawner interface.
type SpawnFunc func(cmd Command) (Process, error)

// Spawn implements Spawner.
func (f SpawnFunc) Spawn(cmd Command) (Process, error) {
	return f(cmd)
}

// ExecSpawner starts real OS processes with os/exec. Unset streams inherit
// the parent's so child output interleaves live.
//
// A child whose stdin is a terminal stays in factory's foreground process
// group so it can read from the terminal. Ctrl+C then reaches it directly and
// forwarded interrupts are not repeated. Any other child gets its own process
// group and receives signals only through the runner.
type ExecSpawner struct{}

// Spawn implements Spawner.
func (ExecSpawner) Spawn(c Command) (Process, error) {
	if c.Path == "" {
		return nil, fmt.Errorf("runner: command path is required")
	}
	cmd := exec.Command(c.Path, c.Args...)
	cmd.Env = c.Env
	cmd.Dir = c.Dir
	cmd.Stdin = orReader(c.Stdin, os.Stdin)
	cmd.Stdout = orWriter(c.Stdout, os.Stdout)
	cmd.Stderr = orWriter(c.Stderr, os.Stderr)
	shared := configureCommand(cmd)
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &execProcess{cmd: cmd, sharedGroup: shared}, nil
}

type execProcess struct {
	cmd *exec.Cmd
	// sharedGroup is set when the child runs in factory's process group.
	sharedGroup bool
}

func (p *execProcess) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *execProcess) Signal(sig os.Signal) error {
	if p.cmd.Process == nil {
		return fmt.Errorf("runner: process not started")
	}
	if p.sharedGroup {
		if sig == os.Interrupt {
			return nil
		}
		return p.cmd.Process.Signal(sig)
	}
	return signalProcess(p.cmd.Process, sig)
}

func (p *execProcess) Wait() (ExitStatus, error) {
	err := p.cmd.Wait()
	if err == nil {
		return ExitStatus{}, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitStatus(exitErr.ProcessState), nil
	}
	return ExitStatus{}, err
}

func orReader(r, fallback io.Reader) io.Reader {
	if r != nil {
		return r
	}
	return fallback
}

func orWriter(w, fallback io.Writer) io.Writer {
	if w != nil {
		return w
	}
	return fallback
}
