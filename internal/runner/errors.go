package runner

import (
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/gfenimore/service-software-factory-v2-sub000/internal/manifest"
)

// ProcessError reports a processor that exited nonzero or died from a
// signal. Sequence is zero for direct tool runs.
type ProcessError struct {
	Sequence  int
	Processor string
	Path      string
	Outcome   Outcome
}

func (e *ProcessError) Error() string {
	var b strings.Builder
	b.WriteString("runner: ")
	if e.Sequence > 0 {
		fmt.Fprintf(&b, "step %d (%s)", e.Sequence, e.Processor)
	} else {
		b.WriteString(e.Processor)
	}
	if e.Outcome.Status == StatusSignaled {
		fmt.Fprintf(&b, " terminated by signal %s", e.Outcome.Signal)
	} else {
		fmt.Fprintf(&b, " exited with code %d", e.Outcome.ExitCode)
	}
	if e.Path != "" {
		fmt.Fprintf(&b, " [%s]", e.Path)
	}
	return b.String()
}

// ExitCode is the code the CLI should exit with.
func (e *ProcessError) ExitCode() int {
	return e.Outcome.Code()
}

// InterruptError reports a signal received between two pipeline steps. The
// step named by Before and everything after it never started.
type InterruptError struct {
	Signal os.Signal
	Before manifest.StepRef
}

func (e *InterruptError) Error() string {
	return fmt.Sprintf("runner: pipeline interrupted by %s before %s", e.Signal, e.Before)
}

// ExitCode follows the shell convention of 128 plus the signal number.
func (e *InterruptError) ExitCode() int {
	if s, ok := e.Signal.(syscall.Signal); ok && s > 0 {
		return 128 + int(s)
	}
	return 1
}
