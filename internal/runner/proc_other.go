//go:build !unix

package runner

import (
	"os"
	"os/exec"
)

func configureCommand(cmd *exec.Cmd) bool { return false }

// signalProcess kills the child when the platform cannot deliver
// sig to another process.
func signalProcess(p *os.Process, sig os.Signal) error {
	if err := p.Signal(sig); err == nil {
		return nil
	}
	return p.Kill()
}

func exitStatus(state *os.ProcessState) ExitStatus {
	if state == nil {
		return ExitStatus{Code: -1}
	}
	return ExitStatus{Code: state.ExitCode()}
}
