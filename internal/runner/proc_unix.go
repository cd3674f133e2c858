//go:build unix

package runner

import (
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// configureCommand puts the child in its own process group so terminal
// interrupts reach it only through the runner. A child reading a terminal
// keeps the parent's group instead; a background group would be stopped
// with SIGTTIN on its first read. Reports whether the group is shared.
func configureCommand(cmd *exec.Cmd) bool {
	if f, ok := cmd.Stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return true
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	return false
}

func signalProcess(p *os.Process, sig os.Signal) error {
	s, ok := sig.(syscall.Signal)
	if !ok {
		return p.Signal(sig)
	}
	if pgid, err := syscall.Getpgid(p.Pid); err == nil && pgid > 0 {
		// Negative PGID targets the processor and anything it spawned.
		return syscall.Kill(-pgid, s)
	}
	return p.Signal(sig)
}

func exitStatus(state *os.ProcessState) ExitStatus {
	if state == nil {
		return ExitStatus{Code: -1}
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		sig := ws.Signal()
		name := unix.SignalName(sig)
		if name == "" {
			name = sig.String()
		}
		return ExitStatus{Code: -1, Signaled: true, Signal: name, SignalNumber: int(sig)}
	}
	return ExitStatus{Code: state.ExitCode()}
}
