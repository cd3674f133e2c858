//go:build unix

package runner

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"testing"

	"github.com/gfenimore/service-software-factory-v2-sub000/internal/registry"
)

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExecSpawnerMirrorsExitAndSignal(t *testing.T) {
	dir := t.TempDir()
	reg := registry.New()
	reg.MustRegister(registry.Tool{Name: "ok", Path: writeScript(t, dir, "ok", `echo "root=$FACTORY_ROOT"`)})
	reg.MustRegister(registry.Tool{Name: "fail", Path: writeScript(t, dir, "fail", "exit 3")})
	reg.MustRegister(registry.Tool{Name: "term", Path: writeScript(t, dir, "term", "kill -TERM $$")})

	var stdout bytes.Buffer
	r := New(reg, WithStdio(strings.NewReader(""), &stdout, &stdout), WithEnvironment([]string{"FACTORY_ROOT=" + dir}))

	outcome, err := r.Run(context.Background(), "ok", nil)
	if err != nil || outcome.Code() != 0 {
		t.Fatalf("ok: %+v, %v", outcome, err)
	}
	if !strings.Contains(stdout.String(), "root="+dir) {
		t.Fatalf("child did not see pipeline env: %q", stdout.String())
	}

	outcome, err = r.Run(context.Background(), "fail", nil)
	var procErr *ProcessError
	if !errors.As(err, &procErr) || outcome.Status != StatusFailed || outcome.Code() != 3 {
		t.Fatalf("fail: %+v, %v", outcome, err)
	}

	outcome, err = r.Run(context.Background(), "term", nil)
	if !errors.As(err, &procErr) || outcome.Status != StatusSignaled || outcome.Signal != "SIGTERM" || outcome.Code() != 143 {
		t.Fatalf("term: %+v, %v", outcome, err)
	}
}

func TestConfigureCommandIsolatesNonTerminalStdin(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	defer w.Close()

	for name, stdin := range map[string]io.Reader{"pipe": r, "reader": strings.NewReader("")} {
		cmd := exec.Command("true")
		cmd.Stdin = stdin
		if shared := configureCommand(cmd); shared {
			t.Fatalf("%s: non-terminal stdin must not share the process group", name)
		}
		if cmd.SysProcAttr == nil || !cmd.SysProcAttr.Setpgid {
			t.Fatalf("%s: expected Setpgid", name)
		}
	}
}

func TestSharedGroupChildSkipsRepeatedInterrupt(t *testing.T) {
	cmd := exec.Command("/bin/sh", "-c", "exec sleep 5")
	if err := cmd.Start(); err != nil {
		t.Fatal(err)
	}
	proc := &execProcess{cmd: cmd, sharedGroup: true}

	// The terminal already delivered Ctrl+C to the shared group.
	if err := proc.Signal(os.Interrupt); err != nil {
		t.Fatalf("interrupt: %v", err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		t.Fatalf("terminate: %v", err)
	}
	status, err := proc.Wait()
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if !status.Signaled || status.Signal != "SIGTERM" {
		t.Fatalf("expected SIGTERM death only, got %+v", status)
	}
}
