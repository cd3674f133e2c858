package registry

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gfenimore/service-software-factory-v2-sub000/internal/config"
)

func writeExecutable(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestResolveKnownAndMissingTools(t *testing.T) {
	dir := t.TempDir()
	present := writeExecutable(t, dir, "html-generator")
	reg := New()
	reg.MustRegister(Tool{Name: "html-generator", Path: present})
	reg.MustRegister(Tool{Name: "doc-exporter", Path: filepath.Join(dir, "doc-exporter")})

	path, err := reg.GetPath("html-generator")
	if err != nil || path != present {
		t.Fatalf("GetPath = %q, %v", path, err)
	}
	if !reg.ValidateTool("html-generator") {
		t.Fatalf("html-generator should validate")
	}
	if reg.ValidateTool("doc-exporter") {
		t.Fatalf("doc-exporter has no executable and must not validate")
	}

	_, err = reg.GetPath("doc-exporter")
	var resErr *ResolutionError
	if !errors.As(err, &resErr) {
		t.Fatalf("expected ResolutionError, got %v", err)
	}
	if !strings.Contains(resErr.Reason, "executable not found") {
		t.Fatalf("unexpected reason %q", resErr.Reason)
	}
}

func TestUnknownToolCarriesFullRegistry(t *testing.T) {
	dir := t.TempDir()
	reg := New()
	reg.MustRegister(Tool{Name: "story-builder", Path: writeExecutable(t, dir, "story-builder")})
	reg.MustRegister(Tool{Name: "doc-exporter", Path: filepath.Join(dir, "absent")})

	_, err := reg.Resolve("unknown-tool")
	var resErr *ResolutionError
	if !errors.As(err, &resErr) {
		t.Fatalf("expected ResolutionError, got %v", err)
	}
	want := []ToolStatus{
		{Name: "doc-exporter", Path: filepath.Join(dir, "absent"), Exists: false},
		{Name: "story-builder", Path: filepath.Join(dir, "story-builder"), Exists: true},
	}
	if diff := cmp.Diff(want, resErr.Statuses); diff != "" {
		t.Fatalf("statuses mismatch (-want +got):\n%s", diff)
	}

	var buf bytes.Buffer
	WriteStatus(&buf, resErr.Statuses)
	out := buf.String()
	if !strings.Contains(out, "[missing] doc-exporter") || !strings.Contains(out, "[ok     ] story-builder") {
		t.Fatalf("unexpected status listing:\n%s", out)
	}
}

func TestRegisterRejectsDuplicatesAndBlanks(t *testing.T) {
	reg := New()
	if err := reg.Register(Tool{Name: "a", Path: "/bin/a"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Register(Tool{Name: "a", Path: "/bin/b"}); err == nil {
		t.Fatalf("expected duplicate error")
	}
	if err := reg.Register(Tool{Name: " ", Path: "/bin/c"}); err == nil {
		t.Fatalf("expected blank name error")
	}
	if err := reg.Register(Tool{Name: "d"}); err == nil {
		t.Fatalf("expected missing path error")
	}
	if diff := cmp.Diff(map[string]string{"a": "/bin/a"}, reg.AvailableTools()); diff != "" {
		t.Fatalf("available tools mismatch (-want +got):\n%s", diff)
	}
}

func TestDirectoriesDoNotValidate(t *testing.T) {
	dir := t.TempDir()
	reg := New()
	reg.MustRegister(Tool{Name: "dir-tool", Path: dir})
	if reg.ValidateTool("dir-tool") {
		t.Fatalf("a directory is not an executable")
	}
}

func TestFromConfigFallsBackToDefaults(t *testing.T) {
	root := t.TempDir()
	cfg := &config.Config{ProjectDir: root, FactoryRoot: root}
	reg, err := FromConfig(cfg)
	if err != nil {
		t.Fatalf("from config: %v", err)
	}
	if diff := cmp.Diff([]string{"component-stringifier", "doc-exporter", "html-generator", "story-builder"}, reg.Names()); diff != "" {
		t.Fatalf("default names mismatch (-want +got):\n%s", diff)
	}
	tool, _ := reg.Lookup("story-builder")
	if tool.Path != filepath.Join(root, "processors", "story-builder") {
		t.Fatalf("default path not under factory root: %s", tool.Path)
	}

	cfg.Project.Tools = map[string]config.ToolConfig{"custom": {Path: "bin/custom", Interpreter: "node"}}
	reg, err = FromConfig(cfg)
	if err != nil {
		t.Fatalf("from config with tools: %v", err)
	}
	if diff := cmp.Diff([]string{"custom"}, reg.Names()); diff != "" {
		t.Fatalf("configured names mismatch (-want +got):\n%s", diff)
	}
	tool, _ = reg.Lookup("custom")
	if tool.Interpreter != "node" || tool.Path != filepath.Join(root, "bin", "custom") {
		t.Fatalf("unexpected tool %+v", tool)
	}
}
