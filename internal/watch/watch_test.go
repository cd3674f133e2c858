package watch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestWatcherDebouncesChanges(t *testing.T) {
	dir := t.TempDir()
	changes := make(chan []string, 8)
	w, err := New([]string{dir, dir + string(filepath.Separator)}, func(_ context.Context, changed []string) {
		changes <- changed
	}, WithDebounce(50*time.Millisecond), WithFilter(func(path string) bool {
		return strings.HasSuffix(path, ".json")
	}))
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	manifestPath := filepath.Join(dir, "manifest.json")
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(manifestPath, []byte(`{"processors": []}`), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case changed := <-changes:
		if len(changed) != 1 || changed[0] != manifestPath {
			t.Fatalf("changed = %v, want [%s]", changed, manifestPath)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no change reported")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("watcher did not stop")
	}
}

func TestNewErrors(t *testing.T) {
	if _, err := New([]string{t.TempDir()}, nil); err == nil {
		t.Fatalf("expected error for nil callback")
	}
	missing := filepath.Join(t.TempDir(), "missing")
	if _, err := New([]string{missing}, func(context.Context, []string) {}); err == nil {
		t.Fatalf("expected error for missing directory")
	}
}
