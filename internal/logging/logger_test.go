package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/gfenimore/service-software-factory-v2-sub000/internal/config"
)

func TestNewWritesFileAndFiltersConsole(t *testing.T) {
	projectDir := t.TempDir()
	var console bytes.Buffer
	logger, err := New(projectDir, Options{Console: &console})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.Info("step started", zap.Int("sequence", 1))
	logger.Warn("step failed", zap.String("processor", "html-generator"))
	if err := logger.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(projectDir, config.FactoryDir, "logs", FileName))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, `"msg":"step started"`) || !strings.Contains(content, `"sequence":1`) {
		t.Fatalf("file log missing info entry:\n%s", content)
	}
	if strings.Contains(console.String(), "step started") {
		t.Fatalf("console should not receive info entries by default:\n%s", console.String())
	}
	if !strings.Contains(console.String(), "step failed") {
		t.Fatalf("console missing warning:\n%s", console.String())
	}
}

func TestNopLoggerCloses(t *testing.T) {
	logger := Nop()
	logger.Info("ignored")
	if err := logger.Close(); err != nil {
		t.Fatalf("nop close: %v", err)
	}
	var nilLogger *Logger
	if err := nilLogger.Close(); err != nil {
		t.Fatalf("nil close: %v", err)
	}
}
