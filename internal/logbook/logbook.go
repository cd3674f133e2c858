// Package logbook keeps the human-readable pipeline journal. Each line is one
// event, optionally scoped to the pipeline run and step it belongs to:
//
//	2026-03-14T09:30:00Z ERROR [0b6f1c2e-7d1a-4c55-9a61-2f0e8b3c9d10#2] step 2 (html-generator) exited with code 2
package logbook

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Level represents the severity of a journal entry.
type Level string

const (
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Entry is one journal line. Run and Step are empty for events outside a
// pipeline run.
type Entry struct {
	Time    time.Time
	Level   Level
	Run     string
	Step    int
	Message string
}

var entryLine = regexp.MustCompile(`^(\S+) (INFO|WARN|ERROR)\s+(?:\[([^\]#\s]+)(?:#(\d+))?\] )?(.*)$`)

// String renders the entry as it is stored.
func (e Entry) String() string {
	return fmt.Sprintf("%s %-5s %s%s", e.Time.UTC().Format(time.RFC3339), e.Level, e.scope(), e.Message)
}

// Short renders the entry with a clock time and an abbreviated run id.
func (e Entry) Short() string {
	scoped := e
	if len(scoped.Run) > 8 {
		scoped.Run = scoped.Run[:8]
	}
	return fmt.Sprintf("%s %-5s %s%s", e.Time.Local().Format("15:04:05"), e.Level, scoped.scope(), e.Message)
}

func (e Entry) scope() string {
	switch {
	case e.Run == "":
		return ""
	case e.Step > 0:
		return fmt.Sprintf("[%s#%d] ", e.Run, e.Step)
	default:
		return "[" + e.Run + "] "
	}
}

// ParseEntry reads a stored line. Lines written by hand come back as an
// unscoped message.
func ParseEntry(line string) Entry {
	m := entryLine.FindStringSubmatch(line)
	if m == nil {
		return Entry{Message: line}
	}
	ts, err := time.Parse(time.RFC3339, m[1])
	if err != nil {
		return Entry{Message: line}
	}
	step, _ := strconv.Atoi(m[4])
	return Entry{Time: ts, Level: Level(m[2]), Run: m[3], Step: step, Message: m[5]}
}

// InRun matches entries of the run whose id starts with prefix.
func InRun(prefix string) func(Entry) bool {
	return func(e Entry) bool {
		return prefix != "" && strings.HasPrefix(e.Run, prefix)
	}
}

type journalFile struct {
	path string
	now  func() time.Time
	mu   sync.Mutex
}

// Logbook appends entries to a journal file. Scoped logbooks from Run and
// Step share the file of the logbook they came from.
type Logbook struct {
	file *journalFile
	run  string
	step int
}

// New creates a logbook that writes to the provided path.
func New(path string) (*Logbook, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("logbook: %w", err)
	}
	return &Logbook{file: &journalFile{path: path, now: time.Now}}, nil
}

// Path returns the file backing this logbook.
func (l *Logbook) Path() string {
	if l == nil {
		return ""
	}
	return l.file.path
}

// Run returns a logbook whose entries carry runID.
func (l *Logbook) Run(runID string) *Logbook {
	if l == nil {
		return nil
	}
	return &Logbook{file: l.file, run: runID}
}

// Step returns a logbook whose entries carry the step sequence as well.
func (l *Logbook) Step(sequence int) *Logbook {
	if l == nil {
		return nil
	}
	return &Logbook{file: l.file, run: l.run, step: sequence}
}

// Append writes a single entry in this logbook's scope. Journal write
// failures are dropped; the structured log carries the same events.
func (l *Logbook) Append(level Level, message string) {
	if l == nil {
		return
	}
	f := l.file
	f.mu.Lock()
	defer f.mu.Unlock()
	entry := Entry{
		Time:    f.now(),
		Level:   level,
		Run:     l.run,
		Step:    l.step,
		Message: strings.Join(strings.Fields(message), " "),
	}
	out, err := os.OpenFile(f.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return
	}
	defer out.Close()
	_, _ = out.WriteString(entry.String() + "\n")
}

// Info appends an informational entry.
func (l *Logbook) Info(format string, args ...any) {
	l.Append(LevelInfo, fmt.Sprintf(format, args...))
}

// Warn appends a warning entry.
func (l *Logbook) Warn(format string, args ...any) {
	l.Append(LevelWarn, fmt.Sprintf(format, args...))
}

// Error appends an error entry.
func (l *Logbook) Error(format string, args ...any) {
	l.Append(LevelError, fmt.Sprintf(format, args...))
}

// Tail returns up to n of the most recent entries plus the number of entries
// in the journal.
func (l *Logbook) Tail(n int) ([]Entry, int) {
	return l.Select(nil, n)
}

// Select returns up to n of the most recent entries accepted by match, plus
// how many entries matched in total. A nil match accepts everything.
func (l *Logbook) Select(match func(Entry) bool, n int) ([]Entry, int) {
	if l == nil || n <= 0 {
		return nil, 0
	}
	f := l.file
	f.mu.Lock()
	defer f.mu.Unlock()
	in, err := os.Open(f.path)
	if err != nil {
		return nil, 0
	}
	defer in.Close()

	var entries []Entry
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) == "" {
			continue
		}
		entry := ParseEntry(scanner.Text())
		if match == nil || match(entry) {
			entries = append(entries, entry)
		}
	}
	total := len(entries)
	if total == 0 {
		return nil, 0
	}
	if total > n {
		entries = entries[total-n:]
	}
	return entries, total
}
