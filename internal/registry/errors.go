package registry

import (
	"fmt"
	"io"
	"strings"
)

// ResolutionError is returned when a processor name cannot be resolved to an
// executable. It carries the full registry so callers can show every option.
type ResolutionError struct {
	Name     string
	Reason   string
	Statuses []ToolStatus
}

func (e *ResolutionError) Error() string {
	name := e.Name
	if strings.TrimSpace(name) == "" {
		name = "<empty>"
	}
	return fmt.Sprintf("registry: cannot resolve tool %q: %s", name, e.Reason)
}

// WriteStatus renders one line per tool with its existence status.
func WriteStatus(w io.Writer, statuses []ToolStatus) {
	if len(statuses) == 0 {
		fmt.Fprintln(w, "  (no tools registered)")
		return
	}
	width := 0
	for _, s := range statuses {
		if len(s.Name) > width {
			width = len(s.Name)
		}
	}
	for _, s := range statuses {
		mark := "ok     "
		if !s.Exists {
			mark = "missing"
		}
		path := s.Path
		if s.Interpreter != "" {
			path = s.Interpreter + " " + path
		}
		fmt.Fprintf(w, "  [%s] %-*s  %s\n", mark, width, s.Name, path)
	}
}
