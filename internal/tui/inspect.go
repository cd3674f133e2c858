// Package tui implements the interactive manifest inspector: the step list on
// the left, the selected step's contract and findings on the right, and the
// tail of the run journal underneath.
package tui

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/gfenimore/service-software-factory-v2-sub000/internal/logbook"
	"github.com/gfenimore/service-software-factory-v2-sub000/internal/manifest"
	"github.com/gfenimore/service-software-factory-v2-sub000/internal/validator"
)

var (
	labelStyleOK      = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	labelStyleError   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	labelStyleWarning = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")).Bold(true)
	labelStyleInfo    = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true)
	detailTextStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
	panelStyle        = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#444444")).Padding(0, 1)
)

// SeverityStyle returns the label style used for a severity.
func SeverityStyle(severity validator.Severity) lipgloss.Style {
	switch severity {
	case validator.SeverityError:
		return labelStyleError
	case validator.SeverityWarning:
		return labelStyleWarning
	case validator.SeverityInfo:
		return labelStyleInfo
	default:
		return labelStyleOK
	}
}

// Loader loads and validates the manifest under inspection.
type Loader func() (manifest.Manifest, validator.Report, error)

// Inspector is the bubbletea model behind `factory inspect`.
type Inspector struct {
	load    Loader
	journal *logbook.Logbook

	manifest manifest.Manifest
	report   validator.Report
	loaded   bool
	err      error

	selection int
	detail    viewport.Model
	width     int
	height    int
	statusMsg string
}

// InspectorOption configures an Inspector.
type InspectorOption func(*Inspector)

// WithJournal shows the tail of the run journal under the panels.
func WithJournal(lb *logbook.Logbook) InspectorOption {
	return func(i *Inspector) {
		i.journal = lb
	}
}

// NewInspector builds the model. Nothing is loaded until Init runs.
func NewInspector(load Loader, opts ...InspectorOption) *Inspector {
	i := &Inspector{
		load:      load,
		detail:    viewport.New(60, 16),
		statusMsg: "Loading manifest...",
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

type reloadMsg struct {
	manifest manifest.Manifest
	report   validator.Report
	err      error
}

// Init loads the manifest.
func (i *Inspector) Init() tea.Cmd {
	return i.reload()
}

func (i *Inspector) reload() tea.Cmd {
	return func() tea.Msg {
		m, report, err := i.load()
		return reloadMsg{manifest: m, report: report, err: err}
	}
}

// Update handles window, reload and key messages.
func (i *Inspector) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		i.width = msg.Width
		i.height = msg.Height
		_, rightWidth := i.panelWidths()
		i.detail.Width = max(20, rightWidth-4)
		i.detail.Height = max(5, msg.Height-14)
		i.refreshDetail()
		return i, nil

	case reloadMsg:
		i.loaded = true
		i.err = msg.err
		if msg.err != nil {
			i.statusMsg = fmt.Sprintf("Load failed: %v", msg.err)
			i.refreshDetail()
			return i, nil
		}
		i.manifest = msg.manifest
		i.report = msg.report
		if i.selection >= len(i.manifest.Processors) {
			i.selection = max(0, len(i.manifest.Processors)-1)
		}
		i.statusMsg = summaryLine(i.report)
		i.refreshDetail()
		return i, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return i, tea.Quit
		case "up", "k":
			if i.selection > 0 {
				i.selection--
				i.refreshDetail()
			}
			return i, nil
		case "down", "j":
			if i.selection < len(i.manifest.Processors)-1 {
				i.selection++
				i.refreshDetail()
			}
			return i, nil
		case "r":
			i.statusMsg = "Revalidating..."
			return i, i.reload()
		}
	}

	var cmd tea.Cmd
	i.detail, cmd = i.detail.Update(msg)
	return i, cmd
}

// View renders the inspector.
func (i *Inspector) View() string {
	leftWidth, rightWidth := i.panelWidths()
	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FF6B6B")).
		MarginBottom(1).
		Render("⬡ FACTORY · " + i.manifest.Label())

	left := panelStyle.Width(max(20, leftWidth)).Render(i.renderStepList(leftWidth - 4))
	right := panelStyle.Width(max(20, rightWidth)).Render(i.detail.View())
	sections := []string{header, lipgloss.JoinHorizontal(lipgloss.Top, left, right)}
	if logPanel := i.renderLogPanel(); logPanel != "" {
		sections = append(sections, logPanel)
	}
	footer := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#888888")).
		MarginTop(1).
		Render(i.statusMsg + "  ·  ↑/↓ select · r revalidate · q quit")
	sections = append(sections, footer)
	return strings.Join(sections, "\n")
}

func (i *Inspector) panelWidths() (int, int) {
	width := i.width
	if width <= 0 {
		width = 100
	}
	leftWidth := max(28, width/3)
	return leftWidth, max(20, width-leftWidth-4)
}

func (i *Inspector) renderStepList(width int) string {
	if !i.loaded {
		return "Loading..."
	}
	if i.err != nil {
		return labelStyleError.Render("manifest unavailable")
	}
	if len(i.manifest.Processors) == 0 {
		return detailTextStyle.Render("No processor steps.")
	}
	lines := make([]string, 0, len(i.manifest.Processors))
	for idx, step := range i.manifest.Processors {
		severity := worstSeverity(stepIssues(i.report, step))
		marker := "  "
		if idx == i.selection {
			marker = "▸ "
		}
		label := SeverityStyle(severity).Render(severityLabel(severity))
		lines = append(lines, fmt.Sprintf("%s%s %s", marker, label, step.Ref()))
	}
	return lipgloss.NewStyle().Width(max(20, width)).Render(strings.Join(lines, "\n"))
}

func (i *Inspector) refreshDetail() {
	i.detail.SetContent(i.detailContent())
	i.detail.GotoTop()
}

func (i *Inspector) detailContent() string {
	if i.err != nil {
		return labelStyleError.Render(i.err.Error())
	}
	var b strings.Builder
	if global := manifestIssues(i.report); len(global) > 0 {
		b.WriteString("Manifest\n")
		writeIssues(&b, global)
		b.WriteString("\n")
	}
	if len(i.manifest.Processors) == 0 {
		return b.String()
	}
	step := i.manifest.Processors[i.selection]
	fmt.Fprintf(&b, "%s\n", step.Ref())
	if step.Description != "" {
		b.WriteString(detailTextStyle.Render(step.Description) + "\n")
	}
	fmt.Fprintf(&b, "\nInput:   %s\n", step.Input)
	fmt.Fprintf(&b, "Output:  %s\n", step.Output)
	fmt.Fprintf(&b, "Target:  %s\n", step.TargetFile)
	if len(step.Args) > 0 {
		fmt.Fprintf(&b, "Args:    %s\n", strings.Join(step.Args, " "))
	}

	var upstream, downstream []string
	for _, dep := range i.manifest.Dependencies() {
		switch step.Ref() {
		case dep.To:
			upstream = append(upstream, fmt.Sprintf("%s via %s %q", dep.From, dep.Via, dep.Path))
		case dep.From:
			downstream = append(downstream, fmt.Sprintf("%s via %s %q", dep.To, dep.Via, dep.Path))
		}
	}
	if len(upstream) > 0 {
		b.WriteString("\nDepends on:\n  " + strings.Join(upstream, "\n  ") + "\n")
	}
	if len(downstream) > 0 {
		b.WriteString("\nFeeds:\n  " + strings.Join(downstream, "\n  ") + "\n")
	}

	if issues := stepIssues(i.report, step); len(issues) > 0 {
		b.WriteString("\nFindings:\n")
		writeIssues(&b, issues)
	} else {
		b.WriteString("\n" + labelStyleOK.Render("No findings.") + "\n")
	}
	return b.String()
}

func (i *Inspector) renderLogPanel() string {
	if i.journal == nil {
		return ""
	}
	entries, _ := i.journal.Tail(6)
	if len(entries) == 0 {
		return ""
	}
	lines := make([]string, len(entries))
	for n, entry := range entries {
		lines[n] = entry.Short()
	}
	head := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#5B8DEF")).
		Render(fmt.Sprintf("LOG · %s", filepath.Base(i.journal.Path())))
	body := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#AAAAAA")).
		Render(strings.Join(lines, "\n"))
	return panelStyle.Render(head + "\n" + body)
}

func writeIssues(b *strings.Builder, issues []validator.Issue) {
	for _, issue := range issues {
		fmt.Fprintf(b, "  %s %s: %s\n", SeverityStyle(issue.Severity).Render(severityLabel(issue.Severity)), issue.Check, issue.Message)
	}
}

func stepIssues(report validator.Report, step manifest.ProcessorStep) []validator.Issue {
	var out []validator.Issue
	for _, issue := range report.Issues {
		if issue.Step != nil && *issue.Step == step.Ref() {
			out = append(out, issue)
		}
	}
	return out
}

func manifestIssues(report validator.Report) []validator.Issue {
	var out []validator.Issue
	for _, issue := range report.Issues {
		if issue.Step == nil {
			out = append(out, issue)
		}
	}
	return out
}

func worstSeverity(issues []validator.Issue) validator.Severity {
	worst := validator.Severity("")
	rank := map[validator.Severity]int{"": 0, validator.SeverityInfo: 1, validator.SeverityWarning: 2, validator.SeverityError: 3}
	for _, issue := range issues {
		if rank[issue.Severity] > rank[worst] {
			worst = issue.Severity
		}
	}
	return worst
}

func severityLabel(severity validator.Severity) string {
	switch severity {
	case validator.SeverityError:
		return "ERR "
	case validator.SeverityWarning:
		return "WARN"
	case validator.SeverityInfo:
		return "INFO"
	default:
		return "OK  "
	}
}

func summaryLine(report validator.Report) string {
	verdict := "ready to run"
	if !report.OK() {
		verdict = "blocked"
	}
	return fmt.Sprintf("%s: %d error(s), %d warning(s), %d note(s)",
		verdict, len(report.Errors()), len(report.Warnings()), len(report.Infos()))
}
