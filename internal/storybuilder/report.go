package storybuilder

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/gfenimore/service-software-factory-v2-sub000/internal/traceability"
)

// RenderReport renders TRACEABILITY.md. Gaps come first so a reviewer sees
// them before anything else.
func RenderReport(set traceability.RequirementSet, stories []*traceability.Story, result traceability.Result) []byte {
	var buf bytes.Buffer
	buf.WriteString("# Traceability Report\n\n")
	fmt.Fprintf(&buf, "%d stories, %d requirements (%d mandatory), %.1f%% mapped.\n\n",
		len(stories), len(set.Requirements), len(set.Mandatory), result.TotalCoverage(set))

	if gaps := result.Unmapped.Mandatory; len(gaps) > 0 {
		buf.WriteString("## Traceability Gaps\n\n")
		buf.WriteString("**Action required:** these mandatory requirements are not covered by any story.\n\n")
		for _, id := range gaps {
			req, _ := set.Get(id)
			fmt.Fprintf(&buf, "- **%s**: %s\n", id, req.Text)
		}
		buf.WriteByte('\n')
	}

	if forced := result.Forced(); len(forced) > 0 {
		buf.WriteString("## Forced Mappings\n\n")
		buf.WriteString("No rule matched these requirements; they were placed on the closest criterion and need review.\n\n")
		buf.WriteString("| Requirement | Story | Criterion | Category |\n")
		buf.WriteString("|---|---|---|---|\n")
		for _, m := range forced {
			req, _ := set.Get(m.RequirementID)
			writeRow(&buf, m.RequirementID, m.StoryID, m.CriterionID, orDash(req.Category))
		}
		buf.WriteByte('\n')
	}

	buf.WriteString("## Coverage by Category\n\n")
	buf.WriteString("| Category | Mapped | Total | Coverage |\n")
	buf.WriteString("|---|---|---|---|\n")
	for _, cov := range result.Coverage(set) {
		writeRow(&buf, cov.Category, fmt.Sprint(cov.Mapped), fmt.Sprint(cov.Total), fmt.Sprintf("%.1f%%", cov.Percent))
	}
	buf.WriteByte('\n')

	buf.WriteString("## Requirement Matrix\n\n")
	buf.WriteString("| Requirement | Priority | Category | Story | Criterion | Rule |\n")
	buf.WriteString("|---|---|---|---|---|---|\n")
	for _, req := range set.Requirements {
		priority := string(traceability.PriorityOptional)
		if set.IsMandatory(req.ID) {
			priority = string(traceability.PriorityMandatory)
		}
		m, ok := result.Lookup(req.ID)
		if !ok {
			writeRow(&buf, req.ID, priority, orDash(req.Category), "-", "-", "unmapped")
			continue
		}
		writeRow(&buf, req.ID, priority, orDash(req.Category), m.StoryID, m.CriterionID, m.Rule)
	}

	if optional := result.Unmapped.Optional; len(optional) > 0 {
		buf.WriteString("\n## Unmapped Optional Requirements\n\n")
		for _, id := range optional {
			req, _ := set.Get(id)
			fmt.Fprintf(&buf, "- **%s**: %s\n", id, req.Text)
		}
	}
	return buf.Bytes()
}

func writeRow(buf *bytes.Buffer, cells ...string) {
	buf.WriteString("|")
	for _, cell := range cells {
		buf.WriteString(" " + strings.ReplaceAll(cell, "|", `\|`) + " |")
	}
	buf.WriteByte('\n')
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
