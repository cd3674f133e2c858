package storybuilder

import (
	"bufio"
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/gfenimore/service-software-factory-v2-sub000/internal/artifact"
	"github.com/gfenimore/service-software-factory-v2-sub000/internal/traceability"
)

const criteriaHeading = "## Acceptance Criteria"

var (
	titleLine     = regexp.MustCompile(`^# (\S+): (.+)$`)
	categoryLine  = regexp.MustCompile(`^\*\*Category:\*\* (.+)$`)
	userStoryLine = regexp.MustCompile(`^As an? \*\*(.+?)\*\*, I want \*\*(.+?)\*\*(?: so that \*\*(.+?)\*\*)?\.$`)
	criterionLine = regexp.MustCompile(`^- \[[ xX]\] \*\*(.+?)\*\*: (.*?)(?: \(req: ([^)]*)\))?$`)
)

// RenderStory renders the markdown body of a story file. Criteria carry
// their attached requirement ids so the file can be parsed back.
func RenderStory(s *traceability.Story) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# %s: %s\n\n", s.ID, singleLine(s.Title))
	if category := singleLine(s.Category); category != "" {
		fmt.Fprintf(&buf, "**Category:** %s\n\n", category)
	}
	if goal := singleLine(s.Goal); goal != "" {
		role := orDefault(singleLine(s.Role), defaultRole)
		fmt.Fprintf(&buf, "As %s **%s**, I want **%s**", article(role), role, goal)
		if benefit := singleLine(s.Benefit); benefit != "" {
			fmt.Fprintf(&buf, " so that **%s**", benefit)
		}
		buf.WriteString(".\n\n")
	}
	buf.WriteString(criteriaHeading + "\n\n")
	for _, c := range s.Criteria {
		fmt.Fprintf(&buf, "- [ ] **%s**: %s", c.ID, singleLine(c.Text))
		if len(c.Requirements) > 0 {
			fmt.Fprintf(&buf, " (req: %s)", strings.Join(c.Requirements, ", "))
		}
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// ParseStory reads a story file written by RenderStory, with or without the
// metadata frontmatter.
func ParseStory(content []byte) (*traceability.Story, error) {
	body := content
	if bytes.HasPrefix(content, []byte("---")) {
		_, parsed, err := artifact.ParseFrontMatter(content)
		if err != nil {
			return nil, fmt.Errorf("storybuilder: parse story: %w", err)
		}
		body = parsed
	}

	story := &traceability.Story{}
	inCriteria := false
	scanner := bufio.NewScanner(bytes.NewReader(body))
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \r")
		switch {
		case line == "":
		case story.ID == "":
			m := titleLine.FindStringSubmatch(line)
			if m == nil {
				return nil, fmt.Errorf("storybuilder: parse story: expected title, got %q", line)
			}
			story.ID, story.Title = m[1], m[2]
		case line == criteriaHeading:
			inCriteria = true
		case inCriteria:
			m := criterionLine.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			c := traceability.AcceptanceCriterion{ID: m[1], Text: m[2]}
			for _, id := range strings.Split(m[3], ",") {
				if id = strings.TrimSpace(id); id != "" {
					c.Attach(id)
				}
			}
			story.Criteria = append(story.Criteria, c)
		default:
			if m := categoryLine.FindStringSubmatch(line); m != nil {
				story.Category = m[1]
			} else if m := userStoryLine.FindStringSubmatch(line); m != nil {
				story.Role, story.Goal, story.Benefit = m[1], m[2], m[3]
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("storybuilder: parse story: %w", err)
	}
	if story.ID == "" {
		return nil, fmt.Errorf("storybuilder: parse story: missing title")
	}
	return story, nil
}

func article(word string) string {
	if word != "" && strings.ContainsRune("aeiouAEIOU", rune(word[0])) {
		return "an"
	}
	return "a"
}
