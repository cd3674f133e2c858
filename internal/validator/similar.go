package validator

import (
	"path"
	"sort"
	"strings"
	"unicode"

	"github.com/sahilm/fuzzy"

	"github.com/gfenimore/service-software-factory-v2-sub000/internal/manifest"
)

type candidate struct {
	name   string
	prefix int
	score  int
}

// checkSimilarFiles flags likely duplicates: files next to a new output whose
// normalized name shares a prefix with it.
func checkSimilarFiles(p *pass) []Issue {
	if p.fsys == nil {
		return nil
	}
	var issues []Issue
	for _, step := range p.manifest.Processors {
		out, ok := step.Output.Get()
		if !ok {
			continue
		}
		cleaned := manifest.CleanPath(out)
		if _, exists := p.stat(cleaned); exists {
			continue
		}
		matches := p.similarTo(cleaned)
		if len(matches) == 0 {
			continue
		}
		issues = append(issues, stepIssue(SeverityInfo, step, cleaned,
			"output %q does not exist yet but similar files are present: %s", cleaned, strings.Join(matches, ", ")))
	}
	return issues
}

func (p *pass) similarTo(output string) []string {
	target := normalizeName(path.Base(output))
	if len(target) < p.opts.minPrefix {
		return nil
	}
	dir := path.Dir(output)
	entries, err := p.fsys.ReadDir(dir)
	if err != nil {
		return nil
	}

	var found []candidate
	for _, entry := range entries {
		if entry.IsDir() || entry.Name() == path.Base(output) {
			continue
		}
		norm := normalizeName(entry.Name())
		shared := commonPrefix(target, norm)
		if shared < p.opts.minPrefix {
			continue
		}
		found = append(found, candidate{name: entry.Name(), prefix: shared, score: fuzzyScore(target, norm)})
	}
	sort.SliceStable(found, func(i, j int) bool {
		if found[i].prefix != found[j].prefix {
			return found[i].prefix > found[j].prefix
		}
		if found[i].score != found[j].score {
			return found[i].score > found[j].score
		}
		return found[i].name < found[j].name
	})
	if len(found) > p.opts.suggestionLimit {
		found = found[:p.opts.suggestionLimit]
	}
	names := make([]string, len(found))
	for i, c := range found {
		if dir == "." {
			names[i] = c.name
		} else {
			names[i] = path.Join(dir, c.name)
		}
	}
	return names
}

// normalizeName lower-cases a file name and drops extensions and separators.
func normalizeName(name string) string {
	if idx := strings.IndexByte(name, '.'); idx > 0 {
		name = name[:idx]
	}
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func commonPrefix(a, b string) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}

// fuzzyScore matches the shorter name against the longer one.
func fuzzyScore(a, b string) int {
	pattern, data := a, b
	if len(pattern) > len(data) {
		pattern, data = data, pattern
	}
	matches := fuzzy.Find(pattern, []string{data})
	if len(matches) == 0 {
		return 0
	}
	return matches[0].Score
}
