package validator

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/gfenimore/service-software-factory-v2-sub000/internal/manifest"
)

func checkSequence(p *pass) []Issue {
	var issues []Issue
	for i, step := range p.manifest.Processors {
		if strings.TrimSpace(step.Processor) == "" {
			issues = append(issues, stepIssue(SeverityError, step, "", "processor name is required (position %d)", i+1))
		}
		if i == 0 {
			continue
		}
		prev := p.manifest.Processors[i-1]
		if step.Sequence <= prev.Sequence {
			issues = append(issues, stepIssue(SeverityError, step, "",
				"sequence %d must be greater than the preceding step's %d", step.Sequence, prev.Sequence))
		}
	}
	return issues
}

func checkDuplicateOutputs(p *pass) []Issue {
	declared := map[string][]manifest.ProcessorStep{}
	var order []string
	for _, step := range p.manifest.Processors {
		out, ok := step.Output.Get()
		if !ok {
			continue
		}
		key := manifest.CleanPath(out)
		if _, seen := declared[key]; !seen {
			order = append(order, key)
		}
		declared[key] = append(declared[key], step)
	}

	var issues []Issue
	for _, key := range order {
		steps := declared[key]
		if len(steps) < 2 {
			continue
		}
		seqs := make([]int, len(steps))
		for i, step := range steps {
			seqs[i] = step.Sequence
		}
		ref := steps[1].Ref()
		issues = append(issues, Issue{
			Severity: SeverityError,
			Message:  fmt.Sprintf("output %q is declared by steps %s", key, joinSequences(seqs)),
			Step:     &ref,
			Path:     key,
		})
	}
	return issues
}

func checkInputs(p *pass) []Issue {
	var issues []Issue
	for i, step := range p.manifest.Processors {
		in, ok := step.Input.Get()
		if !ok {
			continue
		}
		if issue, missing := p.requireExisting(i, step, in, "input"); missing {
			issues = append(issues, issue)
		}
	}
	return issues
}

func checkTargets(p *pass) []Issue {
	var issues []Issue
	for i, step := range p.manifest.Processors {
		target, ok := step.TargetFile.Get()
		if !ok {
			continue
		}
		if issue, missing := p.requireExisting(i, step, target, "target_file"); missing {
			issues = append(issues, issue)
		}
	}
	return issues
}

// requireExisting reports an error unless name exists on disk or is the
// output of a step declared before index.
func (p *pass) requireExisting(index int, step manifest.ProcessorStep, name, field string) (Issue, bool) {
	cleaned := manifest.CleanPath(name)
	if cleaned == "" {
		return stepIssue(SeverityError, step, "", "%s is empty", field), true
	}
	if _, ok := p.manifest.ProducedBefore(index, cleaned); ok {
		return Issue{}, false
	}
	if _, ok := p.stat(cleaned); ok {
		return Issue{}, false
	}
	if later, ok := p.producedAfter(index, cleaned); ok {
		return stepIssue(SeverityError, step, cleaned,
			"%s %q is only produced by %s, which runs later", field, cleaned, later.Ref()), true
	}
	return stepIssue(SeverityError, step, cleaned,
		"%s %q does not exist and is not produced by an earlier step", field, cleaned), true
}

func (p *pass) producedAfter(index int, name string) (manifest.ProcessorStep, bool) {
	for i := index + 1; i < len(p.manifest.Processors); i++ {
		step := p.manifest.Processors[i]
		if out, ok := step.Output.Get(); ok && manifest.CleanPath(out) == name {
			return step, true
		}
	}
	return manifest.ProcessorStep{}, false
}

func checkExistingOutputs(p *pass) []Issue {
	var issues []Issue
	for _, step := range p.manifest.Processors {
		out, ok := step.Output.Get()
		if !ok {
			continue
		}
		cleaned := manifest.CleanPath(out)
		info, exists := p.stat(cleaned)
		if !exists {
			continue
		}
		if info.IsDir() {
			issues = append(issues, stepIssue(SeverityWarning, step, cleaned, "output %q is an existing directory", cleaned))
			continue
		}
		issues = append(issues, stepIssue(SeverityWarning, step, cleaned, "output %q already exists and will be overwritten", cleaned))
		if info.Size() == 0 {
			issues = append(issues, stepIssue(SeverityInfo, step, cleaned, "existing %q is empty; overwriting is safe", cleaned))
		} else {
			issues = append(issues, stepIssue(SeverityInfo, step, cleaned, "existing %q holds %d bytes that will be replaced", cleaned, info.Size()))
		}
	}
	return issues
}

func checkDependencies(p *pass) []Issue {
	var issues []Issue
	for _, dep := range p.manifest.Dependencies() {
		to := dep.To
		issues = append(issues, Issue{
			Severity: SeverityInfo,
			Message:  fmt.Sprintf("%s depends on %s via %s %q", dep.To, dep.From, dep.Via, dep.Path),
			Step:     &to,
			Path:     dep.Path,
		})
	}
	return issues
}

func checkNaming(p *pass) []Issue {
	var issues []Issue
	for _, step := range p.manifest.Processors {
		out, ok := step.Output.Get()
		if !ok {
			continue
		}
		cleaned := manifest.CleanPath(out)
		dir := "/" + path.Dir(cleaned) + "/"
		base := path.Base(cleaned)
		for _, conv := range p.opts.conventions {
			if conv.Directory == "" || !strings.Contains(dir, "/"+conv.Directory+"/") {
				continue
			}
			if conv.Suffix != "" && !strings.HasSuffix(base, conv.Suffix) {
				issues = append(issues, stepIssue(SeverityWarning, step, cleaned,
					"output %q is under %s/ but does not end with %q", cleaned, conv.Directory, conv.Suffix))
			}
			if conv.Prefix != "" && !strings.HasPrefix(base, conv.Prefix) {
				issues = append(issues, stepIssue(SeverityWarning, step, cleaned,
					"output %q is under %s/ but does not start with %q", cleaned, conv.Directory, conv.Prefix))
			}
		}
	}
	return issues
}

func joinSequences(seqs []int) string {
	parts := make([]string, len(seqs))
	for i, seq := range seqs {
		parts[i] = strconv.Itoa(seq)
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return strings.Join(parts[:len(parts)-1], ", ") + " and " + parts[len(parts)-1]
}
