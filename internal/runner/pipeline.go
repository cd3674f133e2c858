package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gfenimore/service-software-factory-v2-sub000/internal/manifest"
	"github.com/gfenimore/service-software-factory-v2-sub000/internal/registry"
	"github.com/gfenimore/service-software-factory-v2-sub000/internal/validator"
)

// Variables exported to each step on top of the runner environment.
const (
	EnvRunID         = "FACTORY_RUN_ID"
	EnvStepSequence  = "FACTORY_STEP_SEQUENCE"
	EnvStepProcessor = "FACTORY_STEP_PROCESSOR"
	EnvStepInput     = "FACTORY_STEP_INPUT"
	EnvStepOutput    = "FACTORY_STEP_OUTPUT"
	EnvStepTarget    = "FACTORY_STEP_TARGET"
)

// PipelineStatus is the aggregate result of a manifest run.
type PipelineStatus string

const (
	PipelineSucceeded PipelineStatus = "succeeded"
	PipelineFailed    PipelineStatus = "failed"
	// PipelineBlocked means validation found errors and nothing was spawned.
	PipelineBlocked PipelineStatus = "blocked"
)

// StepStatus is the state of one manifest step after a run.
type StepStatus string

const (
	StepSucceeded StepStatus = "succeeded"
	StepFailed    StepStatus = "failed"
	StepSignaled  StepStatus = "signaled"
	// StepUnresolved means the processor could not be resolved or started.
	StepUnresolved StepStatus = "unresolved"
	StepSkipped    StepStatus = "skipped"
)

// StepResult records what happened to one step.
type StepResult struct {
	Step    manifest.StepRef `json:"step"`
	Status  StepStatus       `json:"status"`
	Outcome *Outcome         `json:"outcome,omitempty"`
	Error   string           `json:"error,omitempty"`
	Err     error            `json:"-"`
}

// PipelineResult aggregates a manifest run.
type PipelineResult struct {
	RunID      string           `json:"run_id"`
	Manifest   string           `json:"manifest"`
	Status     PipelineStatus   `json:"status"`
	Steps      []StepResult     `json:"steps"`
	Report     validator.Report `json:"-"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
}

// Failed returns the first step that did not succeed.
func (p PipelineResult) Failed() (StepResult, bool) {
	for _, step := range p.Steps {
		if step.Status != StepSucceeded && step.Status != StepSkipped {
			return step, true
		}
	}
	return StepResult{}, false
}

// Save writes the result as JSON, typically to .factory/state.
func (p PipelineResult) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("runner: save result: %w", err)
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("runner: encode result: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// RunManifest validates m and, when it has no errors, runs its steps strictly
// in declared order. The first failing step halts the pipeline; the steps
// after it are recorded as skipped.
func (r *Runner) RunManifest(ctx context.Context, m manifest.Manifest, fsys validator.FileSystem, opts ...validator.Option) (PipelineResult, error) {
	result := PipelineResult{
		RunID:     uuid.NewString(),
		Manifest:  m.Label(),
		StartedAt: r.now(),
	}
	log := r.logger.With(zap.String("run_id", result.RunID), zap.String("manifest", result.Manifest))
	journal := r.journal.Run(result.RunID)

	result.Report = validator.Validate(m, fsys, opts...)
	if err := result.Report.Err(); err != nil {
		result.Status = PipelineBlocked
		for _, step := range m.Processors {
			result.Steps = append(result.Steps, StepResult{Step: step.Ref(), Status: StepSkipped})
		}
		result.FinishedAt = r.now()
		log.Warn("pipeline blocked", zap.Int("errors", len(result.Report.Errors())))
		journal.Error("pipeline %s blocked by %d validation error(s)", result.Manifest, len(result.Report.Errors()))
		return result, err
	}

	log.Info("pipeline started", zap.Int("steps", len(m.Processors)))
	journal.Info("pipeline %s started (%d steps)", result.Manifest, len(m.Processors))

	var failure error
	for _, step := range m.Processors {
		ref := step.Ref()
		stepLog := journal.Step(ref.Sequence)
		if failure == nil {
			failure = r.haltBefore(ctx, ref)
			if failure != nil {
				stepLog.Warn("pipeline %s interrupted before %s", result.Manifest, ref)
			}
		}
		if failure != nil {
			result.Steps = append(result.Steps, StepResult{Step: ref, Status: StepSkipped})
			continue
		}

		stepLog.Info("%s started", ref)
		outcome, err := r.run(ctx, step.Processor, step.Args, stepEnv(result.RunID, step))
		sr := StepResult{Step: ref, Status: StepSucceeded}
		if !outcome.StartedAt.IsZero() {
			o := outcome
			sr.Outcome = &o
		}
		if err != nil {
			sr.Status, sr.Err = classify(ref, outcome, err)
			sr.Error = sr.Err.Error()
			failure = sr.Err
			log.Error("step failed", zap.Stringer("step", ref), zap.Error(sr.Err))
			stepLog.Error("%s", sr.Error)
		} else {
			stepLog.Info("%s succeeded in %s", ref, outcome.Duration().Round(time.Millisecond))
			if outcome.Interrupted {
				failure = fmt.Errorf("runner: pipeline interrupted during %s", ref)
				stepLog.Warn("pipeline %s interrupted during %s", result.Manifest, ref)
			}
		}
		result.Steps = append(result.Steps, sr)
	}

	result.FinishedAt = r.now()
	if failure != nil {
		result.Status = PipelineFailed
		journal.Error("pipeline %s failed", result.Manifest)
		log.Warn("pipeline failed", zap.Error(failure))
		return result, failure
	}
	result.Status = PipelineSucceeded
	journal.Info("pipeline %s succeeded", result.Manifest)
	log.Info("pipeline finished", zap.Duration("duration", result.FinishedAt.Sub(result.StartedAt)))
	return result, nil
}

// haltBefore reports why the pipeline must stop before ref: a cancelled
// context, or an interrupt delivered while no step was running.
func (r *Runner) haltBefore(ctx context.Context, ref manifest.StepRef) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("runner: pipeline interrupted before %s: %w", ref, err)
	}
	select {
	case sig, ok := <-r.interrupts:
		if ok {
			return &InterruptError{Signal: sig, Before: ref}
		}
	default:
	}
	return nil
}

// classify attributes err to the step that produced it.
func classify(ref manifest.StepRef, outcome Outcome, err error) (StepStatus, error) {
	var procErr *ProcessError
	if errors.As(err, &procErr) {
		procErr.Sequence = ref.Sequence
		procErr.Processor = ref.Processor
		if outcome.Status == StatusSignaled {
			return StepSignaled, procErr
		}
		return StepFailed, procErr
	}
	var resErr *registry.ResolutionError
	if errors.As(err, &resErr) {
		return StepUnresolved, fmt.Errorf("runner: %s: %w", ref, err)
	}
	if outcome.Pid == 0 {
		return StepUnresolved, fmt.Errorf("runner: %s: %w", ref, err)
	}
	return StepFailed, fmt.Errorf("runner: %s: %w", ref, err)
}

func stepEnv(runID string, step manifest.ProcessorStep) []string {
	env := []string{
		EnvRunID + "=" + runID,
		EnvStepSequence + "=" + strconv.Itoa(step.Sequence),
		EnvStepProcessor + "=" + step.Processor,
	}
	if v, ok := step.Input.Get(); ok {
		env = append(env, EnvStepInput+"="+manifest.CleanPath(v))
	}
	if v, ok := step.Output.Get(); ok {
		env = append(env, EnvStepOutput+"="+manifest.CleanPath(v))
	}
	if v, ok := step.TargetFile.Get(); ok {
		env = append(env, EnvStepTarget+"="+manifest.CleanPath(v))
	}
	return env
}
