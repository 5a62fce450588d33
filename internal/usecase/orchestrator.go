package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"script-breakdown/internal/domain"
	"script-breakdown/internal/domain/model"
	"script-breakdown/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// StepResult is what a pipeline step hands back to the orchestrator.
type StepResult struct {
	Success      bool
	Err          error
	ErrorDetails string
	// ShouldContinue marks a best-effort step whose failure degrades
	// output quality without invalidating the job.
	ShouldContinue bool
}

// StepFunc runs one pipeline stage. Steps read and write the shared
// context freely and report intra-step progress through the tracker;
// they never touch job rows directly.
type StepFunc func(ctx context.Context, ec *model.ExtractionContext, tracker *ProgressTracker) StepResult

type PipelineStep struct {
	Def model.StepDef
	Run StepFunc
}

// Orchestrator drives one job through its ordered step list: transition,
// run, persist context, advance. Cancellation is observed cooperatively
// at step boundaries only.
type Orchestrator struct {
	steps   []PipelineStep
	tracker *ProgressTracker
	log     *zerolog.Logger
}

func NewOrchestrator(steps []PipelineStep, tracker *ProgressTracker, logger *zerolog.Logger) *Orchestrator {
	l := logger.With().Str("component", "Orchestrator").Logger()
	return &Orchestrator{steps: steps, tracker: tracker, log: &l}
}

// Run executes the pipeline to completion, failure or cancellation. On
// fatal step failure the job row carries the error message plus the name
// and index of the last successful step, so the record is
// self-describing without the original error value.
func (o *Orchestrator) Run(ctx context.Context, ec *model.ExtractionContext) error {
	lastOKIndex := -1
	lastOKName := "none"

	for i, step := range o.steps {
		cancelled, err := o.tracker.IsCancelled(ctx)
		if err != nil {
			return o.fatal(ctx, ec, step, lastOKIndex, lastOKName,
				fmt.Errorf("cancellation check before %s: %w", step.Def.Status, err), "")
		}
		if cancelled {
			o.log.Info().Str("step", string(step.Def.Status)).Msg("job cancelled, stopping before step")
			return domain.ErrJobCancelled
		}

		if err := o.tracker.TransitionTo(ctx, step.Def.Status); err != nil {
			return o.fatal(ctx, ec, step, lastOKIndex, lastOKName, err, "")
		}

		start := time.Now()
		res := step.Run(ctx, ec, o.tracker)
		metrics.ObserveStep(string(step.Def.Status), time.Since(start), res.Success)

		if !res.Success {
			if res.ShouldContinue || step.Def.Optional {
				o.log.Warn().Err(res.Err).Str("step", string(step.Def.Status)).Msg("optional step failed, continuing")
				ec.Warn(fmt.Sprintf("step %s skipped: %v", step.Def.Status, res.Err))
				if err := o.tracker.SaveContext(ctx, ec); err != nil {
					o.log.Warn().Err(err).Msg("context save after optional failure")
				}
				continue
			}
			return o.fatal(ctx, ec, step, lastOKIndex, lastOKName, res.Err, res.ErrorDetails)
		}

		if err := o.tracker.SaveContext(ctx, ec); err != nil {
			// Losing the checkpoint only costs resumability, not
			// correctness of this run.
			o.log.Warn().Err(err).Str("step", string(step.Def.Status)).Msg("context save failed")
		}
		lastOKIndex = i
		lastOKName = string(step.Def.Status)
	}

	result, err := buildResult(ec)
	if err != nil {
		return o.fatal(ctx, ec, o.steps[len(o.steps)-1], lastOKIndex, lastOKName, err, "")
	}
	if err := o.tracker.Complete(ctx, result); err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return nil
}

func (o *Orchestrator) fatal(ctx context.Context, ec *model.ExtractionContext, step PipelineStep, lastOKIndex int, lastOKName string, cause error, details string) error {
	msg := fmt.Sprintf("step %s failed: %v", step.Def.Status, cause)
	full := fmt.Sprintf("last successful step: %s (index %d)", lastOKName, lastOKIndex)
	if details != "" {
		full += "; " + details
	}
	if err := o.tracker.Fail(ctx, msg, full); err != nil {
		o.log.Error().Err(err).Msg("could not persist job failure")
	}
	o.log.Error().Err(cause).Str("step", string(step.Def.Status)).Str("last_successful", lastOKName).Msg("job failed")
	return fmt.Errorf("%s: %w", msg, cause)
}

// buildResult aggregates the context into the completed-job payload,
// flagging scenes that came through without a synopsis or time estimate.
func buildResult(ec *model.ExtractionContext) ([]byte, error) {
	res := model.JobResult{
		Scenes:          ec.ScenesCreated,
		Elements:        ec.ElementsCreated,
		CastMembers:     len(ec.Cast),
		CrewSuggestions: len(ec.CrewSuggestions),
		ChunksProcessed: ec.ChunksProcessed,
		ChunksFailed:    ec.ChunksFailed,
		Warnings:        append([]string(nil), ec.Warnings...),
	}
	missingSynopsis, missingEstimate := 0, 0
	for _, s := range ec.Scenes {
		if s.Synopsis == "" {
			missingSynopsis++
		}
		if s.EstimatedMins == 0 {
			missingEstimate++
		}
	}
	if missingSynopsis > 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%d scenes have no synopsis", missingSynopsis))
	}
	if missingEstimate > 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%d scenes have no time estimate", missingEstimate))
	}

	return json.Marshal(res)
}
