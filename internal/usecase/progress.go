package usecase

import (
	"context"
	"fmt"
	"time"

	"script-breakdown/internal/domain"
	"script-breakdown/internal/domain/model"
	"script-breakdown/internal/domain/ports/repository"

	"github.com/rs/zerolog"
)

// ProgressTracker is bound to a single job and owns every status or
// progress write made during a run. Percent values are integers in
// [0,100], never decrease while the job is active, and 100 is reserved
// for terminal success.
type ProgressTracker struct {
	jobID     string
	startedAt time.Time
	steps     []model.StepDef
	total     int
	jobs      repository.JobRepository
	log       *zerolog.Logger

	lastPercent int
}

func NewProgressTracker(job *model.Job, steps []model.StepDef, jobs repository.JobRepository, logger *zerolog.Logger) *ProgressTracker {
	l := logger.With().Str("component", "ProgressTracker").Str("job_id", job.ID).Logger()
	started := job.CreatedAt
	if job.StartedAt != nil {
		started = *job.StartedAt
	}
	total := model.TotalWeight(steps)
	if total <= 0 {
		total = 1
	}
	return &ProgressTracker{
		jobID:       job.ID,
		startedAt:   started,
		steps:       steps,
		total:       total,
		jobs:        jobs,
		log:         &l,
		lastPercent: job.Progress,
	}
}

// TransitionTo moves the job into the given step, with progress equal to
// the cumulative weight of all strictly earlier steps.
func (t *ProgressTracker) TransitionTo(ctx context.Context, status model.JobStatus) error {
	idx := model.StepIndex(t.steps, status)
	if idx < 0 {
		return fmt.Errorf("transition to unknown step %q: %w", status, domain.ErrInvalidArgument)
	}
	percent := t.clamp(t.weightBefore(idx) * 100 / t.total)
	desc := t.steps[idx].Description

	if err := t.jobs.UpdateProgress(ctx, nil, t.jobID, status, idx, percent, desc); err != nil {
		return fmt.Errorf("persist transition to %s: %w", status, err)
	}
	t.log.Debug().Str("step", string(status)).Int("percent", percent).Msg("step transition")
	return nil
}

// UpdateProgress blends intra-step completion into the step's weight
// band. The result is capped at 99: only Complete may write 100.
func (t *ProgressTracker) UpdateProgress(ctx context.Context, status model.JobStatus, completed, total int, note string) error {
	idx := model.StepIndex(t.steps, status)
	if idx < 0 {
		return fmt.Errorf("progress for unknown step %q: %w", status, domain.ErrInvalidArgument)
	}
	frac := 0.0
	if total > 0 {
		frac = float64(completed) / float64(total)
		if frac > 1 {
			frac = 1
		}
	}
	weighted := float64(t.weightBefore(idx)) + frac*float64(t.steps[idx].Weight)
	percent := int(weighted * 100 / float64(t.total))
	if percent > 99 {
		percent = 99
	}
	percent = t.clamp(percent)
	desc := fmt.Sprintf("%s (%d/%d)", note, completed, total)

	return t.jobs.UpdateProgress(ctx, nil, t.jobID, status, idx, percent, desc)
}

// Complete marks terminal success: progress 100, result payload,
// completion time and total processing duration.
func (t *ProgressTracker) Complete(ctx context.Context, result []byte) error {
	now := time.Now()
	t.lastPercent = 100
	return t.jobs.MarkTerminal(ctx, nil, t.jobID, model.JobStatusCompleted, result, "", "", now, now.Sub(t.startedAt).Milliseconds())
}

func (t *ProgressTracker) Fail(ctx context.Context, message, details string) error {
	now := time.Now()
	return t.jobs.MarkTerminal(ctx, nil, t.jobID, model.JobStatusFailed, nil, message, details, now, now.Sub(t.startedAt).Milliseconds())
}

func (t *ProgressTracker) Cancel(ctx context.Context) error {
	now := time.Now()
	return t.jobs.MarkTerminal(ctx, nil, t.jobID, model.JobStatusCancelled, nil, "", "", now, now.Sub(t.startedAt).Milliseconds())
}

// IsCancelled re-reads the persisted status. The orchestrator polls this
// between steps; the job row is the source of truth for cancellation.
func (t *ProgressTracker) IsCancelled(ctx context.Context) (bool, error) {
	job, err := t.jobs.FindByID(ctx, nil, t.jobID)
	if err != nil {
		return false, err
	}
	return job.Status == model.JobStatusCancelled, nil
}

// SaveContext persists the serialized context for potential resumption.
func (t *ProgressTracker) SaveContext(ctx context.Context, ec *model.ExtractionContext) error {
	payload, err := ec.Marshal()
	if err != nil {
		return fmt.Errorf("marshal context: %w", err)
	}
	return t.jobs.SaveContext(ctx, nil, t.jobID, payload)
}

func (t *ProgressTracker) weightBefore(idx int) int {
	sum := 0
	for i := 0; i < idx; i++ {
		sum += t.steps[i].Weight
	}
	return sum
}

// clamp enforces local monotonicity on top of the repository guard.
func (t *ProgressTracker) clamp(percent int) int {
	if percent < t.lastPercent {
		return t.lastPercent
	}
	t.lastPercent = percent
	return percent
}
