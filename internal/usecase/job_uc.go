package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"script-breakdown/internal/domain"
	"script-breakdown/internal/domain/model"
	"script-breakdown/internal/domain/ports/repository"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

const (
	// DefaultStaleAfter is how long a non-terminal job may sit before the
	// reclaimer presumes its runner died.
	DefaultStaleAfter = 10 * time.Minute
	// DefaultRetention is how long terminal jobs are kept before cleanup.
	DefaultRetention = 30 * 24 * time.Hour
)

// DocumentLocker is the redis-backed fast path of the per-document
// mutual exclusion; the job table remains the source of truth.
type DocumentLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

// JobUseCase owns job and chunk lifecycle: creation, lookup,
// cancellation, staleness reclamation and retention cleanup.
type JobUseCase struct {
	jobs       repository.JobRepository
	chunks     repository.ChunkRepository
	locker     DocumentLocker
	staleAfter time.Duration
	retention  time.Duration
	now        func() time.Time
	log        *zerolog.Logger
}

func NewJobUseCase(jobs repository.JobRepository, chunks repository.ChunkRepository, locker DocumentLocker, staleAfter, retention time.Duration, logger *zerolog.Logger) *JobUseCase {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	l := logger.With().Str("component", "JobUseCase").Logger()
	return &JobUseCase{
		jobs:       jobs,
		chunks:     chunks,
		locker:     locker,
		staleAfter: staleAfter,
		retention:  retention,
		now:        time.Now,
		log:        &l,
	}
}

type CreateJobInput struct {
	ProjectID  string
	DocumentID string
	Kind       model.JobKind
}

// CreateJob inserts a job in the initial state with its step count
// defaulted from the kind's pipeline.
func (uc *JobUseCase) CreateJob(ctx context.Context, in CreateJobInput) (*model.Job, error) {
	if in.DocumentID == "" || in.ProjectID == "" {
		return nil, domain.ErrInvalidArgument
	}
	steps := model.StepsForKind(in.Kind)
	if steps == nil {
		return nil, domain.ErrUnknownJobKind
	}
	job := &model.Job{
		ID:         ulid.Make().String(),
		ProjectID:  in.ProjectID,
		DocumentID: in.DocumentID,
		Kind:       in.Kind,
		Status:     model.JobStatusPending,
		TotalSteps: len(steps),
		CreatedAt:  uc.now(),
	}
	if err := uc.jobs.Save(ctx, nil, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	return job, nil
}

// StartJob is the kickoff interface: reclaim stale jobs for the
// document, take the document lock, reject when an active job remains,
// then create the new pending job for a runner to pick up.
func (uc *JobUseCase) StartJob(ctx context.Context, in CreateJobInput) (*model.Job, error) {
	if n, err := uc.CancelStaleJobs(ctx, in.DocumentID); err != nil {
		uc.log.Warn().Err(err).Str("document_id", in.DocumentID).Msg("stale reclaim before start failed")
	} else if n > 0 {
		uc.log.Info().Int("count", n).Str("document_id", in.DocumentID).Msg("reclaimed stale jobs before start")
	}

	if uc.locker != nil {
		token, err := uc.locker.TryLock(ctx, "job_lock:"+in.DocumentID, 30*time.Second)
		switch {
		case err == nil:
			defer func() { _ = uc.locker.Unlock(ctx, "job_lock:"+in.DocumentID, token) }()
		case errors.Is(err, domain.ErrJobAlreadyActive):
			return nil, domain.ErrJobAlreadyActive
		default:
			// Lock backend down. The active-job check below is the
			// source of truth, so kickoff proceeds without the fast path.
			uc.log.Warn().Err(err).Str("document_id", in.DocumentID).Msg("document lock unavailable")
		}
	}

	active, err := uc.HasActiveJob(ctx, in.DocumentID)
	if err != nil {
		return nil, err
	}
	if active {
		return nil, domain.ErrJobAlreadyActive
	}
	return uc.CreateJob(ctx, in)
}

func (uc *JobUseCase) GetJob(ctx context.Context, id string) (*model.Job, error) {
	return uc.jobs.FindByID(ctx, nil, id)
}

// CancelJob moves a job to terminal-cancelled. The orchestrator observes
// this at its next step boundary; cancellation is not an error state.
func (uc *JobUseCase) CancelJob(ctx context.Context, id string) error {
	job, err := uc.jobs.FindByID(ctx, nil, id)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return domain.ErrJobTerminal
	}
	now := uc.now()
	started := job.CreatedAt
	if job.StartedAt != nil {
		started = *job.StartedAt
	}
	return uc.jobs.MarkTerminal(ctx, nil, id, model.JobStatusCancelled, nil, "", "", now, now.Sub(started).Milliseconds())
}

// HasActiveJob reports whether any non-terminal job exists for the
// document. Callers use it to reject concurrent duplicate submissions.
func (uc *JobUseCase) HasActiveJob(ctx context.Context, documentID string) (bool, error) {
	jobs, err := uc.jobs.FindActive(ctx, nil, documentID)
	if err != nil {
		return false, err
	}
	return len(jobs) > 0, nil
}

// CancelStaleJobs force-fails non-terminal jobs for the document whose
// created/started time is older than the staleness window, or whose
// created time is in the future (clock skew). Returns the count
// reclaimed. documentID == "" sweeps every document.
func (uc *JobUseCase) CancelStaleJobs(ctx context.Context, documentID string) (int, error) {
	active, err := uc.jobs.FindActive(ctx, nil, documentID)
	if err != nil {
		return 0, err
	}
	now := uc.now()
	cutoff := now.Add(-uc.staleAfter)
	reclaimed := 0
	for _, job := range active {
		if !uc.isStale(job, now, cutoff) {
			continue
		}
		msg := fmt.Sprintf("job stale: no progress since %s (window %s), presumed abandoned",
			uc.lastActivity(job).Format(time.RFC3339), uc.staleAfter)
		started := job.CreatedAt
		if job.StartedAt != nil {
			started = *job.StartedAt
		}
		if err := uc.jobs.MarkTerminal(ctx, nil, job.ID, model.JobStatusFailed, nil, msg, "reclaimed by staleness sweep", now, now.Sub(started).Milliseconds()); err != nil {
			uc.log.Error().Err(err).Str("job_id", job.ID).Msg("failed to reclaim stale job")
			continue
		}
		reclaimed++
	}
	return reclaimed, nil
}

func (uc *JobUseCase) isStale(job *model.Job, now, cutoff time.Time) bool {
	if job.CreatedAt.After(now.Add(time.Minute)) { // clock skew
		return true
	}
	return uc.lastActivity(job).Before(cutoff)
}

func (uc *JobUseCase) lastActivity(job *model.Job) time.Time {
	if job.StartedAt != nil && job.StartedAt.After(job.CreatedAt) {
		return *job.StartedAt
	}
	return job.CreatedAt
}

// CleanupOldJobs deletes terminal jobs past the retention window; chunk
// rows cascade with the job.
func (uc *JobUseCase) CleanupOldJobs(ctx context.Context) (int, error) {
	cutoff := uc.now().Add(-uc.retention)
	n, err := uc.jobs.DeleteTerminalBefore(ctx, nil, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup old jobs: %w", err)
	}
	return n, nil
}

// SaveChunks persists freshly cut chunks, sanitizing text so control
// characters never reach structured storage. The job id is stamped on
// the caller's slice so later per-chunk updates address the stored rows.
func (uc *JobUseCase) SaveChunks(ctx context.Context, jobID string, chunks []model.Chunk) error {
	out := make([]*model.Chunk, len(chunks))
	for i := range chunks {
		c := &chunks[i]
		c.JobID = jobID
		c.Text = Sanitize(c.Text)
		c.Result = Sanitize(c.Result)
		out[i] = c
	}
	return uc.chunks.SaveAll(ctx, nil, out)
}

func (uc *JobUseCase) GetChunks(ctx context.Context, jobID string) ([]*model.Chunk, error) {
	return uc.chunks.ListByJob(ctx, nil, jobID)
}

func (uc *JobUseCase) UpdateChunk(ctx context.Context, chunk *model.Chunk) error {
	chunk.Text = Sanitize(chunk.Text)
	chunk.Result = Sanitize(chunk.Result)
	chunk.Error = Sanitize(chunk.Error)
	return uc.chunks.Update(ctx, nil, chunk)
}

// Sanitize strips control characters (except tab and newline) that would
// corrupt JSON/JSONB payloads, including NUL which postgres rejects.
func Sanitize(s string) string {
	if s == "" {
		return s
	}
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' || r == '\r' {
			return r
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
}
