package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"script-breakdown/internal/chunker"
	"script-breakdown/internal/domain"
	"script-breakdown/internal/domain/model"
	"script-breakdown/internal/domain/ports/adapter"
	"script-breakdown/internal/domain/ports/repository"
	"script-breakdown/internal/infra/metrics"
	"script-breakdown/internal/retry"
	"script-breakdown/internal/usecase"
)

// StatusCache is the optional write-through for job snapshots so the
// status endpoint can serve polls without touching the job table.
type StatusCache interface {
	Store(ctx context.Context, job *model.Job) error
}

// JobRunner claims pending jobs from the job table and drives them
// through the breakdown pipeline. Multiple runners can share the table;
// claiming uses row locks so each job runs exactly once.
type JobRunner struct {
	jobs      repository.JobRepository
	jobUC     *usecase.JobUseCase
	docs      adapter.DocumentStore
	ai        adapter.ModelAdapter
	retrier   *retry.Handler
	breakdown repository.BreakdownRepository
	tm        repository.TransactionManager
	cache     StatusCache
	chunkOpts chunker.Options
	batchSize int
	poll      time.Duration
	log       *zerolog.Logger
}

func NewJobRunner(
	jobs repository.JobRepository,
	jobUC *usecase.JobUseCase,
	docs adapter.DocumentStore,
	ai adapter.ModelAdapter,
	retrier *retry.Handler,
	breakdown repository.BreakdownRepository,
	tm repository.TransactionManager,
	cache StatusCache,
	chunkOpts chunker.Options,
	batchSize int,
	poll time.Duration,
	logger *zerolog.Logger,
) *JobRunner {
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}
	l := logger.With().Str("component", "JobRunner").Logger()
	return &JobRunner{
		jobs:      jobs,
		jobUC:     jobUC,
		docs:      docs,
		ai:        ai,
		retrier:   retrier,
		breakdown: breakdown,
		tm:        tm,
		cache:     cache,
		chunkOpts: chunkOpts,
		batchSize: batchSize,
		poll:      poll,
		log:       &l,
	}
}

// Start polls for pending jobs and hands them to the pool. Run it in a
// goroutine; it returns when ctx is done.
func (r *JobRunner) Start(ctx context.Context, pool *Pool) {
	r.log.Info().Msg("job runner started")
	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("job runner stopping")
			return
		case <-ticker.C:
			_ = pool.Submit(func(ctx context.Context) error {
				r.processOne(ctx)
				return nil
			})
		}
	}
}

func (r *JobRunner) processOne(ctx context.Context) {
	job, err := r.jobs.FetchAndMarkStarted(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			r.log.Error().Err(err).Msg("failed to claim job")
		}
		return
	}

	r.log.Info().Str("job_id", job.ID).Str("document_id", job.DocumentID).Msg("processing job")
	start := time.Now()

	steps := model.StepsForKind(job.Kind)
	tracker := usecase.NewProgressTracker(job, steps, r.jobs, r.log)
	pipeline := usecase.NewPipeline(job, r.docs, r.ai, r.retrier, r.jobUC,
		r.breakdown, r.tm, r.chunkOpts, r.batchSize, r.log)
	orch := usecase.NewOrchestrator(pipeline.Steps(), tracker, r.log)

	ec := model.NewExtractionContext()
	err = orch.Run(ctx, ec)
	latency := time.Since(start)

	switch {
	case err == nil:
		r.log.Info().Str("job_id", job.ID).Dur("duration", latency).Msg("job completed")
	case errors.Is(err, domain.ErrJobCancelled):
		r.log.Info().Str("job_id", job.ID).Msg("job cancelled mid-run")
	default:
		r.log.Error().Err(err).Str("job_id", job.ID).Msg("job failed")
	}

	// Re-read for the authoritative terminal row, then write through to
	// the status cache. Use a background context so shutdown does not
	// drop the final snapshot.
	final, ferr := r.jobs.FindByID(context.Background(), nil, job.ID)
	if ferr != nil {
		r.log.Error().Err(ferr).Str("job_id", job.ID).Msg("could not reload finished job")
		return
	}
	metrics.IncJobFinished(string(final.Status), latency)
	if r.cache != nil {
		if cerr := r.cache.Store(context.Background(), final); cerr != nil {
			r.log.Warn().Err(cerr).Str("job_id", job.ID).Msg("status cache write failed")
		}
	}
}
