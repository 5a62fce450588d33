package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"script-breakdown/internal/infra/metrics"
	"script-breakdown/internal/usecase"
)

// RetentionWorker deletes terminal jobs past the retention window.
type RetentionWorker struct {
	interval time.Duration
	jobUC    *usecase.JobUseCase
	log      *zerolog.Logger
}

func NewRetentionWorker(interval time.Duration, jobUC *usecase.JobUseCase, logger *zerolog.Logger) *RetentionWorker {
	l := logger.With().Str("component", "RetentionWorker").Logger()
	return &RetentionWorker{interval: interval, jobUC: jobUC, log: &l}
}

func (w *RetentionWorker) Run(ctx context.Context) error {
	w.log.Info().Msg("starting retention worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("stopping retention worker")
			return ctx.Err()
		case <-ticker.C:
			n, err := w.jobUC.CleanupOldJobs(ctx)
			if err != nil {
				w.log.Error().Err(err).Msg("retention sweep error")
			}
			if n > 0 {
				metrics.IncCleaned(n)
				w.log.Info().Int("count", n).Msg("old jobs deleted")
			}
		}
	}
}
