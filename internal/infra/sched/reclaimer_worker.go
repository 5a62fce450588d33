package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"script-breakdown/internal/infra/metrics"
	"script-breakdown/internal/usecase"
)

// ReclaimerWorker periodically fails jobs that stopped reporting
// progress, so a crashed runner cannot pin a document forever.
type ReclaimerWorker struct {
	interval time.Duration
	jobUC    *usecase.JobUseCase
	log      *zerolog.Logger
}

func NewReclaimerWorker(interval time.Duration, jobUC *usecase.JobUseCase, logger *zerolog.Logger) *ReclaimerWorker {
	l := logger.With().Str("component", "ReclaimerWorker").Logger()
	return &ReclaimerWorker{interval: interval, jobUC: jobUC, log: &l}
}

func (w *ReclaimerWorker) Run(ctx context.Context) error {
	w.log.Info().Msg("starting stale-job reclaimer")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("stopping stale-job reclaimer")
			return ctx.Err()
		case <-ticker.C:
			n, err := w.jobUC.CancelStaleJobs(ctx, "")
			if err != nil {
				w.log.Error().Err(err).Msg("stale sweep error")
			}
			if n > 0 {
				metrics.IncStale(n)
				w.log.Info().Int("count", n).Msg("stale jobs reclaimed")
			}
		}
	}
}
