package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"script-breakdown/internal/domain"
	"script-breakdown/internal/domain/model"
	"script-breakdown/internal/domain/ports/repository"
)

var _ repository.JobRepository = (*jobRepo)(nil)

type jobRepo struct {
	pool *pgxpool.Pool
	tm   repository.TransactionManager
}

func NewJobRepo(pool *pgxpool.Pool, tm repository.TransactionManager) *jobRepo {
	return &jobRepo{pool: pool, tm: tm}
}

const jobColumns = `
id, project_id, document_id, kind, status, current_step, total_steps, progress,
COALESCE(step_description,''), result, COALESCE(error_message,''), COALESCE(error_details,''),
context, created_at, started_at, completed_at, processing_ms`

func scanJob(row pgx.Row) (*model.Job, error) {
	var j model.Job
	var status, kind string
	err := row.Scan(
		&j.ID, &j.ProjectID, &j.DocumentID, &kind, &status, &j.CurrentStep, &j.TotalSteps, &j.Progress,
		&j.StepDescription, &j.Result, &j.ErrorMessage, &j.ErrorDetails,
		&j.Context, &j.CreatedAt, &j.StartedAt, &j.CompletedAt, &j.ProcessingMS,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	j.Status = model.JobStatus(status)
	j.Kind = model.JobKind(kind)
	return &j, nil
}

func (r *jobRepo) Save(ctx context.Context, tx repository.Tx, job *model.Job) error {
	const q = `
INSERT INTO breakdown_jobs
  (id, project_id, document_id, kind, status, current_step, total_steps, progress,
   step_description, result, error_message, error_details, context,
   created_at, started_at, completed_at, processing_ms)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NULLIF($11,''),NULLIF($12,''),$13,$14,$15,$16,$17)
ON CONFLICT (id) DO UPDATE SET
  status = EXCLUDED.status,
  current_step = EXCLUDED.current_step,
  progress = EXCLUDED.progress,
  step_description = EXCLUDED.step_description,
  result = EXCLUDED.result,
  error_message = EXCLUDED.error_message,
  error_details = EXCLUDED.error_details,
  context = EXCLUDED.context,
  started_at = EXCLUDED.started_at,
  completed_at = EXCLUDED.completed_at,
  processing_ms = EXCLUDED.processing_ms;`

	_, err := execSQL(ctx, r.pool, tx, q,
		job.ID, job.ProjectID, job.DocumentID, string(job.Kind), string(job.Status),
		job.CurrentStep, job.TotalSteps, job.Progress, job.StepDescription,
		job.Result, job.ErrorMessage, job.ErrorDetails, job.Context,
		job.CreatedAt, job.StartedAt, job.CompletedAt, job.ProcessingMS)
	return err
}

func (r *jobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+jobColumns+` FROM breakdown_jobs WHERE id = $1;`, id)
	if err != nil {
		return nil, err
	}
	return scanJob(row)
}

// FetchAndMarkStarted atomically claims the oldest unstarted pending job
// and stamps started_at, so concurrent runners never pick the same job.
func (r *jobRepo) FetchAndMarkStarted(ctx context.Context) (*model.Job, error) {
	var job *model.Job

	err := r.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		const fetch = `
SELECT ` + jobColumns + `
FROM breakdown_jobs
WHERE status = 'pending' AND started_at IS NULL
ORDER BY created_at
LIMIT 1
FOR UPDATE SKIP LOCKED;`

		row, err := pickRow(ctx, r.pool, tx, fetch)
		if err != nil {
			return err
		}
		fetched, err := scanJob(row)
		if err != nil {
			return err
		}

		now := time.Now()
		fetched.StartedAt = &now
		const mark = `UPDATE breakdown_jobs SET started_at = $2 WHERE id = $1;`
		if _, err := execSQL(ctx, r.pool, tx, mark, fetched.ID, now); err != nil {
			return err
		}

		job = fetched
		return nil
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (r *jobRepo) FindActive(ctx context.Context, tx repository.Tx, documentID string) ([]*model.Job, error) {
	q := `SELECT ` + jobColumns + ` FROM breakdown_jobs
WHERE status NOT IN ('completed','failed','cancelled')`
	args := []interface{}{}
	if documentID != "" {
		q += ` AND document_id = $1`
		args = append(args, documentID)
	}
	q += ` ORDER BY created_at;`

	rows, err := pickRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// UpdateProgress is guarded two ways: terminal jobs are never touched,
// and progress can only grow.
func (r *jobRepo) UpdateProgress(ctx context.Context, tx repository.Tx, id string, status model.JobStatus, step, progress int, description string) error {
	const q = `
UPDATE breakdown_jobs
SET status = $2, current_step = $3, progress = GREATEST(progress, $4), step_description = $5
WHERE id = $1 AND status NOT IN ('completed','failed','cancelled');`

	tag, err := execSQL(ctx, r.pool, tx, q, id, string(status), step, progress, description)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrJobTerminal
	}
	return nil
}

func (r *jobRepo) MarkTerminal(ctx context.Context, tx repository.Tx, id string, status model.JobStatus, result []byte, errMsg, errDetails string, completedAt time.Time, processingMS int64) error {
	const q = `
UPDATE breakdown_jobs
SET status = $2,
    result = $3,
    error_message = NULLIF($4, ''),
    error_details = NULLIF($5, ''),
    completed_at = $6,
    processing_ms = $7,
    progress = CASE WHEN $2 = 'completed' THEN 100 ELSE progress END
WHERE id = $1 AND status NOT IN ('completed','failed','cancelled');`

	tag, err := execSQL(ctx, r.pool, tx, q, id, string(status), result, errMsg, errDetails, completedAt, processingMS)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrJobTerminal
	}
	return nil
}

func (r *jobRepo) SaveContext(ctx context.Context, tx repository.Tx, id string, payload []byte) error {
	const q = `
UPDATE breakdown_jobs SET context = $2
WHERE id = $1 AND status NOT IN ('completed','failed','cancelled');`
	_, err := execSQL(ctx, r.pool, tx, q, id, payload)
	return err
}

func (r *jobRepo) DeleteTerminalBefore(ctx context.Context, tx repository.Tx, cutoff time.Time) (int, error) {
	const q = `
DELETE FROM breakdown_jobs
WHERE status IN ('completed','failed','cancelled') AND completed_at < $1;`
	tag, err := execSQL(ctx, r.pool, tx, q, cutoff)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
