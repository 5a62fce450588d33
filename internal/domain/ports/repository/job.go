package repository

import (
	"context"
	"time"

	"script-breakdown/internal/domain/model"
)

type JobRepository interface {
	Save(ctx context.Context, tx Tx, job *model.Job) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Job, error)

	// FetchAndMarkStarted atomically claims the oldest pending job and
	// stamps its started_at, so no two runners ever execute the same job.
	FetchAndMarkStarted(ctx context.Context) (*model.Job, error)

	// FindActive returns non-terminal jobs; documentID == "" means all
	// documents.
	FindActive(ctx context.Context, tx Tx, documentID string) ([]*model.Job, error)

	// UpdateProgress persists status, step index, progress percent and
	// description in one guarded update. The update is a no-op when the
	// job is already terminal, and progress can only grow.
	UpdateProgress(ctx context.Context, tx Tx, id string, status model.JobStatus, step, progress int, description string) error

	// MarkTerminal moves a job into a terminal status with its result or
	// error payload, completion time and duration. Guarded the same way.
	MarkTerminal(ctx context.Context, tx Tx, id string, status model.JobStatus, result []byte, errMsg, errDetails string, completedAt time.Time, processingMS int64) error

	SaveContext(ctx context.Context, tx Tx, id string, payload []byte) error

	// DeleteTerminalBefore removes terminal jobs completed before the
	// cutoff; chunk rows cascade. Returns the number deleted.
	DeleteTerminalBefore(ctx context.Context, tx Tx, cutoff time.Time) (int, error)
}
