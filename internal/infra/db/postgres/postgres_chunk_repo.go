package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"script-breakdown/internal/domain"
	"script-breakdown/internal/domain/model"
	"script-breakdown/internal/domain/ports/repository"
)

var _ repository.ChunkRepository = (*chunkRepo)(nil)

type chunkRepo struct {
	pool *pgxpool.Pool
}

func NewChunkRepo(pool *pgxpool.Pool) *chunkRepo {
	return &chunkRepo{pool: pool}
}

func (r *chunkRepo) SaveAll(ctx context.Context, tx repository.Tx, chunks []*model.Chunk) error {
	const q = `
INSERT INTO script_chunks
  (id, job_id, chunk_index, text, first_page, last_page, boundary_count, processed, result, error)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NULLIF($9,''),NULLIF($10,''))
ON CONFLICT (job_id, chunk_index) DO UPDATE SET
  text = EXCLUDED.text,
  first_page = EXCLUDED.first_page,
  last_page = EXCLUDED.last_page,
  boundary_count = EXCLUDED.boundary_count,
  processed = EXCLUDED.processed,
  result = EXCLUDED.result,
  error = EXCLUDED.error;`

	for _, c := range chunks {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if _, err := execSQL(ctx, r.pool, tx, q,
			c.ID, c.JobID, c.Index, c.Text, c.FirstPage, c.LastPage,
			c.BoundaryCount, c.Processed, c.Result, c.Error); err != nil {
			return err
		}
	}
	return nil
}

func (r *chunkRepo) ListByJob(ctx context.Context, tx repository.Tx, jobID string) ([]*model.Chunk, error) {
	const q = `
SELECT id, job_id, chunk_index, text, first_page, last_page, boundary_count,
       processed, COALESCE(result,''), COALESCE(error,'')
FROM script_chunks
WHERE job_id = $1
ORDER BY chunk_index;`

	rows, err := pickRows(ctx, r.pool, tx, q, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []*model.Chunk
	for rows.Next() {
		var c model.Chunk
		if err := rows.Scan(&c.ID, &c.JobID, &c.Index, &c.Text, &c.FirstPage, &c.LastPage,
			&c.BoundaryCount, &c.Processed, &c.Result, &c.Error); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, domain.ErrNotFound
			}
			return nil, domain.ErrReadDatabaseRow
		}
		chunks = append(chunks, &c)
	}
	return chunks, rows.Err()
}

func (r *chunkRepo) Update(ctx context.Context, tx repository.Tx, chunk *model.Chunk) error {
	const q = `
UPDATE script_chunks
SET processed = $3, result = NULLIF($4,''), error = NULLIF($5,'')
WHERE job_id = $1 AND chunk_index = $2;`
	_, err := execSQL(ctx, r.pool, tx, q, chunk.JobID, chunk.Index, chunk.Processed, chunk.Result, chunk.Error)
	return err
}
