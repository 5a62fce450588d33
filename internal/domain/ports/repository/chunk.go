package repository

import (
	"context"

	"script-breakdown/internal/domain/model"
)

type ChunkRepository interface {
	SaveAll(ctx context.Context, tx Tx, chunks []*model.Chunk) error
	ListByJob(ctx context.Context, tx Tx, jobID string) ([]*model.Chunk, error)
	Update(ctx context.Context, tx Tx, chunk *model.Chunk) error
}
