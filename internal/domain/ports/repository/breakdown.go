package repository

import (
	"context"

	"script-breakdown/internal/domain/model"
)

// BreakdownRepository persists the records the pipeline's persisting
// step produces. The wider production CRUD around these tables lives
// outside this service.
type BreakdownRepository interface {
	SaveScenes(ctx context.Context, tx Tx, scenes []*model.Scene) (int, error)
	SaveElements(ctx context.Context, tx Tx, elements []*model.BreakdownElement) (int, error)
	SaveCrewSuggestions(ctx context.Context, tx Tx, suggestions []*model.CrewSuggestion) (int, error)
}
