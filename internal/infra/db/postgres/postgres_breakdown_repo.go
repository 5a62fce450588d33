package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"script-breakdown/internal/domain/model"
	"script-breakdown/internal/domain/ports/repository"
)

var _ repository.BreakdownRepository = (*breakdownRepo)(nil)

type breakdownRepo struct {
	pool *pgxpool.Pool
}

func NewBreakdownRepo(pool *pgxpool.Pool) *breakdownRepo {
	return &breakdownRepo{pool: pool}
}

func (r *breakdownRepo) SaveScenes(ctx context.Context, tx repository.Tx, scenes []*model.Scene) (int, error) {
	const q = `
INSERT INTO scenes
  (id, project_id, number, heading, interior, time_of_day, location, synopsis,
   characters, page_eighths, estimated_mins)
VALUES ($1,$2,$3,$4,$5,$6,$7,NULLIF($8,''),$9,$10,$11)
ON CONFLICT (project_id, number) DO UPDATE SET
  heading = EXCLUDED.heading,
  interior = EXCLUDED.interior,
  time_of_day = EXCLUDED.time_of_day,
  location = EXCLUDED.location,
  synopsis = EXCLUDED.synopsis,
  characters = EXCLUDED.characters,
  page_eighths = EXCLUDED.page_eighths,
  estimated_mins = EXCLUDED.estimated_mins;`

	n := 0
	for _, s := range scenes {
		if _, err := execSQL(ctx, r.pool, tx, q,
			s.ID, s.ProjectID, s.Number, s.Heading, s.Interior, s.TimeOfDay,
			s.Location, s.Synopsis, s.Characters, s.PageEighths, s.EstimatedMins); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (r *breakdownRepo) SaveElements(ctx context.Context, tx repository.Tx, elements []*model.BreakdownElement) (int, error) {
	const q = `
INSERT INTO breakdown_elements (id, project_id, scene_number, category, name)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (project_id, scene_number, category, name) DO NOTHING;`

	n := 0
	for _, e := range elements {
		if _, err := execSQL(ctx, r.pool, tx, q,
			e.ID, e.ProjectID, e.SceneNumber, string(e.Category), e.Name); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (r *breakdownRepo) SaveCrewSuggestions(ctx context.Context, tx repository.Tx, suggestions []*model.CrewSuggestion) (int, error) {
	const q = `
INSERT INTO crew_suggestions (id, project_id, department, role, reason)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (project_id, department, role) DO UPDATE SET reason = EXCLUDED.reason;`

	n := 0
	for _, s := range suggestions {
		if _, err := execSQL(ctx, r.pool, tx, q,
			s.ID, s.ProjectID, s.Department, s.Role, s.Reason); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
