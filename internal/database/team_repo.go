package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/observer/tandem/internal/domain"
)

// TeamRepository handles team data access
type TeamRepository struct {
	db *DB
}

func NewTeamRepository(db *DB) *TeamRepository {
	return &TeamRepository{db: db}
}

// GetByID finds a team by ID
func (r *TeamRepository) GetByID(ctx context.Context, id int64) (*domain.Team, error) {
	team := &domain.Team{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, name, created_at, updated_at
		FROM teams WHERE id = $1
	`, id).Scan(&team.ID, &team.Name, &team.CreatedAt, &team.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTeamNotFound
	}
	if err != nil {
		return nil, err
	}
	return team, nil
}
