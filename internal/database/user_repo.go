package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/observer/tandem/internal/domain"
)

// UserRepository handles user data access. The hub only reads user rows;
// provisioning happens outside this service.
type UserRepository struct {
	db *DB
}

func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetByID finds a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	user := &domain.User{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, first_name, last_name, email, is_admin, team_id, avatar_url, created_at, updated_at
		FROM users WHERE id = $1
	`, id).Scan(
		&user.ID, &user.FirstName, &user.LastName,
		&user.Email, &user.IsAdmin, &user.TeamID,
		&user.AvatarURL, &user.CreatedAt, &user.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetByEmail finds a user by email
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	user := &domain.User{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, first_name, last_name, email, is_admin, team_id, avatar_url, created_at, updated_at
		FROM users WHERE email = $1
	`, email).Scan(
		&user.ID, &user.FirstName, &user.LastName,
		&user.Email, &user.IsAdmin, &user.TeamID,
		&user.AvatarURL, &user.CreatedAt, &user.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// ListTeammates returns every member of the team except the given user
func (r *UserRepository) ListTeammates(ctx context.Context, teamID int64, excludeUserID string) ([]domain.User, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, first_name, last_name, email, is_admin, team_id, avatar_url, created_at, updated_at
		FROM users
		WHERE team_id = $1 AND id <> $2
		ORDER BY first_name, last_name
	`, teamID, excludeUserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		var u domain.User
		err := rows.Scan(
			&u.ID, &u.FirstName, &u.LastName,
			&u.Email, &u.IsAdmin, &u.TeamID,
			&u.AvatarURL, &u.CreatedAt, &u.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
