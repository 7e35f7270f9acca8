package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smallbiznis/builder-auth/internal/domain"
)

// Compile-time interface assertions.
var (
	_ AccessRepository = (*PostgresAccessRepo)(nil)
	_ UserDirectory    = (*PostgresUserDirectory)(nil)
)

// PostgresAccessRepo answers project membership queries from the
// project_members table.
type PostgresAccessRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresAccessRepo(pool *pgxpool.Pool) *PostgresAccessRepo {
	return &PostgresAccessRepo{pool: pool}
}

func (r *PostgresAccessRepo) UserHasAccessTo(ctx context.Context, userID, projectID string) (bool, error) {
	const query = `SELECT EXISTS (
		SELECT 1 FROM project_members WHERE user_id = $1 AND project_id = $2
	)`
	var exists bool
	if err := r.pool.QueryRow(ctx, query, userID, projectID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check project access: %w", err)
	}
	return exists, nil
}

// PostgresUserDirectory loads user identities from the users table.
type PostgresUserDirectory struct {
	pool *pgxpool.Pool
}

func NewPostgresUserDirectory(pool *pgxpool.Pool) *PostgresUserDirectory {
	return &PostgresUserDirectory{pool: pool}
}

func (r *PostgresUserDirectory) GetByID(ctx context.Context, userID string) (domain.User, error) {
	const query = `SELECT id, email FROM users WHERE id = $1`
	var user domain.User
	if err := r.pool.QueryRow(ctx, query, userID).Scan(&user.ID, &user.Email); err != nil {
		return domain.User{}, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}
