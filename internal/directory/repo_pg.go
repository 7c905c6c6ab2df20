package directory

import (
	"context"
	"database/sql"
	"errors"
)

// PostgresRepo reads the directory projection tables.
//
// NOTE: The `users` table here is a synced projection of the upstream
// identity/HR directory; this service never writes to it.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) GetUser(ctx context.Context, workspaceID, userID string) (User, error) {
	const q = `
SELECT id, workspace_id, name, email, role, manager_id, active, created_at, updated_at
FROM users
WHERE workspace_id = $1 AND id = $2
`
	var u User
	if err := r.db.QueryRowContext(ctx, q, workspaceID, userID).Scan(
		&u.ID,
		&u.WorkspaceID,
		&u.Name,
		&u.Email,
		&u.Role,
		&u.ManagerID,
		&u.Active,
		&u.CreatedAt,
		&u.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return u, nil
}

func (r *PostgresRepo) FindFirstByRole(ctx context.Context, workspaceID, roleName string) (User, bool, error) {
	// Ordered by id so resolution is stable across calls.
	const q = `
SELECT id, workspace_id, name, email, role, manager_id, active, created_at, updated_at
FROM users
WHERE workspace_id = $1 AND lower(role) = $2 AND active
ORDER BY id
LIMIT 1
`
	var u User
	if err := r.db.QueryRowContext(ctx, q, workspaceID, roleName).Scan(
		&u.ID,
		&u.WorkspaceID,
		&u.Name,
		&u.Email,
		&u.Role,
		&u.ManagerID,
		&u.Active,
		&u.CreatedAt,
		&u.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, false, nil
		}
		return User{}, false, err
	}
	return u, true, nil
}
