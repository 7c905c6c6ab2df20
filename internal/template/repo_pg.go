package template

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
)

// PostgresRepo persists templates.
//
// Steps are stored as a JSONB column on the templates row. The typed
// step list is the engine's working form; JSON appears only here, at
// the repository boundary.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Insert(ctx context.Context, t Template) error {
	stepsJSON, err := json.Marshal(t.Steps)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO workflow_templates (
  id, workspace_id, name, description, steps, active,
  archived_at, archive_reason, archived_by, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
)
`
	_, err = r.db.ExecContext(ctx, q,
		t.ID,
		t.WorkspaceID,
		t.Name,
		t.Description,
		stepsJSON,
		t.Active,
		t.ArchivedAt,
		t.ArchiveReason,
		t.ArchivedBy,
		t.CreatedAt,
		t.UpdatedAt,
	)
	return err
}

func (r *PostgresRepo) Update(ctx context.Context, t Template) error {
	stepsJSON, err := json.Marshal(t.Steps)
	if err != nil {
		return err
	}
	const q = `
UPDATE workflow_templates
SET name = $3, description = $4, steps = $5, active = $6,
    archived_at = $7, archive_reason = $8, archived_by = $9, updated_at = $10
WHERE workspace_id = $1 AND id = $2
`
	res, err := r.db.ExecContext(ctx, q,
		t.WorkspaceID,
		t.ID,
		t.Name,
		t.Description,
		stepsJSON,
		t.Active,
		t.ArchivedAt,
		t.ArchiveReason,
		t.ArchivedBy,
		t.UpdatedAt,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) Get(ctx context.Context, workspaceID, id string) (Template, error) {
	const q = `
SELECT id, workspace_id, name, description, steps, active,
       archived_at, archive_reason, archived_by, created_at, updated_at
FROM workflow_templates
WHERE workspace_id = $1 AND id = $2
`
	return r.scanOne(r.db.QueryRowContext(ctx, q, workspaceID, id))
}

func (r *PostgresRepo) List(ctx context.Context, workspaceID string, includeArchived bool) ([]Template, error) {
	q := `
SELECT id, workspace_id, name, description, steps, active,
       archived_at, archive_reason, archived_by, created_at, updated_at
FROM workflow_templates
WHERE workspace_id = $1
`
	if !includeArchived {
		q += " AND active"
	}
	q += " ORDER BY name"

	rows, err := r.db.QueryContext(ctx, q, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Template
	for rows.Next() {
		t, err := scanTemplate(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) scanOne(row *sql.Row) (Template, error) {
	t, err := scanTemplate(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Template{}, ErrNotFound
		}
		return Template{}, err
	}
	return t, nil
}

func scanTemplate(scan func(dest ...any) error) (Template, error) {
	var t Template
	var stepsJSON []byte
	var archiveReason, archivedBy sql.NullString
	if err := scan(
		&t.ID,
		&t.WorkspaceID,
		&t.Name,
		&t.Description,
		&stepsJSON,
		&t.Active,
		&t.ArchivedAt,
		&archiveReason,
		&archivedBy,
		&t.CreatedAt,
		&t.UpdatedAt,
	); err != nil {
		return Template{}, err
	}
	if err := json.Unmarshal(stepsJSON, &t.Steps); err != nil {
		return Template{}, err
	}
	t.ArchiveReason = archiveReason.String
	t.ArchivedBy = archivedBy.String
	return t, nil
}
