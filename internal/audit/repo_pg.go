package audit

import (
	"context"
	"database/sql"
)

// PostgresRepo persists audit events. Insert-only.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	_, err := r.db.ExecContext(ctx, insertEventSQL,
		e.ID, e.WorkspaceID, e.RequestID, e.ActorID, e.Action, e.Description, e.Detail, e.CreatedAt,
	)
	return err
}

func (r *PostgresRepo) List(ctx context.Context, workspaceID, requestID string) ([]Event, error) {
	const q = `
SELECT id, workspace_id, request_id, actor_id, action, description, detail, created_at
FROM audit_events
WHERE workspace_id = $1 AND request_id = $2
ORDER BY created_at DESC, id DESC
`
	rows, err := r.db.QueryContext(ctx, q, workspaceID, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(
			&e.ID,
			&e.WorkspaceID,
			&e.RequestID,
			&e.ActorID,
			&e.Action,
			&e.Description,
			&e.Detail,
			&e.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

const insertEventSQL = `
INSERT INTO audit_events (
  id, workspace_id, request_id, actor_id, action, description, detail, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8
)
`

// InsertTx appends an event inside a caller-owned transaction, so a
// state transition and its audit record commit or roll back together.
func InsertTx(ctx context.Context, tx *sql.Tx, e Event) error {
	_, err := tx.ExecContext(ctx, insertEventSQL,
		e.ID, e.WorkspaceID, e.RequestID, e.ActorID, e.Action, e.Description, e.Detail, e.CreatedAt,
	)
	return err
}
