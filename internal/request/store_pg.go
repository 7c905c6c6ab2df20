package request

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"approval-platform/internal/audit"
	"approval-platform/pkg/utils"
)

// PostgresStore implements Store on Postgres.
//
// Assumed tables:
// - approval_requests
// - approval_ledger (one row per (request, step), never deleted)
// - audit_events (insert-only; see internal/audit)
//
// Race handling follows the conditional-update pattern: entry and
// request transitions carry a status predicate in the WHERE clause, and
// zero affected rows surfaces as ErrConflict. Isolation beyond
// read-committed is not required.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

const insertRequestSQL = `
INSERT INTO approval_requests (
  id, workspace_id, template_id, template_name, initiator_id,
  title, description, data, status, current_step, total_steps,
  created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
)
`

const insertEntrySQL = `
INSERT INTO approval_ledger (
  id, workspace_id, request_id, step_index, approver_id,
  action_label, step_kind, status, comment, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
)
`

func (s *PostgresStore) CreateRequest(ctx context.Context, req Request, entries []LedgerEntry, ev *audit.Event) error {
	return utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, insertRequestSQL,
			req.ID, req.WorkspaceID, req.TemplateID, req.TemplateName, req.InitiatorID,
			req.Title, req.Description, req.Data, req.Status, req.CurrentStep, req.TotalSteps,
			req.CreatedAt, req.UpdatedAt,
		); err != nil {
			return err
		}
		for _, e := range entries {
			if err := insertEntry(ctx, tx, e); err != nil {
				return err
			}
		}
		if ev != nil {
			return audit.InsertTx(ctx, tx, *ev)
		}
		return nil
	})
}

func (s *PostgresStore) SubmitDraft(ctx context.Context, req Request, entries []LedgerEntry, ev audit.Event) error {
	return utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		const q = `
UPDATE approval_requests
SET status = $3, current_step = $4, total_steps = $5, updated_at = $6
WHERE workspace_id = $1 AND id = $2 AND status = 'draft'
`
		res, err := tx.ExecContext(ctx, q,
			req.WorkspaceID, req.ID, req.Status, req.CurrentStep, req.TotalSteps, req.UpdatedAt,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrConflict
		}
		for _, e := range entries {
			if err := insertEntry(ctx, tx, e); err != nil {
				return err
			}
		}
		return audit.InsertTx(ctx, tx, ev)
	})
}

func (s *PostgresStore) ApplyDecision(ctx context.Context, d Decision) error {
	return utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		// Conditional write: the loser of a concurrent race sees zero
		// rows and the whole transaction unwinds.
		const entryQ = `
UPDATE approval_ledger
SET status = $4, comment = $5, updated_at = $6
WHERE workspace_id = $1 AND request_id = $2 AND step_index = $3 AND status = 'pending'
`
		res, err := tx.ExecContext(ctx, entryQ,
			d.WorkspaceID, d.RequestID, d.StepIndex, d.EntryStatus, d.Comment, d.UpdatedAt,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrConflict
		}

		const reqQ = `
UPDATE approval_requests
SET status = $3, current_step = $4, updated_at = $5
WHERE workspace_id = $1 AND id = $2
`
		if _, err := tx.ExecContext(ctx, reqQ,
			d.WorkspaceID, d.RequestID, d.RequestStatus, d.NewCurrentStep, d.UpdatedAt,
		); err != nil {
			return err
		}

		return audit.InsertTx(ctx, tx, d.Event)
	})
}

func (s *PostgresStore) CancelRequest(ctx context.Context, workspaceID, requestID string, updatedAt time.Time, ev audit.Event) error {
	return utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		const q = `
UPDATE approval_requests
SET status = 'cancelled', updated_at = $3
WHERE workspace_id = $1 AND id = $2 AND status IN ('pending', 'in_progress')
`
		res, err := tx.ExecContext(ctx, q, workspaceID, requestID, updatedAt)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrConflict
		}
		return audit.InsertTx(ctx, tx, ev)
	})
}

func (s *PostgresStore) GetRequest(ctx context.Context, workspaceID, requestID string) (Request, error) {
	const q = `
SELECT id, workspace_id, template_id, template_name, initiator_id,
       title, description, data, status, current_step, total_steps,
       created_at, updated_at
FROM approval_requests
WHERE workspace_id = $1 AND id = $2
`
	var r Request
	if err := s.db.QueryRowContext(ctx, q, workspaceID, requestID).Scan(
		&r.ID, &r.WorkspaceID, &r.TemplateID, &r.TemplateName, &r.InitiatorID,
		&r.Title, &r.Description, &r.Data, &r.Status, &r.CurrentStep, &r.TotalSteps,
		&r.CreatedAt, &r.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Request{}, ErrNotFound
		}
		return Request{}, err
	}
	return r, nil
}

func (s *PostgresStore) ListEntries(ctx context.Context, workspaceID, requestID string) ([]LedgerEntry, error) {
	const q = `
SELECT id, workspace_id, request_id, step_index, approver_id,
       action_label, step_kind, status, comment, created_at, updated_at
FROM approval_ledger
WHERE workspace_id = $1 AND request_id = $2
ORDER BY step_index
`
	rows, err := s.db.QueryContext(ctx, q, workspaceID, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		if err := rows.Scan(
			&e.ID, &e.WorkspaceID, &e.RequestID, &e.StepIndex, &e.ApproverID,
			&e.ActionLabel, &e.StepKind, &e.Status, &e.Comment, &e.CreatedAt, &e.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListRequests(ctx context.Context, workspaceID string) ([]Request, error) {
	const q = `
SELECT id, workspace_id, template_id, template_name, initiator_id,
       title, description, data, status, current_step, total_steps,
       created_at, updated_at
FROM approval_requests
WHERE workspace_id = $1
ORDER BY created_at, id
`
	rows, err := s.db.QueryContext(ctx, q, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Request
	for rows.Next() {
		var r Request
		if err := rows.Scan(
			&r.ID, &r.WorkspaceID, &r.TemplateID, &r.TemplateName, &r.InitiatorID,
			&r.Title, &r.Description, &r.Data, &r.Status, &r.CurrentStep, &r.TotalSteps,
			&r.CreatedAt, &r.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListPendingForApprover(ctx context.Context, workspaceID, userID string) ([]PendingApproval, error) {
	// Only the entry at the request's current step is actionable;
	// entries beyond a rejection stay pending but never match here.
	const q = `
SELECT e.id, e.workspace_id, e.request_id, e.step_index, e.approver_id,
       e.action_label, e.step_kind, e.status, e.comment, e.created_at, e.updated_at,
       r.id, r.title, r.status, r.template_name, r.initiator_id
FROM approval_ledger e
JOIN approval_requests r ON r.workspace_id = e.workspace_id AND r.id = e.request_id
WHERE e.workspace_id = $1
  AND e.approver_id = $2
  AND e.status = 'pending'
  AND e.step_index = r.current_step
  AND r.status IN ('pending', 'in_progress')
ORDER BY e.created_at, e.request_id
`
	rows, err := s.db.QueryContext(ctx, q, workspaceID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PendingApproval
	for rows.Next() {
		var p PendingApproval
		if err := rows.Scan(
			&p.Entry.ID, &p.Entry.WorkspaceID, &p.Entry.RequestID, &p.Entry.StepIndex, &p.Entry.ApproverID,
			&p.Entry.ActionLabel, &p.Entry.StepKind, &p.Entry.Status, &p.Entry.Comment, &p.Entry.CreatedAt, &p.Entry.UpdatedAt,
			&p.RequestID, &p.RequestTitle, &p.RequestStatus, &p.TemplateName, &p.InitiatorID,
		); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func insertEntry(ctx context.Context, tx *sql.Tx, e LedgerEntry) error {
	_, err := tx.ExecContext(ctx, insertEntrySQL,
		e.ID, e.WorkspaceID, e.RequestID, e.StepIndex, e.ApproverID,
		e.ActionLabel, e.StepKind, e.Status, e.Comment, e.CreatedAt, e.UpdatedAt,
	)
	return err
}
