package audit

import "time"

// Event is an immutable, append-only record of one request lifecycle
// transition.
//
// Invariants:
// - Events are never updated or deleted.
// - workspace_id is required for tenancy isolation.
// - Events commit in the same transaction as the transition they record;
//   a request is never advanced without its event and vice versa.
//
// Storage recommendation (Postgres):
// - Table audit_events with an INSERT-only policy.
// - Optional: trigger to prevent UPDATE/DELETE.
type Event struct {
	ID          string `json:"id" db:"id"`
	WorkspaceID string `json:"workspace_id" db:"workspace_id"`

	// RequestID is the approval request this event belongs to.
	RequestID string `json:"request_id" db:"request_id"`

	// ActorID is the user causing the transition.
	ActorID string `json:"actor_id" db:"actor_id"`

	Action Action `json:"action" db:"action"`

	// Description is a short human-readable summary for display.
	Description string `json:"description" db:"description"`

	// Detail is optional free-form context (comment text, override
	// markers, step index). Stored as-is; consumers must not parse it.
	Detail string `json:"detail,omitempty" db:"detail"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Action string

const (
	ActionCreated        Action = "created"
	ActionStepProgressed Action = "step_progressed"
	ActionApproved       Action = "approved"
	ActionRejected       Action = "rejected"
	ActionCommentAdded   Action = "comment_added"
	ActionCancelled      Action = "cancelled"
)
