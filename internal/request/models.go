package request

import "time"

// Request is one instantiation of a template, created by an initiator.
//
// Invariants:
// - CurrentStep always equals the index of the earliest step whose
//   ledger entry is still pending; a terminal approval leaves it at the
//   last index rather than incrementing past bounds.
// - TemplateName and all approver bindings are frozen at creation time
//   (snapshot semantics). Later template edits or role-roster changes
//   do not touch a live request.
//
// Multi-tenant invariant: WorkspaceID is required on every row.
type Request struct {
	ID          string `json:"id" db:"id"`
	WorkspaceID string `json:"workspace_id" db:"workspace_id"`

	TemplateID string `json:"template_id" db:"template_id"`
	// TemplateName is denormalized at creation so the inbox and detail
	// views survive template renames and archival.
	TemplateName string `json:"template_name" db:"template_name"`

	InitiatorID string `json:"initiator_id" db:"initiator_id"`

	Title       string `json:"title" db:"title"`
	Description string `json:"description,omitempty" db:"description"`

	// Data is an opaque payload supplied by the caller (form contents,
	// line items). The engine stores and returns it, nothing more.
	// Store as JSONB in Postgres.
	Data string `json:"data,omitempty" db:"data"`

	Status Status `json:"status" db:"status"`

	// CurrentStep indexes into the ledger entries, 0-based.
	CurrentStep int `json:"current_step" db:"current_step"`

	// TotalSteps is the ledger entry count, fixed at creation.
	// Zero while the request is still a draft.
	TotalSteps int `json:"total_steps" db:"total_steps"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Status string

const (
	StatusDraft      Status = "draft"
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusApproved   Status = "approved"
	StatusRejected   Status = "rejected"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether a status permits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusCancelled:
		return true
	default:
		return false
	}
}

// LedgerEntry is the per-step approval record binding a resolved
// approver to a request's step.
//
// Invariants:
// - Exactly one entry exists per (request, step) pair, created eagerly
//   when the request leaves draft, never deleted.
// - The only permitted transition is pending -> approved|rejected.
// - The approver binding is the authority; entries are never re-resolved.
// - Entries past a rejected step simply stay pending and unreachable.
type LedgerEntry struct {
	ID          string `json:"id" db:"id"`
	WorkspaceID string `json:"workspace_id" db:"workspace_id"`
	RequestID   string `json:"request_id" db:"request_id"`

	StepIndex int `json:"step_index" db:"step_index"`

	ApproverID string `json:"approver_id" db:"approver_id"`

	// ActionLabel and StepKind are copied from the step definition at
	// binding time, for display without a template lookup.
	ActionLabel string `json:"action_label" db:"action_label"`
	StepKind    string `json:"step_kind" db:"step_kind"`

	Status EntryStatus `json:"status" db:"status"`

	Comment string `json:"comment,omitempty" db:"comment"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type EntryStatus string

const (
	EntryStatusPending  EntryStatus = "pending"
	EntryStatusApproved EntryStatus = "approved"
	EntryStatusRejected EntryStatus = "rejected"
)

// PendingApproval is a ledger entry joined with its owning request for
// inbox display.
type PendingApproval struct {
	Entry LedgerEntry `json:"entry"`

	RequestID     string `json:"request_id"`
	RequestTitle  string `json:"request_title"`
	RequestStatus Status `json:"request_status"`
	TemplateName  string `json:"template_name"`
	InitiatorID   string `json:"initiator_id"`
}
