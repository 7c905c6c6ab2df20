package template

import "time"

// Template is a named, ordered list of step definitions describing an
// approval process. Templates are versionless: updates edit in place.
//
// Invariants:
// - Step order is the contiguous index sequence 0..N-1.
// - Archived templates may not originate new requests, but they remain
//   readable so existing requests can still look up their steps.
//
// Multi-tenant invariant: WorkspaceID is required on every row.
type Template struct {
	ID          string `json:"id" db:"id"`
	WorkspaceID string `json:"workspace_id" db:"workspace_id"`

	Name        string `json:"name" db:"name"`
	Description string `json:"description,omitempty" db:"description"`

	Steps []StepDefinition `json:"steps" db:"steps"`

	Active bool `json:"active" db:"active"`

	// Archive metadata; set only while Active is false.
	ArchivedAt    *time.Time `json:"archived_at,omitempty" db:"archived_at"`
	ArchiveReason string     `json:"archive_reason,omitempty" db:"archive_reason"`
	ArchivedBy    string     `json:"archived_by,omitempty" db:"archived_by"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// StepDefinition is one stage of a template.
//
// The assignee reference is a tagged union: exactly one of RoleName
// (for role_based) or RuleID (for dynamic) is meaningful, selected by
// AssigneeKind. Serialization to storage happens only at the repository
// boundary; the engine always works on this typed form.
type StepDefinition struct {
	Index int `json:"index" db:"index"`

	AssigneeKind AssigneeKind `json:"assignee_kind" db:"assignee_kind"`

	// RoleName is the directory role for role_based steps (e.g., "finance").
	RoleName string `json:"role_name,omitempty" db:"role_name"`

	// RuleID identifies the dynamic rule for dynamic steps.
	RuleID string `json:"rule_id,omitempty" db:"rule_id"`

	// ActionLabel is the human label for the action requested at this
	// step (e.g., "Approve expense", "Countersign contract").
	ActionLabel string `json:"action_label" db:"action_label"`

	Kind StepKind `json:"kind" db:"kind"`
}

type AssigneeKind string

const (
	AssigneeKindRoleBased AssigneeKind = "role_based"
	AssigneeKindDynamic   AssigneeKind = "dynamic"
)

type StepKind string

const (
	StepKindApproval StepKind = "approval"
	StepKindTask     StepKind = "task"
)

// RuleInitiatorSupervisor is the only defined dynamic rule: resolve to
// the initiator's direct manager, one hop only.
const RuleInitiatorSupervisor = "INITIATOR_SUPERVISOR"

// KnownRule reports whether a dynamic rule id is defined.
func KnownRule(ruleID string) bool {
	return ruleID == RuleInitiatorSupervisor
}
