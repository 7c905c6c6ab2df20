package request

import (
	"context"
	"time"

	"approval-platform/internal/audit"
)

// Store is the transactional persistence contract for the state machine.
//
// Each mutating method is a single atomic unit: the ledger mutation,
// the request update and the audit append commit together or not at
// all. Concurrent actors racing on the same pending entry are
// serialized by the store itself through conditional updates
// ("... WHERE status = 'pending'"); the loser observes zero affected
// rows and gets ErrConflict. No in-process locks are used or required.
type Store interface {
	// CreateRequest persists a new request. For submitted requests,
	// entries holds one eagerly-bound row per step and ev is the
	// CREATED event; for drafts both are empty/nil.
	CreateRequest(ctx context.Context, req Request, entries []LedgerEntry, ev *audit.Event) error

	// SubmitDraft transitions a draft to pending, creating its ledger
	// entries and CREATED event atomically. Returns ErrConflict when
	// the request is no longer a draft.
	SubmitDraft(ctx context.Context, req Request, entries []LedgerEntry, ev audit.Event) error

	// ApplyDecision records an approve/reject outcome: flips the
	// pending entry, moves the request, appends the event. Returns
	// ErrConflict when the entry at (RequestID, StepIndex) is no longer
	// pending.
	ApplyDecision(ctx context.Context, d Decision) error

	// CancelRequest terminates a live request administratively.
	// Returns ErrConflict when the request is not pending/in_progress.
	CancelRequest(ctx context.Context, workspaceID, requestID string, updatedAt time.Time, ev audit.Event) error

	GetRequest(ctx context.Context, workspaceID, requestID string) (Request, error)
	ListEntries(ctx context.Context, workspaceID, requestID string) ([]LedgerEntry, error)
	ListRequests(ctx context.Context, workspaceID string) ([]Request, error)

	// ListPendingForApprover returns the actionable inbox: pending
	// entries at the current step of live requests, bound to the user.
	ListPendingForApprover(ctx context.Context, workspaceID, userID string) ([]PendingApproval, error)
}

// Decision is one approve/reject outcome, precomputed by the service.
// The store's only job is to apply it atomically.
type Decision struct {
	WorkspaceID string
	RequestID   string
	StepIndex   int

	// EntryStatus is approved or rejected.
	EntryStatus EntryStatus
	Comment     string

	// RequestStatus and NewCurrentStep are the request-side results of
	// the transition.
	RequestStatus  Status
	NewCurrentStep int

	UpdatedAt time.Time

	Event audit.Event
}
