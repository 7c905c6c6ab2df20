package request

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"approval-platform/internal/assignment"
	"approval-platform/internal/audit"
	"approval-platform/internal/rbac"
	"approval-platform/internal/template"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("request: not found")
	// ErrConflict means there is nothing to act on: the targeted entry
	// or request is no longer in the expected state, either because it
	// was already resolved or because a concurrent caller won the race.
	ErrConflict = errors.New("request: conflict")
	// ErrPermission means the actor is not the approver bound to the
	// current step (and no valid administrative override applies).
	ErrPermission      = errors.New("request: permission denied")
	ErrInvalidArgument = errors.New("request: invalid argument")
)

// ValidationError carries the full list of per-step failure reasons
// from pre-creation validation. Nothing is persisted when it is
// returned.
type ValidationError struct {
	Reasons []string
}

func (e *ValidationError) Error() string {
	return "request: validation failed: " + strings.Join(e.Reasons, "; ")
}

// Service is the request state machine.
//
// Lifecycle invariants:
// - Validation always runs before any write; a request is never created
//   with a step that has no reachable approver.
// - Approver bindings are resolved once and frozen into ledger entries.
//   Role-roster changes after that point do not reassign pending steps.
// - Every transition commits atomically with its audit event via the
//   injected Store.
type Service struct {
	store     Store
	templates template.Repository
	validator *assignment.Validator
	auditlog  *audit.Service
	clock     func() time.Time
}

func NewService(store Store, templates template.Repository, validator *assignment.Validator, auditlog *audit.Service) *Service {
	return &Service{
		store:     store,
		templates: templates,
		validator: validator,
		auditlog:  auditlog,
		clock:     time.Now,
	}
}

type CreateInput struct {
	TemplateID  string
	InitiatorID string
	Title       string
	Description string
	Data        string

	// Draft persists the request without binding approvers or creating
	// ledger entries; Submit performs those later.
	Draft bool
}

func (s *Service) Create(ctx context.Context, workspaceID string, in CreateInput) (Request, error) {
	if workspaceID == "" || in.TemplateID == "" || in.InitiatorID == "" || strings.TrimSpace(in.Title) == "" {
		return Request{}, ErrInvalidArgument
	}

	tpl, err := s.templates.Get(ctx, workspaceID, in.TemplateID)
	if err != nil {
		return Request{}, err
	}

	now := s.clock().UTC()
	req := Request{
		ID:           uuid.NewString(),
		WorkspaceID:  workspaceID,
		TemplateID:   tpl.ID,
		TemplateName: tpl.Name,
		InitiatorID:  in.InitiatorID,
		Title:        strings.TrimSpace(in.Title),
		Description:  in.Description,
		Data:         in.Data,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if in.Draft {
		// Drafts do not originate an approval chain yet, so an archived
		// template is only rejected at submission time.
		req.Status = StatusDraft
		if err := s.store.CreateRequest(ctx, req, nil, nil); err != nil {
			return Request{}, err
		}
		return req, nil
	}

	entries, err := s.bindEntries(ctx, req, tpl, now)
	if err != nil {
		return Request{}, err
	}

	req.Status = StatusPending
	req.CurrentStep = 0
	req.TotalSteps = len(entries)

	ev, err := audit.Fill(audit.Event{
		WorkspaceID: workspaceID,
		RequestID:   req.ID,
		ActorID:     in.InitiatorID,
		Action:      audit.ActionCreated,
		Description: fmt.Sprintf("request created with %d approval steps", len(entries)),
	}, now)
	if err != nil {
		return Request{}, err
	}

	if err := s.store.CreateRequest(ctx, req, entries, &ev); err != nil {
		return Request{}, err
	}
	return req, nil
}

// Submit turns a draft into a live request: approvers are resolved and
// frozen now, entries are created eagerly for every step, and the
// CREATED event is recorded, all in one transaction.
func (s *Service) Submit(ctx context.Context, workspaceID, requestID, actorID string) (Request, error) {
	if workspaceID == "" || requestID == "" || actorID == "" {
		return Request{}, ErrInvalidArgument
	}

	req, err := s.store.GetRequest(ctx, workspaceID, requestID)
	if err != nil {
		return Request{}, err
	}
	if req.Status != StatusDraft {
		return Request{}, ErrConflict
	}
	if req.InitiatorID != actorID {
		return Request{}, ErrPermission
	}

	tpl, err := s.templates.Get(ctx, workspaceID, req.TemplateID)
	if err != nil {
		return Request{}, err
	}

	now := s.clock().UTC()
	entries, err := s.bindEntries(ctx, req, tpl, now)
	if err != nil {
		return Request{}, err
	}

	req.Status = StatusPending
	req.CurrentStep = 0
	req.TotalSteps = len(entries)
	req.UpdatedAt = now

	ev, err := audit.Fill(audit.Event{
		WorkspaceID: workspaceID,
		RequestID:   req.ID,
		ActorID:     actorID,
		Action:      audit.ActionCreated,
		Description: fmt.Sprintf("request submitted with %d approval steps", len(entries)),
	}, now)
	if err != nil {
		return Request{}, err
	}

	if err := s.store.SubmitDraft(ctx, req, entries, ev); err != nil {
		return Request{}, err
	}
	return req, nil
}

func (s *Service) bindEntries(ctx context.Context, req Request, tpl template.Template, now time.Time) ([]LedgerEntry, error) {
	if !tpl.Active {
		return nil, &ValidationError{Reasons: []string{fmt.Sprintf("template %q is archived and may not originate new requests", tpl.Name)}}
	}

	bindings, res, err := s.validator.Bind(ctx, req.WorkspaceID, tpl.Steps, req.InitiatorID)
	if err != nil {
		return nil, err
	}
	if !res.IsValid {
		return nil, &ValidationError{Reasons: res.Errors}
	}

	entries := make([]LedgerEntry, len(bindings))
	for i, b := range bindings {
		entries[i] = LedgerEntry{
			ID:          uuid.NewString(),
			WorkspaceID: req.WorkspaceID,
			RequestID:   req.ID,
			StepIndex:   b.Step.Index,
			ApproverID:  b.ApproverID,
			ActionLabel: b.Step.ActionLabel,
			StepKind:    string(b.Step.Kind),
			Status:      EntryStatusPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
	}
	return entries, nil
}

// ActionInput identifies the actor for an approve/reject call.
type ActionInput struct {
	ActorID   string
	ActorRole string
	Comment   string

	// Override requests an administrative bypass of the step-ownership
	// check. Honored only for super_admin and always recorded in the
	// audit event detail; there is no silent bypass path.
	Override bool
}

func (s *Service) Approve(ctx context.Context, workspaceID, requestID string, in ActionInput) (Request, error) {
	return s.decide(ctx, workspaceID, requestID, in, true)
}

func (s *Service) Reject(ctx context.Context, workspaceID, requestID string, in ActionInput) (Request, error) {
	return s.decide(ctx, workspaceID, requestID, in, false)
}

func (s *Service) decide(ctx context.Context, workspaceID, requestID string, in ActionInput, approve bool) (Request, error) {
	if workspaceID == "" || requestID == "" || in.ActorID == "" {
		return Request{}, ErrInvalidArgument
	}

	req, err := s.store.GetRequest(ctx, workspaceID, requestID)
	if err != nil {
		return Request{}, err
	}
	if req.Status != StatusPending && req.Status != StatusInProgress {
		return Request{}, ErrConflict
	}

	entries, err := s.store.ListEntries(ctx, workspaceID, requestID)
	if err != nil {
		return Request{}, err
	}
	var entry *LedgerEntry
	for i := range entries {
		if entries[i].StepIndex == req.CurrentStep {
			entry = &entries[i]
			break
		}
	}
	if entry == nil || entry.Status != EntryStatusPending {
		return Request{}, ErrConflict
	}

	overridden := false
	if entry.ApproverID != in.ActorID {
		if !in.Override || !rbac.IsSuperAdmin(in.ActorRole) {
			return Request{}, ErrPermission
		}
		overridden = true
	}

	now := s.clock().UTC()
	d := Decision{
		WorkspaceID: workspaceID,
		RequestID:   requestID,
		StepIndex:   req.CurrentStep,
		Comment:     in.Comment,
		UpdatedAt:   now,
	}

	var action audit.Action
	var description string
	switch {
	case !approve:
		d.EntryStatus = EntryStatusRejected
		d.RequestStatus = StatusRejected
		d.NewCurrentStep = req.CurrentStep
		action = audit.ActionRejected
		description = fmt.Sprintf("step %d (%s) rejected", req.CurrentStep, entry.ActionLabel)
	case req.CurrentStep == req.TotalSteps-1:
		d.EntryStatus = EntryStatusApproved
		d.RequestStatus = StatusApproved
		// Terminal: the pointer stays on the last step rather than
		// running past the end of the ledger.
		d.NewCurrentStep = req.CurrentStep
		action = audit.ActionApproved
		description = "request fully approved"
	default:
		d.EntryStatus = EntryStatusApproved
		d.RequestStatus = StatusInProgress
		d.NewCurrentStep = req.CurrentStep + 1
		action = audit.ActionStepProgressed
		description = fmt.Sprintf("step %d (%s) approved, advanced to step %d", req.CurrentStep, entry.ActionLabel, req.CurrentStep+1)
	}

	detail := in.Comment
	if overridden {
		note := fmt.Sprintf("administrative override by %s", in.ActorID)
		if detail != "" {
			detail = note + ": " + detail
		} else {
			detail = note
		}
	}

	ev, err := audit.Fill(audit.Event{
		WorkspaceID: workspaceID,
		RequestID:   requestID,
		ActorID:     in.ActorID,
		Action:      action,
		Description: description,
		Detail:      detail,
	}, now)
	if err != nil {
		return Request{}, err
	}
	d.Event = ev

	if err := s.store.ApplyDecision(ctx, d); err != nil {
		return Request{}, err
	}

	req.Status = d.RequestStatus
	req.CurrentStep = d.NewCurrentStep
	req.UpdatedAt = now
	return req, nil
}

// Cancel is an administrative terminal transition outside normal
// progression. Ledger entries are left untouched.
func (s *Service) Cancel(ctx context.Context, workspaceID, requestID string, actorID, actorRole, reason string) (Request, error) {
	if workspaceID == "" || requestID == "" || actorID == "" {
		return Request{}, ErrInvalidArgument
	}

	req, err := s.store.GetRequest(ctx, workspaceID, requestID)
	if err != nil {
		return Request{}, err
	}
	if req.Status != StatusPending && req.Status != StatusInProgress {
		return Request{}, ErrConflict
	}
	if req.InitiatorID != actorID && !rbac.IsSuperAdmin(actorRole) {
		return Request{}, ErrPermission
	}

	now := s.clock().UTC()
	ev, err := audit.Fill(audit.Event{
		WorkspaceID: workspaceID,
		RequestID:   requestID,
		ActorID:     actorID,
		Action:      audit.ActionCancelled,
		Description: "request cancelled",
		Detail:      reason,
	}, now)
	if err != nil {
		return Request{}, err
	}

	if err := s.store.CancelRequest(ctx, workspaceID, requestID, now, ev); err != nil {
		return Request{}, err
	}

	req.Status = StatusCancelled
	req.UpdatedAt = now
	return req, nil
}

// AddComment appends a COMMENT_ADDED audit event. Comments never touch
// request or ledger state.
func (s *Service) AddComment(ctx context.Context, workspaceID, requestID, actorID, comment string) error {
	if workspaceID == "" || requestID == "" || actorID == "" || strings.TrimSpace(comment) == "" {
		return ErrInvalidArgument
	}
	if _, err := s.store.GetRequest(ctx, workspaceID, requestID); err != nil {
		return err
	}
	return s.auditlog.Append(ctx, audit.Event{
		WorkspaceID: workspaceID,
		RequestID:   requestID,
		ActorID:     actorID,
		Action:      audit.ActionCommentAdded,
		Description: "comment added",
		Detail:      strings.TrimSpace(comment),
	})
}

func (s *Service) Get(ctx context.Context, workspaceID, requestID string) (Request, []LedgerEntry, error) {
	if workspaceID == "" || requestID == "" {
		return Request{}, nil, ErrInvalidArgument
	}
	req, err := s.store.GetRequest(ctx, workspaceID, requestID)
	if err != nil {
		return Request{}, nil, err
	}
	entries, err := s.store.ListEntries(ctx, workspaceID, requestID)
	if err != nil {
		return Request{}, nil, err
	}
	return req, entries, nil
}

func (s *Service) List(ctx context.Context, workspaceID string) ([]Request, error) {
	if workspaceID == "" {
		return nil, ErrInvalidArgument
	}
	return s.store.ListRequests(ctx, workspaceID)
}

// PendingForUser returns the caller's actionable inbox.
func (s *Service) PendingForUser(ctx context.Context, workspaceID, userID string) ([]PendingApproval, error) {
	if workspaceID == "" || userID == "" {
		return nil, ErrInvalidArgument
	}
	return s.store.ListPendingForApprover(ctx, workspaceID, userID)
}
