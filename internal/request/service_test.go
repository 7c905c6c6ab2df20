package request

import (
	"context"
	"errors"
	"strings"
	"testing"

	"approval-platform/internal/assignment"
	"approval-platform/internal/audit"
	"approval-platform/internal/directory"
	"approval-platform/internal/rbac"
	"approval-platform/internal/template"
)

// fixture wires the engine against in-memory fakes:
// directory user "emp" reports to "mgr", "fin" holds role finance, and
// the template is [finance, initiator's supervisor].
type fixture struct {
	svc       *Service
	templates *template.Service
	tplRepo   *template.MemoryRepo
	dir       *directory.MemoryRepo
	store     *MemoryStore
	auditRepo *audit.MemoryRepo
	tpl       template.Template
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dir := directory.NewMemoryRepo()
	mgr := "mgr"
	dir.Put(directory.User{ID: "mgr", WorkspaceID: "ws", Name: "Morgan", Role: "engineering", Active: true})
	dir.Put(directory.User{ID: "emp", WorkspaceID: "ws", Name: "Ezra", Role: "engineering", ManagerID: &mgr, Active: true})
	dir.Put(directory.User{ID: "fin", WorkspaceID: "ws", Name: "Frankie", Role: "finance", Active: true})
	dir.Put(directory.User{ID: "orphan", WorkspaceID: "ws", Name: "Sol", Role: "engineering", Active: true})

	tplRepo := template.NewMemoryRepo()
	tplSvc := template.NewService(tplRepo)
	tpl, err := tplSvc.Create(context.Background(), "ws", template.CreateRequest{
		Name: "Expense approval",
		Steps: []template.StepDefinition{
			{AssigneeKind: template.AssigneeKindRoleBased, RoleName: "finance", ActionLabel: "Finance review"},
			{AssigneeKind: template.AssigneeKindDynamic, RuleID: template.RuleInitiatorSupervisor, ActionLabel: "Manager sign-off"},
		},
	})
	if err != nil {
		t.Fatalf("template create: %v", err)
	}

	auditRepo := audit.NewMemoryRepo()
	store := NewMemoryStore(auditRepo)
	validator := assignment.NewValidator(assignment.NewResolver(dir))
	svc := NewService(store, tplRepo, validator, audit.NewService(auditRepo))

	return &fixture{
		svc:       svc,
		templates: tplSvc,
		tplRepo:   tplRepo,
		dir:       dir,
		store:     store,
		auditRepo: auditRepo,
		tpl:       tpl,
	}
}

func (f *fixture) create(t *testing.T) Request {
	t.Helper()
	req, err := f.svc.Create(context.Background(), "ws", CreateInput{
		TemplateID:  f.tpl.ID,
		InitiatorID: "emp",
		Title:       "Team offsite",
		Data:        `{"amount": 1200}`,
	})
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	return req
}

func (f *fixture) auditActions(requestID string) []audit.Action {
	var out []audit.Action
	for _, e := range f.auditRepo.Events() {
		if e.RequestID == requestID {
			out = append(out, e.Action)
		}
	}
	return out
}

func TestCreate_BindsEveryStepEagerly(t *testing.T) {
	f := newFixture(t)
	req := f.create(t)

	if req.Status != StatusPending || req.CurrentStep != 0 || req.TotalSteps != 2 {
		t.Fatalf("unexpected request state: %+v", req)
	}

	entries, err := f.store.ListEntries(context.Background(), "ws", req.ID)
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 ledger entries, got %d", len(entries))
	}
	for i, e := range entries {
		if e.Status != EntryStatusPending {
			t.Fatalf("entry %d not pending: %+v", i, e)
		}
	}
	if entries[0].ApproverID != "fin" || entries[1].ApproverID != "mgr" {
		t.Fatalf("unexpected bindings: %+v", entries)
	}

	actions := f.auditActions(req.ID)
	if len(actions) != 1 || actions[0] != audit.ActionCreated {
		t.Fatalf("expected single CREATED event, got %v", actions)
	}
}

func TestCreate_ValidationFailureWritesNothing(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), "ws", CreateInput{
		TemplateID:  f.tpl.ID,
		InitiatorID: "orphan", // no manager: step 1 unresolvable
		Title:       "Doomed",
	})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(verr.Reasons) != 1 || !strings.Contains(verr.Reasons[0], "no assigned manager") {
		t.Fatalf("unexpected reasons: %v", verr.Reasons)
	}

	if reqs, _ := f.store.ListRequests(context.Background(), "ws"); len(reqs) != 0 {
		t.Fatalf("expected no persisted requests, got %d", len(reqs))
	}
	if evs := f.auditRepo.Events(); len(evs) != 0 {
		t.Fatalf("expected no audit events, got %d", len(evs))
	}
}

func TestCreate_ArchivedTemplateMayNotOriginate(t *testing.T) {
	f := newFixture(t)
	if _, err := f.templates.Archive(context.Background(), "ws", f.tpl.ID, "retired", "admin"); err != nil {
		t.Fatalf("archive: %v", err)
	}

	_, err := f.svc.Create(context.Background(), "ws", CreateInput{
		TemplateID:  f.tpl.ID,
		InitiatorID: "emp",
		Title:       "Late",
	})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestCreate_UnknownTemplate(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), "ws", CreateInput{
		TemplateID:  "missing",
		InitiatorID: "emp",
		Title:       "x",
	})
	if !errors.Is(err, template.ErrNotFound) {
		t.Fatalf("expected template.ErrNotFound, got %v", err)
	}
}

func TestApprove_NonLastStepAdvances(t *testing.T) {
	f := newFixture(t)
	req := f.create(t)

	out, err := f.svc.Approve(context.Background(), "ws", req.ID, ActionInput{ActorID: "fin", ActorRole: rbac.RoleMember, Comment: "receipts attached"})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if out.Status != StatusInProgress || out.CurrentStep != 1 {
		t.Fatalf("unexpected state after first approval: %+v", out)
	}

	entries, _ := f.store.ListEntries(context.Background(), "ws", req.ID)
	if entries[0].Status != EntryStatusApproved || entries[0].Comment != "receipts attached" {
		t.Fatalf("entry 0 not approved with comment: %+v", entries[0])
	}
	if entries[1].Status != EntryStatusPending {
		t.Fatalf("entry 1 should still be pending: %+v", entries[1])
	}

	actions := f.auditActions(req.ID)
	if actions[len(actions)-1] != audit.ActionStepProgressed {
		t.Fatalf("expected STEP_PROGRESSED, got %v", actions)
	}
}

func TestApprove_LastStepIsTerminal(t *testing.T) {
	f := newFixture(t)
	req := f.create(t)

	if _, err := f.svc.Approve(context.Background(), "ws", req.ID, ActionInput{ActorID: "fin"}); err != nil {
		t.Fatalf("approve step 0: %v", err)
	}
	out, err := f.svc.Approve(context.Background(), "ws", req.ID, ActionInput{ActorID: "mgr"})
	if err != nil {
		t.Fatalf("approve step 1: %v", err)
	}
	if out.Status != StatusApproved {
		t.Fatalf("expected approved, got %s", out.Status)
	}
	// The pointer never runs past the last index.
	if out.CurrentStep != 1 {
		t.Fatalf("expected current step 1 at terminal, got %d", out.CurrentStep)
	}

	actions := f.auditActions(req.ID)
	if actions[len(actions)-1] != audit.ActionApproved {
		t.Fatalf("expected APPROVED, got %v", actions)
	}

	// Nothing left to act on.
	if _, err := f.svc.Approve(context.Background(), "ws", req.ID, ActionInput{ActorID: "mgr"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict after terminal approval, got %v", err)
	}
}

func TestApprove_ActorMustBeBoundApprover(t *testing.T) {
	f := newFixture(t)
	req := f.create(t)

	// mgr is bound to step 1, not step 0.
	if _, err := f.svc.Approve(context.Background(), "ws", req.ID, ActionInput{ActorID: "mgr"}); !errors.Is(err, ErrPermission) {
		t.Fatalf("expected ErrPermission, got %v", err)
	}

	// Permission failure mutates nothing.
	entries, _ := f.store.ListEntries(context.Background(), "ws", req.ID)
	if entries[0].Status != EntryStatusPending {
		t.Fatalf("entry 0 should be untouched: %+v", entries[0])
	}
}

func TestApprove_OverrideRequiresSuperAdmin(t *testing.T) {
	f := newFixture(t)
	req := f.create(t)

	// Override flag without super_admin is still denied.
	_, err := f.svc.Approve(context.Background(), "ws", req.ID, ActionInput{ActorID: "mgr", ActorRole: rbac.RoleOwner, Override: true})
	if !errors.Is(err, ErrPermission) {
		t.Fatalf("expected ErrPermission for non-admin override, got %v", err)
	}

	// super_admin override succeeds and is recorded in the event detail.
	out, err := f.svc.Approve(context.Background(), "ws", req.ID, ActionInput{ActorID: "root", ActorRole: rbac.RoleSuperAdmin, Override: true})
	if err != nil {
		t.Fatalf("override approve: %v", err)
	}
	if out.Status != StatusInProgress || out.CurrentStep != 1 {
		t.Fatalf("unexpected state: %+v", out)
	}

	evs := f.auditRepo.Events()
	last := evs[len(evs)-1]
	if !strings.Contains(last.Detail, "administrative override by root") {
		t.Fatalf("expected override recorded in detail, got %q", last.Detail)
	}
}

func TestReject_TerminatesImmediately(t *testing.T) {
	f := newFixture(t)
	req := f.create(t)

	out, err := f.svc.Reject(context.Background(), "ws", req.ID, ActionInput{ActorID: "fin", Comment: "over budget"})
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if out.Status != StatusRejected {
		t.Fatalf("expected rejected, got %s", out.Status)
	}

	entries, _ := f.store.ListEntries(context.Background(), "ws", req.ID)
	if entries[0].Status != EntryStatusRejected || entries[0].Comment != "over budget" {
		t.Fatalf("entry 0 not rejected: %+v", entries[0])
	}
	// The later entry stays pending but unreachable.
	if entries[1].Status != EntryStatusPending {
		t.Fatalf("entry 1 should remain pending: %+v", entries[1])
	}

	// The unreachable step can never be acted on.
	if _, err := f.svc.Approve(context.Background(), "ws", req.ID, ActionInput{ActorID: "mgr"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict on terminated request, got %v", err)
	}
}

func TestReject_RepeatCallsConflictWithoutNewEvents(t *testing.T) {
	f := newFixture(t)
	req := f.create(t)

	if _, err := f.svc.Reject(context.Background(), "ws", req.ID, ActionInput{ActorID: "fin"}); err != nil {
		t.Fatalf("reject: %v", err)
	}
	eventsAfterFirst := len(f.auditRepo.Events())

	for i := 0; i < 2; i++ {
		if _, err := f.svc.Reject(context.Background(), "ws", req.ID, ActionInput{ActorID: "fin"}); !errors.Is(err, ErrConflict) {
			t.Fatalf("expected ErrConflict on repeat reject, got %v", err)
		}
	}
	if got := len(f.auditRepo.Events()); got != eventsAfterFirst {
		t.Fatalf("repeat rejects must not append events: %d -> %d", eventsAfterFirst, got)
	}
}

func TestApply_ConcurrentLoserGetsConflict(t *testing.T) {
	f := newFixture(t)
	req := f.create(t)

	// Simulate the race at the store level: two decisions computed
	// against the same snapshot; the second conditional update loses.
	entries, _ := f.store.ListEntries(context.Background(), "ws", req.ID)
	mk := func(status EntryStatus, reqStatus Status) Decision {
		ev, _ := audit.Fill(audit.Event{WorkspaceID: "ws", RequestID: req.ID, ActorID: "fin", Action: audit.ActionApproved, Description: "x"}, f.svc.clock())
		return Decision{
			WorkspaceID:    "ws",
			RequestID:      req.ID,
			StepIndex:      entries[0].StepIndex,
			EntryStatus:    status,
			RequestStatus:  reqStatus,
			NewCurrentStep: 1,
			UpdatedAt:      f.svc.clock(),
			Event:          ev,
		}
	}

	if err := f.store.ApplyDecision(context.Background(), mk(EntryStatusApproved, StatusInProgress)); err != nil {
		t.Fatalf("winner: %v", err)
	}
	if err := f.store.ApplyDecision(context.Background(), mk(EntryStatusRejected, StatusRejected)); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for loser, got %v", err)
	}
}

func TestCancel_AdministrativeTerminalState(t *testing.T) {
	f := newFixture(t)
	req := f.create(t)

	// Random actor may not cancel.
	if _, err := f.svc.Cancel(context.Background(), "ws", req.ID, "fin", rbac.RoleMember, "nope"); !errors.Is(err, ErrPermission) {
		t.Fatalf("expected ErrPermission, got %v", err)
	}

	out, err := f.svc.Cancel(context.Background(), "ws", req.ID, "emp", rbac.RoleMember, "plans changed")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if out.Status != StatusCancelled {
		t.Fatalf("expected cancelled, got %s", out.Status)
	}

	// Cancelled is terminal for progression and for repeat cancels.
	if _, err := f.svc.Approve(context.Background(), "ws", req.ID, ActionInput{ActorID: "fin"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict approving cancelled request, got %v", err)
	}
	if _, err := f.svc.Cancel(context.Background(), "ws", req.ID, "emp", rbac.RoleMember, "again"); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict on repeat cancel, got %v", err)
	}

	actions := f.auditActions(req.ID)
	if actions[len(actions)-1] != audit.ActionCancelled {
		t.Fatalf("expected CANCELLED event, got %v", actions)
	}
}

func TestCancel_SuperAdminMayCancelAnyRequest(t *testing.T) {
	f := newFixture(t)
	req := f.create(t)

	if _, err := f.svc.Cancel(context.Background(), "ws", req.ID, "root", rbac.RoleSuperAdmin, "cleanup"); err != nil {
		t.Fatalf("super_admin cancel: %v", err)
	}
}

func TestDraft_SubmitBindsAndEmitsCreated(t *testing.T) {
	f := newFixture(t)

	draft, err := f.svc.Create(context.Background(), "ws", CreateInput{
		TemplateID:  f.tpl.ID,
		InitiatorID: "emp",
		Title:       "Saved for later",
		Draft:       true,
	})
	if err != nil {
		t.Fatalf("create draft: %v", err)
	}
	if draft.Status != StatusDraft || draft.TotalSteps != 0 {
		t.Fatalf("unexpected draft state: %+v", draft)
	}
	if entries, _ := f.store.ListEntries(context.Background(), "ws", draft.ID); len(entries) != 0 {
		t.Fatalf("drafts must not have ledger entries")
	}
	if evs := f.auditActions(draft.ID); len(evs) != 0 {
		t.Fatalf("drafts must not emit audit events, got %v", evs)
	}

	// Only the initiator may submit.
	if _, err := f.svc.Submit(context.Background(), "ws", draft.ID, "fin"); !errors.Is(err, ErrPermission) {
		t.Fatalf("expected ErrPermission, got %v", err)
	}

	live, err := f.svc.Submit(context.Background(), "ws", draft.ID, "emp")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if live.Status != StatusPending || live.CurrentStep != 0 || live.TotalSteps != 2 {
		t.Fatalf("unexpected submitted state: %+v", live)
	}
	entries, _ := f.store.ListEntries(context.Background(), "ws", draft.ID)
	if len(entries) != 2 || entries[0].ApproverID != "fin" {
		t.Fatalf("expected bound entries after submit: %+v", entries)
	}
	if evs := f.auditActions(draft.ID); len(evs) != 1 || evs[0] != audit.ActionCreated {
		t.Fatalf("expected single CREATED event, got %v", evs)
	}

	// A submitted request is no longer a draft.
	if _, err := f.svc.Submit(context.Background(), "ws", draft.ID, "emp"); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict on resubmit, got %v", err)
	}
}

func TestDraft_SubmitAgainstArchivedTemplateFails(t *testing.T) {
	f := newFixture(t)

	draft, err := f.svc.Create(context.Background(), "ws", CreateInput{
		TemplateID:  f.tpl.ID,
		InitiatorID: "emp",
		Title:       "Stale draft",
		Draft:       true,
	})
	if err != nil {
		t.Fatalf("create draft: %v", err)
	}
	if _, err := f.templates.Archive(context.Background(), "ws", f.tpl.ID, "retired", "admin"); err != nil {
		t.Fatalf("archive: %v", err)
	}

	_, err = f.svc.Submit(context.Background(), "ws", draft.ID, "emp")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestEagerBinding_SurvivesRoleRosterChanges(t *testing.T) {
	f := newFixture(t)
	req := f.create(t)

	// fin loses the finance role after creation; the frozen binding
	// still governs the pending step.
	u, _ := f.dir.GetUser(context.Background(), "ws", "fin")
	u.Role = "engineering"
	f.dir.Put(u)

	out, err := f.svc.Approve(context.Background(), "ws", req.ID, ActionInput{ActorID: "fin"})
	if err != nil {
		t.Fatalf("approve after role change: %v", err)
	}
	if out.Status != StatusInProgress {
		t.Fatalf("unexpected status: %s", out.Status)
	}
}

func TestPendingForUser_OnlyCurrentStepIsActionable(t *testing.T) {
	f := newFixture(t)
	req := f.create(t)

	finInbox, err := f.svc.PendingForUser(context.Background(), "ws", "fin")
	if err != nil {
		t.Fatalf("inbox: %v", err)
	}
	if len(finInbox) != 1 || finInbox[0].RequestID != req.ID || finInbox[0].Entry.StepIndex != 0 {
		t.Fatalf("unexpected fin inbox: %+v", finInbox)
	}
	if finInbox[0].TemplateName != "Expense approval" || finInbox[0].RequestTitle != "Team offsite" {
		t.Fatalf("inbox join missing request/template data: %+v", finInbox[0])
	}

	// mgr's step is not current yet.
	mgrInbox, _ := f.svc.PendingForUser(context.Background(), "ws", "mgr")
	if len(mgrInbox) != 0 {
		t.Fatalf("mgr inbox should be empty, got %+v", mgrInbox)
	}

	if _, err := f.svc.Approve(context.Background(), "ws", req.ID, ActionInput{ActorID: "fin"}); err != nil {
		t.Fatalf("approve: %v", err)
	}

	finInbox, _ = f.svc.PendingForUser(context.Background(), "ws", "fin")
	if len(finInbox) != 0 {
		t.Fatalf("fin inbox should drain after approval, got %+v", finInbox)
	}
	mgrInbox, _ = f.svc.PendingForUser(context.Background(), "ws", "mgr")
	if len(mgrInbox) != 1 || mgrInbox[0].Entry.StepIndex != 1 {
		t.Fatalf("mgr inbox should hold step 1, got %+v", mgrInbox)
	}
}

func TestAddComment_AppendsEventOnly(t *testing.T) {
	f := newFixture(t)
	req := f.create(t)

	if err := f.svc.AddComment(context.Background(), "ws", req.ID, "mgr", "any ETA?"); err != nil {
		t.Fatalf("comment: %v", err)
	}

	actions := f.auditActions(req.ID)
	if actions[len(actions)-1] != audit.ActionCommentAdded {
		t.Fatalf("expected COMMENT_ADDED, got %v", actions)
	}

	// State untouched.
	got, _ := f.store.GetRequest(context.Background(), "ws", req.ID)
	if got.Status != StatusPending || got.CurrentStep != 0 {
		t.Fatalf("comment must not mutate state: %+v", got)
	}

	if err := f.svc.AddComment(context.Background(), "ws", "missing", "mgr", "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// Full walkthrough of the canonical two-step scenario.
func TestScenario_FinanceThenSupervisor(t *testing.T) {
	f := newFixture(t)
	req := f.create(t)

	entries, _ := f.store.ListEntries(context.Background(), "ws", req.ID)
	if entries[0].ApproverID != "fin" || entries[1].ApproverID != "mgr" {
		t.Fatalf("unexpected chain: %+v", entries)
	}

	if _, err := f.svc.Approve(context.Background(), "ws", req.ID, ActionInput{ActorID: "fin"}); err != nil {
		t.Fatalf("fin approve: %v", err)
	}
	mid, _ := f.store.GetRequest(context.Background(), "ws", req.ID)
	if mid.Status != StatusInProgress || mid.CurrentStep != 1 {
		t.Fatalf("after fin: %+v", mid)
	}

	if _, err := f.svc.Approve(context.Background(), "ws", req.ID, ActionInput{ActorID: "mgr"}); err != nil {
		t.Fatalf("mgr approve: %v", err)
	}
	done, _ := f.store.GetRequest(context.Background(), "ws", req.ID)
	if done.Status != StatusApproved || done.CurrentStep != 1 {
		t.Fatalf("after mgr: %+v", done)
	}

	actions := f.auditActions(req.ID)
	want := []audit.Action{audit.ActionCreated, audit.ActionStepProgressed, audit.ActionApproved}
	if len(actions) != len(want) {
		t.Fatalf("expected %v, got %v", want, actions)
	}
	for i := range want {
		if actions[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, actions)
		}
	}
}
