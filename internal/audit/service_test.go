package audit

import (
	"context"
	"testing"
	"time"
)

func TestService_AppendRequiresWorkspaceRequestAndAction(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.Append(context.Background(), Event{RequestID: "r", Action: ActionCreated}); err == nil {
		t.Fatalf("expected error for missing workspace")
	}
	if err := svc.Append(context.Background(), Event{WorkspaceID: "w", Action: ActionCreated}); err == nil {
		t.Fatalf("expected error for missing request")
	}
	if err := svc.Append(context.Background(), Event{WorkspaceID: "w", RequestID: "r"}); err == nil {
		t.Fatalf("expected error for missing action")
	}
}

func TestService_AppendStampsIDAndTime(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	err := svc.Append(context.Background(), Event{
		WorkspaceID: "w",
		RequestID:   "r",
		ActorID:     "u",
		Action:      ActionCommentAdded,
		Description: "commented",
		Detail:      "looks good",
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	evs := repo.Events()
	if len(evs) != 1 {
		t.Fatalf("expected 1 event")
	}
	if evs[0].ID == "" || evs[0].CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamp stamped: %+v", evs[0])
	}
}

func TestList_NewestFirst(t *testing.T) {
	repo := NewMemoryRepo()

	base := time.Unix(1700000000, 0).UTC()
	for i, a := range []Action{ActionCreated, ActionStepProgressed, ActionApproved} {
		e, err := Fill(Event{WorkspaceID: "w", RequestID: "r", Action: a}, base.Add(time.Duration(i)*time.Second))
		if err != nil {
			t.Fatalf("fill: %v", err)
		}
		if err := repo.Append(context.Background(), e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	evs, err := NewService(repo).List(context.Background(), "w", "r")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(evs) != 3 {
		t.Fatalf("expected 3 events, got %d", len(evs))
	}
	if evs[0].Action != ActionApproved || evs[2].Action != ActionCreated {
		t.Fatalf("expected newest-first ordering, got %+v", evs)
	}
}

func TestList_FiltersByRequest(t *testing.T) {
	repo := NewMemoryRepo()
	now := time.Now().UTC()

	a, _ := Fill(Event{WorkspaceID: "w", RequestID: "r1", Action: ActionCreated}, now)
	b, _ := Fill(Event{WorkspaceID: "w", RequestID: "r2", Action: ActionCreated}, now)
	_ = repo.Append(context.Background(), a)
	_ = repo.Append(context.Background(), b)

	evs, err := NewService(repo).List(context.Background(), "w", "r1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(evs) != 1 || evs[0].RequestID != "r1" {
		t.Fatalf("expected only r1 events, got %+v", evs)
	}
}
