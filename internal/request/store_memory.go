package request

import (
	"context"
	"sort"
	"sync"
	"time"

	"approval-platform/internal/audit"
)

// MemoryStore is an in-memory Store for deterministic state machine
// tests. A single mutex stands in for the database's transactional
// isolation: every mutating method is atomic under it, including the
// audit append.
//
// NOTE: This is not intended for production; use PostgresStore.
type MemoryStore struct {
	mu       sync.Mutex
	requests map[string]Request       // key: ws + "/" + id
	entries  map[string][]LedgerEntry // key: ws + "/" + requestID
	audit    *audit.MemoryRepo
}

func NewMemoryStore(auditRepo *audit.MemoryRepo) *MemoryStore {
	return &MemoryStore{
		requests: make(map[string]Request),
		entries:  make(map[string][]LedgerEntry),
		audit:    auditRepo,
	}
}

func (s *MemoryStore) CreateRequest(ctx context.Context, req Request, entries []LedgerEntry, ev *audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := req.WorkspaceID + "/" + req.ID
	s.requests[k] = req
	s.entries[k] = append([]LedgerEntry(nil), entries...)
	if ev != nil {
		return s.audit.Append(ctx, *ev)
	}
	return nil
}

func (s *MemoryStore) SubmitDraft(ctx context.Context, req Request, entries []LedgerEntry, ev audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := req.WorkspaceID + "/" + req.ID
	existing, ok := s.requests[k]
	if !ok {
		return ErrNotFound
	}
	if existing.Status != StatusDraft {
		return ErrConflict
	}
	s.requests[k] = req
	s.entries[k] = append([]LedgerEntry(nil), entries...)
	return s.audit.Append(ctx, ev)
}

func (s *MemoryStore) ApplyDecision(ctx context.Context, d Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := d.WorkspaceID + "/" + d.RequestID
	req, ok := s.requests[k]
	if !ok {
		return ErrNotFound
	}

	// Conditional update: only a pending entry may flip.
	entries := s.entries[k]
	updated := false
	for i := range entries {
		if entries[i].StepIndex != d.StepIndex {
			continue
		}
		if entries[i].Status != EntryStatusPending {
			return ErrConflict
		}
		entries[i].Status = d.EntryStatus
		entries[i].Comment = d.Comment
		entries[i].UpdatedAt = d.UpdatedAt
		updated = true
		break
	}
	if !updated {
		return ErrConflict
	}

	req.Status = d.RequestStatus
	req.CurrentStep = d.NewCurrentStep
	req.UpdatedAt = d.UpdatedAt
	s.requests[k] = req

	return s.audit.Append(ctx, d.Event)
}

func (s *MemoryStore) CancelRequest(ctx context.Context, workspaceID, requestID string, updatedAt time.Time, ev audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := workspaceID + "/" + requestID
	req, ok := s.requests[k]
	if !ok {
		return ErrNotFound
	}
	if req.Status != StatusPending && req.Status != StatusInProgress {
		return ErrConflict
	}
	req.Status = StatusCancelled
	req.UpdatedAt = updatedAt
	s.requests[k] = req

	return s.audit.Append(ctx, ev)
}

func (s *MemoryStore) GetRequest(ctx context.Context, workspaceID, requestID string) (Request, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[workspaceID+"/"+requestID]
	if !ok {
		return Request{}, ErrNotFound
	}
	return req, nil
}

func (s *MemoryStore) ListEntries(ctx context.Context, workspaceID, requestID string) ([]LedgerEntry, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, ok := s.entries[workspaceID+"/"+requestID]
	if !ok {
		if _, reqOK := s.requests[workspaceID+"/"+requestID]; !reqOK {
			return nil, ErrNotFound
		}
		return nil, nil
	}
	out := append([]LedgerEntry(nil), entries...)
	sort.Slice(out, func(i, j int) bool { return out[i].StepIndex < out[j].StepIndex })
	return out, nil
}

func (s *MemoryStore) ListRequests(ctx context.Context, workspaceID string) ([]Request, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Request
	for _, r := range s.requests {
		if r.WorkspaceID == workspaceID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) ListPendingForApprover(ctx context.Context, workspaceID, userID string) ([]PendingApproval, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []PendingApproval
	for k, req := range s.requests {
		if req.WorkspaceID != workspaceID {
			continue
		}
		if req.Status != StatusPending && req.Status != StatusInProgress {
			continue
		}
		for _, e := range s.entries[k] {
			if e.StepIndex != req.CurrentStep {
				continue
			}
			if e.Status != EntryStatusPending || e.ApproverID != userID {
				continue
			}
			out = append(out, PendingApproval{
				Entry:         e,
				RequestID:     req.ID,
				RequestTitle:  req.Title,
				RequestStatus: req.Status,
				TemplateName:  req.TemplateName,
				InitiatorID:   req.InitiatorID,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Entry.CreatedAt.Equal(out[j].Entry.CreatedAt) {
			return out[i].Entry.CreatedAt.Before(out[j].Entry.CreatedAt)
		}
		return out[i].RequestID < out[j].RequestID
	})
	return out, nil
}
