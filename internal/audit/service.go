package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only. There is no update or delete path.
type Repository interface {
	Append(ctx context.Context, e Event) error

	// List returns a request's trail ordered newest-first for display.
	// Consumers needing causal order must sort ascending by CreatedAt.
	List(ctx context.Context, workspaceID, requestID string) ([]Event, error)
}

var ErrInvalidEvent = errors.New("audit: invalid event")

// Service records and reads the audit trail.
//
// Transitions that must be atomic with state changes do not go through
// this service; the request store writes those events inside its own
// transaction. This service covers standalone appends (comments) and
// the read side.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	e, err := Fill(e, s.clock().UTC())
	if err != nil {
		return err
	}
	return s.repo.Append(ctx, e)
}

func (s *Service) List(ctx context.Context, workspaceID, requestID string) ([]Event, error) {
	if s.repo == nil {
		return nil, errors.New("audit: repository not configured")
	}
	if workspaceID == "" || requestID == "" {
		return nil, ErrInvalidEvent
	}
	return s.repo.List(ctx, workspaceID, requestID)
}

// Fill validates required fields and stamps ID/CreatedAt. Shared by the
// service and by stores that append events inside their own
// transactions.
func Fill(e Event, now time.Time) (Event, error) {
	if e.WorkspaceID == "" || e.RequestID == "" {
		return Event{}, ErrInvalidEvent
	}
	if e.Action == "" {
		return Event{}, ErrInvalidEvent
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return e, nil
}
