package template

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("template: not found")
	// ErrConflict covers archive/restore on a template already in the
	// target state.
	ErrConflict        = errors.New("template: conflict")
	ErrInvalidArgument = errors.New("template: invalid argument")
)

// ValidationError reports every malformed step at once, never a partial
// list. Callers get the full picture in a single round trip.
type ValidationError struct {
	Reasons []string
}

func (e *ValidationError) Error() string {
	return "template: invalid definition: " + strings.Join(e.Reasons, "; ")
}

// Repository is the persistence contract for templates.
type Repository interface {
	Insert(ctx context.Context, t Template) error
	Update(ctx context.Context, t Template) error
	Get(ctx context.Context, workspaceID, id string) (Template, error)
	List(ctx context.Context, workspaceID string, includeArchived bool) ([]Template, error)
}

// Service owns template lifecycle: create, update, archive, restore.
//
// Archive is a pure state flip; nothing cascades. Requests already
// running against an archived template keep working.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

type CreateRequest struct {
	Name        string
	Description string
	Steps       []StepDefinition
}

func (s *Service) Create(ctx context.Context, workspaceID string, req CreateRequest) (Template, error) {
	if workspaceID == "" || strings.TrimSpace(req.Name) == "" {
		return Template{}, ErrInvalidArgument
	}
	steps, err := normalizeSteps(req.Steps)
	if err != nil {
		return Template{}, err
	}

	now := s.clock().UTC()
	t := Template{
		ID:          uuid.NewString(),
		WorkspaceID: workspaceID,
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Steps:       steps,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Insert(ctx, t); err != nil {
		return Template{}, err
	}
	return t, nil
}

type UpdateRequest struct {
	Name        string
	Description string
	Steps       []StepDefinition
}

// Update replaces name, description and the full step list. Running
// requests are unaffected: they act on approver bindings frozen at
// creation time, not on template steps.
func (s *Service) Update(ctx context.Context, workspaceID, id string, req UpdateRequest) (Template, error) {
	if workspaceID == "" || id == "" || strings.TrimSpace(req.Name) == "" {
		return Template{}, ErrInvalidArgument
	}
	steps, err := normalizeSteps(req.Steps)
	if err != nil {
		return Template{}, err
	}

	t, err := s.repo.Get(ctx, workspaceID, id)
	if err != nil {
		return Template{}, err
	}

	t.Name = strings.TrimSpace(req.Name)
	t.Description = req.Description
	t.Steps = steps
	t.UpdatedAt = s.clock().UTC()

	if err := s.repo.Update(ctx, t); err != nil {
		return Template{}, err
	}
	return t, nil
}

func (s *Service) Archive(ctx context.Context, workspaceID, id, reason, actorID string) (Template, error) {
	if workspaceID == "" || id == "" {
		return Template{}, ErrInvalidArgument
	}
	t, err := s.repo.Get(ctx, workspaceID, id)
	if err != nil {
		return Template{}, err
	}
	if !t.Active {
		return Template{}, ErrConflict
	}

	now := s.clock().UTC()
	t.Active = false
	t.ArchivedAt = &now
	t.ArchiveReason = reason
	t.ArchivedBy = actorID
	t.UpdatedAt = now

	if err := s.repo.Update(ctx, t); err != nil {
		return Template{}, err
	}
	return t, nil
}

func (s *Service) Restore(ctx context.Context, workspaceID, id string) (Template, error) {
	if workspaceID == "" || id == "" {
		return Template{}, ErrInvalidArgument
	}
	t, err := s.repo.Get(ctx, workspaceID, id)
	if err != nil {
		return Template{}, err
	}
	if t.Active {
		return Template{}, ErrConflict
	}

	t.Active = true
	t.ArchivedAt = nil
	t.ArchiveReason = ""
	t.ArchivedBy = ""
	t.UpdatedAt = s.clock().UTC()

	if err := s.repo.Update(ctx, t); err != nil {
		return Template{}, err
	}
	return t, nil
}

func (s *Service) Get(ctx context.Context, workspaceID, id string) (Template, error) {
	if workspaceID == "" || id == "" {
		return Template{}, ErrInvalidArgument
	}
	return s.repo.Get(ctx, workspaceID, id)
}

func (s *Service) List(ctx context.Context, workspaceID string, includeArchived bool) ([]Template, error) {
	if workspaceID == "" {
		return nil, ErrInvalidArgument
	}
	return s.repo.List(ctx, workspaceID, includeArchived)
}

// normalizeSteps checks every step definition and rewrites indices to
// the contiguous sequence 0..N-1 in the order given. All problems are
// collected; nothing is persisted when any step is malformed.
func normalizeSteps(steps []StepDefinition) ([]StepDefinition, error) {
	var reasons []string
	if len(steps) == 0 {
		reasons = append(reasons, "template must define at least one step")
	}

	out := make([]StepDefinition, len(steps))
	for i, st := range steps {
		st.Index = i
		st.RoleName = strings.TrimSpace(st.RoleName)
		st.RuleID = strings.TrimSpace(st.RuleID)
		st.ActionLabel = strings.TrimSpace(st.ActionLabel)

		switch st.AssigneeKind {
		case AssigneeKindRoleBased:
			if st.RoleName == "" {
				reasons = append(reasons, fmt.Sprintf("step %d: role_based step requires a role name", i))
			}
			if st.RuleID != "" {
				reasons = append(reasons, fmt.Sprintf("step %d: role_based step must not set a rule id", i))
			}
		case AssigneeKindDynamic:
			if st.RuleID == "" {
				reasons = append(reasons, fmt.Sprintf("step %d: dynamic step requires a rule id", i))
			} else if !KnownRule(st.RuleID) {
				reasons = append(reasons, fmt.Sprintf("step %d: unknown rule %q", i, st.RuleID))
			}
			if st.RoleName != "" {
				reasons = append(reasons, fmt.Sprintf("step %d: dynamic step must not set a role name", i))
			}
		default:
			reasons = append(reasons, fmt.Sprintf("step %d: unknown assignee kind %q", i, st.AssigneeKind))
		}

		switch st.Kind {
		case StepKindApproval, StepKindTask:
		case "":
			st.Kind = StepKindApproval
		default:
			reasons = append(reasons, fmt.Sprintf("step %d: unknown step kind %q", i, st.Kind))
		}

		if st.ActionLabel == "" {
			reasons = append(reasons, fmt.Sprintf("step %d: action label is required", i))
		}

		out[i] = st
	}

	if len(reasons) > 0 {
		return nil, &ValidationError{Reasons: reasons}
	}
	return out, nil
}
