package assignment

import (
	"context"
	"strings"

	"approval-platform/internal/directory"
	"approval-platform/internal/template"
)

// Resolver turns an abstract assignee rule into a concrete user id.
//
// Resolution is a pure read against the directory; it never writes.
// "Absent" is not an error at this layer: the validator one level up
// aggregates unresolved steps into a single ValidationError before any
// request row exists.
type Resolver struct {
	dir directory.Repository
}

func NewResolver(dir directory.Repository) *Resolver {
	return &Resolver{dir: dir}
}

// roleAliases maps common spellings onto canonical directory roles.
// Matching is case-insensitive; keep this table small.
var roleAliases = map[string]string{
	"fin":             "finance",
	"accounting":      "finance",
	"human_resources": "hr",
	"people":          "hr",
	"legal_counsel":   "legal",
}

func canonicalRole(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := roleAliases[n]; ok {
		return alias
	}
	return n
}

// ResolveRoleBased returns any active user holding the given directory
// role, or absent when nobody does.
func (r *Resolver) ResolveRoleBased(ctx context.Context, workspaceID, roleName string) (string, bool, error) {
	u, ok, err := r.dir.FindFirstByRole(ctx, workspaceID, canonicalRole(roleName))
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return u.ID, true, nil
}

// ResolveDynamic evaluates a dynamic rule against the initiator.
//
// INITIATOR_SUPERVISOR reads the initiator's manager reference directly;
// it deliberately does NOT walk further up the chain. Any future
// multi-hop rule must carry a visited-set guard and a depth cap, since
// manager edges elsewhere in the directory can form cycles.
func (r *Resolver) ResolveDynamic(ctx context.Context, workspaceID, ruleID, initiatorID string) (string, bool, error) {
	switch ruleID {
	case template.RuleInitiatorSupervisor:
		u, err := r.dir.GetUser(ctx, workspaceID, initiatorID)
		if err != nil {
			if err == directory.ErrNotFound {
				return "", false, nil
			}
			return "", false, err
		}
		if u.ManagerID == nil || *u.ManagerID == "" {
			return "", false, nil
		}
		return *u.ManagerID, true, nil
	default:
		// Unknown rules are rejected at template validation; reaching
		// here means an older template carries a rule this build does
		// not define. Treat as unresolvable, not as a crash.
		return "", false, nil
	}
}

// ResolveStep dispatches on the step's assignee kind.
func (r *Resolver) ResolveStep(ctx context.Context, workspaceID string, step template.StepDefinition, initiatorID string) (string, bool, error) {
	switch step.AssigneeKind {
	case template.AssigneeKindRoleBased:
		return r.ResolveRoleBased(ctx, workspaceID, step.RoleName)
	case template.AssigneeKindDynamic:
		return r.ResolveDynamic(ctx, workspaceID, step.RuleID, initiatorID)
	default:
		return "", false, nil
	}
}
