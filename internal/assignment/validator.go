package assignment

import (
	"context"
	"fmt"

	"approval-platform/internal/template"
)

// Result is the outcome of pre-creation validation.
// IsValid is false iff Errors is non-empty.
type Result struct {
	IsValid bool
	Errors  []string
}

// Binding is a step resolved to a concrete approver. The state machine
// freezes these bindings into ledger entries at creation time.
type Binding struct {
	Step       template.StepDefinition
	ApproverID string
}

// Validator confirms every step of a template resolves to a real
// approver for a given initiator, before any request row is written.
// This eliminates approval chains that would silently deadlock on an
// unassignable step.
type Validator struct {
	resolver *Resolver
}

func NewValidator(resolver *Resolver) *Validator {
	return &Validator{resolver: resolver}
}

// Validate resolves every step and collects one error message per
// unresolved step. It never short-circuits: the caller always sees the
// full list.
func (v *Validator) Validate(ctx context.Context, workspaceID string, steps []template.StepDefinition, initiatorID string) (Result, error) {
	res := Result{IsValid: true}
	for _, st := range steps {
		_, ok, err := v.resolver.ResolveStep(ctx, workspaceID, st, initiatorID)
		if err != nil {
			return Result{}, err
		}
		if !ok {
			res.Errors = append(res.Errors, unresolvedMessage(st))
		}
	}
	res.IsValid = len(res.Errors) == 0
	return res, nil
}

// Bind resolves every step into a concrete approver binding. It must be
// called only after Validate has passed; an unresolvable step here is
// reported as an error message in the returned Result instead of a
// partial binding list.
func (v *Validator) Bind(ctx context.Context, workspaceID string, steps []template.StepDefinition, initiatorID string) ([]Binding, Result, error) {
	res := Result{IsValid: true}
	bindings := make([]Binding, 0, len(steps))
	for _, st := range steps {
		approverID, ok, err := v.resolver.ResolveStep(ctx, workspaceID, st, initiatorID)
		if err != nil {
			return nil, Result{}, err
		}
		if !ok {
			res.Errors = append(res.Errors, unresolvedMessage(st))
			continue
		}
		bindings = append(bindings, Binding{Step: st, ApproverID: approverID})
	}
	res.IsValid = len(res.Errors) == 0
	if !res.IsValid {
		return nil, res, nil
	}
	return bindings, res, nil
}

func unresolvedMessage(st template.StepDefinition) string {
	switch st.AssigneeKind {
	case template.AssigneeKindRoleBased:
		return fmt.Sprintf("step %d: no user found for role %q", st.Index, st.RoleName)
	case template.AssigneeKindDynamic:
		if st.RuleID == template.RuleInitiatorSupervisor {
			return fmt.Sprintf("step %d: initiator has no assigned manager", st.Index)
		}
		return fmt.Sprintf("step %d: rule %q cannot be resolved", st.Index, st.RuleID)
	default:
		return fmt.Sprintf("step %d: unknown assignee kind %q", st.Index, st.AssigneeKind)
	}
}
