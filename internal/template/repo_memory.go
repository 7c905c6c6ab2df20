package template

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepo is a simple in-memory repository useful for tests and early development.
//
// NOTE: This is not intended for production; replace with Postgres implementation.
type MemoryRepo struct {
	mu        sync.RWMutex
	templates map[string]Template // key: workspaceID + "/" + id
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{templates: make(map[string]Template)}
}

func (r *MemoryRepo) Insert(ctx context.Context, t Template) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[t.WorkspaceID+"/"+t.ID] = cloneTemplate(t)
	return nil
}

func (r *MemoryRepo) Update(ctx context.Context, t Template) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	k := t.WorkspaceID + "/" + t.ID
	if _, ok := r.templates[k]; !ok {
		return ErrNotFound
	}
	r.templates[k] = cloneTemplate(t)
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, workspaceID, id string) (Template, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[workspaceID+"/"+id]
	if !ok {
		return Template{}, ErrNotFound
	}
	return cloneTemplate(t), nil
}

func (r *MemoryRepo) List(ctx context.Context, workspaceID string, includeArchived bool) ([]Template, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Template
	for _, t := range r.templates {
		if t.WorkspaceID != workspaceID {
			continue
		}
		if !includeArchived && !t.Active {
			continue
		}
		out = append(out, cloneTemplate(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func cloneTemplate(t Template) Template {
	out := t
	out.Steps = make([]StepDefinition, len(t.Steps))
	copy(out.Steps, t.Steps)
	if t.ArchivedAt != nil {
		at := *t.ArchivedAt
		out.ArchivedAt = &at
	}
	return out
}
