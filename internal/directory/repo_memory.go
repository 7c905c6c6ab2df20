package directory

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryRepo is a simple in-memory directory useful for tests.
// It is not intended for production use.
type MemoryRepo struct {
	mu    sync.RWMutex
	users map[string]User // key: workspaceID + "/" + userID
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{users: make(map[string]User)}
}

// Put seeds a user. Test helper; there is deliberately no production
// write path into the directory.
func (r *MemoryRepo) Put(u User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.WorkspaceID+"/"+u.ID] = u
}

func (r *MemoryRepo) GetUser(ctx context.Context, workspaceID, userID string) (User, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[workspaceID+"/"+userID]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (r *MemoryRepo) FindFirstByRole(ctx context.Context, workspaceID, roleName string) (User, bool, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()

	// Deterministic order for tests: iterate sorted by user id.
	keys := make([]string, 0, len(r.users))
	for k := range r.users {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		u := r.users[k]
		if u.WorkspaceID != workspaceID {
			continue
		}
		if !u.Active {
			continue
		}
		if strings.ToLower(u.Role) != roleName {
			continue
		}
		return u, true, nil
	}
	return User{}, false, nil
}
