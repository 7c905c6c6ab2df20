package directory

import "time"

// User is a read-only projection of the user/organization directory.
//
// The workflow engine consumes this data for assignee resolution and
// never mutates it. Manager links and role membership are owned by the
// identity/HR systems upstream.
//
// Multi-tenant invariant: WorkspaceID is required on every row.
type User struct {
	ID          string `json:"id" db:"id"`
	WorkspaceID string `json:"workspace_id" db:"workspace_id"`

	Name  string `json:"name" db:"name"`
	Email string `json:"email" db:"email"`

	// Role is the directory role used for ROLE_BASED assignee resolution
	// (e.g., "finance", "hr"). Distinct from API-access RBAC roles.
	Role string `json:"role" db:"role"`

	// ManagerID is the direct supervisor, if any. A single hop up this
	// edge is the only hierarchy walk the resolver performs.
	ManagerID *string `json:"manager_id,omitempty" db:"manager_id"`

	Active bool `json:"active" db:"active"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
