package directory

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("directory: user not found")

// Repository is the read-only persistence contract for the directory.
//
// No write methods are provided; the engine is a consumer, not the
// owner, of user and org-chart data.
type Repository interface {
	// GetUser returns a user by id within a workspace.
	GetUser(ctx context.Context, workspaceID, userID string) (User, error)

	// FindFirstByRole returns the first active user holding the given
	// directory role. roleName must already be normalized by the caller
	// (lowercase); matching is exact at this layer.
	// Returns (User{}, false, nil) when nobody holds the role.
	FindFirstByRole(ctx context.Context, workspaceID, roleName string) (User, bool, error)
}
