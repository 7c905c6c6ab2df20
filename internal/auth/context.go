package auth

import (
	"context"
	"errors"
)

// identity is the authenticated caller, stored in the request context as
// one value so the three fields can never drift apart.
type identity struct {
	userID      string
	workspaceID string
	role        string
}

type identityCtxKey struct{}

func WithIdentity(ctx context.Context, userID, workspaceID, role string) context.Context {
	return context.WithValue(ctx, identityCtxKey{}, identity{
		userID:      userID,
		workspaceID: workspaceID,
		role:        role,
	})
}

func fromContext(ctx context.Context) (identity, bool) {
	id, ok := ctx.Value(identityCtxKey{}).(identity)
	return id, ok
}

func UserID(ctx context.Context) (string, error) {
	if id, ok := fromContext(ctx); ok && id.userID != "" {
		return id.userID, nil
	}
	return "", errors.New("user_id not in context")
}

func WorkspaceID(ctx context.Context) (string, error) {
	if id, ok := fromContext(ctx); ok && id.workspaceID != "" {
		return id.workspaceID, nil
	}
	return "", errors.New("workspace_id not in context")
}

func Role(ctx context.Context) (string, error) {
	if id, ok := fromContext(ctx); ok && id.role != "" {
		return id.role, nil
	}
	return "", errors.New("role not in context")
}
