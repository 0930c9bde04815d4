package context

import (
	"context"

	"github.com/cavotieno/forgery-analyzer/internal/models"
)

type contextkey string

const (
	userKey contextkey = "user"
)

// ContextSetUser binds the authenticated user to the request context.
func ContextSetUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// ContextGetUser retrieves the authenticated user from request context.
// Returns nil if no user is set (unauthenticated request).
func ContextGetUser(ctx context.Context) *models.User {
	val := ctx.Value(userKey)
	user, ok := val.(*models.User)
	if !ok {
		return nil
	}
	return user
}
