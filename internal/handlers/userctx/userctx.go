// Package userctx carries the authenticated user through request context
package userctx

import (
	"context"

	"github.com/nkiryanov/accounts/internal/models"
)

type ctxKey struct{}

// Create a new context with the user
func New(ctx context.Context, u models.User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// Extract the user from the context
func FromContext(ctx context.Context) (models.User, bool) {
	u, ok := ctx.Value(ctxKey{}).(models.User)
	return u, ok
}

// Extract the user set by auth middleware
// Panics if there is none, it means route is registered without auth
func MustFromContext(ctx context.Context) models.User {
	u, ok := FromContext(ctx)
	if !ok {
		panic("userctx: no user in context, is route protected with auth middleware?")
	}
	return u
}
