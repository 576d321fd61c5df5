package auth

import (
	"context"

	"github.com/mind-engage/teameval/internal/rbac"
)

// Caller is the authenticated principal of a request.
type Caller struct {
	Subject string
	Role    string
}

type callerKey struct{}

// WithCaller stores c and makes its role visible to rbac.
func WithCaller(ctx context.Context, c Caller) context.Context {
	ctx = context.WithValue(ctx, callerKey{}, c)
	return rbac.WithRole(ctx, c.Role)
}

func CallerFromContext(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(Caller)
	return c, ok
}

// SubjectFromContext returns the user id set by JWTMiddleware, or "".
func SubjectFromContext(ctx context.Context) string {
	c, _ := CallerFromContext(ctx)
	return c.Subject
}
