package rbac

import (
	"context"
	"strings"
)

// Checker answers permission questions against a role policy.
type Checker struct {
	policy map[string][]string
}

// NewChecker uses RolePermissions when policy is nil.
func NewChecker(policy map[string][]string) *Checker {
	if policy == nil {
		policy = RolePermissions
	}
	return &Checker{policy: policy}
}

// Can reports whether role holds perm. A grant of "*" matches everything and
// a trailing "*" matches by prefix.
func (c *Checker) Can(role, perm string) bool {
	for _, g := range c.policy[role] {
		if grants(g, perm) {
			return true
		}
	}
	return false
}

func (c *Checker) CanAny(role string, perms ...string) bool {
	return len(c.Granted(role, perms...)) > 0
}

// Granted filters perms down to those role holds, keeping order.
func (c *Checker) Granted(role string, perms ...string) []string {
	out := []string{}
	for _, p := range perms {
		if c.Can(role, p) {
			out = append(out, p)
		}
	}
	return out
}

func grants(grant, perm string) bool {
	if prefix, ok := strings.CutSuffix(grant, "*"); ok {
		return strings.HasPrefix(perm, prefix)
	}
	return grant == perm
}

type roleKey struct{}

func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, roleKey{}, role)
}

func RoleFromContext(ctx context.Context) string {
	role, _ := ctx.Value(roleKey{}).(string)
	return role
}
