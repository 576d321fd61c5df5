package rbac

import "net/http"

var defaultChecker = NewChecker(nil)

// Default returns the checker the middleware uses.
func Default() *Checker { return defaultChecker }

// Capabilities lists every permission the role in r's context holds.
func Capabilities(r *http.Request) []string {
	return defaultChecker.Granted(RoleFromContext(r.Context()), AllPerms...)
}

func guard(allow func(r *http.Request, role string) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !allow(r, RoleFromContext(r.Context())) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Require enforces a single permission.
func Require(perm string) func(http.Handler) http.Handler {
	return guard(func(_ *http.Request, role string) bool {
		return defaultChecker.Can(role, perm)
	})
}

// RequireAny enforces that the role has at least one of the permissions.
func RequireAny(perms ...string) func(http.Handler) http.Handler {
	return guard(func(_ *http.Request, role string) bool {
		return defaultChecker.CanAny(role, perms...)
	})
}

// RequireOwnerOr lets the owner through, and anyone else holding perm.
func RequireOwnerOr(perm string, isOwner func(r *http.Request) bool) func(http.Handler) http.Handler {
	return guard(func(r *http.Request, role string) bool {
		return isOwner(r) || defaultChecker.Can(role, perm)
	})
}
