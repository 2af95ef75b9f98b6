// Package access evaluates the role-based rule set and blocks path
// traversal.
package access

import (
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/devpulse/gateway/internal/auth"
	"github.com/devpulse/gateway/internal/errors"
	"github.com/devpulse/gateway/internal/middleware"
)

// Rule grants a path prefix to principals meeting a minimum role. Method
// "" matches every method.
type Rule struct {
	PathPrefix  string
	Method      string
	MinRole     auth.Role
	RequireAuth bool
}

// DefaultRules protects the management surface. The rule list is ordered;
// the first matching rule wins and an unmatched path is allowed.
func DefaultRules() []Rule {
	return []Rule{
		{PathPrefix: "/api/admin", MinRole: auth.RoleAdmin, RequireAuth: true},
		{PathPrefix: "/api/teams", Method: http.MethodDelete, MinRole: auth.RoleManager, RequireAuth: true},
		{PathPrefix: "/api/teams", Method: http.MethodPost, MinRole: auth.RoleTeamLead, RequireAuth: true},
		{PathPrefix: "/api", Method: http.MethodDelete, MinRole: auth.RoleTeamLead, RequireAuth: true},
	}
}

// CompiledAccess enforces the rule set.
type CompiledAccess struct {
	rules     []Rule
	traversal atomic.Int64
	denied    atomic.Int64
}

// New creates a CompiledAccess.
func New(rules []Rule) *CompiledAccess {
	return &CompiledAccess{rules: rules}
}

// Middleware rejects traversal paths with 400 and rule violations with 403.
// Admins bypass the rule set entirely.
func (c *CompiledAccess) Middleware() middleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if hasTraversal(r.URL.Path) {
				c.traversal.Add(1)
				errors.ErrValidation.WithMessage("Invalid request path").WriteJSON(w)
				return
			}

			p := middleware.PrincipalFrom(r.Context())
			if p.Role == auth.RoleAdmin && !p.IsAnonymous() {
				next.ServeHTTP(w, r)
				return
			}

			for _, rule := range c.rules {
				if !strings.HasPrefix(r.URL.Path, rule.PathPrefix) {
					continue
				}
				if rule.Method != "" && rule.Method != r.Method {
					continue
				}
				if rule.RequireAuth && p.IsAnonymous() {
					c.denied.Add(1)
					errors.ErrAuthFailure.WriteJSON(w)
					return
				}
				if !p.Role.Satisfies(rule.MinRole) {
					c.denied.Add(1)
					errors.ErrForbidden.WriteJSON(w)
					return
				}
				break
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Denied returns the number of rule-set denials.
func (c *CompiledAccess) Denied() int64 { return c.denied.Load() }

// TraversalBlocked returns the number of traversal rejections.
func (c *CompiledAccess) TraversalBlocked() int64 { return c.traversal.Load() }

// hasTraversal reports whether any path segment is "..". Checked on the
// raw path so encoded probes are caught before routing normalizes them.
func hasTraversal(path string) bool {
	for _, seg := range strings.Split(path, "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}
