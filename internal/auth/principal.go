package auth

import (
	"context"

	"it-inventory-api/internal/apperr"
)

type contextKey string

const principalKey contextKey = "principal"

// Principal is an authenticated caller.
type Principal struct {
	Subject string   `json:"subject"`
	Name    string   `json:"name,omitempty"`
	Roles   []string `json:"roles"`
}

// HasRole checks if the principal has any of the given roles
func (p *Principal) HasRole(roles ...string) bool {
	for _, want := range roles {
		for _, have := range p.Roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// Require authorizes p. A nil or anonymous principal is unauthorized; when
// roles are given, p must hold at least one of them or the call is forbidden.
func Require(p *Principal, roles ...string) error {
	if p == nil || p.Subject == "" {
		return apperr.Unauthorizedf("authentication required")
	}
	if len(roles) > 0 && !p.HasRole(roles...) {
		return apperr.Forbiddenf("insufficient permissions")
	}
	return nil
}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the authenticated principal, or nil.
func PrincipalFromContext(ctx context.Context) *Principal {
	if p, ok := ctx.Value(principalKey).(*Principal); ok {
		return p
	}
	return nil
}

// SubjectFromContext returns the subject of the authenticated principal, or "".
func SubjectFromContext(ctx context.Context) string {
	if p := PrincipalFromContext(ctx); p != nil {
		return p.Subject
	}
	return ""
}
