// Package authctx carries the already-validated caller identity through a
// request's context. Credential verification and token issuance are an
// external collaborator's job (§6); this package only injects and reads the
// resulting principal and enforces the role/ownership rules the core itself
// is responsible for.
package authctx

import (
	"context"
	"fmt"

	"github.com/abdulqdaer-q/porter-dispatch-core/internal/dispatcherr"
)

// Role is one of the roles a validated principal may carry.
type Role string

const (
	RoleClient     Role = "client"
	RolePorter     Role = "porter"
	RoleAdmin      Role = "admin"
	RoleSuperadmin Role = "superadmin"
)

// Principal is the authenticated caller attached to every request by the
// external auth collaborator before it reaches the core.
type Principal struct {
	UserID string
	Role   Role
}

type principalContextKey struct{}

// WithPrincipal returns a context carrying p, mirroring the teacher's
// typed-context-key convention for tenant/auth injection.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// FromContext retrieves the Principal injected by the transport layer.
// A missing principal is a programming error in this core (the external
// collaborator is expected to have rejected the request already) and is
// surfaced as UNAUTHORIZED rather than panicking.
func FromContext(ctx context.Context) (Principal, error) {
	v := ctx.Value(principalContextKey{})
	if v == nil {
		return Principal{}, dispatcherr.New(dispatcherr.Unauthorized, "no principal in request context")
	}
	p, ok := v.(Principal)
	if !ok {
		return Principal{}, dispatcherr.New(dispatcherr.Unauthorized, "malformed principal in request context")
	}
	return p, nil
}

// RequireAdmin enforces the admin/superadmin-scoped mutation rule from §6.
func RequireAdmin(p Principal) error {
	if p.Role == RoleAdmin || p.Role == RoleSuperadmin {
		return nil
	}
	return dispatcherr.New(dispatcherr.Forbidden, "admin role required")
}

// RequirePorterOwnership enforces the porter-scoped mutation rule: the
// caller must hold the porter role and own the porter profile identified by
// ownerUserID (PorterProfile.UserID, not the porterId itself).
func RequirePorterOwnership(p Principal, ownerUserID string) error {
	if p.Role != RolePorter {
		return dispatcherr.New(dispatcherr.Forbidden, "porter role required")
	}
	if p.UserID != ownerUserID {
		return dispatcherr.Newf(dispatcherr.Forbidden, "principal %s does not own this porter profile", p.UserID)
	}
	return nil
}

func (p Principal) String() string {
	return fmt.Sprintf("%s:%s", p.Role, p.UserID)
}
