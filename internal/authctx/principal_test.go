package authctx

import (
	"context"
	"testing"

	"github.com/abdulqdaer-q/porter-dispatch-core/internal/dispatcherr"
)

func TestRequireAdmin(t *testing.T) {
	cases := []struct {
		role  Role
		wantOK bool
	}{
		{RoleAdmin, true},
		{RoleSuperadmin, true},
		{RolePorter, false},
		{RoleClient, false},
	}
	for _, c := range cases {
		err := RequireAdmin(Principal{UserID: "u", Role: c.role})
		if c.wantOK && err != nil {
			t.Errorf("role %s should pass RequireAdmin, got %v", c.role, err)
		}
		if !c.wantOK {
			de, ok := dispatcherr.As(err)
			if !ok || de.Code != dispatcherr.Forbidden {
				t.Errorf("role %s should fail with FORBIDDEN, got %v", c.role, err)
			}
		}
	}
}

func TestRequirePorterOwnership(t *testing.T) {
	owner := Principal{UserID: "user-1", Role: RolePorter}
	if err := RequirePorterOwnership(owner, "user-1"); err != nil {
		t.Errorf("owning principal should pass, got %v", err)
	}

	other := Principal{UserID: "user-2", Role: RolePorter}
	de, ok := dispatcherr.As(RequirePorterOwnership(other, "user-1"))
	if !ok || de.Code != dispatcherr.Forbidden {
		t.Errorf("non-owner should fail with FORBIDDEN")
	}

	admin := Principal{UserID: "user-1", Role: RoleAdmin}
	de, ok = dispatcherr.As(RequirePorterOwnership(admin, "user-1"))
	if !ok || de.Code != dispatcherr.Forbidden {
		t.Errorf("non-porter role should fail ownership check even with matching UserID")
	}
}

func TestFromContext(t *testing.T) {
	_, err := FromContext(context.Background())
	de, ok := dispatcherr.As(err)
	if !ok || de.Code != dispatcherr.Unauthorized {
		t.Fatalf("missing principal should surface UNAUTHORIZED, got %v", err)
	}

	p := Principal{UserID: "user-1", Role: RolePorter}
	ctx := WithPrincipal(context.Background(), p)
	got, err := FromContext(ctx)
	if err != nil || got != p {
		t.Fatalf("expected %+v, got %+v / %v", p, got, err)
	}
}
