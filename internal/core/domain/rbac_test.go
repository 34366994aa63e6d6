package domain

import (
	"testing"
	"time"
)

func TestRoleGrantActive(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Second)
	future := now.Add(time.Second)

	cases := []struct {
		name      string
		expiresAt *time.Time
		want      bool
	}{
		{"permanent grant", nil, true},
		{"future expiry", &future, true},
		{"past expiry", &past, false},
		{"expiry exactly now", &now, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			grant := RoleGrant{
				PrincipalID: "principal-1",
				RoleID:      "role-1",
				ExpiresAt:   tc.expiresAt,
			}
			if got := grant.Active(now); got != tc.want {
				t.Fatalf("Active(%v) with expiry %v = %v, want %v", now, tc.expiresAt, got, tc.want)
			}
		})
	}
}

func TestIsSystemRole(t *testing.T) {
	for _, name := range []string{RoleSuperAdmin, RoleAdmin, RoleContentManager, RoleSupport} {
		if !IsSystemRole(name) {
			t.Fatalf("expected %q to be a system role", name)
		}
	}
	if IsSystemRole("auditor") {
		t.Fatal("expected custom role to not be a system role")
	}
}
