package domain

import "time"

// System role names. These four roles are created at bootstrap and can never
// be renamed or deleted through the management API.
const (
	RoleSuperAdmin     = "super_admin"
	RoleAdmin          = "admin"
	RoleContentManager = "content_manager"
	RoleSupport        = "support"
)

var systemRoles = map[string]struct{}{
	RoleSuperAdmin:     {},
	RoleAdmin:          {},
	RoleContentManager: {},
	RoleSupport:        {},
}

// IsSystemRole reports whether the given role name belongs to the fixed set of
// system roles.
func IsSystemRole(name string) bool {
	_, ok := systemRoles[name]
	return ok
}

// Permission identifies one protectable operation as a (resource, action) pair.
// Resource and action together form a natural key.
type Permission struct {
	ID          string
	Resource    string
	Action      string
	Description *string
	CreatedAt   time.Time
}

// Key returns the canonical "resource:action" form used in permission sets.
func (p Permission) Key() string {
	return p.Resource + ":" + p.Action
}

// Role is a named, described bundle of permissions. Priority is only used for
// human-readable hierarchy display; it does not affect authorization.
type Role struct {
	ID          string
	Name        string
	Description *string
	Priority    int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsSystem reports whether the role is one of the immutable system roles.
func (r Role) IsSystem() bool {
	return IsSystemRole(r.Name)
}

// RolePermission links a role with a permission and records who granted it.
type RolePermission struct {
	RoleID       string
	PermissionID string
	GrantedAt    time.Time
	GrantedBy    string
}

// RoleGrant assigns a role to a principal, optionally time-bounded. A grant
// with a past expiry contributes nothing to the effective permission set but
// stays physically stored; expiry is enforced at read time only.
type RoleGrant struct {
	PrincipalID string
	RoleID      string
	GrantedAt   time.Time
	GrantedBy   string
	ExpiresAt   *time.Time
}

// Active reports whether the grant contributes permissions at the given time.
func (g RoleGrant) Active(asOf time.Time) bool {
	return g.ExpiresAt == nil || g.ExpiresAt.After(asOf)
}

// RoleRef is the minimal role view the resolver needs from an active grant.
type RoleRef struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}
