package domain

import "strings"

// Resources protected by the platform.
const (
	ResourceProtocols = "protocols"
	ResourcePrompts   = "prompts"
	ResourceUsers     = "users"
	ResourcePayments  = "payments"
	ResourceCoupons   = "coupons"
	ResourceAuditLogs = "audit_logs"
	ResourceRoles     = "roles"
)

// Actions permissions are expressed in. Generic CRUD verbs plus
// resource-specific ones.
const (
	ActionRead       = "read"
	ActionCreate     = "create"
	ActionUpdate     = "update"
	ActionDelete     = "delete"
	ActionToggleFree = "toggle_free"
	ActionUpdateTier = "update_tier"
	ActionRefund     = "refund"
	ActionToggle     = "toggle"
	ActionAssign     = "assign"
)

// CatalogEntry is one (resource, action) pair of the static permission catalog.
type CatalogEntry struct {
	Resource string
	Action   string
}

// Key returns the canonical "resource:action" form.
func (e CatalogEntry) Key() string {
	return e.Resource + ":" + e.Action
}

// Catalog returns every (resource, action) pair the system can protect.
// Bootstrap inserts missing entries idempotently; entries removed from this
// list are tolerated in storage so existing grants keep working.
func Catalog() []CatalogEntry {
	return []CatalogEntry{
		{ResourceProtocols, ActionRead},
		{ResourceProtocols, ActionCreate},
		{ResourceProtocols, ActionUpdate},
		{ResourceProtocols, ActionDelete},
		{ResourceProtocols, ActionToggleFree},

		{ResourcePrompts, ActionRead},
		{ResourcePrompts, ActionCreate},
		{ResourcePrompts, ActionUpdate},
		{ResourcePrompts, ActionDelete},

		{ResourceUsers, ActionRead},
		{ResourceUsers, ActionUpdate},
		{ResourceUsers, ActionUpdateTier},

		{ResourcePayments, ActionRead},
		{ResourcePayments, ActionRefund},

		{ResourceCoupons, ActionRead},
		{ResourceCoupons, ActionCreate},
		{ResourceCoupons, ActionUpdate},
		{ResourceCoupons, ActionDelete},
		{ResourceCoupons, ActionToggle},

		{ResourceAuditLogs, ActionRead},

		{ResourceRoles, ActionRead},
		{ResourceRoles, ActionCreate},
		{ResourceRoles, ActionUpdate},
		{ResourceRoles, ActionDelete},
		{ResourceRoles, ActionAssign},
	}
}

// SystemRoleDefaults describes the priority and description each system role is
// seeded with.
type SystemRoleDefault struct {
	Name        string
	Description string
	Priority    int
}

// SystemRoleDefaults returns the bootstrap definitions of the four system roles
// in seeding order.
func SystemRoleDefaults() []SystemRoleDefault {
	return []SystemRoleDefault{
		{Name: RoleSuperAdmin, Description: "Full system access", Priority: 100},
		{Name: RoleAdmin, Description: "General administrative access", Priority: 50},
		{Name: RoleContentManager, Description: "Manage content only", Priority: 30},
		{Name: RoleSupport, Description: "Customer support access", Priority: 20},
	}
}

// DefaultRolePermissions reports whether the catalog entry belongs to the
// default permission set of the named system role. Super admins authorize
// through the wildcard at resolve time; their enumerated set exists only so
// the management UI can display it.
func DefaultRolePermissions(roleName string, entry CatalogEntry) bool {
	switch roleName {
	case RoleSuperAdmin:
		return true
	case RoleAdmin:
		return entry.Resource != ResourceRoles
	case RoleContentManager:
		return entry.Resource == ResourceProtocols ||
			entry.Resource == ResourcePrompts ||
			(entry.Resource == ResourceCoupons && entry.Action == ActionRead)
	case RoleSupport:
		return entry.Action == ActionRead
	default:
		return false
	}
}

// ValidPermissionKey reports whether key refers to a pair present in the
// catalog.
func ValidPermissionKey(key string) bool {
	resource, action, ok := strings.Cut(key, ":")
	if !ok {
		return false
	}
	for _, entry := range Catalog() {
		if entry.Resource == resource && entry.Action == action {
			return true
		}
	}
	return false
}
