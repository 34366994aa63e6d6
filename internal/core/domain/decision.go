package domain

// Decision reasons exposed for audit purposes.
const (
	ReasonSuperuser              = "superuser"
	ReasonRolePermission         = "role_permission"
	ReasonLegacyEmailFallback    = "legacy_email_fallback"
	ReasonInsufficientPermission = "insufficient_permission"
	ReasonStorageUnavailable     = "storage_unavailable"
)

// Decision is the outcome of one authorization query. Authorization failures
// are never surfaced as errors to application code; Err carries the underlying
// storage failure when the resolver had to fail closed.
type Decision struct {
	Allow  bool
	Reason string
	Err    error
}

// PermissionKey names one requested (resource, action) pair.
type PermissionKey struct {
	Resource string
	Action   string
}

// Key returns the canonical "resource:action" form.
func (k PermissionKey) Key() string {
	return k.Resource + ":" + k.Action
}

// ResolvedPermissions is the effective permission snapshot of one principal at
// resolve time: the active roles and the union of their permission keys.
// It is threaded through the middleware chain for request-scoped reuse and is
// the value stored in the cross-request cache.
type ResolvedPermissions struct {
	Roles       []RoleRef `json:"roles"`
	Permissions []string  `json:"permissions"`
	Superuser   bool      `json:"superuser"`

	index map[string]struct{}
}

// Has reports whether the snapshot covers the (resource, action) pair.
// Superusers hold every permission by wildcard, including pairs absent from
// the catalog.
func (r *ResolvedPermissions) Has(resource, action string) bool {
	if r == nil {
		return false
	}
	if r.Superuser {
		return true
	}
	if r.index == nil {
		r.index = make(map[string]struct{}, len(r.Permissions))
		for _, key := range r.Permissions {
			r.index[key] = struct{}{}
		}
	}
	_, ok := r.index[resource+":"+action]
	return ok
}

// HasRole reports whether the principal holds the named role through an active
// grant.
func (r *ResolvedPermissions) HasRole(name string) bool {
	if r == nil {
		return false
	}
	for _, role := range r.Roles {
		if role.Name == name {
			return true
		}
	}
	return false
}
