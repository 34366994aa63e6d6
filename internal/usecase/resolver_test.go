package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hurshidbey/p57-access/internal/core/domain"
	"github.com/hurshidbey/p57-access/internal/core/port"
)

func permission(resource, action string) domain.Permission {
	return domain.Permission{
		ID:       resource + "-" + action,
		Resource: resource,
		Action:   action,
	}
}

func newTestResolver(grants *stubGrantRepo, permissions *stubPermissionRepo, cache *stubCache, cfg ResolverConfig) *Resolver {
	var c port.PermissionCache
	if cache != nil {
		c = cache
	}
	return NewResolver(grants, permissions, c, nil, zap.NewNop(), cfg)
}

func TestResolveDefaultDeny(t *testing.T) {
	grants := &stubGrantRepo{}
	permissions := &stubPermissionRepo{}
	resolver := newTestResolver(grants, permissions, nil, ResolverConfig{})

	principal := domain.Principal{ID: "user-1", Email: "bob@example.com"}
	resolved, err := resolver.Resolve(context.Background(), principal)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}

	decision := resolver.Decide(principal, resolved, domain.ResourceProtocols, domain.ActionRead)
	if decision.Allow {
		t.Fatal("principal without grants was allowed")
	}
	if decision.Reason != domain.ReasonInsufficientPermission {
		t.Fatalf("unexpected reason: %s", decision.Reason)
	}
}

func TestResolveUnionAcrossRoles(t *testing.T) {
	grants := &stubGrantRepo{active: []domain.RoleRef{
		{ID: "role-a", Name: "editors"},
		{ID: "role-b", Name: "billing"},
	}}
	permissions := &stubPermissionRepo{byRole: map[string][]domain.Permission{
		"role-a": {permission(domain.ResourceProtocols, domain.ActionUpdate)},
		"role-b": {
			permission(domain.ResourcePayments, domain.ActionRead),
			// Overlap with role-a must not duplicate the key.
			permission(domain.ResourceProtocols, domain.ActionUpdate),
		},
	}}
	resolver := newTestResolver(grants, permissions, nil, ResolverConfig{})

	principal := domain.Principal{ID: "user-1"}
	resolved, err := resolver.Resolve(context.Background(), principal)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}

	if len(resolved.Permissions) != 2 {
		t.Fatalf("expected 2 deduplicated keys, got %v", resolved.Permissions)
	}
	if !resolved.Has(domain.ResourceProtocols, domain.ActionUpdate) {
		t.Fatal("missing permission from first role")
	}
	if !resolved.Has(domain.ResourcePayments, domain.ActionRead) {
		t.Fatal("missing permission from second role")
	}
	if resolved.Has(domain.ResourcePayments, domain.ActionRefund) {
		t.Fatal("permission appeared from nowhere")
	}
}

func TestResolvePassesCurrentTimeToGrantStore(t *testing.T) {
	grants := &stubGrantRepo{}
	resolver := newTestResolver(grants, &stubPermissionRepo{}, nil, ResolverConfig{})

	before := time.Now().UTC()
	if _, err := resolver.Resolve(context.Background(), domain.Principal{ID: "user-1"}); err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	after := time.Now().UTC()

	if grants.lastAsOf.Before(before) || grants.lastAsOf.After(after) {
		t.Fatalf("asOf %v outside call window [%v, %v]", grants.lastAsOf, before, after)
	}
}

func TestSuperuserWildcardCoversUncatalogedPairs(t *testing.T) {
	grants := &stubGrantRepo{active: []domain.RoleRef{
		{ID: "role-super", Name: domain.RoleSuperAdmin},
	}}
	permissions := &stubPermissionRepo{byRole: map[string][]domain.Permission{}}
	resolver := newTestResolver(grants, permissions, nil, ResolverConfig{})

	principal := domain.Principal{ID: "root-1"}
	resolved, err := resolver.Resolve(context.Background(), principal)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}

	decision := resolver.Decide(principal, resolved, "experiments", "launch")
	if !decision.Allow {
		t.Fatal("superuser denied an uncataloged pair")
	}
	if decision.Reason != domain.ReasonSuperuser {
		t.Fatalf("unexpected reason: %s", decision.Reason)
	}
}

func TestLegacyEmailFallback(t *testing.T) {
	grants := &stubGrantRepo{}
	permissions := &stubPermissionRepo{}
	principal := domain.Principal{ID: "user-1", Email: "Admin@Example.com"}

	enabled := newTestResolver(grants, permissions, nil, ResolverConfig{
		LegacyFallback:    true,
		LegacyAdminEmails: []string{"admin@example.com"},
	})
	resolved, err := enabled.Resolve(context.Background(), principal)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}

	decision := enabled.Decide(principal, resolved, domain.ResourceCoupons, domain.ActionDelete)
	if !decision.Allow {
		t.Fatal("allow-listed email was denied with fallback enabled")
	}
	if decision.Reason != domain.ReasonLegacyEmailFallback {
		t.Fatalf("unexpected reason: %s", decision.Reason)
	}

	disabled := newTestResolver(grants, permissions, nil, ResolverConfig{
		LegacyFallback:    false,
		LegacyAdminEmails: []string{"admin@example.com"},
	})
	decision = disabled.Decide(principal, resolved, domain.ResourceCoupons, domain.ActionDelete)
	if decision.Allow {
		t.Fatal("fallback applied while disabled")
	}
}

func TestAuthorizeFailsClosedOnStorageError(t *testing.T) {
	storeErr := errors.New("connection refused")
	grants := &stubGrantRepo{activeErr: storeErr}
	resolver := newTestResolver(grants, &stubPermissionRepo{}, nil, ResolverConfig{
		LegacyFallback:    true,
		LegacyAdminEmails: []string{"admin@example.com"},
	})

	// The legacy fallback must not rescue a storage outage.
	principal := domain.Principal{ID: "user-1", Email: "admin@example.com"}
	decision := resolver.Authorize(context.Background(), principal, domain.ResourceProtocols, domain.ActionRead)

	if decision.Allow {
		t.Fatal("storage outage resulted in allow")
	}
	if decision.Reason != domain.ReasonStorageUnavailable {
		t.Fatalf("unexpected reason: %s", decision.Reason)
	}
	if !errors.Is(decision.Err, storeErr) {
		t.Fatalf("decision does not carry the storage error: %v", decision.Err)
	}
}

func TestResolveUsesCacheAcrossRequests(t *testing.T) {
	grants := &stubGrantRepo{active: []domain.RoleRef{{ID: "role-a", Name: "editors"}}}
	permissions := &stubPermissionRepo{byRole: map[string][]domain.Permission{
		"role-a": {permission(domain.ResourcePrompts, domain.ActionRead)},
	}}
	cache := newStubCache()
	resolver := newTestResolver(grants, permissions, cache, ResolverConfig{CacheTTL: time.Minute})

	principal := domain.Principal{ID: "user-1"}
	if _, err := resolver.Resolve(context.Background(), principal); err != nil {
		t.Fatalf("first Resolve returned error: %v", err)
	}
	if _, err := resolver.Resolve(context.Background(), principal); err != nil {
		t.Fatalf("second Resolve returned error: %v", err)
	}

	if grants.activeCalls != 1 {
		t.Fatalf("expected 1 store hit, got %d", grants.activeCalls)
	}
	if cache.sets != 1 {
		t.Fatalf("expected 1 cache write, got %d", cache.sets)
	}
}

func TestResolveFallsThroughOnCacheError(t *testing.T) {
	grants := &stubGrantRepo{active: []domain.RoleRef{{ID: "role-a", Name: "editors"}}}
	permissions := &stubPermissionRepo{byRole: map[string][]domain.Permission{
		"role-a": {permission(domain.ResourcePrompts, domain.ActionRead)},
	}}
	cache := newStubCache()
	cache.getErr = errors.New("redis down")
	resolver := newTestResolver(grants, permissions, cache, ResolverConfig{})

	resolved, err := resolver.Resolve(context.Background(), domain.Principal{ID: "user-1"})
	if err != nil {
		t.Fatalf("Resolve returned error despite healthy store: %v", err)
	}
	if !resolved.Has(domain.ResourcePrompts, domain.ActionRead) {
		t.Fatal("snapshot missing permission after cache fail-open")
	}
}

func TestDecideAny(t *testing.T) {
	resolved := &domain.ResolvedPermissions{Permissions: []string{"coupons:read"}}
	resolver := newTestResolver(&stubGrantRepo{}, &stubPermissionRepo{}, nil, ResolverConfig{})
	principal := domain.Principal{ID: "user-1"}

	decision := resolver.DecideAny(principal, resolved, []domain.PermissionKey{
		{Resource: domain.ResourceCoupons, Action: domain.ActionUpdate},
		{Resource: domain.ResourceCoupons, Action: domain.ActionRead},
	})
	if !decision.Allow {
		t.Fatal("DecideAny denied despite one covered pair")
	}

	decision = resolver.DecideAny(principal, resolved, []domain.PermissionKey{
		{Resource: domain.ResourceCoupons, Action: domain.ActionUpdate},
	})
	if decision.Allow {
		t.Fatal("DecideAny allowed with no covered pair")
	}
}

func TestDecideRole(t *testing.T) {
	resolver := newTestResolver(&stubGrantRepo{}, &stubPermissionRepo{}, nil, ResolverConfig{
		LegacyFallback:    true,
		LegacyAdminEmails: []string{"admin@example.com"},
	})

	resolved := &domain.ResolvedPermissions{Roles: []domain.RoleRef{{ID: "r", Name: domain.RoleAdmin}}}
	if !resolver.DecideRole(resolved, domain.RoleAdmin).Allow {
		t.Fatal("holder of role was denied")
	}
	if resolver.DecideRole(resolved, domain.RoleSuperAdmin).Allow {
		t.Fatal("non-holder passed role check")
	}

	superuser := &domain.ResolvedPermissions{Superuser: true}
	if !resolver.DecideRole(superuser, domain.RoleAdmin).Allow {
		t.Fatal("superuser failed role check")
	}
}

// End-to-end shape of the content manager scenario: a content manager can
// update protocols but cannot read users, and an expired grant contributes
// nothing.
func TestContentManagerScenario(t *testing.T) {
	contentManagerPerms := []domain.Permission{}
	for _, entry := range domain.Catalog() {
		if domain.DefaultRolePermissions(domain.RoleContentManager, entry) {
			contentManagerPerms = append(contentManagerPerms, permission(entry.Resource, entry.Action))
		}
	}

	// The expired support grant is filtered by the store and never shows up
	// in ListActive.
	grants := &stubGrantRepo{active: []domain.RoleRef{
		{ID: "role-cm", Name: domain.RoleContentManager},
	}}
	permissions := &stubPermissionRepo{byRole: map[string][]domain.Permission{
		"role-cm": contentManagerPerms,
	}}
	resolver := newTestResolver(grants, permissions, nil, ResolverConfig{})

	alice := domain.Principal{ID: "alice", Email: "alice@example.com"}
	resolved, err := resolver.Resolve(context.Background(), alice)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}

	cases := []struct {
		resource string
		action   string
		allow    bool
	}{
		{domain.ResourceProtocols, domain.ActionUpdate, true},
		{domain.ResourcePrompts, domain.ActionDelete, true},
		{domain.ResourceCoupons, domain.ActionRead, true},
		{domain.ResourceCoupons, domain.ActionUpdate, false},
		{domain.ResourceUsers, domain.ActionRead, false},
		{domain.ResourceRoles, domain.ActionAssign, false},
	}
	for _, tc := range cases {
		decision := resolver.Decide(alice, resolved, tc.resource, tc.action)
		if decision.Allow != tc.allow {
			t.Fatalf("%s:%s = %v, want %v", tc.resource, tc.action, decision.Allow, tc.allow)
		}
	}
}
