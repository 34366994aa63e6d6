package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hurshidbey/p57-access/internal/core/domain"
	"github.com/hurshidbey/p57-access/internal/core/port"
	"github.com/hurshidbey/p57-access/internal/infra/logger"
	"github.com/hurshidbey/p57-access/internal/infra/telemetry"
	"github.com/hurshidbey/p57-access/internal/repository"
)

// ResolverConfig tunes snapshot caching and the legacy allow-list fallback.
type ResolverConfig struct {
	CacheTTL time.Duration
	// LegacyFallback keeps the pre-RBAC email allow-list as a last resort for
	// permission checks during migration. Role checks never use it.
	LegacyFallback    bool
	LegacyAdminEmails []string
}

// Resolver computes effective permission snapshots and answers authorization
// queries. Any storage failure fails closed: the caller gets a deny with
// reason storage_unavailable and the underlying error attached.
type Resolver struct {
	grants      port.GrantRepository
	permissions port.PermissionRepository
	cache       port.PermissionCache
	metrics     *telemetry.Provider
	logger      *zap.Logger

	cacheTTL      time.Duration
	legacyEnabled bool
	legacyEmails  map[string]struct{}

	now func() time.Time
}

// NewResolver constructs the authorization resolver.
func NewResolver(grants port.GrantRepository, permissions port.PermissionRepository, cache port.PermissionCache, metrics *telemetry.Provider, log *zap.Logger, cfg ResolverConfig) *Resolver {
	emails := make(map[string]struct{}, len(cfg.LegacyAdminEmails))
	for _, email := range cfg.LegacyAdminEmails {
		email = strings.ToLower(strings.TrimSpace(email))
		if email != "" {
			emails[email] = struct{}{}
		}
	}

	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	return &Resolver{
		grants:        grants,
		permissions:   permissions,
		cache:         cache,
		metrics:       metrics,
		logger:        log,
		cacheTTL:      ttl,
		legacyEnabled: cfg.LegacyFallback,
		legacyEmails:  emails,
		now:           time.Now,
	}
}

// Resolve produces the principal's effective permission snapshot: active roles
// as of now, the union of their permission keys, and the superuser flag. The
// cross-request cache is consulted first and is fail-open; the grant store is
// authoritative and fail-closed.
func (r *Resolver) Resolve(ctx context.Context, principal domain.Principal) (*domain.ResolvedPermissions, error) {
	if r.cache != nil {
		cached, err := r.cache.Get(ctx, principal.ID)
		switch {
		case err == nil:
			r.metrics.ObserveCacheHit()
			return cached, nil
		case errors.Is(err, repository.ErrNotFound):
			r.metrics.ObserveCacheMiss()
		default:
			r.metrics.ObserveCacheMiss()
			r.logger.Warn("permission cache read failed, falling through to store",
				zap.Error(err),
				zap.String("principal_id", principal.ID),
			)
		}
	}

	asOf := r.now().UTC()

	roles, err := r.grants.ListActive(ctx, principal.ID, asOf)
	if err != nil {
		return nil, fmt.Errorf("list active grants: %w", err)
	}

	superuser := false
	roleIDs := make([]string, 0, len(roles))
	for _, role := range roles {
		roleIDs = append(roleIDs, role.ID)
		if role.Name == domain.RoleSuperAdmin {
			superuser = true
		}
	}

	keys := []string{}
	if len(roleIDs) > 0 {
		permissions, err := r.permissions.ListByRoleIDs(ctx, roleIDs)
		if err != nil {
			return nil, fmt.Errorf("list role permissions: %w", err)
		}

		seen := make(map[string]struct{}, len(permissions))
		for _, permission := range permissions {
			key := permission.Key()
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
		sort.Strings(keys)
	}

	resolved := &domain.ResolvedPermissions{
		Roles:       roles,
		Permissions: keys,
		Superuser:   superuser,
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, principal.ID, resolved, r.cacheTTL); err != nil {
			r.logger.Warn("permission cache write failed",
				zap.Error(err),
				zap.String("principal_id", principal.ID),
			)
		}
	}

	return resolved, nil
}

// Decide answers whether the snapshot authorizes the (resource, action) pair.
// Order: superuser wildcard, then role permission union, then the legacy email
// fallback, then deny.
func (r *Resolver) Decide(principal domain.Principal, resolved *domain.ResolvedPermissions, resource, action string) domain.Decision {
	return r.observe(r.decide(principal, resolved, resource, action))
}

// DecideAny allows when any of the requested pairs is covered.
func (r *Resolver) DecideAny(principal domain.Principal, resolved *domain.ResolvedPermissions, keys []domain.PermissionKey) domain.Decision {
	for _, key := range keys {
		decision := r.decide(principal, resolved, key.Resource, key.Action)
		if decision.Allow {
			return r.observe(decision)
		}
	}
	return r.observe(domain.Decision{Allow: false, Reason: domain.ReasonInsufficientPermission})
}

// DecideRole allows only when the principal holds the named role through an
// active grant. The legacy fallback never applies here.
func (r *Resolver) DecideRole(resolved *domain.ResolvedPermissions, roleName string) domain.Decision {
	if resolved.HasRole(roleName) {
		return r.observe(domain.Decision{Allow: true, Reason: domain.ReasonRolePermission})
	}
	if resolved != nil && resolved.Superuser {
		return r.observe(domain.Decision{Allow: true, Reason: domain.ReasonSuperuser})
	}
	return r.observe(domain.Decision{Allow: false, Reason: domain.ReasonInsufficientPermission})
}

// Authorize resolves and decides in one call for callers outside the request
// middleware. Storage failures yield a deny with the error attached.
func (r *Resolver) Authorize(ctx context.Context, principal domain.Principal, resource, action string) domain.Decision {
	resolved, err := r.Resolve(ctx, principal)
	if err != nil {
		return r.observe(domain.Decision{Allow: false, Reason: domain.ReasonStorageUnavailable, Err: err})
	}
	return r.Decide(principal, resolved, resource, action)
}

// Deny builds the fail-closed decision for a failed resolution. Middleware
// uses it so the storage error still reaches the audit trail.
func (r *Resolver) Deny(err error) domain.Decision {
	return r.observe(domain.Decision{Allow: false, Reason: domain.ReasonStorageUnavailable, Err: err})
}

func (r *Resolver) decide(principal domain.Principal, resolved *domain.ResolvedPermissions, resource, action string) domain.Decision {
	if resolved != nil && resolved.Superuser {
		return domain.Decision{Allow: true, Reason: domain.ReasonSuperuser}
	}
	if resolved.Has(resource, action) {
		return domain.Decision{Allow: true, Reason: domain.ReasonRolePermission}
	}
	if r.legacyAllow(principal) {
		return domain.Decision{Allow: true, Reason: domain.ReasonLegacyEmailFallback}
	}
	return domain.Decision{Allow: false, Reason: domain.ReasonInsufficientPermission}
}

func (r *Resolver) legacyAllow(principal domain.Principal) bool {
	if !r.legacyEnabled || len(r.legacyEmails) == 0 {
		return false
	}

	email := strings.ToLower(strings.TrimSpace(principal.Email))
	if email == "" {
		return false
	}

	if _, ok := r.legacyEmails[email]; !ok {
		return false
	}

	r.logger.Warn("authorization granted via legacy email allow-list",
		zap.String("principal_id", principal.ID),
		zap.String("email", logger.MaskEmail(principal.Email)),
	)
	return true
}

func (r *Resolver) observe(decision domain.Decision) domain.Decision {
	r.metrics.ObserveDecision(decision.Allow, decision.Reason)
	return decision
}
