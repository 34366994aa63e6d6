package port

import (
	"context"
	"time"

	"github.com/hurshidbey/p57-access/internal/core/domain"
)

// PermissionCache stores resolved permission snapshots across requests.
// Entries are only served between explicit invalidations; every mutation of
// roles or grants must invalidate the affected scope. Cache failures are
// fail-open: the resolver falls through to storage.
type PermissionCache interface {
	// Get returns repository.ErrNotFound on a cache miss.
	Get(ctx context.Context, principalID string) (*domain.ResolvedPermissions, error)
	Set(ctx context.Context, principalID string, resolved *domain.ResolvedPermissions, ttl time.Duration) error
	// InvalidatePrincipal drops the snapshot of one principal (grant changes).
	InvalidatePrincipal(ctx context.Context, principalID string) error
	// InvalidateAll drops every snapshot (role or permission-set changes,
	// which may affect any number of principals).
	InvalidateAll(ctx context.Context) error
}
