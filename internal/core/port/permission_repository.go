package port

import (
	"context"

	"github.com/hurshidbey/p57-access/internal/core/domain"
)

// PermissionRepository persists the permission catalog.
type PermissionRepository interface {
	// Upsert inserts the permission unless a row with the same
	// (resource, action) pair exists. Returns true when a row was created.
	Upsert(ctx context.Context, permission domain.Permission) (bool, error)
	GetByKey(ctx context.Context, resource, action string) (*domain.Permission, error)
	List(ctx context.Context) ([]domain.Permission, error)
	// ListByRoleIDs returns the union of permissions attached to the given
	// roles in a single query.
	ListByRoleIDs(ctx context.Context, roleIDs []string) ([]domain.Permission, error)
}
