package port

import (
	"context"

	"github.com/hurshidbey/p57-access/internal/core/domain"
)

// RoleRepository persists roles and their permission assignments.
type RoleRepository interface {
	Create(ctx context.Context, role domain.Role) error
	GetByID(ctx context.Context, id string) (*domain.Role, error)
	GetByName(ctx context.Context, name string) (*domain.Role, error)
	List(ctx context.Context) ([]domain.Role, error)
	Update(ctx context.Context, role domain.Role) error
	// Delete removes the role; role_permissions and user_roles rows cascade
	// via foreign keys.
	Delete(ctx context.Context, id string) error

	// AssignPermissions attaches permissions idempotently (ON CONFLICT DO
	// NOTHING) and returns the number of rows actually inserted.
	AssignPermissions(ctx context.Context, roleID string, permissionIDs []string, grantedBy string) (int, error)
	// ReplacePermissions atomically swaps the role's permission set for the
	// provided one. Readers never observe a half-updated set.
	ReplacePermissions(ctx context.Context, roleID string, permissionIDs []string, grantedBy string) error
	ListPermissions(ctx context.Context, roleID string) ([]domain.Permission, error)
	// CountGrants returns how many principals currently hold the role,
	// expired grants included.
	CountGrants(ctx context.Context, roleID string) (int, error)
}
