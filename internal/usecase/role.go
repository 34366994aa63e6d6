package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hurshidbey/p57-access/internal/core/domain"
	"github.com/hurshidbey/p57-access/internal/core/port"
	"github.com/hurshidbey/p57-access/internal/repository"
)

var (
	// ErrRoleExists indicates a role with the provided name already exists.
	ErrRoleExists = errors.New("role already exists")
	// ErrRoleNotFound indicates the referenced role does not exist.
	ErrRoleNotFound = errors.New("role not found")
	// ErrSystemRoleImmutable indicates an attempt to rename or delete a system role.
	ErrSystemRoleImmutable = errors.New("system role cannot be renamed or deleted")
	// ErrUnknownPermission indicates a permission key absent from the catalog.
	ErrUnknownPermission = errors.New("unknown permission")
)

// CreateRoleInput captures the payload for creating a role.
type CreateRoleInput struct {
	Name           string
	Description    *string
	Priority       int
	PermissionKeys []string
}

// UpdateRoleInput captures a partial role update. Nil fields are unchanged.
type UpdateRoleInput struct {
	Name        *string
	Description *string
	Priority    *int
}

// RoleOverview is a role with its permissions and grant count, shaped for the
// management UI.
type RoleOverview struct {
	Role        domain.Role
	Permissions []domain.Permission
	GrantCount  int
}

// RoleService manages roles and their permission sets. Mutations invalidate
// the cross-request permission cache because a role change may affect any
// number of principals.
type RoleService struct {
	roles       port.RoleRepository
	permissions port.PermissionRepository
	cache       port.PermissionCache
	logger      *zap.Logger
}

// NewRoleService constructs a RoleService.
func NewRoleService(roles port.RoleRepository, permissions port.PermissionRepository, cache port.PermissionCache, log *zap.Logger) *RoleService {
	return &RoleService{roles: roles, permissions: permissions, cache: cache, logger: log}
}

// ListRoles returns every role with its permissions and grant count.
func (s *RoleService) ListRoles(ctx context.Context) ([]RoleOverview, error) {
	roles, err := s.roles.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}

	overviews := make([]RoleOverview, 0, len(roles))
	for _, role := range roles {
		overview, err := s.describeRole(ctx, role)
		if err != nil {
			return nil, err
		}
		overviews = append(overviews, overview)
	}
	return overviews, nil
}

// GetRole returns one role with its permissions and grant count.
func (s *RoleService) GetRole(ctx context.Context, id string) (*RoleOverview, error) {
	role, err := s.roles.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRoleNotFound
		}
		return nil, fmt.Errorf("lookup role: %w", err)
	}

	overview, err := s.describeRole(ctx, *role)
	if err != nil {
		return nil, err
	}
	return &overview, nil
}

// CreateRole provisions a custom role with an optional initial permission set.
func (s *RoleService) CreateRole(ctx context.Context, actorID string, input CreateRoleInput) (*RoleOverview, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, fmt.Errorf("role name is required")
	}

	permissionIDs, err := s.resolvePermissionIDs(ctx, input.PermissionKeys)
	if err != nil {
		return nil, err
	}

	role := domain.Role{
		ID:       uuid.NewString(),
		Name:     name,
		Priority: input.Priority,
	}
	if input.Description != nil {
		if trimmed := strings.TrimSpace(*input.Description); trimmed != "" {
			role.Description = &trimmed
		}
	}

	if err := s.roles.Create(ctx, role); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrRoleExists
		}
		return nil, fmt.Errorf("create role: %w", err)
	}

	if len(permissionIDs) > 0 {
		if _, err := s.roles.AssignPermissions(ctx, role.ID, permissionIDs, actorID); err != nil {
			return nil, fmt.Errorf("assign permissions: %w", err)
		}
	}

	s.invalidateAll(ctx)

	overview, err := s.describeRole(ctx, role)
	if err != nil {
		return nil, err
	}
	return &overview, nil
}

// UpdateRole applies a partial update. System roles accept description and
// priority changes but can never be renamed.
func (s *RoleService) UpdateRole(ctx context.Context, id string, input UpdateRoleInput) (*domain.Role, error) {
	role, err := s.roles.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRoleNotFound
		}
		return nil, fmt.Errorf("lookup role: %w", err)
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, fmt.Errorf("role name is required")
		}
		if name != role.Name {
			if role.IsSystem() {
				return nil, ErrSystemRoleImmutable
			}
			role.Name = name
		}
	}
	if input.Description != nil {
		if trimmed := strings.TrimSpace(*input.Description); trimmed != "" {
			role.Description = &trimmed
		} else {
			role.Description = nil
		}
	}
	if input.Priority != nil {
		role.Priority = *input.Priority
	}

	if err := s.roles.Update(ctx, *role); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrRoleExists
		}
		return nil, fmt.Errorf("update role: %w", err)
	}

	s.invalidateAll(ctx)
	return role, nil
}

// DeleteRole removes a custom role. Grants and permission assignments cascade.
func (s *RoleService) DeleteRole(ctx context.Context, id string) error {
	role, err := s.roles.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrRoleNotFound
		}
		return fmt.Errorf("lookup role: %w", err)
	}

	if role.IsSystem() {
		return ErrSystemRoleImmutable
	}

	if err := s.roles.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete role: %w", err)
	}

	s.invalidateAll(ctx)
	return nil
}

// ReplacePermissions atomically swaps the role's permission set for the given
// keys.
func (s *RoleService) ReplacePermissions(ctx context.Context, actorID, roleID string, keys []string) ([]domain.Permission, error) {
	if _, err := s.roles.GetByID(ctx, roleID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRoleNotFound
		}
		return nil, fmt.Errorf("lookup role: %w", err)
	}

	permissionIDs, err := s.resolvePermissionIDs(ctx, keys)
	if err != nil {
		return nil, err
	}

	if err := s.roles.ReplacePermissions(ctx, roleID, permissionIDs, actorID); err != nil {
		return nil, fmt.Errorf("replace permissions: %w", err)
	}

	s.invalidateAll(ctx)

	return s.roles.ListPermissions(ctx, roleID)
}

// ListPermissions returns the catalog grouped for display.
func (s *RoleService) ListPermissions(ctx context.Context) ([]domain.Permission, error) {
	return s.permissions.List(ctx)
}

func (s *RoleService) describeRole(ctx context.Context, role domain.Role) (RoleOverview, error) {
	permissions, err := s.roles.ListPermissions(ctx, role.ID)
	if err != nil {
		return RoleOverview{}, fmt.Errorf("list role permissions: %w", err)
	}
	grants, err := s.roles.CountGrants(ctx, role.ID)
	if err != nil {
		return RoleOverview{}, fmt.Errorf("count role grants: %w", err)
	}
	return RoleOverview{Role: role, Permissions: permissions, GrantCount: grants}, nil
}

func (s *RoleService) resolvePermissionIDs(ctx context.Context, keys []string) ([]string, error) {
	ids := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))

	for _, key := range keys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		if !domain.ValidPermissionKey(key) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownPermission, key)
		}

		resource, action, _ := strings.Cut(key, ":")
		permission, err := s.permissions.GetByKey(ctx, resource, action)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, fmt.Errorf("%w: %s", ErrUnknownPermission, key)
			}
			return nil, fmt.Errorf("lookup permission %s: %w", key, err)
		}
		ids = append(ids, permission.ID)
	}

	return ids, nil
}

func (s *RoleService) invalidateAll(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateAll(ctx); err != nil {
		s.logger.Warn("permission cache invalidation failed", zap.Error(err))
	}
}
