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

// bootstrapActor is recorded as granted_by for seeded role permissions.
const bootstrapActor = "bootstrap"

// Bootstrapper seeds the permission catalog and the system roles. Every step
// is idempotent so it can run unconditionally at startup.
type Bootstrapper struct {
	roles       port.RoleRepository
	permissions port.PermissionRepository
	logger      *zap.Logger
}

// NewBootstrapper constructs a Bootstrapper.
func NewBootstrapper(roles port.RoleRepository, permissions port.PermissionRepository, log *zap.Logger) *Bootstrapper {
	return &Bootstrapper{roles: roles, permissions: permissions, logger: log}
}

// Run seeds missing catalog permissions, creates missing system roles, and
// attaches each system role's default permission set. Existing rows are left
// untouched; custom permissions attached by operators survive re-runs.
func (b *Bootstrapper) Run(ctx context.Context) error {
	createdPermissions, err := b.seedPermissions(ctx)
	if err != nil {
		return err
	}

	byKey, err := b.permissionsByKey(ctx)
	if err != nil {
		return err
	}

	createdRoles := 0
	attached := 0
	for _, def := range domain.SystemRoleDefaults() {
		role, created, err := b.ensureRole(ctx, def)
		if err != nil {
			return err
		}
		if created {
			createdRoles++
		}

		permissionIDs := make([]string, 0, len(byKey))
		for _, entry := range domain.Catalog() {
			if !domain.DefaultRolePermissions(def.Name, entry) {
				continue
			}
			permission, ok := byKey[entry.Key()]
			if !ok {
				return fmt.Errorf("bootstrap: catalog entry %s missing after seeding", entry.Key())
			}
			permissionIDs = append(permissionIDs, permission.ID)
		}

		inserted, err := b.roles.AssignPermissions(ctx, role.ID, permissionIDs, bootstrapActor)
		if err != nil {
			return fmt.Errorf("bootstrap: attach permissions to %s: %w", def.Name, err)
		}
		attached += inserted
	}

	b.logger.Info("rbac bootstrap complete",
		zap.Int("permissions_created", createdPermissions),
		zap.Int("roles_created", createdRoles),
		zap.Int("role_permissions_attached", attached),
	)

	return nil
}

func (b *Bootstrapper) seedPermissions(ctx context.Context) (int, error) {
	created := 0
	for _, entry := range domain.Catalog() {
		description := describeEntry(entry)
		inserted, err := b.permissions.Upsert(ctx, domain.Permission{
			ID:          uuid.NewString(),
			Resource:    entry.Resource,
			Action:      entry.Action,
			Description: &description,
		})
		if err != nil {
			return created, fmt.Errorf("bootstrap: seed permission %s: %w", entry.Key(), err)
		}
		if inserted {
			created++
		}
	}
	return created, nil
}

func (b *Bootstrapper) permissionsByKey(ctx context.Context) (map[string]domain.Permission, error) {
	all, err := b.permissions.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: list permissions: %w", err)
	}

	byKey := make(map[string]domain.Permission, len(all))
	for _, permission := range all {
		byKey[permission.Key()] = permission
	}
	return byKey, nil
}

func (b *Bootstrapper) ensureRole(ctx context.Context, def domain.SystemRoleDefault) (*domain.Role, bool, error) {
	existing, err := b.roles.GetByName(ctx, def.Name)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, false, fmt.Errorf("bootstrap: lookup role %s: %w", def.Name, err)
	}

	description := def.Description
	role := domain.Role{
		ID:          uuid.NewString(),
		Name:        def.Name,
		Description: &description,
		Priority:    def.Priority,
	}
	if err := b.roles.Create(ctx, role); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			// Lost a race with a concurrent bootstrap; re-read the winner.
			existing, lookupErr := b.roles.GetByName(ctx, def.Name)
			if lookupErr != nil {
				return nil, false, fmt.Errorf("bootstrap: re-read role %s: %w", def.Name, lookupErr)
			}
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("bootstrap: create role %s: %w", def.Name, err)
	}

	return &role, true, nil
}

// describeEntry renders a human-readable description for a catalog pair, for
// example "Update tier on users".
func describeEntry(entry domain.CatalogEntry) string {
	verb := strings.ReplaceAll(entry.Action, "_", " ")
	if len(verb) > 0 {
		verb = strings.ToUpper(verb[:1]) + verb[1:]
	}
	return fmt.Sprintf("%s on %s", verb, entry.Resource)
}
