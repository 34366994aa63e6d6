package usecase

import (
	"context"
	"time"

	"github.com/hurshidbey/p57-access/internal/core/domain"
	"github.com/hurshidbey/p57-access/internal/core/port"
	"github.com/hurshidbey/p57-access/internal/repository"
)

type stubGrantRepo struct {
	active      []domain.RoleRef
	activeErr   error
	activeCalls int
	lastAsOf    time.Time

	assigned  []domain.RoleGrant
	assignErr error

	revoked     [][2]string
	byPrincipal []domain.RoleGrant
}

func (s *stubGrantRepo) Assign(_ context.Context, grant domain.RoleGrant) error {
	if s.assignErr != nil {
		return s.assignErr
	}
	s.assigned = append(s.assigned, grant)
	return nil
}

func (s *stubGrantRepo) Revoke(_ context.Context, principalID, roleID string) error {
	s.revoked = append(s.revoked, [2]string{principalID, roleID})
	return nil
}

func (s *stubGrantRepo) ListActive(_ context.Context, _ string, asOf time.Time) ([]domain.RoleRef, error) {
	s.activeCalls++
	s.lastAsOf = asOf
	if s.activeErr != nil {
		return nil, s.activeErr
	}
	return s.active, nil
}

func (s *stubGrantRepo) ListByPrincipal(_ context.Context, _ string) ([]domain.RoleGrant, error) {
	return s.byPrincipal, nil
}

type stubPermissionRepo struct {
	byRole       map[string][]domain.Permission
	byRoleErr    error
	all          []domain.Permission
	existingKeys map[string]domain.Permission
	upserted     []domain.Permission
}

func (s *stubPermissionRepo) Upsert(_ context.Context, permission domain.Permission) (bool, error) {
	if s.existingKeys == nil {
		s.existingKeys = make(map[string]domain.Permission)
	}
	if _, ok := s.existingKeys[permission.Key()]; ok {
		return false, nil
	}
	s.existingKeys[permission.Key()] = permission
	s.all = append(s.all, permission)
	s.upserted = append(s.upserted, permission)
	return true, nil
}

func (s *stubPermissionRepo) GetByKey(_ context.Context, resource, action string) (*domain.Permission, error) {
	key := resource + ":" + action
	if permission, ok := s.existingKeys[key]; ok {
		return &permission, nil
	}
	return nil, repository.ErrNotFound
}

func (s *stubPermissionRepo) List(_ context.Context) ([]domain.Permission, error) {
	return s.all, nil
}

func (s *stubPermissionRepo) ListByRoleIDs(_ context.Context, roleIDs []string) ([]domain.Permission, error) {
	if s.byRoleErr != nil {
		return nil, s.byRoleErr
	}
	var out []domain.Permission
	for _, id := range roleIDs {
		out = append(out, s.byRole[id]...)
	}
	return out, nil
}

type stubRoleRepo struct {
	byID   map[string]domain.Role
	byName map[string]domain.Role

	created     []domain.Role
	updated     []domain.Role
	deleted     []string
	assignments map[string][]string
	replaced    map[string][]string
	permissions map[string][]domain.Permission
	grantCounts map[string]int
}

func newStubRoleRepo(roles ...domain.Role) *stubRoleRepo {
	s := &stubRoleRepo{
		byID:        make(map[string]domain.Role),
		byName:      make(map[string]domain.Role),
		assignments: make(map[string][]string),
		replaced:    make(map[string][]string),
		permissions: make(map[string][]domain.Permission),
		grantCounts: make(map[string]int),
	}
	for _, role := range roles {
		s.byID[role.ID] = role
		s.byName[role.Name] = role
	}
	return s
}

func (s *stubRoleRepo) Create(_ context.Context, role domain.Role) error {
	if _, ok := s.byName[role.Name]; ok {
		return repository.ErrDuplicate
	}
	s.byID[role.ID] = role
	s.byName[role.Name] = role
	s.created = append(s.created, role)
	return nil
}

func (s *stubRoleRepo) GetByID(_ context.Context, id string) (*domain.Role, error) {
	if role, ok := s.byID[id]; ok {
		return &role, nil
	}
	return nil, repository.ErrNotFound
}

func (s *stubRoleRepo) GetByName(_ context.Context, name string) (*domain.Role, error) {
	if role, ok := s.byName[name]; ok {
		return &role, nil
	}
	return nil, repository.ErrNotFound
}

func (s *stubRoleRepo) List(_ context.Context) ([]domain.Role, error) {
	out := make([]domain.Role, 0, len(s.byID))
	for _, role := range s.byID {
		out = append(out, role)
	}
	return out, nil
}

func (s *stubRoleRepo) Update(_ context.Context, role domain.Role) error {
	old, ok := s.byID[role.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if role.Name != old.Name {
		if _, exists := s.byName[role.Name]; exists {
			return repository.ErrDuplicate
		}
		delete(s.byName, old.Name)
	}
	s.byID[role.ID] = role
	s.byName[role.Name] = role
	s.updated = append(s.updated, role)
	return nil
}

func (s *stubRoleRepo) Delete(_ context.Context, id string) error {
	if role, ok := s.byID[id]; ok {
		delete(s.byName, role.Name)
		delete(s.byID, id)
	}
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *stubRoleRepo) AssignPermissions(_ context.Context, roleID string, permissionIDs []string, _ string) (int, error) {
	inserted := 0
	existing := make(map[string]struct{}, len(s.assignments[roleID]))
	for _, id := range s.assignments[roleID] {
		existing[id] = struct{}{}
	}
	for _, id := range permissionIDs {
		if _, ok := existing[id]; ok {
			continue
		}
		s.assignments[roleID] = append(s.assignments[roleID], id)
		existing[id] = struct{}{}
		inserted++
	}
	return inserted, nil
}

func (s *stubRoleRepo) ReplacePermissions(_ context.Context, roleID string, permissionIDs []string, _ string) error {
	s.assignments[roleID] = append([]string(nil), permissionIDs...)
	s.replaced[roleID] = append([]string(nil), permissionIDs...)
	return nil
}

func (s *stubRoleRepo) ListPermissions(_ context.Context, roleID string) ([]domain.Permission, error) {
	return s.permissions[roleID], nil
}

func (s *stubRoleRepo) CountGrants(_ context.Context, roleID string) (int, error) {
	return s.grantCounts[roleID], nil
}

type stubCache struct {
	entries map[string]*domain.ResolvedPermissions
	getErr  error
	setErr  error

	sets                  int
	invalidatedPrincipals []string
	invalidatedAll        int
}

func newStubCache() *stubCache {
	return &stubCache{entries: make(map[string]*domain.ResolvedPermissions)}
}

func (s *stubCache) Get(_ context.Context, principalID string) (*domain.ResolvedPermissions, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	if resolved, ok := s.entries[principalID]; ok {
		return resolved, nil
	}
	return nil, repository.ErrNotFound
}

func (s *stubCache) Set(_ context.Context, principalID string, resolved *domain.ResolvedPermissions, _ time.Duration) error {
	if s.setErr != nil {
		return s.setErr
	}
	s.entries[principalID] = resolved
	s.sets++
	return nil
}

func (s *stubCache) InvalidatePrincipal(_ context.Context, principalID string) error {
	delete(s.entries, principalID)
	s.invalidatedPrincipals = append(s.invalidatedPrincipals, principalID)
	return nil
}

func (s *stubCache) InvalidateAll(_ context.Context) error {
	s.entries = make(map[string]*domain.ResolvedPermissions)
	s.invalidatedAll++
	return nil
}

var (
	_ port.GrantRepository      = (*stubGrantRepo)(nil)
	_ port.PermissionRepository = (*stubPermissionRepo)(nil)
	_ port.RoleRepository       = (*stubRoleRepo)(nil)
	_ port.PermissionCache      = (*stubCache)(nil)
)
