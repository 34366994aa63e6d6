package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hurshidbey/p57-access/internal/core/domain"
	"github.com/hurshidbey/p57-access/internal/core/port"
	"github.com/hurshidbey/p57-access/internal/repository"
)

// ErrAlreadyGranted indicates the principal already holds the role, expired or
// not.
var ErrAlreadyGranted = errors.New("role already granted to principal")

// AssignRoleInput captures a role assignment request.
type AssignRoleInput struct {
	PrincipalID string
	RoleID      string
	GrantedBy   string
	ExpiresAt   *time.Time
}

// GrantDetail is a grant joined with its role for the management UI.
type GrantDetail struct {
	Grant domain.RoleGrant
	Role  domain.Role
}

// GrantService manages role-to-principal assignments. Mutations invalidate
// only the affected principal's cached snapshot.
type GrantService struct {
	grants port.GrantRepository
	roles  port.RoleRepository
	cache  port.PermissionCache
	logger *zap.Logger

	now func() time.Time
}

// NewGrantService constructs a GrantService.
func NewGrantService(grants port.GrantRepository, roles port.RoleRepository, cache port.PermissionCache, log *zap.Logger) *GrantService {
	return &GrantService{grants: grants, roles: roles, cache: cache, logger: log, now: time.Now}
}

// AssignRole grants the role to the principal, optionally time-bounded. A
// duplicate (principal, role) pair is rejected even when the existing grant
// has expired; revoke first to re-grant.
func (s *GrantService) AssignRole(ctx context.Context, input AssignRoleInput) (*GrantDetail, error) {
	principalID := strings.TrimSpace(input.PrincipalID)
	if principalID == "" {
		return nil, fmt.Errorf("principal id is required")
	}

	role, err := s.roles.GetByID(ctx, input.RoleID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRoleNotFound
		}
		return nil, fmt.Errorf("lookup role: %w", err)
	}

	if input.ExpiresAt != nil && !input.ExpiresAt.After(s.now()) {
		return nil, fmt.Errorf("expires_at must be in the future")
	}

	grant := domain.RoleGrant{
		PrincipalID: principalID,
		RoleID:      role.ID,
		GrantedAt:   s.now().UTC(),
		GrantedBy:   strings.TrimSpace(input.GrantedBy),
		ExpiresAt:   input.ExpiresAt,
	}

	if err := s.grants.Assign(ctx, grant); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrAlreadyGranted
		}
		return nil, fmt.Errorf("assign role: %w", err)
	}

	s.invalidatePrincipal(ctx, principalID)

	return &GrantDetail{Grant: grant, Role: *role}, nil
}

// RevokeRole removes the grant. Revoking a grant that does not exist is a
// no-op so retries stay safe.
func (s *GrantService) RevokeRole(ctx context.Context, principalID, roleID string) error {
	if _, err := s.roles.GetByID(ctx, roleID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrRoleNotFound
		}
		return fmt.Errorf("lookup role: %w", err)
	}

	if err := s.grants.Revoke(ctx, principalID, roleID); err != nil {
		return fmt.Errorf("revoke role: %w", err)
	}

	s.invalidatePrincipal(ctx, principalID)
	return nil
}

// PrincipalGrants returns every grant of the principal with role metadata,
// expired grants included.
func (s *GrantService) PrincipalGrants(ctx context.Context, principalID string) ([]GrantDetail, error) {
	grants, err := s.grants.ListByPrincipal(ctx, principalID)
	if err != nil {
		return nil, fmt.Errorf("list principal grants: %w", err)
	}

	details := make([]GrantDetail, 0, len(grants))
	for _, grant := range grants {
		role, err := s.roles.GetByID(ctx, grant.RoleID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				// Role deleted concurrently; the grant row cascades away.
				continue
			}
			return nil, fmt.Errorf("lookup role %s: %w", grant.RoleID, err)
		}
		details = append(details, GrantDetail{Grant: grant, Role: *role})
	}

	return details, nil
}

func (s *GrantService) invalidatePrincipal(ctx context.Context, principalID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidatePrincipal(ctx, principalID); err != nil {
		s.logger.Warn("permission cache invalidation failed",
			zap.Error(err),
			zap.String("principal_id", principalID),
		)
	}
}
