package port

import (
	"context"
	"time"

	"github.com/hurshidbey/p57-access/internal/core/domain"
)

// GrantRepository persists role-to-principal assignments.
type GrantRepository interface {
	// Assign inserts the grant. Returns repository.ErrDuplicate when the
	// (principal, role) pair already exists, regardless of expiry.
	Assign(ctx context.Context, grant domain.RoleGrant) error
	// Revoke removes the grant; revoking an absent grant is not an error.
	Revoke(ctx context.Context, principalID, roleID string) error
	// ListActive returns the roles granted to the principal whose grant is
	// non-expiring or expires strictly after asOf, as a single round trip.
	// This is the sole read path of the authorization resolver.
	ListActive(ctx context.Context, principalID string, asOf time.Time) ([]domain.RoleRef, error)
	// ListByPrincipal returns every grant of the principal with its metadata,
	// expired ones included. Management API read path.
	ListByPrincipal(ctx context.Context, principalID string) ([]domain.RoleGrant, error)
}
