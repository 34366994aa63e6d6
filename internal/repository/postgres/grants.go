package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hurshidbey/p57-access/internal/core/domain"
	"github.com/hurshidbey/p57-access/internal/core/port"
	"github.com/hurshidbey/p57-access/internal/repository"
)

// GrantRepository implements role-to-principal assignment persistence.
type GrantRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewGrantRepository constructs a PostgreSQL-backed grant repository.
func NewGrantRepository(exec pgExecutor) *GrantRepository {
	return &GrantRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Assign inserts the grant; a duplicate (principal, role) pair surfaces as
// repository.ErrDuplicate regardless of either grant's expiry.
func (r *GrantRepository) Assign(ctx context.Context, grant domain.RoleGrant) error {
	stmt, args, err := r.builder.Insert("access.user_roles").
		Columns("user_id", "role_id", "granted_by", "expires_at").
		Values(grant.PrincipalID, grant.RoleID, grant.GrantedBy, grant.ExpiresAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build assign role sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("assign role: %w", err)
	}

	return nil
}

// Revoke removes the grant. Revoking an absent grant is not an error.
func (r *GrantRepository) Revoke(ctx context.Context, principalID, roleID string) error {
	stmt, args, err := r.builder.Delete("access.user_roles").
		Where(squirrel.Eq{"user_id": principalID, "role_id": roleID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build revoke role sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("revoke role: %w", err)
	}

	return nil
}

// ListActive returns the roles granted to the principal that are non-expiring
// or expire strictly after asOf, in a single round trip. Expired grants stay
// stored but are filtered out here.
func (r *GrantRepository) ListActive(ctx context.Context, principalID string, asOf time.Time) ([]domain.RoleRef, error) {
	stmt, args, err := r.builder.Select("r.id", "r.name", "ur.expires_at").
		From("access.user_roles ur").
		Join("access.roles r ON r.id = ur.role_id").
		Where(squirrel.Eq{"ur.user_id": principalID}).
		Where(squirrel.Or{
			squirrel.Eq{"ur.expires_at": nil},
			squirrel.Gt{"ur.expires_at": asOf},
		}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build active grants sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query active grants: %w", err)
	}
	defer rows.Close()

	refs := make([]domain.RoleRef, 0)
	for rows.Next() {
		var (
			ref       domain.RoleRef
			expiresAt sql.NullTime
		)
		if err := rows.Scan(&ref.ID, &ref.Name, &expiresAt); err != nil {
			return nil, fmt.Errorf("scan active grant: %w", err)
		}
		if expiresAt.Valid {
			expiry := expiresAt.Time
			ref.ExpiresAt = &expiry
		}
		refs = append(refs, ref)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate active grants: %w", err)
	}

	return refs, nil
}

// ListByPrincipal returns every grant of the principal, expired included.
func (r *GrantRepository) ListByPrincipal(ctx context.Context, principalID string) ([]domain.RoleGrant, error) {
	stmt, args, err := r.builder.Select("user_id", "role_id", "granted_at", "granted_by", "expires_at").
		From("access.user_roles").
		Where(squirrel.Eq{"user_id": principalID}).
		OrderBy("granted_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build grants by principal sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query grants by principal: %w", err)
	}
	defer rows.Close()

	grants := make([]domain.RoleGrant, 0)
	for rows.Next() {
		var (
			grant     domain.RoleGrant
			grantedBy sql.NullString
			expiresAt sql.NullTime
		)
		if err := rows.Scan(&grant.PrincipalID, &grant.RoleID, &grant.GrantedAt, &grantedBy, &expiresAt); err != nil {
			return nil, fmt.Errorf("scan grant: %w", err)
		}
		if grantedBy.Valid {
			grant.GrantedBy = grantedBy.String
		}
		if expiresAt.Valid {
			expiry := expiresAt.Time
			grant.ExpiresAt = &expiry
		}
		grants = append(grants, grant)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate grants by principal: %w", err)
	}

	return grants, nil
}

var _ port.GrantRepository = (*GrantRepository)(nil)
