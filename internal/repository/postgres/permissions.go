package postgres

import (
	"context"
	"database/sql"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/hurshidbey/p57-access/internal/core/domain"
	"github.com/hurshidbey/p57-access/internal/core/port"
	"github.com/hurshidbey/p57-access/internal/repository"
)

// PermissionRepository implements permission catalog persistence.
type PermissionRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewPermissionRepository constructs a PostgreSQL-backed permission repository.
func NewPermissionRepository(exec pgExecutor) *PermissionRepository {
	return &PermissionRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Upsert inserts the permission unless the (resource, action) pair exists.
func (r *PermissionRepository) Upsert(ctx context.Context, permission domain.Permission) (bool, error) {
	stmt, args, err := r.builder.Insert("access.permissions").
		Columns("id", "resource", "action", "description").
		Values(permission.ID, permission.Resource, permission.Action, permission.Description).
		Suffix("ON CONFLICT (resource, action) DO NOTHING").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build upsert permission sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("upsert permission: %w", err)
	}

	return res.RowsAffected() > 0, nil
}

// GetByKey retrieves a permission by its natural (resource, action) key.
func (r *PermissionRepository) GetByKey(ctx context.Context, resource, action string) (*domain.Permission, error) {
	stmt, args, err := r.builder.Select("id", "resource", "action", "description", "created_at").
		From("access.permissions").
		Where(squirrel.Eq{"resource": resource, "action": action}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select permission sql: %w", err)
	}

	row := r.exec.QueryRow(ctx, stmt, args...)

	permission, err := scanPermission(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan permission: %w", err)
	}

	return permission, nil
}

// List retrieves the full catalog ordered by resource and action.
func (r *PermissionRepository) List(ctx context.Context) ([]domain.Permission, error) {
	stmt, args, err := r.builder.Select("id", "resource", "action", "description", "created_at").
		From("access.permissions").
		OrderBy("resource ASC", "action ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list permissions sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query permissions: %w", err)
	}
	defer rows.Close()

	return collectPermissions(rows)
}

// ListByRoleIDs returns the union of permissions attached to the given roles.
func (r *PermissionRepository) ListByRoleIDs(ctx context.Context, roleIDs []string) ([]domain.Permission, error) {
	if len(roleIDs) == 0 {
		return []domain.Permission{}, nil
	}

	stmt, args, err := r.builder.Select(
		"DISTINCT p.id", "p.resource", "p.action", "p.description", "p.created_at",
	).
		From("access.permissions p").
		Join("access.role_permissions rp ON rp.permission_id = p.id").
		Where(squirrel.Eq{"rp.role_id": roleIDs}).
		OrderBy("p.resource ASC", "p.action ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build permissions by roles sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query permissions by roles: %w", err)
	}
	defer rows.Close()

	return collectPermissions(rows)
}

func scanPermission(row pgx.Row) (*domain.Permission, error) {
	var (
		permission  domain.Permission
		description sql.NullString
	)

	if err := row.Scan(
		&permission.ID,
		&permission.Resource,
		&permission.Action,
		&description,
		&permission.CreatedAt,
	); err != nil {
		return nil, err
	}

	if description.Valid {
		desc := description.String
		permission.Description = &desc
	}

	return &permission, nil
}

func collectPermissions(rows pgx.Rows) ([]domain.Permission, error) {
	permissions := make([]domain.Permission, 0)

	for rows.Next() {
		var (
			permission  domain.Permission
			description sql.NullString
		)
		if err := rows.Scan(
			&permission.ID,
			&permission.Resource,
			&permission.Action,
			&description,
			&permission.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan permission: %w", err)
		}
		if description.Valid {
			desc := description.String
			permission.Description = &desc
		}
		permissions = append(permissions, permission)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate permissions: %w", err)
	}

	return permissions, nil
}

var _ port.PermissionRepository = (*PermissionRepository)(nil)
