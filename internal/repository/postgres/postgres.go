package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgExecutor abstracts over a pool, a transaction, or a mock so repositories
// can run inside either.
type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// txStarter is satisfied by pgxpool.Pool and by pgxmock pools.
type txStarter interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// uniqueViolation is the PostgreSQL error code for unique constraint breaches.
const uniqueViolation = "23505"

// Repositories groups the concrete PostgreSQL repository implementations.
type Repositories struct {
	Permissions *PermissionRepository
	Roles       *RoleRepository
	Grants      *GrantRepository
	Audit       *AuditRepository
}

// NewRepositories wires all repositories backed by the provided pool.
func NewRepositories(pool *pgxpool.Pool) *Repositories {
	return &Repositories{
		Permissions: NewPermissionRepository(pool),
		Roles:       NewRoleRepository(pool),
		Grants:      NewGrantRepository(pool),
		Audit:       NewAuditRepository(pool),
	}
}
