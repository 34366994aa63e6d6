package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/hurshidbey/p57-access/internal/core/domain"
	"github.com/hurshidbey/p57-access/internal/repository"
)

func TestGrantRepository_Assign(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewGrantRepository(mock)

	expiresAt := time.Now().UTC().Add(24 * time.Hour)
	grant := domain.RoleGrant{
		PrincipalID: "principal-1",
		RoleID:      "role-1",
		GrantedBy:   "actor-1",
		ExpiresAt:   &expiresAt,
	}

	mock.ExpectExec(`INSERT INTO access\.user_roles`).
		WithArgs(grant.PrincipalID, grant.RoleID, grant.GrantedBy, grant.ExpiresAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := repo.Assign(context.Background(), grant); err != nil {
		t.Fatalf("Assign returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGrantRepository_AssignDuplicate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewGrantRepository(mock)

	mock.ExpectExec(`INSERT INTO access\.user_roles`).
		WithArgs("principal-1", "role-1", "actor-1", (*time.Time)(nil)).
		WillReturnError(&pgconn.PgError{Code: uniqueViolation})

	err = repo.Assign(context.Background(), domain.RoleGrant{
		PrincipalID: "principal-1",
		RoleID:      "role-1",
		GrantedBy:   "actor-1",
	})
	if !errors.Is(err, repository.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGrantRepository_RevokeAbsentGrant(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewGrantRepository(mock)

	mock.ExpectExec(`DELETE FROM access\.user_roles`).
		WithArgs("role-1", "principal-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	if err := repo.Revoke(context.Background(), "principal-1", "role-1"); err != nil {
		t.Fatalf("Revoke returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGrantRepository_ListActive(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewGrantRepository(mock)

	asOf := time.Now().UTC()
	expiry := asOf.Add(time.Hour)

	rows := pgxmock.NewRows([]string{"id", "name", "expires_at"}).
		AddRow("role-1", "admin", nil).
		AddRow("role-2", "support", expiry)

	mock.ExpectQuery(`SELECT .*FROM access\.user_roles ur JOIN access\.roles r ON r\.id = ur\.role_id `+
		`WHERE ur\.user_id = \$1 AND \(ur\.expires_at IS NULL OR ur\.expires_at > \$2\)`).
		WithArgs("principal-1", asOf).
		WillReturnRows(rows)

	refs, err := repo.ListActive(context.Background(), "principal-1", asOf)
	if err != nil {
		t.Fatalf("ListActive returned error: %v", err)
	}
	if len(refs) != 2 {
		t.Fatalf("expected 2 active grants, got %d", len(refs))
	}
	if refs[0].ExpiresAt != nil {
		t.Fatalf("expected permanent grant to carry no expiry")
	}
	if refs[1].ExpiresAt == nil || !refs[1].ExpiresAt.Equal(expiry) {
		t.Fatalf("expected bounded grant to carry its expiry")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGrantRepository_ListByPrincipal(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewGrantRepository(mock)

	grantedAt := time.Now().UTC().Add(-48 * time.Hour)
	expiredAt := time.Now().UTC().Add(-time.Hour)

	rows := pgxmock.NewRows([]string{"user_id", "role_id", "granted_at", "granted_by", "expires_at"}).
		AddRow("principal-1", "role-1", grantedAt, "actor-1", nil).
		AddRow("principal-1", "role-2", grantedAt, nil, expiredAt)

	mock.ExpectQuery(`SELECT .*FROM access\.user_roles`).
		WithArgs("principal-1").
		WillReturnRows(rows)

	grants, err := repo.ListByPrincipal(context.Background(), "principal-1")
	if err != nil {
		t.Fatalf("ListByPrincipal returned error: %v", err)
	}
	if len(grants) != 2 {
		t.Fatalf("expected 2 grants, got %d", len(grants))
	}
	if grants[0].GrantedBy != "actor-1" {
		t.Fatalf("expected granted_by actor-1, got %q", grants[0].GrantedBy)
	}
	if grants[1].GrantedBy != "" {
		t.Fatalf("expected empty granted_by for second grant")
	}
	if grants[1].ExpiresAt == nil || !grants[1].ExpiresAt.Equal(expiredAt) {
		t.Fatalf("expected expired grant to stay listed with its expiry")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
