package port

import (
	"context"
	"time"

	"github.com/hurshidbey/p57-access/internal/core/domain"
)

// AuditFilter narrows audit log queries. Zero values mean "no constraint".
type AuditFilter struct {
	PrincipalID string
	Resource    string
	Action      string
	Status      domain.AuditStatus
	From        *time.Time
	To          *time.Time
	// Search matches principal email, resource id, or error message.
	Search string
	Limit  int
	Offset int
}

// OperationCount aggregates audit events per (resource, action, status).
type OperationCount struct {
	Resource string
	Action   string
	Status   domain.AuditStatus
	Count    int64
}

// PrincipalActivity summarizes one principal's audit footprint.
type PrincipalActivity struct {
	PrincipalID    string
	PrincipalEmail string
	Count          int64
	LastActivity   time.Time
}

// FailureCount aggregates failed events by their error message.
type FailureCount struct {
	Resource     string
	Action       string
	ErrorMessage string
	Count        int64
}

// AuditStats bundles the aggregate views served by the management API.
type AuditStats struct {
	ByOperation   []OperationCount
	TopPrincipals []PrincipalActivity
	TopFailures   []FailureCount
}

// AuditRepository persists and queries immutable audit records. Insert is only
// called by the audit pipeline's background writer; the query methods serve
// the management API.
type AuditRepository interface {
	Insert(ctx context.Context, record domain.AuditRecord) error
	List(ctx context.Context, filter AuditFilter) ([]domain.AuditRecord, int64, error)
	ListByResource(ctx context.Context, resource, resourceID string, limit, offset int) ([]domain.AuditRecord, error)
	ListByPrincipal(ctx context.Context, principalID string, limit, offset int) ([]domain.AuditRecord, error)
	Stats(ctx context.Context, from, to *time.Time) (*AuditStats, error)
}
