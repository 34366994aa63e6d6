package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/hurshidbey/p57-access/internal/core/domain"
	"github.com/hurshidbey/p57-access/internal/core/port"
)

const (
	defaultAuditPageSize = 50
	maxAuditPageSize     = 200
)

// AuditQueryService serves the read side of the audit trail. Writes only ever
// happen through the pipeline.
type AuditQueryService struct {
	audits port.AuditRepository
}

// NewAuditQueryService constructs an AuditQueryService.
func NewAuditQueryService(audits port.AuditRepository) *AuditQueryService {
	return &AuditQueryService{audits: audits}
}

// List returns a filtered, paginated page of audit records plus the total
// matching count.
func (s *AuditQueryService) List(ctx context.Context, filter port.AuditFilter) ([]domain.AuditRecord, int64, error) {
	filter.Limit, filter.Offset = clampPage(filter.Limit, filter.Offset)

	records, total, err := s.audits.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list audit records: %w", err)
	}
	return records, total, nil
}

// ResourceTrail returns the audit history of one resource instance, newest
// first.
func (s *AuditQueryService) ResourceTrail(ctx context.Context, resource, resourceID string, limit, offset int) ([]domain.AuditRecord, error) {
	limit, offset = clampPage(limit, offset)

	records, err := s.audits.ListByResource(ctx, resource, resourceID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list resource trail: %w", err)
	}
	return records, nil
}

// PrincipalTrail returns everything one principal did, newest first.
func (s *AuditQueryService) PrincipalTrail(ctx context.Context, principalID string, limit, offset int) ([]domain.AuditRecord, error) {
	limit, offset = clampPage(limit, offset)

	records, err := s.audits.ListByPrincipal(ctx, principalID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list principal trail: %w", err)
	}
	return records, nil
}

// Stats returns the aggregate views over an optional time window.
func (s *AuditQueryService) Stats(ctx context.Context, from, to *time.Time) (*port.AuditStats, error) {
	stats, err := s.audits.Stats(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("audit stats: %w", err)
	}
	return stats, nil
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultAuditPageSize
	}
	if limit > maxAuditPageSize {
		limit = maxAuditPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
