package kafka

import (
	"context"

	"go.uber.org/zap"

	"github.com/hurshidbey/p57-access/internal/core/domain"
	"github.com/hurshidbey/p57-access/internal/core/port"
)

// StubPublisher is used when Kafka brokers are not configured. Events are
// logged at debug level and otherwise discarded.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a no-op event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

// PublishAuditRecorded logs and drops the event. The record is already
// durable in Postgres by the time this runs, so dropping the mirror is safe.
func (p *StubPublisher) PublishAuditRecorded(_ context.Context, record domain.AuditRecord) error {
	p.logger.Debug("audit event publish skipped, no brokers configured",
		zap.String("record_id", record.ID),
		zap.String("principal_id", record.PrincipalID),
		zap.String("operation", record.Resource+":"+record.Action),
		zap.String("status", string(record.Status)),
	)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
