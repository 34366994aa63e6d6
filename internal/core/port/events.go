package port

import (
	"context"

	"github.com/hurshidbey/p57-access/internal/core/domain"
)

// EventPublisher mirrors audit records onto the platform event bus for
// downstream consumers (SIEM export, alerting). Publishing is best-effort;
// errors are logged by the caller and never affect request handling.
type EventPublisher interface {
	PublishAuditRecorded(ctx context.Context, record domain.AuditRecord) error
}
