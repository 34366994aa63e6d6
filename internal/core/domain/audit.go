package domain

import "time"

// AuditStatus classifies the outcome recorded by an audit record.
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusFailed  AuditStatus = "failed"
	AuditStatusDenied  AuditStatus = "denied"
)

// AnonymousPrincipal is recorded as the external identity when no
// authenticated principal is attached to an event.
const AnonymousPrincipal = "anonymous"

// AuditRecord is an immutable, append-only fact describing one
// authorization-relevant event. Records are never updated or deleted;
// retention is an external concern. Detail must already be sanitized before a
// record is constructed.
type AuditRecord struct {
	ID             string
	PrincipalID    string
	PrincipalEmail string
	Action         string
	Resource       string
	ResourceID     *string
	Detail         map[string]any
	IPAddress      string
	UserAgent      string
	Status         AuditStatus
	ErrorMessage   *string
	CreatedAt      time.Time
}
