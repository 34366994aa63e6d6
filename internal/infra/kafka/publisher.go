package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hurshidbey/p57-access/internal/core/domain"
	"github.com/hurshidbey/p57-access/internal/core/port"
	"github.com/hurshidbey/p57-access/internal/infra/config"
)

const (
	schemaVersion         = "1.0"
	topicAuditRecorded    = "audit.recorded"
	auditRecordedEventKey = "access.audit.recorded"
)

// EventPublisher mirrors audit records onto Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type eventEnvelope struct {
	EventID   string            `json:"event_id"`
	EventType string            `json:"event_type"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Payload   any               `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type auditRecordedPayload struct {
	RecordID       string         `json:"record_id"`
	PrincipalID    string         `json:"principal_id"`
	PrincipalEmail string         `json:"principal_email"`
	Action         string         `json:"action"`
	Resource       string         `json:"resource"`
	ResourceID     *string        `json:"resource_id,omitempty"`
	Status         string         `json:"status"`
	ErrorMessage   *string        `json:"error_message,omitempty"`
	Detail         map[string]any `json:"detail,omitempty"`
	OccurredAt     time.Time      `json:"occurred_at"`
}

// PublishAuditRecorded sends the audit record envelope to the audit topic.
// The record's detail payload is already sanitized by the pipeline.
func (p *EventPublisher) PublishAuditRecorded(ctx context.Context, record domain.AuditRecord) error {
	envelope := eventEnvelope{
		EventID:   uuid.NewString(),
		EventType: auditRecordedEventKey,
		Timestamp: time.Now().UTC(),
		Version:   schemaVersion,
		Payload: auditRecordedPayload{
			RecordID:       record.ID,
			PrincipalID:    record.PrincipalID,
			PrincipalEmail: record.PrincipalEmail,
			Action:         record.Action,
			Resource:       record.Resource,
			ResourceID:     record.ResourceID,
			Status:         string(record.Status),
			ErrorMessage:   record.ErrorMessage,
			Detail:         record.Detail,
			OccurredAt:     record.CreatedAt,
		},
		Metadata: map[string]string{
			"service":     p.appCfg.Name,
			"environment": p.appCfg.Env,
		},
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal audit envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(topicAuditRecorded),
		Key:   sarama.StringEncoder(record.PrincipalID),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case p.producer.Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ port.EventPublisher = (*EventPublisher)(nil)
