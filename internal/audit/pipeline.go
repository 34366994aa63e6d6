package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hurshidbey/p57-access/internal/core/domain"
	"github.com/hurshidbey/p57-access/internal/core/port"
	"github.com/hurshidbey/p57-access/internal/infra/config"
	"github.com/hurshidbey/p57-access/internal/infra/telemetry"
)

// Event is the caller-facing shape handed to the pipeline. The pipeline fills
// in identity defaults, sanitizes the detail payload, and assigns the record
// id and timestamp.
type Event struct {
	PrincipalID    string
	PrincipalEmail string
	Action         string
	Resource       string
	ResourceID     *string
	Detail         map[string]any
	IPAddress      string
	UserAgent      string
	Status         domain.AuditStatus
	ErrorMessage   *string
	OccurredAt     time.Time
}

// Pipeline decouples audit persistence from request handling. Record never
// blocks the caller: events go through a bounded queue and a single background
// writer. When the queue is full the newest event is dropped and counted.
type Pipeline struct {
	repo      port.AuditRepository
	publisher port.EventPublisher
	metrics   *telemetry.Provider
	logger    *zap.Logger
	cfg       config.AuditSettings

	queue chan domain.AuditRecord
	done  chan struct{}
	wg    sync.WaitGroup

	closeOnce sync.Once
}

// NewPipeline constructs the pipeline and starts its background writer.
func NewPipeline(repo port.AuditRepository, publisher port.EventPublisher, metrics *telemetry.Provider, cfg config.AuditSettings, logger *zap.Logger) *Pipeline {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 1024
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}

	p := &Pipeline{
		repo:      repo,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
		queue:     make(chan domain.AuditRecord, queueSize),
		done:      make(chan struct{}),
	}

	p.wg.Add(1)
	go p.run()

	return p
}

// Record sanitizes the event synchronously and enqueues it for persistence.
// It never blocks and never returns an error to the caller; a saturated queue
// drops the event with a warning and a metric increment.
func (p *Pipeline) Record(event Event) {
	record := p.buildRecord(event)

	select {
	case <-p.done:
		p.dropped(record, "pipeline closed")
		return
	default:
	}

	select {
	case p.queue <- record:
		p.metrics.ObserveAuditEnqueued()
		p.metrics.SetAuditQueueDepth(len(p.queue))
	default:
		p.dropped(record, "queue full")
	}
}

func (p *Pipeline) buildRecord(event Event) domain.AuditRecord {
	principalID := event.PrincipalID
	if principalID == "" {
		principalID = domain.AnonymousPrincipal
	}
	email := event.PrincipalEmail
	if email == "" {
		email = domain.AnonymousPrincipal
	}
	status := event.Status
	if status == "" {
		status = domain.AuditStatusSuccess
	}
	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	return domain.AuditRecord{
		ID:             uuid.NewString(),
		PrincipalID:    principalID,
		PrincipalEmail: email,
		Action:         event.Action,
		Resource:       event.Resource,
		ResourceID:     event.ResourceID,
		Detail:         Sanitize(event.Detail),
		IPAddress:      event.IPAddress,
		UserAgent:      event.UserAgent,
		Status:         status,
		ErrorMessage:   event.ErrorMessage,
		CreatedAt:      occurredAt,
	}
}

func (p *Pipeline) dropped(record domain.AuditRecord, cause string) {
	p.metrics.ObserveAuditDropped()
	p.logger.Warn("audit event dropped",
		zap.String("cause", cause),
		zap.String("resource", record.Resource),
		zap.String("action", record.Action),
		zap.String("status", string(record.Status)),
	)
}

func (p *Pipeline) run() {
	defer p.wg.Done()

	for {
		select {
		case record := <-p.queue:
			p.write(record)
			p.metrics.SetAuditQueueDepth(len(p.queue))
		case <-p.done:
			p.drain()
			return
		}
	}
}

// drain flushes whatever is still queued at shutdown without waiting for new
// events.
func (p *Pipeline) drain() {
	for {
		select {
		case record := <-p.queue:
			p.write(record)
		default:
			p.metrics.SetAuditQueueDepth(0)
			return
		}
	}
}

func (p *Pipeline) write(record domain.AuditRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.WriteTimeout)
	defer cancel()

	if err := p.repo.Insert(ctx, record); err != nil {
		p.logger.Error("audit record write failed",
			zap.Error(err),
			zap.String("record_id", record.ID),
			zap.String("resource", record.Resource),
			zap.String("action", record.Action),
		)
		return
	}

	if p.publisher != nil {
		if err := p.publisher.PublishAuditRecorded(ctx, record); err != nil {
			p.logger.Warn("audit event publish failed",
				zap.Error(err),
				zap.String("record_id", record.ID),
			)
		}
	}
}

// QueueDepth reports the number of events waiting to be written.
func (p *Pipeline) QueueDepth() int {
	return len(p.queue)
}

// Close stops accepting new events and flushes the queue. It returns when the
// writer has drained or the context expires, whichever comes first.
func (p *Pipeline) Close(ctx context.Context) error {
	p.closeOnce.Do(func() {
		close(p.done)
	})

	finished := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("audit pipeline drain interrupted: %w", ctx.Err())
	}
}
