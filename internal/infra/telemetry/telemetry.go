package telemetry

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hurshidbey/p57-access/internal/infra/config"
)

// Provider represents a telemetry provider handle.
type Provider struct {
	decisionCounter *prometheus.CounterVec
	auditEnqueued   prometheus.Counter
	auditDropped    prometheus.Counter
	auditQueueDepth prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
}

// Attach configures telemetry exporters and returns a provider handle.
func Attach(_ context.Context, cfg *config.AppConfig) (*Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	namespace := cfg.Telemetry.Namespace
	if namespace == "" {
		namespace = "access"
	}

	return &Provider{
		decisionCounter: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "authz_decisions_total",
			Help:      "Authorization decisions by outcome and reason",
		}, []string{"outcome", "reason"}),
		auditEnqueued: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_events_enqueued_total",
			Help:      "Audit events accepted onto the pipeline queue",
		}),
		auditDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_events_dropped_total",
			Help:      "Audit events dropped because the pipeline queue was full",
		}),
		auditQueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "audit_queue_depth",
			Help:      "Current number of audit events waiting in the queue",
		}),
		cacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "permission_cache_hits_total",
			Help:      "Permission resolutions served from cache",
		}),
		cacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "permission_cache_misses_total",
			Help:      "Permission resolutions that went to storage",
		}),
	}, nil
}

// ObserveDecision records one authorization decision.
func (p *Provider) ObserveDecision(allowed bool, reason string) {
	if p == nil {
		return
	}
	outcome := "deny"
	if allowed {
		outcome = "allow"
	}
	p.decisionCounter.WithLabelValues(outcome, reason).Inc()
}

// ObserveAuditEnqueued records an event accepted by the audit pipeline.
func (p *Provider) ObserveAuditEnqueued() {
	if p == nil {
		return
	}
	p.auditEnqueued.Inc()
}

// ObserveAuditDropped records an event lost to queue saturation.
func (p *Provider) ObserveAuditDropped() {
	if p == nil {
		return
	}
	p.auditDropped.Inc()
}

// SetAuditQueueDepth reports the current pipeline backlog.
func (p *Provider) SetAuditQueueDepth(depth int) {
	if p == nil {
		return
	}
	p.auditQueueDepth.Set(float64(depth))
}

// ObserveCacheHit records a permission cache hit.
func (p *Provider) ObserveCacheHit() {
	if p == nil {
		return
	}
	p.cacheHits.Inc()
}

// ObserveCacheMiss records a permission cache miss.
func (p *Provider) ObserveCacheMiss() {
	if p == nil {
		return
	}
	p.cacheMisses.Inc()
}
