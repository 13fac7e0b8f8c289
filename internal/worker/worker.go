// Package worker runs cross-checks requested over the event bus.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/tradeproof/internal/bus"
	"github.com/opensource-finance/tradeproof/internal/domain"
	"github.com/opensource-finance/tradeproof/internal/report"
)

// Worker consumes cross-check requests from the EventBus.
type Worker struct {
	bus      domain.EventBus
	pipeline *report.Pipeline

	mu            sync.Mutex
	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to subscribe for.
	TenantIDs []string
}

// NewWorker creates a new async worker.
func NewWorker(eventBus domain.EventBus, pipeline *report.Pipeline) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      eventBus,
		pipeline: pipeline,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start subscribes to cross-check requests for each tenant. A tenant whose
// subscription fails is logged and skipped.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.TenantIDs) == 0 {
		return errors.New("worker: at least one tenant is required")
	}

	for _, tenantID := range cfg.TenantIDs {
		if err := w.startTenantWorker(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"tenant_count", len(cfg.TenantIDs),
	)
	return nil
}

func (w *Worker) startTenantWorker(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicCrossCheckRequested, func(ctx context.Context, msg *domain.Message) error {
		w.wg.Add(1)
		defer w.wg.Done()
		return w.process(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.subscriptions = append(w.subscriptions, sub)
	w.mu.Unlock()

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicCrossCheckRequested,
	)
	return nil
}

// RequestMessage is the payload of a cross-check request.
type RequestMessage struct {
	TraceID string                   `json:"traceId,omitempty"`
	Request domain.CrossCheckRequest `json:"request"`
}

// Enqueue publishes a cross-check request for the worker.
func Enqueue(ctx context.Context, eventBus domain.EventBus, tenantID, traceID string, req domain.CrossCheckRequest) error {
	return bus.PublishJSON(ctx, eventBus, tenantID, domain.TopicCrossCheckRequested, RequestMessage{
		TraceID: traceID,
		Request: req,
	})
}

// CompletedMessage is published on the completed and discrepancy topics.
type CompletedMessage struct {
	TraceID string                 `json:"traceId,omitempty"`
	Report  *domain.ReportResponse `json:"report"`
}

// process runs one requested cross-check and publishes the outcome.
func (w *Worker) process(ctx context.Context, tenantID string, msg *domain.Message) error {
	start := time.Now()

	var in RequestMessage
	if err := json.Unmarshal(msg.Payload, &in); err != nil {
		slog.Error("failed to parse cross-check request",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	req := in.Request
	traceID := in.TraceID
	if traceID == "" {
		traceID = msg.ID
	}

	out, err := w.pipeline.Run(ctx, tenantID, traceID, &req)
	if err != nil {
		slog.Error("async cross-check failed",
			"tenant_id", tenantID,
			"trade_id", req.TradeID,
			"trace_id", traceID,
			"error", err,
		)
		return err
	}

	completed := CompletedMessage{TraceID: traceID, Report: out.Response()}
	if err := bus.PublishJSON(ctx, w.bus, tenantID, domain.TopicCrossCheckCompleted, completed); err != nil {
		slog.Error("failed to publish cross-check result",
			"report_id", out.Report.ID,
			"error", err,
		)
	}

	if report.ShouldAlert(out.Report) {
		if err := bus.PublishJSON(ctx, w.bus, tenantID, domain.TopicCrossCheckDiscrepancy, completed); err != nil {
			slog.Error("failed to publish discrepancy",
				"report_id", out.Report.ID,
				"error", err,
			)
		}
	}

	if out.AuditEvent != nil {
		if err := bus.PublishJSON(ctx, w.bus, tenantID, domain.TopicAuditAppended, out.AuditEvent); err != nil {
			slog.Error("failed to publish audit event",
				"event_id", out.AuditEvent.ID,
				"error", err,
			)
		}
	}

	slog.Info("async cross-check processed",
		"tenant_id", tenantID,
		"trade_id", req.TradeID,
		"report_id", out.Report.ID,
		"verdict", out.Report.Summary.Verdict,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Stop unsubscribes and waits for in-flight cross-checks.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil
	w.mu.Unlock()

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats reports the worker's subscriptions.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
