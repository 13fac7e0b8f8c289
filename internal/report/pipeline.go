package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/tradeproof/internal/audit"
	"github.com/opensource-finance/tradeproof/internal/crosscheck"
	"github.com/opensource-finance/tradeproof/internal/domain"
	"github.com/opensource-finance/tradeproof/internal/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrInvalidRequest wraps cross-check request validation failures.
var ErrInvalidRequest = errors.New("invalid cross-check request")

// ReportCacheTTL is how long a fresh report stays in the cache.
const ReportCacheTTL = 10 * time.Minute

var tracer = otel.Tracer("tradeproof-report")

// Pipeline runs a cross-check end to end: engine, report, persistence and
// the audit chain. Both the HTTP handlers and the async worker use it.
type Pipeline struct {
	engine    *crosscheck.Engine
	processor *Processor
	repo      domain.Repository
	cache     domain.Cache
	chain     *audit.Chain
	metrics   *metrics.Metrics
}

// NewPipeline creates a pipeline. repo, cache, chain and m may be nil;
// the corresponding step is skipped.
func NewPipeline(engine *crosscheck.Engine, processor *Processor, repo domain.Repository, cache domain.Cache, chain *audit.Chain, m *metrics.Metrics) *Pipeline {
	return &Pipeline{
		engine:    engine,
		processor: processor,
		repo:      repo,
		cache:     cache,
		chain:     chain,
		metrics:   m,
	}
}

// Outcome is a finished cross-check.
type Outcome struct {
	Report     *domain.Report
	AuditEvent *domain.AuditEvent
}

// Run validates req and cross-checks it for tenantID.
func (p *Pipeline) Run(ctx context.Context, tenantID, traceID string, req *domain.CrossCheckRequest) (*Outcome, error) {
	start := time.Now()

	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	ctx, span := tracer.Start(ctx, "crosscheck.run",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.String("trade.id", req.TradeID),
			attribute.Int("documents", len(req.Documents)),
		),
	)
	defer span.End()

	results, summary := p.engine.Check(tenantID, req.LC, req.Documents)
	checkMs := time.Since(start).Milliseconds()

	customRules := 0
	if rs := p.engine.Rules(); rs != nil {
		customRules = rs.Count()
	}

	r, err := p.processor.Process(ctx, &Input{
		TenantID:    tenantID,
		TradeID:     req.TradeID,
		TraceID:     traceID,
		LC:          req.LC,
		Documents:   req.Documents,
		Results:     results,
		Summary:     summary,
		CheckMs:     checkMs,
		CustomRules: customRules,
		StartTime:   start,
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("report.id", r.ID),
		attribute.String("verdict", string(r.Summary.Verdict)),
	)

	// The chain entry goes first so a stored report always has one.
	out := &Outcome{Report: r}
	if p.chain != nil {
		event, err := p.chain.AppendValue(ctx, tenantID, req.TradeID, domain.EventCrossCheckCompleted, NewAuditPayload(r))
		if err != nil {
			return nil, fmt.Errorf("failed to append audit event: %w", err)
		}
		out.AuditEvent = event
	}

	if p.repo != nil {
		if err := p.repo.SaveReport(ctx, tenantID, r); err != nil {
			return nil, fmt.Errorf("failed to save report: %w", err)
		}
	}

	if p.cache != nil {
		if err := p.cache.SetReport(ctx, tenantID, r, ReportCacheTTL); err != nil {
			slog.Warn("failed to cache report",
				"report_id", r.ID,
				"error", err,
			)
		}
	}

	p.metrics.ObserveCrossCheck(string(summary.Verdict), summary.Matches, summary.Warnings, summary.Criticals, time.Since(start))

	slog.Info("cross-check completed",
		"tenant_id", tenantID,
		"trade_id", req.TradeID,
		"report_id", r.ID,
		"verdict", summary.Verdict,
		"total_checks", summary.TotalChecks,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return out, nil
}

// Response builds the API view of an outcome.
func (o *Outcome) Response() *domain.ReportResponse {
	resp := o.Report.ToResponse()
	if o.AuditEvent != nil {
		resp.AuditEventID = o.AuditEvent.ID
	}
	return resp
}
