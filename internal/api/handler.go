package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/tradeproof/internal/audit"
	"github.com/opensource-finance/tradeproof/internal/crosscheck"
	"github.com/opensource-finance/tradeproof/internal/domain"
	"github.com/opensource-finance/tradeproof/internal/metrics"
	"github.com/opensource-finance/tradeproof/internal/report"
	"github.com/opensource-finance/tradeproof/internal/repository"
	"github.com/opensource-finance/tradeproof/internal/worker"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	engine   *crosscheck.Engine
	chain    *audit.Chain
	pipeline *report.Pipeline
	metrics  *metrics.Metrics
	version  string
}

// NewHandler creates a new API handler. Without a repository the audit
// chain is kept in memory.
func NewHandler(deps Deps) *Handler {
	engine := deps.Engine
	if engine == nil {
		engine = crosscheck.NewEngine()
	}
	processor := deps.Processor
	if processor == nil {
		processor = report.NewProcessor()
	}
	chain := deps.Chain
	if chain == nil {
		var store domain.AuditStore = audit.NewMemoryStore()
		if deps.Repo != nil {
			store = deps.Repo
		}
		chain = audit.NewChain(store, deps.Metrics)
	}

	return &Handler{
		repo:     deps.Repo,
		cache:    deps.Cache,
		bus:      deps.Bus,
		engine:   engine,
		chain:    chain,
		pipeline: report.NewPipeline(engine, processor, deps.Repo, deps.Cache, chain, deps.Metrics),
		metrics:  deps.Metrics,
		version:  deps.Version,
	}
}

// CrossCheck handles POST /crosscheck: run the engine, persist the report
// and append it to the trade's audit chain.
func (h *Handler) CrossCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req domain.CrossCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}

	out, err := h.pipeline.Run(ctx, tenantID, GetTraceID(ctx), &req)
	if errors.Is(err, report.ErrInvalidRequest) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		slog.Error("cross-check failed",
			"tenant_id", tenantID,
			"trade_id", req.TradeID,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "cross-check failed")
		return
	}

	writeJSON(w, http.StatusOK, out.Response())
}

// CrossCheckAsync handles POST /crosscheck/async by queueing the request
// for the worker.
func (h *Handler) CrossCheckAsync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)

	if h.bus == nil {
		writeError(w, http.StatusServiceUnavailable, "event bus not available")
		return
	}

	var req domain.CrossCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := worker.Enqueue(ctx, h.bus, tenantID, traceID, req); err != nil {
		slog.Error("failed to queue cross-check", "trade_id", req.TradeID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "failed to queue cross-check")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":  "accepted",
		"tradeId": req.TradeID,
		"traceId": traceID,
	})
}

// GetReport retrieves a report by ID, cache first.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	reportID := chi.URLParam(r, "id")

	if h.cache != nil {
		if cached, err := h.cache.GetReport(ctx, tenantID, reportID); err == nil && cached != nil {
			writeJSON(w, http.StatusOK, cached)
			return
		}
	}

	if h.repo == nil {
		writeError(w, http.StatusNotFound, "report not found")
		return
	}

	rep, err := h.repo.GetReport(ctx, tenantID, reportID)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "report not found")
		return
	}
	if err != nil {
		slog.Error("failed to get report", "report_id", reportID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load report")
		return
	}

	if h.cache != nil {
		if err := h.cache.SetReport(ctx, tenantID, rep, report.ReportCacheTTL); err != nil {
			slog.Warn("failed to cache report", "report_id", reportID, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, rep)
}

// ListTradeReports returns every report for a trade, oldest first.
func (h *Handler) ListTradeReports(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	tradeID := chi.URLParam(r, "tradeId")

	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return
	}

	reports, err := h.repo.ListReportsByTrade(ctx, tenantID, tradeID)
	if err != nil {
		slog.Error("failed to list reports", "trade_id", tradeID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list reports")
		return
	}

	responses := make([]*domain.ReportResponse, 0, len(reports))
	for _, rep := range reports {
		responses = append(responses, rep.ToResponse())
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"tradeId": tradeID,
		"reports": responses,
		"count":   len(responses),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready reports whether the repository and event bus are reachable.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"ready": "false", "reason": "repository"})
			return
		}
	}
	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"ready": "false", "reason": "event bus"})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
