package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/tradeproof/internal/audit"
	"github.com/opensource-finance/tradeproof/internal/bus"
	"github.com/opensource-finance/tradeproof/internal/domain"
)

// maxVerifyTrades caps one POST /audit/verify request.
const maxVerifyTrades = 100

// AppendEvent handles POST /trades/{tradeId}/events.
func (h *Handler) AppendEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	tradeID := chi.URLParam(r, "tradeId")

	var req domain.AppendEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}

	event, err := h.chain.Append(ctx, tenantID, tradeID, req.EventType, req.EventData)
	if errors.Is(err, audit.ErrInvalidEvent) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if errors.Is(err, domain.ErrChainConflict) {
		writeError(w, http.StatusConflict, "audit chain is busy, retry")
		return
	}
	if err != nil {
		slog.Error("failed to append audit event", "trade_id", tradeID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to append event")
		return
	}

	if h.bus != nil {
		if err := bus.PublishJSON(ctx, h.bus, tenantID, domain.TopicAuditAppended, event); err != nil {
			slog.Warn("failed to publish audit event", "event_id", event.ID, "error", err)
		}
	}

	writeJSON(w, http.StatusCreated, event)
}

// ListEvents returns a trade's chain in append order.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tradeID := chi.URLParam(r, "tradeId")

	events, err := h.chain.Events(ctx, GetTenantID(ctx), tradeID)
	if err != nil {
		slog.Error("failed to list audit events", "trade_id", tradeID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	if events == nil {
		events = []*domain.AuditEvent{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"tradeId": tradeID,
		"events":  events,
		"count":   len(events),
	})
}

// VerifyTrade verifies one trade's chain. A broken chain is still a 200;
// the body says where it broke.
func (h *Handler) VerifyTrade(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tradeID := chi.URLParam(r, "tradeId")

	res, err := h.chain.Verify(ctx, GetTenantID(ctx), tradeID)
	if err != nil {
		slog.Error("failed to verify chain", "trade_id", tradeID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to verify chain")
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// VerifyTrades handles POST /audit/verify for several trades at once.
func (h *Handler) VerifyTrades(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req domain.VerifyTradesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if len(req.TradeIDs) == 0 {
		writeError(w, http.StatusBadRequest, "tradeIds is required")
		return
	}
	if len(req.TradeIDs) > maxVerifyTrades {
		writeError(w, http.StatusBadRequest, "too many tradeIds")
		return
	}

	results, err := h.chain.VerifyTrades(ctx, GetTenantID(ctx), req.TradeIDs)
	if err != nil {
		slog.Error("failed to verify chains", "count", len(req.TradeIDs), "error", err)
		writeError(w, http.StatusInternalServerError, "failed to verify chains")
		return
	}

	allValid := true
	for _, res := range results {
		allValid = allValid && res.Valid
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"valid":   allValid,
		"results": results,
	})
}
