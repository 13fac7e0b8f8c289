package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/opensource-finance/tradeproof/internal/audit"
	"github.com/opensource-finance/tradeproof/internal/bus"
	"github.com/opensource-finance/tradeproof/internal/cache"
	"github.com/opensource-finance/tradeproof/internal/domain"
	"github.com/opensource-finance/tradeproof/internal/readiness"
	"github.com/opensource-finance/tradeproof/internal/repository"
)

// readinessCacheTTL bounds how long a score is reused for identical inputs.
const readinessCacheTTL = 10 * time.Minute

// ReadinessAuditPayload is the body of the readiness.scored audit event.
type ReadinessAuditPayload struct {
	AssessmentID string          `json:"assessmentId"`
	InputsDigest string          `json:"inputsDigest"`
	Score        int             `json:"score"`
	Verdict      domain.Severity `json:"verdict"`
}

// ScoreReadiness handles POST /readiness.
func (h *Handler) ScoreReadiness(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req domain.ReadinessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if req.Inputs.RequirementCount < 0 {
		writeError(w, http.StatusBadRequest, "inputs.requirementCount must not be negative")
		return
	}

	digest, err := audit.Digest(req.Inputs)
	if err != nil {
		writeError(w, http.StatusBadRequest, "inputs cannot be digested")
		return
	}

	a := &domain.ReadinessAssessment{
		ID:           uuid.New().String(),
		TenantID:     tenantID,
		TradeID:      req.TradeID,
		InputsDigest: digest,
		Inputs:       req.Inputs,
		Result:       h.score(ctx, tenantID, digest, req.Inputs),
		CreatedAt:    time.Now().UTC(),
	}

	if req.TradeID != "" {
		payload := ReadinessAuditPayload{
			AssessmentID: a.ID,
			InputsDigest: digest,
			Score:        a.Result.Score,
			Verdict:      a.Result.Verdict,
		}
		if _, err := h.chain.AppendValue(ctx, tenantID, req.TradeID, domain.EventReadinessScored, payload); err != nil {
			slog.Error("failed to append readiness event", "trade_id", req.TradeID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to record assessment")
			return
		}
	}

	if h.repo != nil {
		if err := h.repo.SaveAssessment(ctx, tenantID, a); err != nil {
			slog.Error("failed to save assessment", "assessment_id", a.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to save assessment")
			return
		}
	}

	h.metrics.IncrementReadiness(string(a.Result.Verdict))
	if h.bus != nil {
		if err := bus.PublishJSON(ctx, h.bus, tenantID, domain.TopicReadinessScored, a); err != nil {
			slog.Warn("failed to publish readiness score", "assessment_id", a.ID, "error", err)
		}
	}

	slog.Info("readiness scored",
		"tenant_id", tenantID,
		"assessment_id", a.ID,
		"score", a.Result.Score,
		"verdict", a.Result.Verdict,
	)

	writeJSON(w, http.StatusCreated, a)
}

// score reuses a cached result for identical inputs. Scoring is pure, so a
// hit is always equal to a fresh score.
func (h *Handler) score(ctx context.Context, tenantID, digest string, in domain.ReadinessInputs) domain.ReadinessResult {
	key := cache.ReadinessKey(digest)

	if h.cache != nil {
		if raw, err := h.cache.Get(ctx, tenantID, key); err == nil && raw != nil {
			var cached domain.ReadinessResult
			if err := json.Unmarshal(raw, &cached); err == nil {
				return cached
			}
		}
	}

	res := readiness.Score(in)

	if h.cache != nil {
		if raw, err := json.Marshal(res); err == nil {
			if err := h.cache.Set(ctx, tenantID, key, raw, readinessCacheTTL); err != nil {
				slog.Warn("failed to cache readiness score", "error", err)
			}
		}
	}
	return res
}

// GetAssessment retrieves a stored readiness assessment.
func (h *Handler) GetAssessment(w http.ResponseWriter, r *http.Request) {
	a, ok := h.loadAssessment(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// RecheckAssessment rescores the stored inputs and reports whether the
// stored result still holds.
func (h *Handler) RecheckAssessment(w http.ResponseWriter, r *http.Request) {
	a, ok := h.loadAssessment(w, r)
	if !ok {
		return
	}

	current := readiness.Score(a.Inputs)

	storedDigest, err := audit.Digest(a.Result)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to compare results")
		return
	}
	currentDigest, err := audit.Digest(current)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to compare results")
		return
	}

	writeJSON(w, http.StatusOK, domain.RecheckResponse{
		AssessmentID: a.ID,
		Stale:        storedDigest != currentDigest,
		Stored:       a.Result,
		Current:      current,
	})
}

func (h *Handler) loadAssessment(w http.ResponseWriter, r *http.Request) (*domain.ReadinessAssessment, bool) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return nil, false
	}

	a, err := h.repo.GetAssessment(ctx, GetTenantID(ctx), id)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "assessment not found")
		return nil, false
	}
	if err != nil {
		slog.Error("failed to get assessment", "assessment_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load assessment")
		return nil, false
	}
	return a, true
}
