package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/tradeproof/internal/crosscheck"
	"github.com/opensource-finance/tradeproof/internal/domain"
	"github.com/opensource-finance/tradeproof/internal/repository"
)

// visibleRules returns the loaded rules that apply to tenantID.
func (h *Handler) visibleRules(tenantID string) []*domain.RuleConfig {
	out := []*domain.RuleConfig{}
	rs := h.engine.Rules()
	if rs == nil {
		return out
	}
	for _, rule := range rs.Loaded() {
		if rule.TenantID == tenantID || rule.TenantID == crosscheck.GlobalTenant || rule.TenantID == "" {
			out = append(out, rule)
		}
	}
	return out
}

// ListRules returns the loaded rules visible to the tenant.
// Rules are loaded from the database at startup and by POST /rules/reload.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules := h.visibleRules(GetTenantID(r.Context()))

	writeJSON(w, http.StatusOK, map[string]any{
		"rules":  rules,
		"count":  len(rules),
		"source": "database",
	})
}

// GetRule retrieves a loaded rule by ID.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	for _, rule := range h.visibleRules(GetTenantID(r.Context())) {
		if rule.ID == ruleID {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}

	writeError(w, http.StatusNotFound, "rule not found")
}

// CreateRuleRequest is the request body for creating a rule.
type CreateRuleRequest struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	Description  string              `json:"description,omitempty"`
	DocumentType domain.DocumentType `json:"documentType"`
	Expression   string              `json:"expression"`
	Severity     domain.Severity     `json:"severity"`
	RuleRef      string              `json:"ruleRef"`
	Explanation  string              `json:"explanation"`
	Enabled      bool                `json:"enabled"`

	// Global saves the rule for every tenant.
	Global bool `json:"global,omitempty"`
}

// CreateRule validates a rule and saves it. It takes effect after
// POST /rules/reload.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}

	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeError(w, http.StatusBadRequest, "id, name, and expression are required")
		return
	}

	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return
	}

	owner := GetTenantID(ctx)
	if req.Global {
		owner = crosscheck.GlobalTenant
	}

	now := time.Now().UTC()
	rule := &domain.RuleConfig{
		ID:           req.ID,
		TenantID:     owner,
		Name:         req.Name,
		Description:  req.Description,
		Version:      "1.0.0",
		DocumentType: req.DocumentType,
		Expression:   req.Expression,
		Severity:     req.Severity,
		RuleRef:      req.RuleRef,
		Explanation:  req.Explanation,
		Enabled:      req.Enabled,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if rs := h.engine.Rules(); rs != nil {
		if err := rs.Validate(rule); err != nil {
			writeError(w, http.StatusBadRequest, "invalid rule: "+err.Error())
			return
		}
	}

	err := h.repo.SaveRuleConfig(ctx, owner, rule)
	if errors.Is(err, repository.ErrConflict) {
		writeError(w, http.StatusConflict, "rule id is already in use")
		return
	}
	if err != nil {
		slog.Error("failed to save rule config", "id", rule.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save rule")
		return
	}

	slog.Info("rule created", "id", rule.ID, "tenant_id", owner)
	writeJSON(w, http.StatusCreated, map[string]any{
		"rule":    rule,
		"message": "Rule created. Call POST /rules/reload to apply changes.",
	})
}

// ReloadRules reloads every enabled rule from the database. On a compile
// error the previous rule set stays active.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return
	}
	rs := h.engine.Rules()
	if rs == nil {
		writeError(w, http.StatusServiceUnavailable, "custom rules not enabled")
		return
	}

	dbRules, err := h.repo.ListAllRuleConfigs(ctx)
	if err != nil {
		slog.Error("failed to list rules from database", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load rules from database")
		return
	}

	if err := rs.Reload(dbRules); err != nil {
		slog.Error("failed to reload rules", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to reload rules: "+err.Error())
		return
	}

	slog.Info("rules reloaded from database", "count", rs.Count())
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "rules reloaded successfully",
		"count":   rs.Count(),
	})
}
