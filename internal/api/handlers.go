// Package api exposes the eligibility engine over HTTP. Handlers do
// request/response work only; all semantics live in the domain packages.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/covergate/eligibility-engine/internal/alerts"
	"github.com/covergate/eligibility-engine/internal/engine"
	"github.com/covergate/eligibility-engine/internal/model"
	"github.com/covergate/eligibility-engine/internal/monitor"
	"github.com/covergate/eligibility-engine/internal/scheduler"
	"github.com/covergate/eligibility-engine/internal/storage"
)

// Handler holds the dependencies of all HTTP handlers
type Handler struct {
	logger     *zap.Logger
	engine     *engine.Engine
	conditions storage.ConditionStore
	results    storage.ResultStore
	alerts     *alerts.Manager
	sweeper    *scheduler.Sweeper
	metrics    *monitor.MetricsCollector
	snapshots  sync.Map
	now        func() time.Time
}

// NewHandler creates a new API handler
func NewHandler(logger *zap.Logger, eng *engine.Engine, conditions storage.ConditionStore,
	results storage.ResultStore, manager *alerts.Manager, sweeper *scheduler.Sweeper,
	metrics *monitor.MetricsCollector) *Handler {
	return &Handler{
		logger:     logger.Named("api"),
		engine:     eng,
		conditions: conditions,
		results:    results,
		alerts:     manager,
		sweeper:    sweeper,
		metrics:    metrics,
		now:        time.Now,
	}
}

// GetSubject implements engine.SubjectProvider from the snapshots taken on
// each evaluate request, so recheck actions see the latest pushed facts
func (h *Handler) GetSubject(ctx context.Context, subjectID string) (*model.Subject, error) {
	val, ok := h.snapshots.Load(subjectID)
	if !ok {
		return nil, storage.ErrNotFound
	}
	return val.(*model.Subject), nil
}

// Evaluate handles POST /api/subjects/{id}/evaluate
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "id")

	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Category == "" {
		h.respondError(w, http.StatusBadRequest, "category is required")
		return
	}

	subject := &model.Subject{
		ID:     subjectID,
		Data:   req.Data,
		Claims: req.Claims,
	}
	h.snapshots.Store(subjectID, subject)

	result := h.engine.Evaluate(r.Context(), subject, req.Category)
	if h.metrics != nil {
		h.metrics.RecordEvaluation(result.IsEligible, len(result.Warnings))
	}

	h.respondJSON(w, http.StatusOK, result)
}

// ListResults handles GET /api/subjects/{id}/results
func (h *Handler) ListResults(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "id")
	limit := queryInt(r, "limit", 20)

	results, err := h.results.ListResults(r.Context(), subjectID, limit)
	if err != nil {
		h.logger.Error("Failed to list results", zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "failed to list results")
		return
	}
	h.respondJSON(w, http.StatusOK, results)
}

// ListAlerts handles GET /api/alerts
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	filter := storage.AlertFilter{
		SubjectID: r.URL.Query().Get("subject_id"),
		Limit:     queryInt(r, "limit", 50),
		Offset:    queryInt(r, "offset", 0),
	}
	for _, s := range splitParam(r.URL.Query().Get("status")) {
		filter.Status = append(filter.Status, model.AlertStatus(s))
	}
	for _, p := range splitParam(r.URL.Query().Get("priority")) {
		filter.Priority = append(filter.Priority, model.Priority(p))
	}

	list, err := h.alerts.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list alerts", zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}
	h.respondJSON(w, http.StatusOK, list)
}

// CancelAlert handles POST /api/alerts/{id}/cancel
func (h *Handler) CancelAlert(w http.ResponseWriter, r *http.Request) {
	alertID := chi.URLParam(r, "id")

	err := h.alerts.CancelAlert(r.Context(), alertID)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, storage.ErrNotFound):
		h.respondError(w, http.StatusNotFound, "alert not found")
	case errors.Is(err, alerts.ErrAlertTerminal):
		h.respondError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error("Failed to cancel alert", zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "failed to cancel alert")
	}
}

// Tick handles POST /api/tick, the manual sweep trigger
func (h *Handler) Tick(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	executed, err := h.sweeper.Tick(r.Context(), now)
	if err != nil {
		if errors.Is(err, alerts.ErrSweepInProgress) {
			h.respondError(w, http.StatusConflict, "sweep already in progress")
			return
		}
		h.logger.Error("Manual sweep failed", zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "sweep failed")
		return
	}
	if h.metrics != nil {
		h.metrics.RecordSweep(executed)
	}
	h.respondJSON(w, http.StatusOK, TickResponse{Executed: executed, RanAt: now})
}

// ListConditions handles GET /api/conditions
func (h *Handler) ListConditions(w http.ResponseWriter, r *http.Request) {
	conditions, err := h.conditions.ListConditions(r.Context())
	if err != nil {
		h.logger.Error("Failed to list conditions", zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "failed to list conditions")
		return
	}
	h.respondJSON(w, http.StatusOK, conditions)
}

// GetCondition handles GET /api/conditions/{id}
func (h *Handler) GetCondition(w http.ResponseWriter, r *http.Request) {
	cond, err := h.conditions.GetCondition(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.respondError(w, http.StatusNotFound, "condition not found")
			return
		}
		h.logger.Error("Failed to get condition", zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "failed to get condition")
		return
	}
	h.respondJSON(w, http.StatusOK, cond)
}

// SaveCondition handles POST /api/conditions (create or replace)
func (h *Handler) SaveCondition(w http.ResponseWriter, r *http.Request) {
	var cond model.EligibilityCondition
	if err := json.NewDecoder(r.Body).Decode(&cond); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if cond.ID == "" || cond.Name == "" {
		h.respondError(w, http.StatusBadRequest, "id and name are required")
		return
	}
	if !cond.Priority.Valid() {
		h.respondError(w, http.StatusBadRequest, "unknown priority")
		return
	}

	now := h.now()
	if cond.CreatedAt.IsZero() {
		cond.CreatedAt = now
	}
	cond.UpdatedAt = now

	if err := h.conditions.SaveCondition(r.Context(), &cond); err != nil {
		h.logger.Error("Failed to save condition", zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "failed to save condition")
		return
	}
	h.respondJSON(w, http.StatusCreated, cond)
}

// Health handles GET /api/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Time: h.now()}
	if h.metrics != nil {
		stats := h.metrics.Stats()
		resp.Engine = &stats
	}
	h.respondJSON(w, http.StatusOK, resp)
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, ErrorResponse{Error: message})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func splitParam(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
