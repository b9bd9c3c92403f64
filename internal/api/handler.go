package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/mvnascimento/queuewatch/internal/chatapi"
	"github.com/mvnascimento/queuewatch/internal/coordinator"
	"github.com/mvnascimento/queuewatch/internal/health"
	"github.com/mvnascimento/queuewatch/internal/metrics"
	"github.com/mvnascimento/queuewatch/internal/settings"
	"github.com/mvnascimento/queuewatch/internal/store"
)

// Cycler is the coordinator surface exposed to operators.
type Cycler interface {
	RunCycle(ctx context.Context) coordinator.CycleResult
	Evaluate30Min(ctx context.Context, entities []chatapi.WaitingEntity) []chatapi.WaitingEntity
	EvaluateEndOfDay(ctx context.Context, entities []chatapi.WaitingEntity) []chatapi.WaitingEntity
	Cleanup(ctx context.Context) int
}

// StorageAdmin is the orchestrator surface exposed to operators.
type StorageAdmin interface {
	GetEntries(ctx context.Context) []store.ExclusionEntry
	IsExcluded(ctx context.Context, entityID string, mt store.MessageType) bool
	Reconnect(ctx context.Context) bool
	UsingRemote() bool
	Stats() health.Stats
}

// ErrorResponse represents an error in problem+json format
type ErrorResponse struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Handler holds dependencies for the admin API handlers
type Handler struct {
	logger   *zap.Logger
	cycler   Cycler
	storage  StorageAdmin
	settings *settings.Manager
}

// NewHandler creates the admin API handler
func NewHandler(logger *zap.Logger, cycler Cycler, storage StorageAdmin, mgr *settings.Manager) *Handler {
	return &Handler{
		logger:   logger,
		cycler:   cycler,
		storage:  storage,
		settings: mgr,
	}
}

// Router assembles the admin API routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(RequestLogger(h.logger))

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/config", h.GetConfig)
		r.Patch("/config", h.UpdateConfig)

		r.Post("/cycles", h.RunCycle)

		r.Post("/eligibility/30min", h.Evaluate30Min)
		r.Post("/eligibility/end-of-day", h.EvaluateEndOfDay)

		r.Get("/exclusions", h.ListExclusions)
		r.Get("/exclusions/check", h.CheckExclusion)
		r.Post("/exclusions/cleanup", h.CleanupExclusions)

		r.Get("/storage/status", h.StorageStatus)
		r.Post("/storage/reconnect", h.Reconnect)
	})

	return r
}

// Health handles GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetConfig handles GET /v1/config
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.settings.Current())
}

// UpdateConfig handles PATCH /v1/config. An invalid patch changes nothing.
func (h *Handler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var patch settings.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	if err := h.settings.Update(r.Context(), patch); err != nil {
		h.writeError(w, http.StatusUnprocessableEntity, "invalid_config", "Configuration rejected", err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, h.settings.Current())
}

// RunCycle handles POST /v1/cycles — the manual trigger for one tick.
func (h *Handler) RunCycle(w http.ResponseWriter, r *http.Request) {
	result := h.cycler.RunCycle(r.Context())
	h.writeJSON(w, http.StatusOK, result)
}

type eligibilityRequest struct {
	Entities []chatapi.WaitingEntity `json:"entities"`
}

// Evaluate30Min handles POST /v1/eligibility/30min
func (h *Handler) Evaluate30Min(w http.ResponseWriter, r *http.Request) {
	var req eligibilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	eligible := h.cycler.Evaluate30Min(r.Context(), req.Entities)
	h.writeJSON(w, http.StatusOK, map[string]any{"eligible": emptyIfNil(eligible)})
}

// EvaluateEndOfDay handles POST /v1/eligibility/end-of-day
func (h *Handler) EvaluateEndOfDay(w http.ResponseWriter, r *http.Request) {
	var req eligibilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	eligible := h.cycler.EvaluateEndOfDay(r.Context(), req.Entities)
	h.writeJSON(w, http.StatusOK, map[string]any{"eligible": emptyIfNil(eligible)})
}

// ListExclusions handles GET /v1/exclusions
func (h *Handler) ListExclusions(w http.ResponseWriter, r *http.Request) {
	entries := h.storage.GetEntries(r.Context())
	if entries == nil {
		entries = []store.ExclusionEntry{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// CheckExclusion handles GET /v1/exclusions/check?entity_id=...&message_type=...
func (h *Handler) CheckExclusion(w http.ResponseWriter, r *http.Request) {
	entityID := r.URL.Query().Get("entity_id")
	mt := store.MessageType(r.URL.Query().Get("message_type"))

	if entityID == "" || !mt.Valid() {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing or invalid parameters",
			"entity_id is required and message_type must be 30min or end_of_day")
		return
	}

	excluded := h.storage.IsExcluded(r.Context(), entityID, mt)
	h.writeJSON(w, http.StatusOK, map[string]any{
		"entity_id":    entityID,
		"message_type": mt,
		"excluded":     excluded,
	})
}

// CleanupExclusions handles POST /v1/exclusions/cleanup
func (h *Handler) CleanupExclusions(w http.ResponseWriter, r *http.Request) {
	removed := h.cycler.Cleanup(r.Context())
	h.writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

// StorageStatus handles GET /v1/storage/status
func (h *Handler) StorageStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"using_remote": h.storage.UsingRemote(),
		"remote":       h.storage.Stats(),
	})
}

// Reconnect handles POST /v1/storage/reconnect — the manual path back to
// the remote store after a failover.
func (h *Handler) Reconnect(w http.ResponseWriter, r *http.Request) {
	ok := h.storage.Reconnect(r.Context())
	status := http.StatusOK
	if !ok {
		status = http.StatusBadGateway
	}
	h.writeJSON(w, status, map[string]any{
		"reconnected":  ok,
		"using_remote": h.storage.UsingRemote(),
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, errType, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Type:   errType,
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

func emptyIfNil(entities []chatapi.WaitingEntity) []chatapi.WaitingEntity {
	if entities == nil {
		return []chatapi.WaitingEntity{}
	}
	return entities
}
