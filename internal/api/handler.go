package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/promptgate/promptgate/internal/domain"
	"github.com/promptgate/promptgate/internal/metrics"
	"github.com/promptgate/promptgate/internal/ratelimit"
	"github.com/promptgate/promptgate/internal/repository"
)

// Generator is the orchestrator surface the handler calls. Generation runs
// in-process; there is no loopback HTTP hop between the API and the
// pipeline.
type Generator interface {
	GenerateByID(ctx context.Context, tenantID, promptID, modelID string, vars map[string]any, requestID string) domain.GenerationResult
}

type HandlerConfig struct {
	TenantRepo  repository.TenantRepository
	PromptRepo  repository.PromptRepository
	RateLimiter ratelimit.RateLimiter
	Generator   Generator
	Checkers    []HealthChecker
}

type Handler struct {
	tenantRepo  repository.TenantRepository
	promptRepo  repository.PromptRepository
	rateLimiter ratelimit.RateLimiter
	generator   Generator
	mux         *http.ServeMux
}

func NewHandler(cfg HandlerConfig) *Handler {
	h := &Handler{
		tenantRepo:  cfg.TenantRepo,
		promptRepo:  cfg.PromptRepo,
		rateLimiter: cfg.RateLimiter,
		generator:   cfg.Generator,
		mux:         http.NewServeMux(),
	}

	h.mux.HandleFunc("POST /v1/generate", h.handleGenerate)
	h.mux.HandleFunc("GET /v1/app/prompts", h.handleAppListPrompts)
	h.mux.HandleFunc("POST /v1/app/prompts/{id}/generate", h.handleAppGenerate)
	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.mux.HandleFunc("GET /health/live", h.handleHealthLive)
	h.mux.HandleFunc("GET /health/ready", handleHealthReadyWithCheckers(cfg.Checkers, 5*time.Second))
	h.mux.Handle("GET /metrics", promhttp.Handler())

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

type generateRequest struct {
	PromptID  string         `json:"prompt_id"`
	ModelID   string         `json:"model_id,omitempty"`
	Variables map[string]any `json:"variables,omitempty"`
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestIDFor(r)

	tenant, ok := h.authorize(w, r, requestID)
	if !ok {
		return
	}
	if !h.allow(w, tenant, requestID) {
		return
	}

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PromptID == "" {
		writeError(w, http.StatusBadRequest, "prompt_id is required")
		return
	}

	result := h.generator.GenerateByID(ctx, tenant.ID, req.PromptID, req.ModelID, req.Variables, requestID)
	writeResult(w, requestID, result)
}

// appPrompt is the restricted view app clients see: enough to render a
// form and call generate, nothing about models, parameters, or mappings.
type appPrompt struct {
	ID          string                `json:"id"`
	Name        string                `json:"name"`
	Description string                `json:"description,omitempty"`
	Variables   []domain.VariableSpec `json:"variables,omitempty"`
}

func (h *Handler) handleAppListPrompts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestIDFor(r)

	tenant, ok := h.authorize(w, r, requestID)
	if !ok {
		return
	}

	prompts, err := h.promptRepo.List(ctx, tenant.ID)
	if err != nil {
		slog.Error("prompt listing failed", "tenant_id", tenant.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	out := make([]appPrompt, 0, len(prompts))
	for _, p := range prompts {
		out = append(out, appPrompt{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
			Variables:   p.Variables,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"prompts": out,
		"count":   len(out),
	})
}

func (h *Handler) handleAppGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestIDFor(r)
	promptID := r.PathValue("id")

	tenant, ok := h.authorize(w, r, requestID)
	if !ok {
		return
	}
	if !h.allow(w, tenant, requestID) {
		return
	}

	var req struct {
		Variables map[string]any `json:"variables,omitempty"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	result := h.generator.GenerateByID(ctx, tenant.ID, promptID, "", req.Variables, requestID)
	writeResult(w, requestID, result)
}

func (h *Handler) authorize(w http.ResponseWriter, r *http.Request, requestID string) (*domain.Tenant, bool) {
	apiKey := extractAPIKey(r)
	if apiKey == "" {
		writeError(w, http.StatusUnauthorized, "missing API key")
		return nil, false
	}

	tenant, err := h.tenantRepo.GetByAPIKey(r.Context(), apiKey)
	if err != nil {
		slog.Warn("invalid API key", "error", err, "request_id", requestID)
		writeError(w, http.StatusUnauthorized, "invalid API key")
		return nil, false
	}
	return tenant, true
}

func (h *Handler) allow(w http.ResponseWriter, tenant *domain.Tenant, requestID string) bool {
	allowed, remaining, resetAt, err := h.rateLimiter.Allow(context.Background(), tenant.ID, tenant.RateLimitRPM)
	if err != nil {
		slog.Error("rate limiter error", "error", err, "request_id", requestID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return false
	}

	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(tenant.RateLimitRPM))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	w.Header().Set("X-RateLimit-Reset", resetAt.Format(time.RFC3339))

	if !allowed {
		slog.Warn("rate limit exceeded", "tenant_id", tenant.ID, "request_id", requestID)
		metrics.RecordRateLimitHit(tenant.ID)
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return false
	}
	return true
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

func (h *Handler) handleHealthLive(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func requestIDFor(r *http.Request) string {
	if id := r.Header.Get("X-Request-ID"); id != "" {
		return id
	}
	return uuid.New().String()
}

func extractAPIKey(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// writeResult relays the orchestrator's verdict unchanged: the HTTP status
// is the result status.
func writeResult(w http.ResponseWriter, requestID string, result domain.GenerationResult) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(result.Status)
	json.NewEncoder(w).Encode(result)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    status,
		},
	})
}
