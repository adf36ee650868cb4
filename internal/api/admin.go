package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/promptgate/promptgate/internal/auth"
	"github.com/promptgate/promptgate/internal/crypto"
	"github.com/promptgate/promptgate/internal/domain"
	"github.com/promptgate/promptgate/internal/repository"
	"github.com/promptgate/promptgate/internal/secrets"
)

type AdminConfig struct {
	ModelRepo    repository.ModelRepository
	PromptRepo   repository.PromptRepository
	VariableRepo repository.VariableRepository
	LogRepo      repository.LogRepository
	TenantRepo   repository.TenantRepository

	// Secrets is optional. When the store is managed out of band (AWS
	// Secrets Manager), leave it nil and the provider-key endpoint reports
	// the store as read-only.
	Secrets secrets.WritableSecretStore

	// RBAC is optional; when nil the admin surface is unguarded, which is
	// only acceptable for local development.
	RBAC *auth.RBACMiddleware
}

type AdminHandler struct {
	models    repository.ModelRepository
	prompts   repository.PromptRepository
	variables repository.VariableRepository
	logs      repository.LogRepository
	tenants   repository.TenantRepository
	secrets   secrets.WritableSecretStore
	handler   http.Handler
}

func NewAdminHandler(cfg AdminConfig) *AdminHandler {
	h := &AdminHandler{
		models:    cfg.ModelRepo,
		prompts:   cfg.PromptRepo,
		variables: cfg.VariableRepo,
		logs:      cfg.LogRepo,
		tenants:   cfg.TenantRepo,
		secrets:   cfg.Secrets,
	}

	guard := func(p auth.Permission, fn http.HandlerFunc) http.Handler {
		if cfg.RBAC == nil {
			return fn
		}
		return cfg.RBAC.RequirePermission(p)(fn)
	}

	mux := http.NewServeMux()

	mux.Handle("GET /admin/tenants", guard(auth.PermissionTenantWrite, h.listTenants))
	mux.Handle("POST /admin/tenants", guard(auth.PermissionTenantWrite, h.createTenant))
	mux.Handle("GET /admin/tenants/{tenantID}", guard(auth.PermissionTenantWrite, h.getTenant))
	mux.Handle("POST /admin/tenants/{tenantID}/rotate-key", guard(auth.PermissionTenantWrite, h.rotateAPIKey))
	mux.Handle("PUT /admin/tenants/{tenantID}/provider-key", guard(auth.PermissionTenantWrite, h.putProviderKey))

	mux.Handle("GET /admin/tenants/{tenantID}/models", guard(auth.PermissionModelRead, h.listModels))
	mux.Handle("POST /admin/tenants/{tenantID}/models", guard(auth.PermissionModelWrite, h.createModel))
	mux.Handle("GET /admin/tenants/{tenantID}/models/{id}", guard(auth.PermissionModelRead, h.getModel))
	mux.Handle("PUT /admin/tenants/{tenantID}/models/{id}", guard(auth.PermissionModelWrite, h.updateModel))
	mux.Handle("DELETE /admin/tenants/{tenantID}/models/{id}", guard(auth.PermissionModelWrite, h.deleteModel))

	mux.Handle("GET /admin/tenants/{tenantID}/prompts", guard(auth.PermissionPromptRead, h.listPrompts))
	mux.Handle("POST /admin/tenants/{tenantID}/prompts", guard(auth.PermissionPromptWrite, h.createPrompt))
	mux.Handle("GET /admin/tenants/{tenantID}/prompts/{id}", guard(auth.PermissionPromptRead, h.getPrompt))
	mux.Handle("PUT /admin/tenants/{tenantID}/prompts/{id}", guard(auth.PermissionPromptWrite, h.updatePrompt))
	mux.Handle("DELETE /admin/tenants/{tenantID}/prompts/{id}", guard(auth.PermissionPromptWrite, h.deletePrompt))

	mux.Handle("GET /admin/tenants/{tenantID}/variables", guard(auth.PermissionPromptRead, h.getVariables))
	mux.Handle("PUT /admin/tenants/{tenantID}/variables", guard(auth.PermissionPromptWrite, h.upsertVariables))

	mux.Handle("GET /admin/tenants/{tenantID}/logs", guard(auth.PermissionLogRead, h.listLogs))
	mux.Handle("DELETE /admin/tenants/{tenantID}/logs/{id}", guard(auth.PermissionLogDelete, h.deleteLog))

	h.handler = mux
	if cfg.RBAC != nil {
		h.handler = cfg.RBAC.RequireAuth(mux)
	}
	return h
}

func (h *AdminHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.handler.ServeHTTP(w, r)
}

func (h *AdminHandler) listTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.tenants.List(r.Context())
	if err != nil {
		writeAdminError(w, http.StatusInternalServerError, "failed to list tenants")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"tenants": tenants,
		"count":   len(tenants),
	})
}

type createTenantRequest struct {
	Name         string `json:"name"`
	RateLimitRPM int    `json:"rate_limit_rpm"`
}

func (h *AdminHandler) createTenant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAdminError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeAdminError(w, http.StatusBadRequest, "name is required")
		return
	}

	apiKey := generateAPIKey()
	now := time.Now()
	tenant := &domain.Tenant{
		ID:   uuid.New().String(),
		Name: req.Name,
		Keys: []domain.APIKeyEntry{
			{Description: "primary", Hash: crypto.HashAPIKey(apiKey), CreatedAt: now},
		},
		RateLimitRPM: req.RateLimitRPM,
		State:        domain.StateActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if tenant.RateLimitRPM == 0 {
		tenant.RateLimitRPM = 60
	}

	if err := h.tenants.Create(ctx, tenant); err != nil {
		slog.Error("failed to create tenant", "error", err)
		writeAdminError(w, http.StatusInternalServerError, "failed to create tenant")
		return
	}

	slog.Info("tenant created", "tenant_id", tenant.ID, "name", tenant.Name)

	// The plaintext key is returned exactly once; only the hash is stored.
	writeJSON(w, http.StatusCreated, map[string]any{
		"tenant":  tenant,
		"api_key": apiKey,
	})
}

func (h *AdminHandler) getTenant(w http.ResponseWriter, r *http.Request) {
	tenant, err := h.tenants.GetByID(r.Context(), r.PathValue("tenantID"))
	if err != nil {
		writeAdminError(w, http.StatusNotFound, "tenant not found")
		return
	}
	writeJSON(w, http.StatusOK, tenant)
}

type rotateKeyRequest struct {
	Description string `json:"description"`
}

// rotateAPIKey mints a new key under the given description. An existing
// entry with that description is replaced; a new description is appended.
// Keys under other descriptions keep working.
func (h *AdminHandler) rotateAPIKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("tenantID")

	var req rotateKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAdminError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Description == "" {
		req.Description = "primary"
	}

	tenant, err := h.tenants.GetByID(ctx, id)
	if err != nil {
		writeAdminError(w, http.StatusNotFound, "tenant not found")
		return
	}

	apiKey := generateAPIKey()
	tenant.RotateKey(req.Description, crypto.HashAPIKey(apiKey), time.Now())

	if err := h.tenants.Update(ctx, tenant); err != nil {
		slog.Error("failed to rotate API key", "error", err, "tenant_id", id)
		writeAdminError(w, http.StatusInternalServerError, "failed to rotate API key")
		return
	}

	slog.Info("API key rotated", "tenant_id", id, "description", req.Description)

	writeJSON(w, http.StatusOK, map[string]string{
		"description": req.Description,
		"api_key":     apiKey,
	})
}

// putProviderKey stores the upstream provider credential for a tenant
// under the conventional secret name. The value is never readable back
// through the API.
func (h *AdminHandler) putProviderKey(w http.ResponseWriter, r *http.Request) {
	if h.secrets == nil {
		writeAdminError(w, http.StatusNotImplemented, "secret store is read-only; manage provider keys out of band")
		return
	}

	tenantID := r.PathValue("tenantID")

	var req struct {
		APIKey string `json:"api_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAdminError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.APIKey == "" {
		writeAdminError(w, http.StatusBadRequest, "api_key is required")
		return
	}

	name := secrets.ProviderKeyName(tenantID)
	if err := h.secrets.PutSecret(r.Context(), name, req.APIKey); err != nil {
		slog.Error("failed to store provider key", "error", err, "tenant_id", tenantID)
		writeAdminError(w, http.StatusInternalServerError, "failed to store provider key")
		return
	}

	slog.Info("provider key stored", "tenant_id", tenantID)
	writeJSON(w, http.StatusOK, map[string]string{"name": name})
}

func (h *AdminHandler) listModels(w http.ResponseWriter, r *http.Request) {
	models, err := h.models.List(r.Context(), r.PathValue("tenantID"))
	if err != nil {
		writeAdminError(w, http.StatusInternalServerError, "failed to list models")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": models, "count": len(models)})
}

func (h *AdminHandler) createModel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var model domain.ModelConfig
	if err := json.NewDecoder(r.Body).Decode(&model); err != nil {
		writeAdminError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if model.Name == "" || model.Type == "" || model.APICall.URL == "" {
		writeAdminError(w, http.StatusBadRequest, "name, type and api_call.url are required")
		return
	}

	model.TenantID = r.PathValue("tenantID")
	model.State = domain.StateActive
	model.CreatedAt = time.Now()
	model.UpdatedAt = model.CreatedAt

	if err := h.models.Create(ctx, &model); err != nil {
		slog.Error("failed to create model", "error", err)
		writeAdminError(w, http.StatusInternalServerError, "failed to create model")
		return
	}

	slog.Info("model created", "tenant_id", model.TenantID, "model_id", model.ID)
	writeJSON(w, http.StatusCreated, model)
}

func (h *AdminHandler) getModel(w http.ResponseWriter, r *http.Request) {
	model, err := h.models.GetByID(r.Context(), r.PathValue("tenantID"), r.PathValue("id"))
	if err != nil {
		writeAdminError(w, http.StatusNotFound, "model not found")
		return
	}
	writeJSON(w, http.StatusOK, model)
}

func (h *AdminHandler) updateModel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var model domain.ModelConfig
	if err := json.NewDecoder(r.Body).Decode(&model); err != nil {
		writeAdminError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	model.ID = r.PathValue("id")
	model.TenantID = r.PathValue("tenantID")

	if err := h.models.Update(ctx, &model); err != nil {
		writeAdminError(w, http.StatusNotFound, "model not found")
		return
	}

	slog.Info("model updated", "tenant_id", model.TenantID, "model_id", model.ID)
	writeJSON(w, http.StatusOK, model)
}

func (h *AdminHandler) deleteModel(w http.ResponseWriter, r *http.Request) {
	if err := h.models.SoftDelete(r.Context(), r.PathValue("tenantID"), r.PathValue("id")); err != nil {
		writeAdminError(w, http.StatusNotFound, "model not found")
		return
	}
	slog.Info("model deleted", "model_id", r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) listPrompts(w http.ResponseWriter, r *http.Request) {
	prompts, err := h.prompts.List(r.Context(), r.PathValue("tenantID"))
	if err != nil {
		writeAdminError(w, http.StatusInternalServerError, "failed to list prompts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"prompts": prompts, "count": len(prompts)})
}

func (h *AdminHandler) createPrompt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var prompt domain.PromptConfig
	if err := json.NewDecoder(r.Body).Decode(&prompt); err != nil {
		writeAdminError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if prompt.Name == "" || prompt.ModelID == "" {
		writeAdminError(w, http.StatusBadRequest, "name and model_id are required")
		return
	}
	if prompt.Template == "" && len(prompt.Turns) == 0 {
		writeAdminError(w, http.StatusBadRequest, "a template or turns are required")
		return
	}
	if prompt.Template != "" && len(prompt.Turns) > 0 {
		writeAdminError(w, http.StatusBadRequest, "template and turns are mutually exclusive")
		return
	}

	prompt.TenantID = r.PathValue("tenantID")
	prompt.State = domain.StateActive
	prompt.CreatedAt = time.Now()
	prompt.UpdatedAt = prompt.CreatedAt

	if err := h.prompts.Create(ctx, &prompt); err != nil {
		slog.Error("failed to create prompt", "error", err)
		writeAdminError(w, http.StatusInternalServerError, "failed to create prompt")
		return
	}

	slog.Info("prompt created", "tenant_id", prompt.TenantID, "prompt_id", prompt.ID)
	writeJSON(w, http.StatusCreated, prompt)
}

func (h *AdminHandler) getPrompt(w http.ResponseWriter, r *http.Request) {
	prompt, err := h.prompts.GetByID(r.Context(), r.PathValue("tenantID"), r.PathValue("id"))
	if err != nil {
		writeAdminError(w, http.StatusNotFound, "prompt not found")
		return
	}
	writeJSON(w, http.StatusOK, prompt)
}

func (h *AdminHandler) updatePrompt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var prompt domain.PromptConfig
	if err := json.NewDecoder(r.Body).Decode(&prompt); err != nil {
		writeAdminError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	prompt.ID = r.PathValue("id")
	prompt.TenantID = r.PathValue("tenantID")

	if err := h.prompts.Update(ctx, &prompt); err != nil {
		writeAdminError(w, http.StatusNotFound, "prompt not found")
		return
	}

	slog.Info("prompt updated", "tenant_id", prompt.TenantID, "prompt_id", prompt.ID)
	writeJSON(w, http.StatusOK, prompt)
}

func (h *AdminHandler) deletePrompt(w http.ResponseWriter, r *http.Request) {
	if err := h.prompts.SoftDelete(r.Context(), r.PathValue("tenantID"), r.PathValue("id")); err != nil {
		writeAdminError(w, http.StatusNotFound, "prompt not found")
		return
	}
	slog.Info("prompt deleted", "prompt_id", r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) getVariables(w http.ResponseWriter, r *http.Request) {
	values, err := h.variables.Get(r.Context(), r.PathValue("tenantID"))
	if err != nil {
		writeAdminError(w, http.StatusInternalServerError, "failed to load variables")
		return
	}
	if values == nil {
		values = map[string]any{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"variables": values})
}

// upsertVariables replaces the tenant's default variable document wholesale.
// One document per tenant; there is no separate create.
func (h *AdminHandler) upsertVariables(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("tenantID")

	var req struct {
		Variables map[string]any `json:"variables"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAdminError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Variables == nil {
		writeAdminError(w, http.StatusBadRequest, "variables is required")
		return
	}

	if err := h.variables.Upsert(r.Context(), tenantID, req.Variables); err != nil {
		slog.Error("failed to upsert variables", "error", err, "tenant_id", tenantID)
		writeAdminError(w, http.StatusInternalServerError, "failed to save variables")
		return
	}

	slog.Info("variables updated", "tenant_id", tenantID)
	writeJSON(w, http.StatusOK, map[string]any{"variables": req.Variables})
}

func (h *AdminHandler) listLogs(w http.ResponseWriter, r *http.Request) {
	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeAdminError(w, http.StatusBadRequest, "since must be RFC 3339")
			return
		}
		since = parsed
	}

	entries, err := h.logs.List(r.Context(), r.PathValue("tenantID"), since)
	if err != nil {
		writeAdminError(w, http.StatusInternalServerError, "failed to list log entries")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "count": len(entries)})
}

func (h *AdminHandler) deleteLog(w http.ResponseWriter, r *http.Request) {
	if err := h.logs.SoftDelete(r.Context(), r.PathValue("tenantID"), r.PathValue("id")); err != nil {
		writeAdminError(w, http.StatusNotFound, "log entry not found")
		return
	}
	slog.Info("log entry deleted", "entry_id", r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

func generateAPIKey() string {
	return "pg-" + uuid.New().String()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeAdminError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
