package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/promptgate/promptgate/internal/crypto"
	"github.com/promptgate/promptgate/internal/domain"
)

type InMemoryModelRepository struct {
	mu     sync.RWMutex
	models map[string]*domain.ModelConfig
}

func NewInMemoryModelRepository() *InMemoryModelRepository {
	return &InMemoryModelRepository{models: make(map[string]*domain.ModelConfig)}
}

func (r *InMemoryModelRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.ModelConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	model, ok := r.models[id]
	if !ok || model.TenantID != tenantID || model.State == domain.StateDeleted {
		return nil, domain.ErrModelNotFound
	}
	return model, nil
}

func (r *InMemoryModelRepository) List(ctx context.Context, tenantID string) ([]*domain.ModelConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var models []*domain.ModelConfig
	for _, model := range r.models {
		if model.TenantID == tenantID && model.State != domain.StateDeleted {
			models = append(models, model)
		}
	}
	return models, nil
}

func (r *InMemoryModelRepository) Create(ctx context.Context, model *domain.ModelConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if model.ID == "" {
		model.ID = uuid.New().String()
	}
	if model.State == "" {
		model.State = domain.StateActive
	}
	r.models[model.ID] = model
	return nil
}

func (r *InMemoryModelRepository) Update(ctx context.Context, model *domain.ModelConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.models[model.ID]
	if !ok || existing.TenantID != model.TenantID {
		return domain.ErrModelNotFound
	}
	model.UpdatedAt = time.Now()
	r.models[model.ID] = model
	return nil
}

func (r *InMemoryModelRepository) SoftDelete(ctx context.Context, tenantID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	model, ok := r.models[id]
	if !ok || model.TenantID != tenantID || model.State == domain.StateDeleted {
		return domain.ErrModelNotFound
	}
	model.State = domain.StateDeleted
	model.UpdatedAt = time.Now()
	return nil
}

type InMemoryPromptRepository struct {
	mu      sync.RWMutex
	prompts map[string]*domain.PromptConfig
}

func NewInMemoryPromptRepository() *InMemoryPromptRepository {
	return &InMemoryPromptRepository{prompts: make(map[string]*domain.PromptConfig)}
}

func (r *InMemoryPromptRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.PromptConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	prompt, ok := r.prompts[id]
	if !ok || prompt.TenantID != tenantID || prompt.State == domain.StateDeleted {
		return nil, domain.ErrPromptNotFound
	}
	return prompt, nil
}

func (r *InMemoryPromptRepository) List(ctx context.Context, tenantID string) ([]*domain.PromptConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var prompts []*domain.PromptConfig
	for _, prompt := range r.prompts {
		if prompt.TenantID == tenantID && prompt.State != domain.StateDeleted {
			prompts = append(prompts, prompt)
		}
	}
	return prompts, nil
}

func (r *InMemoryPromptRepository) Create(ctx context.Context, prompt *domain.PromptConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prompt.ID == "" {
		prompt.ID = uuid.New().String()
	}
	if prompt.State == "" {
		prompt.State = domain.StateActive
	}
	r.prompts[prompt.ID] = prompt
	return nil
}

func (r *InMemoryPromptRepository) Update(ctx context.Context, prompt *domain.PromptConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.prompts[prompt.ID]
	if !ok || existing.TenantID != prompt.TenantID {
		return domain.ErrPromptNotFound
	}
	prompt.UpdatedAt = time.Now()
	r.prompts[prompt.ID] = prompt
	return nil
}

func (r *InMemoryPromptRepository) SoftDelete(ctx context.Context, tenantID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prompt, ok := r.prompts[id]
	if !ok || prompt.TenantID != tenantID || prompt.State == domain.StateDeleted {
		return domain.ErrPromptNotFound
	}
	prompt.State = domain.StateDeleted
	prompt.UpdatedAt = time.Now()
	return nil
}

// InMemoryVariableRepository keys variable documents by tenant ID, so
// upsert semantics hold by construction.
type InMemoryVariableRepository struct {
	mu     sync.RWMutex
	values map[string]map[string]any
}

func NewInMemoryVariableRepository() *InMemoryVariableRepository {
	return &InMemoryVariableRepository{values: make(map[string]map[string]any)}
}

func (r *InMemoryVariableRepository) Get(ctx context.Context, tenantID string) (map[string]any, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	values, ok := r.values[tenantID]
	if !ok {
		return map[string]any{}, nil
	}

	out := make(map[string]any, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out, nil
}

func (r *InMemoryVariableRepository) Upsert(ctx context.Context, tenantID string, values map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := make(map[string]any, len(values))
	for k, v := range values {
		stored[k] = v
	}
	r.values[tenantID] = stored
	return nil
}

type InMemoryLogRepository struct {
	mu      sync.RWMutex
	entries []*domain.LogEntry
}

func NewInMemoryLogRepository() *InMemoryLogRepository {
	return &InMemoryLogRepository{}
}

func (r *InMemoryLogRepository) Append(ctx context.Context, entry *domain.LogEntry) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.State == "" {
		entry.State = domain.StateActive
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	r.entries = append(r.entries, entry)
	return entry.ID, nil
}

func (r *InMemoryLogRepository) List(ctx context.Context, tenantID string, since time.Time) ([]*domain.LogEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.LogEntry
	for _, entry := range r.entries {
		if entry.TenantID != tenantID || entry.State == domain.StateDeleted {
			continue
		}
		if !since.IsZero() && entry.CreatedAt.Before(since) {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

func (r *InMemoryLogRepository) SoftDelete(ctx context.Context, tenantID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, entry := range r.entries {
		if entry.ID == id && entry.TenantID == tenantID {
			entry.State = domain.StateDeleted
			return nil
		}
	}
	return domain.ErrLogEntryNotFound
}

// Count is for tests asserting the one-entry-per-attempt invariant.
func (r *InMemoryLogRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Entries returns a snapshot of all appended entries, deleted included.
func (r *InMemoryLogRepository) Entries() []*domain.LogEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.LogEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

type InMemoryTenantRepository struct {
	mu      sync.RWMutex
	tenants map[string]*domain.Tenant
	byKey   map[string]string
}

func NewInMemoryTenantRepository() *InMemoryTenantRepository {
	return &InMemoryTenantRepository{
		tenants: make(map[string]*domain.Tenant),
		byKey:   make(map[string]string),
	}
}

func (r *InMemoryTenantRepository) GetByAPIKey(ctx context.Context, apiKey string) (*domain.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tenantID, ok := r.byKey[crypto.HashAPIKey(apiKey)]
	if !ok {
		return nil, domain.ErrTenantNotFound
	}

	tenant, ok := r.tenants[tenantID]
	if !ok || tenant.State == domain.StateDeleted {
		return nil, domain.ErrTenantNotFound
	}
	return tenant, nil
}

func (r *InMemoryTenantRepository) GetByID(ctx context.Context, id string) (*domain.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tenant, ok := r.tenants[id]
	if !ok || tenant.State == domain.StateDeleted {
		return nil, domain.ErrTenantNotFound
	}
	return tenant, nil
}

func (r *InMemoryTenantRepository) Create(ctx context.Context, tenant *domain.Tenant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if tenant.ID == "" {
		tenant.ID = uuid.New().String()
	}
	if tenant.State == "" {
		tenant.State = domain.StateActive
	}
	r.tenants[tenant.ID] = tenant
	r.reindexLocked(tenant)
	return nil
}

func (r *InMemoryTenantRepository) Update(ctx context.Context, tenant *domain.Tenant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tenants[tenant.ID]; !ok {
		return domain.ErrTenantNotFound
	}
	tenant.UpdatedAt = time.Now()
	r.tenants[tenant.ID] = tenant
	r.reindexLocked(tenant)
	return nil
}

func (r *InMemoryTenantRepository) List(ctx context.Context) ([]*domain.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var tenants []*domain.Tenant
	for _, tenant := range r.tenants {
		if tenant.State != domain.StateDeleted {
			tenants = append(tenants, tenant)
		}
	}
	return tenants, nil
}

func (r *InMemoryTenantRepository) reindexLocked(tenant *domain.Tenant) {
	for hash, id := range r.byKey {
		if id == tenant.ID {
			delete(r.byKey, hash)
		}
	}
	for _, key := range tenant.Keys {
		r.byKey[key.Hash] = tenant.ID
	}
}
