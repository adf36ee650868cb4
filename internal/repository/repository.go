// Package repository provides the stores the generation core reads from
// and the audit sink it writes to. Each store has an in-memory
// implementation for single-instance and test use, and a Postgres
// implementation for production.
package repository

import (
	"context"
	"time"

	"github.com/promptgate/promptgate/internal/domain"
)

// ModelRepository stores model configurations, tenant-scoped.
type ModelRepository interface {
	GetByID(ctx context.Context, tenantID, id string) (*domain.ModelConfig, error)
	List(ctx context.Context, tenantID string) ([]*domain.ModelConfig, error)
	Create(ctx context.Context, model *domain.ModelConfig) error
	Update(ctx context.Context, model *domain.ModelConfig) error
	SoftDelete(ctx context.Context, tenantID, id string) error
}

// PromptRepository stores prompt configurations, tenant-scoped.
type PromptRepository interface {
	GetByID(ctx context.Context, tenantID, id string) (*domain.PromptConfig, error)
	List(ctx context.Context, tenantID string) ([]*domain.PromptConfig, error)
	Create(ctx context.Context, prompt *domain.PromptConfig) error
	Update(ctx context.Context, prompt *domain.PromptConfig) error
	SoftDelete(ctx context.Context, tenantID, id string) error
}

// VariableRepository stores tenant-wide default variables. The tenant ID is
// the unique key; Upsert replaces independent create/update operations so a
// tenant can never accumulate more than one variable document.
type VariableRepository interface {
	Get(ctx context.Context, tenantID string) (map[string]any, error)
	Upsert(ctx context.Context, tenantID string, values map[string]any) error
}

// LogRepository is the execution-log sink. Entries are append-only; the
// only later mutation is soft delete.
type LogRepository interface {
	Append(ctx context.Context, entry *domain.LogEntry) (string, error)
	List(ctx context.Context, tenantID string, since time.Time) ([]*domain.LogEntry, error)
	SoftDelete(ctx context.Context, tenantID, id string) error
}

// TenantRepository stores tenants and resolves API keys for
// authentication.
type TenantRepository interface {
	GetByAPIKey(ctx context.Context, apiKey string) (*domain.Tenant, error)
	GetByID(ctx context.Context, id string) (*domain.Tenant, error)
	Create(ctx context.Context, tenant *domain.Tenant) error
	Update(ctx context.Context, tenant *domain.Tenant) error
	List(ctx context.Context) ([]*domain.Tenant, error)
}
