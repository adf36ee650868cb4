package repository

import (
	"context"
	"testing"
	"time"

	"github.com/promptgate/promptgate/internal/crypto"
	"github.com/promptgate/promptgate/internal/domain"
)

func TestInMemoryModelRepository_TenantScope(t *testing.T) {
	repo := NewInMemoryModelRepository()
	ctx := context.Background()

	model := &domain.ModelConfig{ID: "m1", Name: "gpt", TenantID: "tenant-a", State: domain.StateActive}
	if err := repo.Create(ctx, model); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if _, err := repo.GetByID(ctx, "tenant-a", "m1"); err != nil {
		t.Errorf("owner lookup failed: %v", err)
	}
	if _, err := repo.GetByID(ctx, "tenant-b", "m1"); err != domain.ErrModelNotFound {
		t.Errorf("cross-tenant lookup must fail, got %v", err)
	}
}

func TestInMemoryModelRepository_SoftDelete(t *testing.T) {
	repo := NewInMemoryModelRepository()
	ctx := context.Background()

	repo.Create(ctx, &domain.ModelConfig{ID: "m1", TenantID: "t1", State: domain.StateActive})

	if err := repo.SoftDelete(ctx, "t1", "m1"); err != nil {
		t.Fatalf("SoftDelete failed: %v", err)
	}
	if _, err := repo.GetByID(ctx, "t1", "m1"); err != domain.ErrModelNotFound {
		t.Errorf("deleted model must not resolve, got %v", err)
	}
	if err := repo.SoftDelete(ctx, "t1", "m1"); err != domain.ErrModelNotFound {
		t.Errorf("double delete must fail, got %v", err)
	}
}

func TestInMemoryPromptRepository_CRUD(t *testing.T) {
	repo := NewInMemoryPromptRepository()
	ctx := context.Background()

	prompt := &domain.PromptConfig{
		Name:     "summarizer",
		ModelID:  "m1",
		Template: "Summarize: {{text}}",
		TenantID: "t1",
	}
	if err := repo.Create(ctx, prompt); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if prompt.ID == "" {
		t.Fatal("expected generated ID")
	}
	if prompt.State != domain.StateActive {
		t.Errorf("expected active state, got %s", prompt.State)
	}

	prompt.Description = "updated"
	if err := repo.Update(ctx, prompt); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, err := repo.GetByID(ctx, "t1", prompt.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Description != "updated" {
		t.Errorf("expected updated description, got %q", got.Description)
	}

	list, err := repo.List(ctx, "t1")
	if err != nil || len(list) != 1 {
		t.Errorf("expected one prompt, got %d (err %v)", len(list), err)
	}
}

func TestInMemoryVariableRepository_UpsertSemantics(t *testing.T) {
	repo := NewInMemoryVariableRepository()
	ctx := context.Background()

	if err := repo.Upsert(ctx, "t1", map[string]any{"lang": "en"}); err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}
	if err := repo.Upsert(ctx, "t1", map[string]any{"lang": "de", "tone": "formal"}); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	values, err := repo.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if values["lang"] != "de" {
		t.Errorf("second upsert must replace, got lang=%v", values["lang"])
	}
	if len(values) != 2 {
		t.Errorf("expected exactly one document with 2 values, got %v", values)
	}
}

func TestInMemoryVariableRepository_GetUnknownTenant(t *testing.T) {
	repo := NewInMemoryVariableRepository()

	values, err := repo.Get(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(values) != 0 {
		t.Errorf("expected empty set, got %v", values)
	}
}

func TestInMemoryLogRepository_AppendAndList(t *testing.T) {
	repo := NewInMemoryLogRepository()
	ctx := context.Background()

	id, err := repo.Append(ctx, &domain.LogEntry{TenantID: "t1", ModelID: "m1", Status: 200})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if id == "" {
		t.Fatal("expected generated entry ID")
	}

	entries, err := repo.List(ctx, "t1", time.Time{})
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one entry, got %d (err %v)", len(entries), err)
	}
	if entries[0].State != domain.StateActive {
		t.Errorf("expected active state, got %s", entries[0].State)
	}
}

func TestInMemoryLogRepository_SoftDeleteHidesFromList(t *testing.T) {
	repo := NewInMemoryLogRepository()
	ctx := context.Background()

	id, _ := repo.Append(ctx, &domain.LogEntry{TenantID: "t1", ModelID: "m1"})

	if err := repo.SoftDelete(ctx, "t1", id); err != nil {
		t.Fatalf("SoftDelete failed: %v", err)
	}

	entries, _ := repo.List(ctx, "t1", time.Time{})
	if len(entries) != 0 {
		t.Errorf("deleted entries must be hidden, got %d", len(entries))
	}
	if repo.Count() != 1 {
		t.Errorf("soft delete must not remove the record, count=%d", repo.Count())
	}
}

func TestInMemoryTenantRepository_GetByAPIKey(t *testing.T) {
	repo := NewInMemoryTenantRepository()
	ctx := context.Background()

	tenant := &domain.Tenant{
		ID:   "t1",
		Name: "acme",
		Keys: []domain.APIKeyEntry{
			{Description: "primary", Hash: crypto.HashAPIKey("pg-live-123")},
		},
		State: domain.StateActive,
	}
	if err := repo.Create(ctx, tenant); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := repo.GetByAPIKey(ctx, "pg-live-123")
	if err != nil {
		t.Fatalf("GetByAPIKey failed: %v", err)
	}
	if got.ID != "t1" {
		t.Errorf("expected tenant t1, got %s", got.ID)
	}

	if _, err := repo.GetByAPIKey(ctx, "wrong-key"); err != domain.ErrTenantNotFound {
		t.Errorf("unknown key must fail, got %v", err)
	}
}

func TestInMemoryTenantRepository_RotationReindexes(t *testing.T) {
	repo := NewInMemoryTenantRepository()
	ctx := context.Background()

	tenant := &domain.Tenant{
		ID:    "t1",
		Keys:  []domain.APIKeyEntry{{Description: "primary", Hash: crypto.HashAPIKey("old-key")}},
		State: domain.StateActive,
	}
	repo.Create(ctx, tenant)

	tenant.RotateKey("primary", crypto.HashAPIKey("new-key"), time.Now())
	if err := repo.Update(ctx, tenant); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	if _, err := repo.GetByAPIKey(ctx, "new-key"); err != nil {
		t.Errorf("rotated key must resolve: %v", err)
	}
	if _, err := repo.GetByAPIKey(ctx, "old-key"); err != domain.ErrTenantNotFound {
		t.Errorf("replaced key must stop resolving, got %v", err)
	}
}
