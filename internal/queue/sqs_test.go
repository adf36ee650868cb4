package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/promptgate/promptgate/internal/domain"
)

type appenderFunc func(ctx context.Context, entry *domain.LogEntry) (string, error)

func (f appenderFunc) Append(ctx context.Context, entry *domain.LogEntry) (string, error) {
	return f(ctx, entry)
}

func TestShippingLogRepository_ShipsAfterAppend(t *testing.T) {
	shipper := NewInMemoryShipper()
	repo := NewShippingLogRepository(appenderFunc(func(ctx context.Context, entry *domain.LogEntry) (string, error) {
		return "entry-1", nil
	}), shipper)

	entry := &domain.LogEntry{
		ID:         "entry-1",
		TenantID:   "t1",
		ModelID:    "m1",
		Status:     200,
		DurationMs: 42,
		CreatedAt:  time.Now(),
	}

	id, err := repo.Append(context.Background(), entry)
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if id != "entry-1" {
		t.Errorf("id = %q", id)
	}

	shipped := shipper.Shipped()
	if len(shipped) != 1 {
		t.Fatalf("shipped %d records, want 1", len(shipped))
	}
	if shipped[0].TenantID != "t1" || shipped[0].DurationMs != 42 {
		t.Errorf("shipped record = %+v", shipped[0])
	}
}

func TestShippingLogRepository_AppendFailureDoesNotShip(t *testing.T) {
	shipper := NewInMemoryShipper()
	repo := NewShippingLogRepository(appenderFunc(func(ctx context.Context, entry *domain.LogEntry) (string, error) {
		return "", errors.New("db down")
	}), shipper)

	if _, err := repo.Append(context.Background(), &domain.LogEntry{TenantID: "t1"}); err == nil {
		t.Fatal("expected append error")
	}
	if len(shipper.Shipped()) != 0 {
		t.Error("nothing should ship when the append fails")
	}
}

type failingShipper struct{}

func (failingShipper) Ship(ctx context.Context, entry *domain.LogEntry) error {
	return errors.New("queue unreachable")
}

func TestShippingLogRepository_ShipFailureIsSwallowed(t *testing.T) {
	repo := NewShippingLogRepository(appenderFunc(func(ctx context.Context, entry *domain.LogEntry) (string, error) {
		return "entry-2", nil
	}), failingShipper{})

	id, err := repo.Append(context.Background(), &domain.LogEntry{TenantID: "t1"})
	if err != nil {
		t.Fatalf("shipping failure must not fail the append: %v", err)
	}
	if id != "entry-2" {
		t.Errorf("id = %q", id)
	}
}
