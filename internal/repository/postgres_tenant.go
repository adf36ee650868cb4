package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/promptgate/promptgate/internal/crypto"
	"github.com/promptgate/promptgate/internal/domain"
)

type PostgresTenantRepository struct {
	db *sql.DB
}

func NewPostgresTenantRepository(db *sql.DB) *PostgresTenantRepository {
	return &PostgresTenantRepository{db: db}
}

func (r *PostgresTenantRepository) GetByAPIKey(ctx context.Context, apiKey string) (*domain.Tenant, error) {
	// Key hashes live inside the keys JSON document; the tenant_api_keys
	// index table maps hash -> tenant for lookup.
	query := `
		SELECT t.id, t.name, t.keys, t.rate_limit_rpm, t.state, t.created_at, t.updated_at
		FROM tenants t
		JOIN tenant_api_keys k ON k.tenant_id = t.id
		WHERE k.key_hash = $1 AND t.state = 'active'
	`

	tenant, err := scanTenant(r.db.QueryRowContext(ctx, query, crypto.HashAPIKey(apiKey)))
	if err == sql.ErrNoRows {
		return nil, domain.ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query tenant by key: %w", err)
	}
	return tenant, nil
}

func (r *PostgresTenantRepository) GetByID(ctx context.Context, id string) (*domain.Tenant, error) {
	query := `
		SELECT id, name, keys, rate_limit_rpm, state, created_at, updated_at
		FROM tenants
		WHERE id = $1 AND state = 'active'
	`

	tenant, err := scanTenant(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, domain.ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query tenant: %w", err)
	}
	return tenant, nil
}

func (r *PostgresTenantRepository) Create(ctx context.Context, tenant *domain.Tenant) error {
	keys, err := json.Marshal(tenant.Keys)
	if err != nil {
		return fmt.Errorf("marshal keys: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO tenants (id, name, keys, rate_limit_rpm, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = tx.ExecContext(ctx, query,
		tenant.ID,
		tenant.Name,
		keys,
		tenant.RateLimitRPM,
		string(tenant.State),
		tenant.CreatedAt,
		tenant.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert tenant: %w", err)
	}

	if err := syncKeyIndex(ctx, tx, tenant); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *PostgresTenantRepository) Update(ctx context.Context, tenant *domain.Tenant) error {
	keys, err := json.Marshal(tenant.Keys)
	if err != nil {
		return fmt.Errorf("marshal keys: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE tenants
		SET name = $2, keys = $3, rate_limit_rpm = $4, state = $5, updated_at = $6
		WHERE id = $1
	`
	result, err := tx.ExecContext(ctx, query,
		tenant.ID,
		tenant.Name,
		keys,
		tenant.RateLimitRPM,
		string(tenant.State),
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("update tenant: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrTenantNotFound
	}

	if err := syncKeyIndex(ctx, tx, tenant); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *PostgresTenantRepository) List(ctx context.Context) ([]*domain.Tenant, error) {
	query := `
		SELECT id, name, keys, rate_limit_rpm, state, created_at, updated_at
		FROM tenants
		WHERE state = 'active'
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query tenants: %w", err)
	}
	defer rows.Close()

	var tenants []*domain.Tenant
	for rows.Next() {
		tenant, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		tenants = append(tenants, tenant)
	}
	return tenants, rows.Err()
}

func syncKeyIndex(ctx context.Context, tx *sql.Tx, tenant *domain.Tenant) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM tenant_api_keys WHERE tenant_id = $1`, tenant.ID); err != nil {
		return fmt.Errorf("clear key index: %w", err)
	}
	for _, key := range tenant.Keys {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO tenant_api_keys (key_hash, tenant_id) VALUES ($1, $2)`,
			key.Hash, tenant.ID,
		)
		if err != nil {
			return fmt.Errorf("index key: %w", err)
		}
	}
	return nil
}

func scanTenant(row rowScanner) (*domain.Tenant, error) {
	var tenant domain.Tenant
	var keys []byte
	var state string

	err := row.Scan(
		&tenant.ID,
		&tenant.Name,
		&keys,
		&tenant.RateLimitRPM,
		&state,
		&tenant.CreatedAt,
		&tenant.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	tenant.State = domain.LifecycleState(state)
	if len(keys) > 0 {
		if err := json.Unmarshal(keys, &tenant.Keys); err != nil {
			return nil, fmt.Errorf("unmarshal keys: %w", err)
		}
	}
	return &tenant, nil
}
