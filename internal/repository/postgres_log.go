package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/promptgate/promptgate/internal/domain"
)

type PostgresLogRepository struct {
	db *sql.DB
}

func NewPostgresLogRepository(db *sql.DB) *PostgresLogRepository {
	return &PostgresLogRepository{db: db}
}

func (r *PostgresLogRepository) Append(ctx context.Context, entry *domain.LogEntry) (string, error) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.State == "" {
		entry.State = domain.StateActive
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	data, err := json.Marshal(entry.Data)
	if err != nil {
		return "", fmt.Errorf("marshal log data: %w", err)
	}

	query := `
		INSERT INTO execution_logs (id, tenant_id, model_id, prompt_id, message, raw, data,
		                            is_error, status, duration_ms, hash, state, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err = r.db.ExecContext(ctx, query,
		entry.ID,
		entry.TenantID,
		entry.ModelID,
		sql.NullString{String: entry.PromptID, Valid: entry.PromptID != ""},
		entry.Message,
		entry.Raw,
		data,
		entry.IsError,
		entry.Status,
		entry.DurationMs,
		entry.Hash,
		string(entry.State),
		entry.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("insert log entry: %w", err)
	}
	return entry.ID, nil
}

func (r *PostgresLogRepository) List(ctx context.Context, tenantID string, since time.Time) ([]*domain.LogEntry, error) {
	query := `
		SELECT id, tenant_id, model_id, prompt_id, message, raw, data,
		       is_error, status, duration_ms, hash, state, created_at
		FROM execution_logs
		WHERE tenant_id = $1 AND state = 'active' AND created_at >= $2
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, tenantID, since)
	if err != nil {
		return nil, fmt.Errorf("query log entries: %w", err)
	}
	defer rows.Close()

	var entries []*domain.LogEntry
	for rows.Next() {
		var entry domain.LogEntry
		var promptID sql.NullString
		var state string
		var data []byte

		err := rows.Scan(
			&entry.ID,
			&entry.TenantID,
			&entry.ModelID,
			&promptID,
			&entry.Message,
			&entry.Raw,
			&data,
			&entry.IsError,
			&entry.Status,
			&entry.DurationMs,
			&entry.Hash,
			&state,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan log entry: %w", err)
		}

		if promptID.Valid {
			entry.PromptID = promptID.String
		}
		entry.State = domain.LifecycleState(state)
		if len(data) > 0 {
			if err := json.Unmarshal(data, &entry.Data); err != nil {
				return nil, fmt.Errorf("unmarshal log data: %w", err)
			}
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

func (r *PostgresLogRepository) SoftDelete(ctx context.Context, tenantID, id string) error {
	query := `
		UPDATE execution_logs
		SET state = 'deleted'
		WHERE id = $1 AND tenant_id = $2 AND state = 'active'
	`

	result, err := r.db.ExecContext(ctx, query, id, tenantID)
	if err != nil {
		return fmt.Errorf("soft delete log entry: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrLogEntryNotFound
	}
	return nil
}

// PostgresVariableRepository keeps one variable document per tenant; the
// tenant ID is the primary key and writes are upserts.
type PostgresVariableRepository struct {
	db *sql.DB
}

func NewPostgresVariableRepository(db *sql.DB) *PostgresVariableRepository {
	return &PostgresVariableRepository{db: db}
}

func (r *PostgresVariableRepository) Get(ctx context.Context, tenantID string) (map[string]any, error) {
	query := `SELECT vars FROM tenant_variables WHERE tenant_id = $1`

	var data []byte
	err := r.db.QueryRowContext(ctx, query, tenantID).Scan(&data)
	if err == sql.ErrNoRows {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query variables: %w", err)
	}

	values := map[string]any{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &values); err != nil {
			return nil, fmt.Errorf("unmarshal variables: %w", err)
		}
	}
	return values, nil
}

func (r *PostgresVariableRepository) Upsert(ctx context.Context, tenantID string, values map[string]any) error {
	data, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("marshal variables: %w", err)
	}

	query := `
		INSERT INTO tenant_variables (tenant_id, vars, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id) DO UPDATE SET vars = $2, updated_at = $3
	`

	if _, err := r.db.ExecContext(ctx, query, tenantID, data, time.Now()); err != nil {
		return fmt.Errorf("upsert variables: %w", err)
	}
	return nil
}
