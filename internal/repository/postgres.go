package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/promptgate/promptgate/internal/domain"
)

type PostgresModelRepository struct {
	db *sql.DB
}

func NewPostgresModelRepository(db *sql.DB) *PostgresModelRepository {
	return &PostgresModelRepository{db: db}
}

const modelColumns = `id, name, type, api_url, api_method, api_headers,
       request_mapping, response_mapping, parameters, secret_name,
       tenant_id, state, created_at, updated_at`

func (r *PostgresModelRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.ModelConfig, error) {
	query := `
		SELECT ` + modelColumns + `
		FROM models
		WHERE id = $1 AND tenant_id = $2 AND state = 'active'
	`

	model, err := scanModel(r.db.QueryRowContext(ctx, query, id, tenantID))
	if err == sql.ErrNoRows {
		return nil, domain.ErrModelNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query model: %w", err)
	}
	return model, nil
}

func (r *PostgresModelRepository) List(ctx context.Context, tenantID string) ([]*domain.ModelConfig, error) {
	query := `
		SELECT ` + modelColumns + `
		FROM models
		WHERE tenant_id = $1 AND state = 'active'
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("query models: %w", err)
	}
	defer rows.Close()

	var models []*domain.ModelConfig
	for rows.Next() {
		model, err := scanModel(rows)
		if err != nil {
			return nil, fmt.Errorf("scan model: %w", err)
		}
		models = append(models, model)
	}
	return models, rows.Err()
}

func (r *PostgresModelRepository) Create(ctx context.Context, model *domain.ModelConfig) error {
	headers, err := json.Marshal(model.APICall.Headers)
	if err != nil {
		return fmt.Errorf("marshal headers: %w", err)
	}
	params, err := json.Marshal(model.Parameters)
	if err != nil {
		return fmt.Errorf("marshal parameters: %w", err)
	}

	query := `
		INSERT INTO models (` + modelColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err = r.db.ExecContext(ctx, query,
		model.ID,
		model.Name,
		string(model.Type),
		model.APICall.URL,
		model.APICall.Method,
		headers,
		model.RequestMapping,
		model.ResponseMapping,
		params,
		sql.NullString{String: model.SecretName, Valid: model.SecretName != ""},
		model.TenantID,
		string(model.State),
		model.CreatedAt,
		model.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert model: %w", err)
	}
	return nil
}

func (r *PostgresModelRepository) Update(ctx context.Context, model *domain.ModelConfig) error {
	headers, err := json.Marshal(model.APICall.Headers)
	if err != nil {
		return fmt.Errorf("marshal headers: %w", err)
	}
	params, err := json.Marshal(model.Parameters)
	if err != nil {
		return fmt.Errorf("marshal parameters: %w", err)
	}

	query := `
		UPDATE models
		SET name = $3, type = $4, api_url = $5, api_method = $6, api_headers = $7,
		    request_mapping = $8, response_mapping = $9, parameters = $10,
		    secret_name = $11, updated_at = $12
		WHERE id = $1 AND tenant_id = $2
	`

	result, err := r.db.ExecContext(ctx, query,
		model.ID,
		model.TenantID,
		model.Name,
		string(model.Type),
		model.APICall.URL,
		model.APICall.Method,
		headers,
		model.RequestMapping,
		model.ResponseMapping,
		params,
		sql.NullString{String: model.SecretName, Valid: model.SecretName != ""},
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("update model: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrModelNotFound
	}
	return nil
}

func (r *PostgresModelRepository) SoftDelete(ctx context.Context, tenantID, id string) error {
	query := `
		UPDATE models
		SET state = 'deleted', updated_at = $3
		WHERE id = $1 AND tenant_id = $2 AND state = 'active'
	`

	result, err := r.db.ExecContext(ctx, query, id, tenantID, time.Now())
	if err != nil {
		return fmt.Errorf("soft delete model: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrModelNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanModel(row rowScanner) (*domain.ModelConfig, error) {
	var model domain.ModelConfig
	var modelType, state string
	var headers, params []byte
	var secretName sql.NullString

	err := row.Scan(
		&model.ID,
		&model.Name,
		&modelType,
		&model.APICall.URL,
		&model.APICall.Method,
		&headers,
		&model.RequestMapping,
		&model.ResponseMapping,
		&params,
		&secretName,
		&model.TenantID,
		&state,
		&model.CreatedAt,
		&model.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	model.Type = domain.ModelType(modelType)
	model.State = domain.LifecycleState(state)
	if secretName.Valid {
		model.SecretName = secretName.String
	}
	if len(headers) > 0 {
		if err := json.Unmarshal(headers, &model.APICall.Headers); err != nil {
			return nil, fmt.Errorf("unmarshal headers: %w", err)
		}
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &model.Parameters); err != nil {
			return nil, fmt.Errorf("unmarshal parameters: %w", err)
		}
	}
	return &model, nil
}

type PostgresPromptRepository struct {
	db *sql.DB
}

func NewPostgresPromptRepository(db *sql.DB) *PostgresPromptRepository {
	return &PostgresPromptRepository{db: db}
}

const promptColumns = `id, name, description, model_id, template, turns,
       variables, tenant_id, state, created_at, updated_at`

func (r *PostgresPromptRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.PromptConfig, error) {
	query := `
		SELECT ` + promptColumns + `
		FROM prompts
		WHERE id = $1 AND tenant_id = $2 AND state = 'active'
	`

	prompt, err := scanPrompt(r.db.QueryRowContext(ctx, query, id, tenantID))
	if err == sql.ErrNoRows {
		return nil, domain.ErrPromptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query prompt: %w", err)
	}
	return prompt, nil
}

func (r *PostgresPromptRepository) List(ctx context.Context, tenantID string) ([]*domain.PromptConfig, error) {
	query := `
		SELECT ` + promptColumns + `
		FROM prompts
		WHERE tenant_id = $1 AND state = 'active'
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("query prompts: %w", err)
	}
	defer rows.Close()

	var prompts []*domain.PromptConfig
	for rows.Next() {
		prompt, err := scanPrompt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan prompt: %w", err)
		}
		prompts = append(prompts, prompt)
	}
	return prompts, rows.Err()
}

func (r *PostgresPromptRepository) Create(ctx context.Context, prompt *domain.PromptConfig) error {
	turns, err := json.Marshal(prompt.Turns)
	if err != nil {
		return fmt.Errorf("marshal turns: %w", err)
	}
	variables, err := json.Marshal(prompt.Variables)
	if err != nil {
		return fmt.Errorf("marshal variables: %w", err)
	}

	query := `
		INSERT INTO prompts (` + promptColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = r.db.ExecContext(ctx, query,
		prompt.ID,
		prompt.Name,
		prompt.Description,
		prompt.ModelID,
		prompt.Template,
		turns,
		variables,
		prompt.TenantID,
		string(prompt.State),
		prompt.CreatedAt,
		prompt.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert prompt: %w", err)
	}
	return nil
}

func (r *PostgresPromptRepository) Update(ctx context.Context, prompt *domain.PromptConfig) error {
	turns, err := json.Marshal(prompt.Turns)
	if err != nil {
		return fmt.Errorf("marshal turns: %w", err)
	}
	variables, err := json.Marshal(prompt.Variables)
	if err != nil {
		return fmt.Errorf("marshal variables: %w", err)
	}

	query := `
		UPDATE prompts
		SET name = $3, description = $4, model_id = $5, template = $6,
		    turns = $7, variables = $8, updated_at = $9
		WHERE id = $1 AND tenant_id = $2
	`

	result, err := r.db.ExecContext(ctx, query,
		prompt.ID,
		prompt.TenantID,
		prompt.Name,
		prompt.Description,
		prompt.ModelID,
		prompt.Template,
		turns,
		variables,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("update prompt: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrPromptNotFound
	}
	return nil
}

func (r *PostgresPromptRepository) SoftDelete(ctx context.Context, tenantID, id string) error {
	query := `
		UPDATE prompts
		SET state = 'deleted', updated_at = $3
		WHERE id = $1 AND tenant_id = $2 AND state = 'active'
	`

	result, err := r.db.ExecContext(ctx, query, id, tenantID, time.Now())
	if err != nil {
		return fmt.Errorf("soft delete prompt: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrPromptNotFound
	}
	return nil
}

func scanPrompt(row rowScanner) (*domain.PromptConfig, error) {
	var prompt domain.PromptConfig
	var state string
	var turns, variables []byte

	err := row.Scan(
		&prompt.ID,
		&prompt.Name,
		&prompt.Description,
		&prompt.ModelID,
		&prompt.Template,
		&turns,
		&variables,
		&prompt.TenantID,
		&state,
		&prompt.CreatedAt,
		&prompt.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	prompt.State = domain.LifecycleState(state)
	if len(turns) > 0 {
		if err := json.Unmarshal(turns, &prompt.Turns); err != nil {
			return nil, fmt.Errorf("unmarshal turns: %w", err)
		}
	}
	if len(variables) > 0 {
		if err := json.Unmarshal(variables, &prompt.Variables); err != nil {
			return nil, fmt.Errorf("unmarshal variables: %w", err)
		}
	}
	return &prompt, nil
}
