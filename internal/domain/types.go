package domain

import (
	"encoding/json"
	"time"
)

// ModelType determines how a rendered prompt is assembled into a provider
// request body: chat models take a sequence of turns, completion and
// embedding models take a single value.
type ModelType string

const (
	ModelTypeChat       ModelType = "chat"
	ModelTypeCompletion ModelType = "completion"
	ModelTypeEmbedding  ModelType = "embedding"
)

// LifecycleState replaces the soft-delete boolean of earlier schemas so
// state transitions stay auditable.
type LifecycleState string

const (
	StateActive  LifecycleState = "active"
	StateDeleted LifecycleState = "deleted"
)

// APICallSpec describes the outbound call shape for a model. Header values
// are templates rendered against the model parameters plus the resolved
// tenant API key (available as {{apiKey}}).
type APICallSpec struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers,omitempty"`
}

// ModelConfig is a tenant-scoped description of one provider model: where
// to call it, how to build the request body, and how to read the response.
// It is read-only for the duration of a generation attempt.
type ModelConfig struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Type            ModelType       `json:"type"`
	APICall         APICallSpec     `json:"api_call"`
	RequestMapping  json.RawMessage `json:"request_mapping,omitempty"`  // mapping.Rule JSON
	ResponseMapping json.RawMessage `json:"response_mapping,omitempty"` // mapping.ResponseRule JSON
	Parameters      map[string]any  `json:"parameters,omitempty"`
	SecretName      string          `json:"secret_name,omitempty"` // optional override for the provider key secret
	TenantID        string          `json:"tenant_id"`
	State           LifecycleState  `json:"state"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// ChatTurn is one message of a chat-style prompt template. Content may
// contain {{variable}} placeholders.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// VariableSpec declares a variable a prompt references.
type VariableSpec struct {
	Name        string `json:"name"`
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`
}

// PromptConfig is a stored prompt template. Exactly one of Template and
// Turns is set, depending on the referenced model's type.
type PromptConfig struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	ModelID     string         `json:"model_id"`
	Template    string         `json:"template,omitempty"`
	Turns       []ChatTurn     `json:"turns,omitempty"`
	Variables   []VariableSpec `json:"variables,omitempty"`
	TenantID    string         `json:"tenant_id"`
	State       LifecycleState `json:"state"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// GenerationRequest is the orchestrator's input, constructed fresh per call.
type GenerationRequest struct {
	Prompt    *PromptConfig
	Model     *ModelConfig
	Variables map[string]any
	TenantID  string
	RequestID string
}

// GenerationResult is returned to the caller and mirrors what is persisted
// in the execution log, minus internal fields. Status is HTTP-style.
type GenerationResult struct {
	Status     int    `json:"status"`
	Output     any    `json:"message,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	RequestID  string `json:"request_id,omitempty"`
}

// LogEntry is the immutable audit record of one generation attempt. It is
// created exactly once per attempt; the only later mutation is soft delete.
type LogEntry struct {
	ID         string         `json:"id"`
	TenantID   string         `json:"tenant_id"`
	ModelID    string         `json:"model_id"`
	PromptID   string         `json:"prompt_id,omitempty"` // empty when the prompt could not be resolved
	Message    string         `json:"message,omitempty"`
	Raw        []byte         `json:"raw,omitempty"` // raw provider response body, if any
	Data       map[string]any `json:"data,omitempty"`
	IsError    bool           `json:"is_error"`
	Status     int            `json:"status"`
	DurationMs int64          `json:"duration_ms"`
	Hash       string         `json:"hash,omitempty"`
	State      LifecycleState `json:"state"`
	CreatedAt  time.Time      `json:"created_at"`
}

// OutboundRequest is a fully assembled provider call, produced by the
// request mapper and executed by exactly one provider client invocation.
type OutboundRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

// RawResponse is the unmapped provider response. A non-2xx status is not a
// failure by itself; the response mapping decides what it means.
type RawResponse struct {
	StatusCode int
	Header     map[string][]string
	Body       []byte
}

// APIKeyEntry is one credential in a tenant's key set. Rotation replaces or
// appends an entry by description within the set.
type APIKeyEntry struct {
	Description string    `json:"description"`
	Hash        string    `json:"hash"`
	CreatedAt   time.Time `json:"created_at"`
}

// Tenant is the organization-scoped isolation boundary all core entities
// belong to.
type Tenant struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Keys         []APIKeyEntry  `json:"keys,omitempty"`
	RateLimitRPM int            `json:"rate_limit_rpm"`
	State        LifecycleState `json:"state"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}
