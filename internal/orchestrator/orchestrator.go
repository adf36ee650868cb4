// Package orchestrator runs generation attempts end to end: variable
// resolution, prompt rendering, request mapping, the provider call, and
// response mapping. Every attempt produces exactly one execution-log entry
// and a result with an HTTP-style status; the orchestrator never returns an
// error to its caller.
package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/promptgate/promptgate/internal/domain"
	"github.com/promptgate/promptgate/internal/mapping"
	"github.com/promptgate/promptgate/internal/metrics"
	"github.com/promptgate/promptgate/internal/notifications"
	"github.com/promptgate/promptgate/internal/provider"
	"github.com/promptgate/promptgate/internal/repository"
	"github.com/promptgate/promptgate/internal/secrets"
	"github.com/promptgate/promptgate/internal/telemetry"
	"github.com/promptgate/promptgate/internal/template"
)

// LogSink is the slice of the log repository the orchestrator writes to.
// The queue package's shipping decorator satisfies it too.
type LogSink interface {
	Append(ctx context.Context, entry *domain.LogEntry) (string, error)
}

type Config struct {
	Models    repository.ModelRepository
	Prompts   repository.PromptRepository
	Variables repository.VariableRepository
	Logs      LogSink
	Secrets   secrets.SecretStore
	Executors *provider.Registry
	Notifier  notifications.Notifier
}

type Orchestrator struct {
	models    repository.ModelRepository
	prompts   repository.PromptRepository
	variables repository.VariableRepository
	logs      LogSink
	secrets   secrets.SecretStore
	executors *provider.Registry
	notifier  notifications.Notifier
}

func New(cfg Config) *Orchestrator {
	return &Orchestrator{
		models:    cfg.Models,
		prompts:   cfg.Prompts,
		variables: cfg.Variables,
		logs:      cfg.Logs,
		secrets:   cfg.Secrets,
		executors: cfg.Executors,
		notifier:  cfg.Notifier,
	}
}

// attempt accumulates the state of one generation so the finalize path can
// write a single log entry no matter where the pipeline stopped.
type attempt struct {
	modelID  string
	promptID string

	status   int
	output   any
	message  string
	errMsg   string
	raw      *domain.RawResponse
	duration time.Duration
	notify   notifications.NotificationType
}

// Generate runs one attempt. All outcomes, including configuration and
// provider failures, come back as a result; the status follows HTTP
// semantics so the API layer can relay it unchanged.
func (o *Orchestrator) Generate(ctx context.Context, req domain.GenerationRequest) domain.GenerationResult {
	ctx, span := telemetry.StartSpan(ctx, "generation")
	defer span.End()

	metrics.ActiveGenerations.Inc()
	defer metrics.ActiveGenerations.Dec()

	a := &attempt{}
	if req.Model != nil {
		a.modelID = req.Model.ID
	}
	if req.Prompt != nil {
		a.promptID = req.Prompt.ID
	}

	o.run(ctx, &req, a)

	telemetry.AddGenerationAttributes(span, req.TenantID, a.modelID, a.promptID, req.RequestID)
	telemetry.AddStatusAttribute(span, a.status)

	return o.finish(ctx, &req, a)
}

// GenerateByID resolves the prompt and model from the stores before running
// the attempt. modelID may be empty, in which case the prompt's configured
// model is used. A failed lookup is an attempt too: it is logged and comes
// back as a 404 result.
func (o *Orchestrator) GenerateByID(ctx context.Context, tenantID, promptID, modelID string, vars map[string]any, requestID string) domain.GenerationResult {
	req := domain.GenerationRequest{
		Variables: vars,
		TenantID:  tenantID,
		RequestID: requestID,
	}

	prompt, err := o.prompts.GetByID(ctx, tenantID, promptID)
	if err != nil {
		a := &attempt{promptID: promptID, modelID: modelID}
		a.fail(err)
		return o.finish(ctx, &req, a)
	}
	req.Prompt = prompt

	if modelID == "" {
		modelID = prompt.ModelID
	}
	model, err := o.models.GetByID(ctx, tenantID, modelID)
	if err != nil {
		a := &attempt{promptID: promptID, modelID: modelID}
		a.fail(err)
		return o.finish(ctx, &req, a)
	}
	req.Model = model

	return o.Generate(ctx, req)
}

func (a *attempt) fail(err error) {
	a.status = classify(err)
	a.errMsg = err.Error()
}

// run executes the pipeline, stopping at the first failure. It never
// appends to the log; that is finish's job, once.
func (o *Orchestrator) run(ctx context.Context, req *domain.GenerationRequest, a *attempt) {
	if req.Model == nil || req.Prompt == nil {
		a.fail(&domain.ConfigurationError{Reason: "generation requires a prompt and a model", Err: domain.ErrInvalidRequest})
		return
	}
	model, prompt := req.Model, req.Prompt

	vars, err := o.mergeVariables(ctx, req)
	if err != nil {
		a.fail(err)
		return
	}

	promptBody, err := renderPrompt(model, prompt, vars)
	if err != nil {
		a.fail(err)
		return
	}

	// Parse the response mapping up front so a broken configuration fails
	// before a provider call is spent on it.
	respRule, err := mapping.ParseResponseRule(model.ResponseMapping)
	if err != nil {
		a.fail(err)
		metrics.RecordMappingFailure(req.TenantID, model.Name, "response")
		return
	}

	secret, err := o.resolveSecret(ctx, req.TenantID, model)
	if err != nil {
		a.fail(err)
		return
	}

	outbound, err := mapping.BuildRequest(model, promptBody, secret)
	if err != nil {
		a.fail(err)
		metrics.RecordMappingFailure(req.TenantID, model.Name, "request")
		return
	}

	executor := o.executors.ForSpec(model.APICall)

	// The clock covers the provider call through response mapping; request
	// assembly above is excluded.
	start := time.Now()

	raw, err := executor.Execute(ctx, outbound)
	if err != nil {
		a.duration = time.Since(start)
		a.fail(err)

		var pe *domain.ProviderError
		if errors.As(err, &pe) {
			metrics.RecordProviderError(model.Name, string(pe.Kind))
			if pe.Kind == domain.ProviderErrorTimeout {
				a.notify = notifications.NotificationProviderTimeout
			} else {
				a.notify = notifications.NotificationProviderDown
			}
		}
		return
	}
	a.raw = raw

	out, err := mapping.MapResponse(respRule, raw)
	a.duration = time.Since(start)
	if err != nil {
		a.fail(err)
		metrics.RecordMappingFailure(req.TenantID, model.Name, "response")
		return
	}

	if out.ProviderError != "" {
		a.errMsg = out.ProviderError
		a.status = providerStatus(raw.StatusCode)
		a.notify = notifications.NotificationGenerationFailed
		return
	}

	a.status = http.StatusOK
	a.output = out.Value()
	a.message = out.Text
}

// finish records the attempt: one log entry, metrics, an optional failure
// notification, and the caller-facing result. A log write failure is
// reported through slog and metrics but never surfaces to the caller.
func (o *Orchestrator) finish(ctx context.Context, req *domain.GenerationRequest, a *attempt) domain.GenerationResult {
	durationMs := a.duration.Milliseconds()

	message := a.message
	if a.errMsg != "" {
		message = a.errMsg
	}

	entry := &domain.LogEntry{
		TenantID:   req.TenantID,
		ModelID:    a.modelID,
		PromptID:   a.promptID,
		Message:    message,
		IsError:    a.status >= 400,
		Status:     a.status,
		DurationMs: durationMs,
		CreatedAt:  time.Now(),
	}
	if a.raw != nil {
		entry.Raw = a.raw.Body
		entry.Data = map[string]any{"provider_status": a.raw.StatusCode}
	}
	entry.Hash = entryHash(entry)

	// Cancellation must not lose the audit record.
	logCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if _, err := o.logs.Append(logCtx, entry); err != nil {
		slog.Error("execution log append failed",
			"tenant_id", req.TenantID,
			"model_id", a.modelID,
			"request_id", req.RequestID,
			"error", err,
		)
		metrics.RecordLogAppendFailure()
	}

	modelName := a.modelID
	if req.Model != nil {
		modelName = req.Model.Name
	}
	metrics.RecordGeneration(req.TenantID, modelName, strconv.Itoa(a.status), a.duration.Seconds())

	if a.status >= 400 {
		slog.Warn("generation failed",
			"tenant_id", req.TenantID,
			"model_id", a.modelID,
			"prompt_id", a.promptID,
			"request_id", req.RequestID,
			"status", a.status,
			"duration_ms", durationMs,
			"error", a.errMsg,
		)
	} else {
		slog.Info("generation completed",
			"tenant_id", req.TenantID,
			"model_id", a.modelID,
			"prompt_id", a.promptID,
			"request_id", req.RequestID,
			"duration_ms", durationMs,
		)
	}

	if o.notifier != nil && a.notify != "" {
		n := notifications.Notification{
			Type:     a.notify,
			TenantID: req.TenantID,
			ModelID:  a.modelID,
			Message:  a.errMsg,
		}
		notifyCtx, cancelNotify := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		go func() {
			defer cancelNotify()
			if err := o.notifier.Send(notifyCtx, n); err != nil {
				slog.Warn("failure notification not sent", "type", n.Type, "error", err)
			}
		}()
	}

	return domain.GenerationResult{
		Status:     a.status,
		Output:     a.output,
		Error:      a.errMsg,
		DurationMs: durationMs,
		RequestID:  req.RequestID,
	}
}

// mergeVariables layers the caller's variables over the tenant's stored
// defaults and checks that every placeholder the prompt references is
// covered, before anything is rendered or sent.
func (o *Orchestrator) mergeVariables(ctx context.Context, req *domain.GenerationRequest) (map[string]any, error) {
	merged := make(map[string]any)

	if o.variables != nil {
		defaults, err := o.variables.Get(ctx, req.TenantID)
		if err != nil {
			return nil, &domain.ConfigurationError{Reason: "load tenant variables", Err: err}
		}
		for k, v := range defaults {
			merged[k] = v
		}
	}
	for k, v := range req.Variables {
		merged[k] = v
	}

	var body any
	if req.Model.Type == domain.ModelTypeChat {
		body = req.Prompt.Turns
	} else {
		body = req.Prompt.Template
	}
	for _, name := range template.Placeholders(body) {
		if _, ok := merged[name]; !ok {
			return nil, &domain.SubstitutionError{Variable: name}
		}
	}

	return merged, nil
}

func renderPrompt(model *domain.ModelConfig, prompt *domain.PromptConfig, vars map[string]any) (any, error) {
	if model.Type == domain.ModelTypeChat {
		if len(prompt.Turns) == 0 {
			return nil, &domain.ConfigurationError{Reason: "chat model requires a turn-based prompt"}
		}
		return template.RenderTurns(prompt.Turns, vars)
	}

	if prompt.Template == "" {
		return nil, &domain.ConfigurationError{Reason: string(model.Type) + " model requires a text prompt"}
	}
	return template.Render(prompt.Template, vars)
}

func (o *Orchestrator) resolveSecret(ctx context.Context, tenantID string, model *domain.ModelConfig) (string, error) {
	name := model.SecretName
	if name == "" {
		name = secrets.ProviderKeyName(tenantID)
	}

	secret, err := o.secrets.GetSecret(ctx, name)
	if err != nil {
		return "", &domain.ConfigurationError{Reason: "resolve provider key", Err: err}
	}
	return secret, nil
}

// classify maps the pipeline's error taxonomy onto HTTP-style statuses:
// missing entities are 404, unresolved variables and mapping failures 422,
// other configuration problems 400, provider timeouts 504 and transport
// failures 502.
func classify(err error) int {
	var pe *domain.ProviderError
	if errors.As(err, &pe) {
		if pe.Kind == domain.ProviderErrorTimeout {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	}

	if errors.Is(err, domain.ErrModelNotFound) ||
		errors.Is(err, domain.ErrPromptNotFound) ||
		errors.Is(err, domain.ErrTenantNotFound) {
		return http.StatusNotFound
	}

	var se *domain.SubstitutionError
	if errors.As(err, &se) {
		return http.StatusUnprocessableEntity
	}
	var me *domain.MappingError
	if errors.As(err, &me) {
		return http.StatusUnprocessableEntity
	}

	var ce *domain.ConfigurationError
	if errors.As(err, &ce) {
		return http.StatusBadRequest
	}

	return http.StatusInternalServerError
}

// providerStatus is the result status for an error the provider reported in
// its body. A non-2xx provider status passes through; an error inside a 2xx
// body maps to 502.
func providerStatus(code int) int {
	if code < 200 || code > 299 {
		return code
	}
	return http.StatusBadGateway
}

func entryHash(entry *domain.LogEntry) string {
	h := sha256.New()
	h.Write([]byte(entry.TenantID))
	h.Write([]byte(entry.ModelID))
	h.Write([]byte(entry.Message))
	h.Write(entry.Raw)
	return hex.EncodeToString(h.Sum(nil))
}
