package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/promptgate/promptgate/internal/crypto"
	"github.com/promptgate/promptgate/internal/domain"
	"github.com/promptgate/promptgate/internal/ratelimit"
	"github.com/promptgate/promptgate/internal/repository"
)

type stubGenerator struct {
	result domain.GenerationResult
	calls  []generatorCall
}

type generatorCall struct {
	tenantID string
	promptID string
	modelID  string
	vars     map[string]any
}

func (s *stubGenerator) GenerateByID(ctx context.Context, tenantID, promptID, modelID string, vars map[string]any, requestID string) domain.GenerationResult {
	s.calls = append(s.calls, generatorCall{tenantID: tenantID, promptID: promptID, modelID: modelID, vars: vars})
	result := s.result
	result.RequestID = requestID
	return result
}

func newTestHandler(t *testing.T, gen *stubGenerator) (*Handler, *repository.InMemoryPromptRepository) {
	t.Helper()

	tenants := repository.NewInMemoryTenantRepository()
	tenants.Create(context.Background(), &domain.Tenant{
		ID:           "t1",
		Name:         "acme",
		Keys:         []domain.APIKeyEntry{{Description: "primary", Hash: crypto.HashAPIKey("pg-valid")}},
		RateLimitRPM: 100,
		State:        domain.StateActive,
	})

	prompts := repository.NewInMemoryPromptRepository()

	h := NewHandler(HandlerConfig{
		TenantRepo:  tenants,
		PromptRepo:  prompts,
		RateLimiter: ratelimit.NewInMemoryRateLimiter(),
		Generator:   gen,
	})
	return h, prompts
}

func TestHandleGenerate_Success(t *testing.T) {
	gen := &stubGenerator{result: domain.GenerationResult{Status: 200, Output: "hello", DurationMs: 12}}
	h, _ := newTestHandler(t, gen)

	body := `{"prompt_id":"p1","variables":{"name":"Ada"}}`
	req := httptest.NewRequest("POST", "/v1/generate", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer pg-valid")

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("expected a request ID header")
	}

	var result domain.GenerationResult
	json.NewDecoder(rr.Body).Decode(&result)
	if result.Output != "hello" {
		t.Errorf("output = %v", result.Output)
	}

	if len(gen.calls) != 1 {
		t.Fatalf("generator called %d times", len(gen.calls))
	}
	call := gen.calls[0]
	if call.tenantID != "t1" || call.promptID != "p1" {
		t.Errorf("generator saw tenant %q prompt %q", call.tenantID, call.promptID)
	}
	if call.vars["name"] != "Ada" {
		t.Errorf("generator saw vars %v", call.vars)
	}
}

func TestHandleGenerate_ResultStatusIsRelayed(t *testing.T) {
	gen := &stubGenerator{result: domain.GenerationResult{Status: 504, Error: "provider timeout"}}
	h, _ := newTestHandler(t, gen)

	req := httptest.NewRequest("POST", "/v1/generate", strings.NewReader(`{"prompt_id":"p1"}`))
	req.Header.Set("Authorization", "Bearer pg-valid")

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusGatewayTimeout {
		t.Errorf("status = %d, want 504", rr.Code)
	}
}

func TestHandleGenerate_MissingAPIKey(t *testing.T) {
	h, _ := newTestHandler(t, &stubGenerator{})

	req := httptest.NewRequest("POST", "/v1/generate", strings.NewReader(`{"prompt_id":"p1"}`))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rr.Code)
	}
}

func TestHandleGenerate_InvalidAPIKey(t *testing.T) {
	h, _ := newTestHandler(t, &stubGenerator{})

	req := httptest.NewRequest("POST", "/v1/generate", strings.NewReader(`{"prompt_id":"p1"}`))
	req.Header.Set("Authorization", "Bearer pg-wrong")

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rr.Code)
	}
}

func TestHandleGenerate_MissingPromptID(t *testing.T) {
	gen := &stubGenerator{}
	h, _ := newTestHandler(t, gen)

	req := httptest.NewRequest("POST", "/v1/generate", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer pg-valid")

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
	if len(gen.calls) != 0 {
		t.Error("generator must not run without a prompt ID")
	}
}

func TestHandleGenerate_RateLimited(t *testing.T) {
	tenants := repository.NewInMemoryTenantRepository()
	tenants.Create(context.Background(), &domain.Tenant{
		ID:           "t1",
		Keys:         []domain.APIKeyEntry{{Description: "primary", Hash: crypto.HashAPIKey("pg-valid")}},
		RateLimitRPM: 1,
		State:        domain.StateActive,
	})

	gen := &stubGenerator{result: domain.GenerationResult{Status: 200}}
	h := NewHandler(HandlerConfig{
		TenantRepo:  tenants,
		PromptRepo:  repository.NewInMemoryPromptRepository(),
		RateLimiter: ratelimit.NewInMemoryRateLimiter(),
		Generator:   gen,
	})

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("POST", "/v1/generate", strings.NewReader(`{"prompt_id":"p1"}`))
		req.Header.Set("Authorization", "Bearer pg-valid")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)

		if i == 0 && rr.Code != http.StatusOK {
			t.Fatalf("first request status = %d", rr.Code)
		}
		if i == 1 {
			if rr.Code != http.StatusTooManyRequests {
				t.Errorf("second request status = %d, want 429", rr.Code)
			}
			if rr.Header().Get("X-RateLimit-Limit") != "1" {
				t.Errorf("X-RateLimit-Limit = %q", rr.Header().Get("X-RateLimit-Limit"))
			}
		}
	}
}

func TestAppListPrompts_RestrictedView(t *testing.T) {
	h, prompts := newTestHandler(t, &stubGenerator{})
	prompts.Create(context.Background(), &domain.PromptConfig{
		ID:          "p1",
		Name:        "summarizer",
		Description: "summarizes text",
		ModelID:     "m1",
		Template:    "Summarize: {{text}}",
		Variables:   []domain.VariableSpec{{Name: "text"}},
		TenantID:    "t1",
		State:       domain.StateActive,
	})

	req := httptest.NewRequest("GET", "/v1/app/prompts", nil)
	req.Header.Set("Authorization", "Bearer pg-valid")

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}

	var resp struct {
		Prompts []map[string]any `json:"prompts"`
	}
	json.NewDecoder(rr.Body).Decode(&resp)
	if len(resp.Prompts) != 1 {
		t.Fatalf("got %d prompts", len(resp.Prompts))
	}

	p := resp.Prompts[0]
	if p["name"] != "summarizer" {
		t.Errorf("name = %v", p["name"])
	}
	for _, hidden := range []string{"template", "Template", "model_id", "ModelID", "Turns"} {
		if _, ok := p[hidden]; ok {
			t.Errorf("restricted view leaked %q", hidden)
		}
	}
}

func TestAppGenerate_UsesPathPromptID(t *testing.T) {
	gen := &stubGenerator{result: domain.GenerationResult{Status: 200, Output: "ok"}}
	h, _ := newTestHandler(t, gen)

	req := httptest.NewRequest("POST", "/v1/app/prompts/p7/generate", strings.NewReader(`{"variables":{"x":"1"}}`))
	req.Header.Set("Authorization", "Bearer pg-valid")

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if len(gen.calls) != 1 || gen.calls[0].promptID != "p7" {
		t.Fatalf("generator calls = %+v", gen.calls)
	}
	if gen.calls[0].modelID != "" {
		t.Error("app surface must not select a model")
	}
}

func TestHandleHealthLive(t *testing.T) {
	h, _ := newTestHandler(t, &stubGenerator{})

	req := httptest.NewRequest("GET", "/health/live", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d", rr.Code)
	}
}

func TestHandleHealthReady_FailingChecker(t *testing.T) {
	h := NewHandler(HandlerConfig{
		TenantRepo:  repository.NewInMemoryTenantRepository(),
		PromptRepo:  repository.NewInMemoryPromptRepository(),
		RateLimiter: ratelimit.NewInMemoryRateLimiter(),
		Generator:   &stubGenerator{},
		Checkers:    []HealthChecker{failingChecker{}},
	})

	req := httptest.NewRequest("GET", "/health/ready", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rr.Code)
	}
}

type failingChecker struct{}

func (failingChecker) Name() string { return "broken" }
func (failingChecker) Check(ctx context.Context) error {
	return context.DeadlineExceeded
}
