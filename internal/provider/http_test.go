package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/promptgate/promptgate/internal/domain"
)

func TestHTTPExecutor_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("missing auth header")
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	exec := NewHTTPExecutor(DefaultClientConfig())
	resp, err := exec.Execute(context.Background(), &domain.OutboundRequest{
		Method:  http.MethodPost,
		URL:     srv.URL,
		Headers: map[string]string{"Authorization": "Bearer sk-test"},
		Body:    []byte(`{"prompt":"hi"}`),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	if string(resp.Body) != `{"ok":true}` {
		t.Errorf("unexpected body %s", resp.Body)
	}
}

func TestHTTPExecutor_Non2xxIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"boom"}}`))
	}))
	defer srv.Close()

	exec := NewHTTPExecutor(DefaultClientConfig())
	resp, err := exec.Execute(context.Background(), &domain.OutboundRequest{
		Method: http.MethodPost,
		URL:    srv.URL,
	})
	if err != nil {
		t.Fatalf("non-2xx must pass through, got error %v", err)
	}
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", resp.StatusCode)
	}
	if len(resp.Body) == 0 {
		t.Error("expected error body to pass through")
	}
}

func TestHTTPExecutor_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	exec := NewHTTPExecutor(DefaultClientConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := exec.Execute(ctx, &domain.OutboundRequest{
		Method: http.MethodPost,
		URL:    srv.URL,
	})
	if err == nil {
		t.Fatal("expected timeout error")
	}

	var provErr *domain.ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("expected ProviderError, got %T", err)
	}
	if provErr.Kind != domain.ProviderErrorTimeout {
		t.Errorf("expected timeout kind, got %s", provErr.Kind)
	}
}

func TestHTTPExecutor_NetworkError(t *testing.T) {
	exec := NewHTTPExecutor(DefaultClientConfig())

	_, err := exec.Execute(context.Background(), &domain.OutboundRequest{
		Method: http.MethodPost,
		URL:    "http://127.0.0.1:1", // nothing listens here
	})
	if err == nil {
		t.Fatal("expected network error")
	}

	var provErr *domain.ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("expected ProviderError, got %T", err)
	}
	if provErr.Kind != domain.ProviderErrorNetwork {
		t.Errorf("expected network kind, got %s", provErr.Kind)
	}
}

func TestHTTPExecutor_SingleCallPerInvocation(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	exec := NewHTTPExecutor(DefaultClientConfig())
	_, err := exec.Execute(context.Background(), &domain.OutboundRequest{
		Method: http.MethodPost,
		URL:    srv.URL,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected exactly one call, got %d", calls)
	}
}

func TestRegistry_ForSpec(t *testing.T) {
	httpExec := NewHTTPExecutor(DefaultClientConfig())
	bedrockExec := &BedrockExecutor{}
	reg := &Registry{HTTP: httpExec, Bedrock: bedrockExec}

	if got := reg.ForSpec(domain.APICallSpec{URL: "https://api.example.com/v1"}); got != Executor(httpExec) {
		t.Error("expected HTTP executor for https URL")
	}
	if got := reg.ForSpec(domain.APICallSpec{URL: "bedrock:amazon.titan-text-express-v1"}); got != Executor(bedrockExec) {
		t.Error("expected bedrock executor for bedrock: URL")
	}
}

func TestRegistry_FallsBackToHTTPWithoutBedrock(t *testing.T) {
	httpExec := NewHTTPExecutor(DefaultClientConfig())
	reg := &Registry{HTTP: httpExec}

	if got := reg.ForSpec(domain.APICallSpec{URL: "bedrock:amazon.titan-text-express-v1"}); got != Executor(httpExec) {
		t.Error("expected HTTP fallback when bedrock is not configured")
	}
}
