package mapping

import (
	"errors"
	"testing"

	"github.com/promptgate/promptgate/internal/domain"
)

func outputPath(path string) *ResponseRule {
	return &ResponseRule{Output: &Rule{Kind: KindPath, Path: path}}
}

func TestMapResponse_ExtractsText(t *testing.T) {
	raw := &domain.RawResponse{
		StatusCode: 200,
		Body:       []byte(`{"choices":[{"message":{"content":"generated text"}}]}`),
	}

	out, err := MapResponse(outputPath("choices.0.message.content"), raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Text != "generated text" {
		t.Errorf("expected extracted text, got %q", out.Text)
	}
	if out.ProviderError != "" {
		t.Errorf("unexpected provider error %q", out.ProviderError)
	}
}

func TestMapResponse_StructuredOutput(t *testing.T) {
	raw := &domain.RawResponse{
		StatusCode: 200,
		Body:       []byte(`{"data":[{"embedding":[0.1,0.2]}]}`),
	}

	out, err := MapResponse(outputPath("data.0.embedding"), raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Structured == nil {
		t.Fatal("expected structured output")
	}
	if out.Text != "" {
		t.Errorf("text should be empty for structured output, got %q", out.Text)
	}
}

func TestMapResponse_ProviderErrorInBody(t *testing.T) {
	rule := outputPath("choices.0.text")
	rule.ErrorPath = "error.message"

	raw := &domain.RawResponse{
		StatusCode: 500,
		Body:       []byte(`{"error":{"message":"model overloaded"}}`),
	}

	out, err := MapResponse(rule, raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.ProviderError != "model overloaded" {
		t.Errorf("expected provider error, got %q", out.ProviderError)
	}
}

func TestMapResponse_ErrorIn200Body(t *testing.T) {
	rule := outputPath("result")
	rule.ErrorPath = "error"

	raw := &domain.RawResponse{
		StatusCode: 200,
		Body:       []byte(`{"error":"quota exhausted"}`),
	}

	out, err := MapResponse(rule, raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.ProviderError != "quota exhausted" {
		t.Errorf("expected error from 200 body, got %q", out.ProviderError)
	}
}

func TestMapResponse_FalseErrorFlagMeansNoError(t *testing.T) {
	rule := outputPath("result")
	rule.ErrorPath = "is_error"

	raw := &domain.RawResponse{
		StatusCode: 200,
		Body:       []byte(`{"result":"ok","is_error":false}`),
	}

	out, err := MapResponse(rule, raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.ProviderError != "" {
		t.Errorf("false error flag should not set provider error, got %q", out.ProviderError)
	}
	if out.Text != "ok" {
		t.Errorf("expected output %q, got %q", "ok", out.Text)
	}
}

func TestMapResponse_TrueErrorFlag(t *testing.T) {
	rule := outputPath("result")
	rule.ErrorPath = "is_error"

	raw := &domain.RawResponse{
		StatusCode: 200,
		Body:       []byte(`{"is_error":true}`),
	}

	out, err := MapResponse(rule, raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.ProviderError == "" {
		t.Error("expected provider error for true error flag")
	}
}

func TestMapResponse_MissingOutputWithoutError(t *testing.T) {
	raw := &domain.RawResponse{
		StatusCode: 200,
		Body:       []byte(`{"unexpected":"shape"}`),
	}

	_, err := MapResponse(outputPath("choices.0.text"), raw)

	var mapErr *domain.MappingError
	if !errors.As(err, &mapErr) {
		t.Fatalf("expected MappingError, got %v", err)
	}
}

func TestMapResponse_MissingOutputWithProviderError(t *testing.T) {
	rule := outputPath("choices.0.text")
	rule.ErrorPath = "error.message"

	raw := &domain.RawResponse{
		StatusCode: 429,
		Body:       []byte(`{"error":{"message":"rate limited"}}`),
	}

	out, err := MapResponse(rule, raw)
	if err != nil {
		t.Fatalf("provider error should win over missing output, got %v", err)
	}
	if out.ProviderError != "rate limited" {
		t.Errorf("expected provider error, got %q", out.ProviderError)
	}
}

func TestMapResponse_NonJSONBody(t *testing.T) {
	raw := &domain.RawResponse{
		StatusCode: 200,
		Body:       []byte("plain text response"),
	}

	// A path into a non-JSON body cannot resolve.
	if _, err := MapResponse(outputPath("choices.0"), raw); err == nil {
		t.Fatal("expected mapping error for path into non-JSON body")
	}
}

func TestMapResponse_ObjectErrorIndicator(t *testing.T) {
	rule := outputPath("output")
	rule.ErrorPath = "error"

	raw := &domain.RawResponse{
		StatusCode: 400,
		Body:       []byte(`{"error":{"type":"invalid_request","message":"bad prompt"}}`),
	}

	out, err := MapResponse(rule, raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.ProviderError != "bad prompt" {
		t.Errorf("expected message field, got %q", out.ProviderError)
	}
}
