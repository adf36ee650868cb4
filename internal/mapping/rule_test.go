package mapping

import (
	"errors"
	"testing"

	"github.com/promptgate/promptgate/internal/domain"
)

func TestParseRule_Valid(t *testing.T) {
	data := []byte(`{
		"kind": "object",
		"fields": {
			"model":    {"kind": "param", "name": "model"},
			"messages": {"kind": "prompt"},
			"stream":   {"kind": "literal", "value": false}
		}
	}`)

	rule, err := ParseRule(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rule.Kind != KindObject {
		t.Errorf("expected object kind, got %q", rule.Kind)
	}
	if len(rule.Fields) != 3 {
		t.Errorf("expected 3 fields, got %d", len(rule.Fields))
	}
}

func TestParseRule_UnknownKind(t *testing.T) {
	_, err := ParseRule([]byte(`{"kind": "exec", "value": "rm -rf"}`))

	var mapErr *domain.MappingError
	if !errors.As(err, &mapErr) {
		t.Fatalf("expected MappingError, got %v", err)
	}
}

func TestParseRule_UnknownNestedKind(t *testing.T) {
	data := []byte(`{"kind": "object", "fields": {"x": {"kind": "mystery"}}}`)

	var mapErr *domain.MappingError
	if !errors.As(mustFail(t, data), &mapErr) {
		t.Fatal("expected MappingError")
	}
	if mapErr.Path != "x" {
		t.Errorf("expected error path %q, got %q", "x", mapErr.Path)
	}
}

func TestParseRule_Empty(t *testing.T) {
	if _, err := ParseRule(nil); err == nil {
		t.Fatal("expected error for empty rule")
	}
}

func TestParseRule_MissingKindFields(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"path without path", `{"kind": "path"}`},
		{"param without name", `{"kind": "param"}`},
		{"template without template", `{"kind": "template"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseRule([]byte(tc.data)); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestParseResponseRule_RequiresOutput(t *testing.T) {
	if _, err := ParseResponseRule([]byte(`{"error": "error.message"}`)); err == nil {
		t.Fatal("expected error for missing output node")
	}
}

func TestEval_Literal(t *testing.T) {
	value, err := Eval(&Rule{Kind: KindLiteral, Value: 42.0}, Scope{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != 42.0 {
		t.Errorf("expected 42, got %v", value)
	}
}

func TestEval_Path(t *testing.T) {
	source := map[string]any{
		"choices": []any{
			map[string]any{"message": map[string]any{"content": "hi there"}},
		},
	}

	value, err := Eval(&Rule{Kind: KindPath, Path: "choices.0.message.content"}, Scope{Source: source})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != "hi there" {
		t.Errorf("expected %q, got %v", "hi there", value)
	}
}

func TestEval_PathMissing(t *testing.T) {
	_, err := Eval(&Rule{Kind: KindPath, Path: "a.b.c"}, Scope{Source: map[string]any{"a": map[string]any{}}})

	var mapErr *domain.MappingError
	if !errors.As(err, &mapErr) {
		t.Fatalf("expected MappingError, got %v", err)
	}
	if mapErr.Path != "a.b.c" {
		t.Errorf("expected path %q in error, got %q", "a.b.c", mapErr.Path)
	}
}

func TestEval_PathIndexOutOfRange(t *testing.T) {
	_, err := Eval(&Rule{Kind: KindPath, Path: "items.5"}, Scope{Source: map[string]any{"items": []any{"a"}}})
	if err == nil {
		t.Fatal("expected error for out-of-range index")
	}
}

func TestEval_ParamMissing(t *testing.T) {
	_, err := Eval(&Rule{Kind: KindParam, Name: "temperature"}, Scope{Params: map[string]any{}})

	var mapErr *domain.MappingError
	if !errors.As(err, &mapErr) {
		t.Fatalf("expected MappingError, got %v", err)
	}
}

func TestEval_Template(t *testing.T) {
	value, err := Eval(
		&Rule{Kind: KindTemplate, Template: "model={{model}}"},
		Scope{Vars: map[string]any{"model": "gpt-4o"}},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != "model=gpt-4o" {
		t.Errorf("unexpected value %v", value)
	}
}

func TestEval_TemplateMissingVariable(t *testing.T) {
	_, err := Eval(&Rule{Kind: KindTemplate, Template: "{{missing}}"}, Scope{Vars: map[string]any{}})

	var subErr *domain.SubstitutionError
	if !errors.As(err, &subErr) {
		t.Fatalf("expected SubstitutionError, got %v", err)
	}
}

func TestEval_ObjectAndArray(t *testing.T) {
	rule := &Rule{
		Kind: KindObject,
		Fields: map[string]*Rule{
			"prompt": {Kind: KindPrompt},
			"stops": {Kind: KindArray, Items: []*Rule{
				{Kind: KindLiteral, Value: "\n"},
				{Kind: KindParam, Name: "stop"},
			}},
		},
	}

	value, err := Eval(rule, Scope{
		Prompt: "rendered",
		Params: map[string]any{"stop": "END"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	obj := value.(map[string]any)
	if obj["prompt"] != "rendered" {
		t.Errorf("expected prompt splice, got %v", obj["prompt"])
	}
	stops := obj["stops"].([]any)
	if len(stops) != 2 || stops[1] != "END" {
		t.Errorf("unexpected stops %v", stops)
	}
}

func TestEval_IsPure(t *testing.T) {
	rule := &Rule{Kind: KindObject, Fields: map[string]*Rule{
		"a": {Kind: KindParam, Name: "x"},
	}}
	scope := Scope{Params: map[string]any{"x": 1}}

	first, err := Eval(rule, scope)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := Eval(rule, scope)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first.(map[string]any)["a"] != second.(map[string]any)["a"] {
		t.Error("same inputs produced different outputs")
	}
	if scope.Params["x"] != 1 {
		t.Error("evaluation mutated its scope")
	}
}

func mustFail(t *testing.T, data []byte) error {
	t.Helper()
	_, err := ParseRule(data)
	if err == nil {
		t.Fatal("expected parse failure")
	}
	return err
}
