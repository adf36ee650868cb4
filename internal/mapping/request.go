package mapping

import (
	"encoding/json"
	"net/http"

	"github.com/promptgate/promptgate/internal/domain"
	"github.com/promptgate/promptgate/internal/template"
)

// BuildRequest assembles the outbound provider call for a model: the URL
// and header templates come from the model's API call spec, the body from
// its request mapping. The mapper branches on the model's declared type,
// never on the shape of the rendered prompt.
//
// secret is the tenant's provider API key, resolved by the caller; it is
// exposed to URL and header templates as {{apiKey}}.
func BuildRequest(model *domain.ModelConfig, prompt any, secret string) (*domain.OutboundRequest, error) {
	rule, err := ParseRule(model.RequestMapping)
	if err != nil {
		return nil, err
	}

	promptValue, err := promptForType(model.Type, prompt)
	if err != nil {
		return nil, err
	}

	vars := make(map[string]any, len(model.Parameters)+1)
	for k, v := range model.Parameters {
		vars[k] = v
	}
	vars["apiKey"] = secret

	body, err := Eval(rule, Scope{
		Prompt: promptValue,
		Params: model.Parameters,
		Vars:   vars,
	})
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, &domain.MappingError{Reason: "mapped body is not encodable: " + err.Error()}
	}

	url, err := template.Render(model.APICall.URL, vars)
	if err != nil {
		return nil, err
	}

	headers := make(map[string]string, len(model.APICall.Headers)+1)
	for name, tmpl := range model.APICall.Headers {
		value, err := template.Render(tmpl, vars)
		if err != nil {
			return nil, err
		}
		headers[name] = value
	}
	if _, ok := headers["Content-Type"]; !ok {
		headers["Content-Type"] = "application/json"
	}

	method := model.APICall.Method
	if method == "" {
		method = http.MethodPost
	}

	return &domain.OutboundRequest{
		Method:  method,
		URL:     url,
		Headers: headers,
		Body:    encoded,
	}, nil
}

// promptForType enforces the body-shape invariant: chat prompts are always
// a sequence of turn objects, completion and embedding prompts never are.
func promptForType(modelType domain.ModelType, prompt any) (any, error) {
	turns, isTurns := prompt.([]domain.ChatTurn)

	switch modelType {
	case domain.ModelTypeChat:
		if !isTurns {
			return nil, &domain.MappingError{Reason: "chat model requires a turn-sequence prompt"}
		}
		out := make([]any, len(turns))
		for i, turn := range turns {
			out[i] = map[string]any{"role": turn.Role, "content": turn.Content}
		}
		return out, nil

	case domain.ModelTypeCompletion, domain.ModelTypeEmbedding:
		if isTurns {
			return nil, &domain.MappingError{Reason: string(modelType) + " model cannot take a turn-sequence prompt"}
		}
		return prompt, nil
	}

	return nil, &domain.MappingError{Reason: "unknown model type " + string(modelType)}
}
