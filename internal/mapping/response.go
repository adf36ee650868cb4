package mapping

import (
	"encoding/json"
	"fmt"

	"github.com/promptgate/promptgate/internal/domain"
)

// NormalizedOutput is the provider-independent result of response mapping.
// Exactly one of Text and Structured is set. ProviderError carries a
// provider-reported failure indicator; the orchestrator decides how it
// affects the final status.
type NormalizedOutput struct {
	Text          string
	Structured    any
	ProviderError string
}

// Value returns whichever of Text or Structured is populated.
func (o *NormalizedOutput) Value() any {
	if o.Structured != nil {
		return o.Structured
	}
	return o.Text
}

// MapResponse extracts the generated content and any provider-reported
// error from a raw response per the configured mapping. The raw response is
// interpreted regardless of HTTP status: some providers encode errors in a
// 200 body, and the error path is what decides.
func MapResponse(rule *ResponseRule, raw *domain.RawResponse) (*NormalizedOutput, error) {
	var source any
	if err := json.Unmarshal(raw.Body, &source); err != nil {
		// Non-JSON bodies are exposed to path nodes as a bare string.
		source = string(raw.Body)
	}

	out := &NormalizedOutput{}

	if rule.ErrorPath != "" {
		if value, ok := lookupPath(source, rule.ErrorPath); ok {
			out.ProviderError = stringifyError(value)
		}
	}

	// A provider that reported an error often omits the output field
	// entirely; do not turn that into a mapping error on top of it.
	value, err := Eval(rule.Output, Scope{Source: source})
	if err != nil {
		if out.ProviderError != "" {
			return out, nil
		}
		return nil, err
	}

	if text, ok := value.(string); ok {
		out.Text = text
	} else {
		out.Structured = value
	}
	return out, nil
}

// stringifyError turns whatever lives at the error path into a message.
// Absent-looking values (nil, false, empty string) mean no error.
func stringifyError(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case bool:
		if t {
			return "provider reported an error"
		}
		return ""
	case string:
		return t
	case map[string]any:
		if msg, ok := t["message"].(string); ok {
			return msg
		}
		encoded, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(encoded)
	default:
		return fmt.Sprintf("%v", t)
	}
}
