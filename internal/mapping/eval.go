package mapping

import (
	"github.com/promptgate/promptgate/internal/domain"
	"github.com/promptgate/promptgate/internal/template"
)

// Scope carries the inputs a rule may draw from. Evaluation reads the scope
// and nothing else.
type Scope struct {
	// Prompt is the rendered prompt value: a turn sequence for chat models,
	// a string or structured value otherwise.
	Prompt any

	// Params is the model's opaque parameter bag.
	Params map[string]any

	// Source is the document path nodes extract from (the decoded provider
	// response during response mapping).
	Source any

	// Vars is the variable set template nodes render against.
	Vars map[string]any
}

// Eval interprets a rule against a scope. A path or param node referencing
// a missing field fails with a MappingError naming it.
func Eval(rule *Rule, scope Scope) (any, error) {
	return eval(rule, scope, "")
}

func eval(rule *Rule, scope Scope, at string) (any, error) {
	switch rule.Kind {
	case KindLiteral:
		return rule.Value, nil

	case KindPath:
		value, ok := lookupPath(scope.Source, rule.Path)
		if !ok {
			return nil, &domain.MappingError{Path: rule.Path, Reason: "field not present in source"}
		}
		return value, nil

	case KindParam:
		value, ok := scope.Params[rule.Name]
		if !ok {
			return nil, &domain.MappingError{Path: "parameters." + rule.Name, Reason: "parameter not set"}
		}
		return value, nil

	case KindTemplate:
		rendered, err := template.Render(rule.Template, scope.Vars)
		if err != nil {
			return nil, err
		}
		return rendered, nil

	case KindPrompt:
		if scope.Prompt == nil {
			return nil, &domain.MappingError{Path: at, Reason: "no prompt value in scope"}
		}
		return scope.Prompt, nil

	case KindObject:
		out := make(map[string]any, len(rule.Fields))
		for field, child := range rule.Fields {
			value, err := eval(child, scope, joinPath(at, field))
			if err != nil {
				return nil, err
			}
			out[field] = value
		}
		return out, nil

	case KindArray:
		out := make([]any, len(rule.Items))
		for i, child := range rule.Items {
			value, err := eval(child, scope, at)
			if err != nil {
				return nil, err
			}
			out[i] = value
		}
		return out, nil
	}

	// validate() rejects unknown kinds at parse time.
	return nil, &domain.MappingError{Path: at, Reason: "unknown node kind " + rule.Kind}
}
