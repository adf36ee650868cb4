// Package mapping evaluates the declarative transformation rules stored on
// model configurations. A rule is a small tagged-variant AST decoded from
// JSON; evaluating it is a pure function of its inputs. Rules carry no
// executable code and evaluation never touches the network.
package mapping

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/promptgate/promptgate/internal/domain"
)

// Node kinds. Unknown kinds fail at decode time, not at evaluation time.
const (
	KindLiteral  = "literal"  // inject a constant value
	KindPath     = "path"     // extract a dotted path from the source document
	KindParam    = "param"    // look up a model parameter
	KindTemplate = "template" // substitute {{var}} against the evaluation scope
	KindPrompt   = "prompt"   // splice the rendered prompt value in
	KindObject   = "object"   // build an object field by field
	KindArray    = "array"    // build an ordered sequence
)

// Rule is one node of the mapping AST. Exactly the fields relevant to its
// Kind are set.
type Rule struct {
	Kind     string           `json:"kind"`
	Value    any              `json:"value,omitempty"`    // literal
	Path     string           `json:"path,omitempty"`     // path
	Name     string           `json:"name,omitempty"`     // param
	Template string           `json:"template,omitempty"` // template
	Fields   map[string]*Rule `json:"fields,omitempty"`   // object
	Items    []*Rule          `json:"items,omitempty"`    // array
}

// ResponseRule describes how to read a provider response: where the
// generated content lives and, optionally, where a provider-reported error
// indicator lives. The error path is probed leniently because most
// responses simply do not carry it.
type ResponseRule struct {
	Output    *Rule  `json:"output"`
	ErrorPath string `json:"error,omitempty"`
}

// ParseRule decodes and validates a stored request mapping rule.
func ParseRule(data []byte) (*Rule, error) {
	if len(data) == 0 {
		return nil, &domain.MappingError{Reason: "empty mapping rule"}
	}

	var rule Rule
	if err := json.Unmarshal(data, &rule); err != nil {
		return nil, &domain.MappingError{Reason: "invalid mapping rule: " + err.Error()}
	}
	if err := rule.validate(""); err != nil {
		return nil, err
	}
	return &rule, nil
}

// ParseResponseRule decodes and validates a stored response mapping rule.
func ParseResponseRule(data []byte) (*ResponseRule, error) {
	if len(data) == 0 {
		return nil, &domain.MappingError{Reason: "empty response mapping rule"}
	}

	var rule ResponseRule
	if err := json.Unmarshal(data, &rule); err != nil {
		return nil, &domain.MappingError{Reason: "invalid response mapping rule: " + err.Error()}
	}
	if rule.Output == nil {
		return nil, &domain.MappingError{Path: "output", Reason: "response mapping requires an output node"}
	}
	if err := rule.Output.validate("output"); err != nil {
		return nil, err
	}
	return &rule, nil
}

func (r *Rule) validate(at string) error {
	switch r.Kind {
	case KindLiteral, KindPrompt:
		return nil
	case KindPath:
		if r.Path == "" {
			return &domain.MappingError{Path: at, Reason: "path node requires a path"}
		}
	case KindParam:
		if r.Name == "" {
			return &domain.MappingError{Path: at, Reason: "param node requires a name"}
		}
	case KindTemplate:
		if r.Template == "" {
			return &domain.MappingError{Path: at, Reason: "template node requires a template"}
		}
	case KindObject:
		for field, child := range r.Fields {
			if child == nil {
				return &domain.MappingError{Path: joinPath(at, field), Reason: "null node"}
			}
			if err := child.validate(joinPath(at, field)); err != nil {
				return err
			}
		}
	case KindArray:
		for i, child := range r.Items {
			childAt := joinPath(at, strconv.Itoa(i))
			if child == nil {
				return &domain.MappingError{Path: childAt, Reason: "null node"}
			}
			if err := child.validate(childAt); err != nil {
				return err
			}
		}
	default:
		return &domain.MappingError{Path: at, Reason: fmt.Sprintf("unknown node kind %q", r.Kind)}
	}
	return nil
}

func joinPath(base, field string) string {
	if base == "" {
		return field
	}
	return base + "." + field
}

// lookupPath resolves a dotted path against a decoded JSON document.
// Numeric segments index into arrays.
func lookupPath(doc any, path string) (any, bool) {
	current := doc
	for _, segment := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]any:
			value, ok := node[segment]
			if !ok {
				return nil, false
			}
			current = value
		case []any:
			idx, err := strconv.Atoi(segment)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			current = node[idx]
		default:
			return nil, false
		}
	}
	return current, true
}
