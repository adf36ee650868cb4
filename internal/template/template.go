// Package template renders stored prompt templates against caller-supplied
// variables. Placeholders use {{name}} syntax and may appear in any string
// leaf of a structured template. Rendering is pure: no I/O, and template
// content can never trigger code execution.
package template

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/promptgate/promptgate/internal/domain"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_.-]*)\s*\}\}`)

// Render substitutes every {{name}} placeholder in tmpl with the matching
// variable. A placeholder with no matching variable fails with a
// SubstitutionError naming it; the literal placeholder text is never
// emitted.
func Render(tmpl string, vars map[string]any) (string, error) {
	var missing string

	out := placeholderRe.ReplaceAllStringFunc(tmpl, func(match string) string {
		name := placeholderRe.FindStringSubmatch(match)[1]
		value, ok := vars[name]
		if !ok {
			if missing == "" {
				missing = name
			}
			return match
		}
		return stringify(value)
	})

	if missing != "" {
		return "", &domain.SubstitutionError{Variable: missing}
	}
	return out, nil
}

// RenderValue walks a structured template (nested maps and slices) and
// renders every string leaf. Non-string leaves pass through untouched.
func RenderValue(v any, vars map[string]any) (any, error) {
	switch t := v.(type) {
	case string:
		return Render(t, vars)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			rendered, err := RenderValue(child, vars)
			if err != nil {
				return nil, err
			}
			out[k] = rendered
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			rendered, err := RenderValue(child, vars)
			if err != nil {
				return nil, err
			}
			out[i] = rendered
		}
		return out, nil
	default:
		return v, nil
	}
}

// RenderTurns renders the content of each chat turn. Roles are not
// templated.
func RenderTurns(turns []domain.ChatTurn, vars map[string]any) ([]domain.ChatTurn, error) {
	out := make([]domain.ChatTurn, len(turns))
	for i, turn := range turns {
		content, err := Render(turn.Content, vars)
		if err != nil {
			return nil, err
		}
		out[i] = domain.ChatTurn{Role: turn.Role, Content: content}
	}
	return out, nil
}

// Placeholders returns the sorted set of variable names referenced anywhere
// in v. Used to validate variable coverage before any network call.
func Placeholders(v any) []string {
	seen := make(map[string]bool)
	collectPlaceholders(v, seen)

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func collectPlaceholders(v any, seen map[string]bool) {
	switch t := v.(type) {
	case string:
		for _, m := range placeholderRe.FindAllStringSubmatch(t, -1) {
			seen[m[1]] = true
		}
	case map[string]any:
		for _, child := range t {
			collectPlaceholders(child, seen)
		}
	case []any:
		for _, child := range t {
			collectPlaceholders(child, seen)
		}
	case []domain.ChatTurn:
		for _, turn := range t {
			collectPlaceholders(turn.Content, seen)
		}
	case domain.ChatTurn:
		collectPlaceholders(t.Content, seen)
	}
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	case float64:
		return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%f", t), "0"), ".")
	default:
		return fmt.Sprintf("%v", t)
	}
}
