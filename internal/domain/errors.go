package domain

import (
	"errors"
	"fmt"
)

var (
	ErrModelNotFound    = errors.New("model not found")
	ErrPromptNotFound   = errors.New("prompt not found")
	ErrTenantNotFound   = errors.New("tenant not found")
	ErrLogEntryNotFound = errors.New("log entry not found")
	ErrInvalidAPIKey    = errors.New("invalid API key")
	ErrInvalidRequest   = errors.New("invalid request")
)

// SubstitutionError reports a template placeholder with no matching
// variable. Rendering never passes the literal placeholder through.
type SubstitutionError struct {
	Variable string
}

func (e *SubstitutionError) Error() string {
	return fmt.Sprintf("unresolved template variable %q", e.Variable)
}

// MappingError reports a mapping rule that referenced a field absent from
// its source value, or a malformed rule. It is a configuration error, not
// a provider failure.
type MappingError struct {
	Path   string
	Reason string
}

func (e *MappingError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("mapping error at %q: %s", e.Path, e.Reason)
	}
	return "mapping error: " + e.Reason
}

// ProviderErrorKind classifies transport-level provider failures.
type ProviderErrorKind string

const (
	ProviderErrorTimeout ProviderErrorKind = "timeout"
	ProviderErrorNetwork ProviderErrorKind = "network"
)

// ProviderError reports a failure to complete the outbound provider call.
// Non-2xx responses are not ProviderErrors; they are passed through to the
// response mapper as raw responses.
type ProviderError struct {
	Kind ProviderErrorKind
	Err  error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s error: %v", e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// ConfigurationError wraps failures caused by stored configuration rather
// than runtime conditions: missing entities, malformed mappings, undeclared
// variables.
type ConfigurationError struct {
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return "configuration error: " + e.Reason + ": " + e.Err.Error()
	}
	return "configuration error: " + e.Reason
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}
