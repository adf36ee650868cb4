// Package provider executes outbound requests against third-party model
// APIs. Executors issue exactly one call per invocation and never retry;
// retry policy, if any, belongs to the orchestrator.
package provider

import (
	"context"
	"strings"

	"github.com/promptgate/promptgate/internal/domain"
)

// Executor performs one provider call. A non-2xx response is not an error:
// it comes back as a RawResponse so the response mapping can apply
// provider-specific error semantics. Errors are reserved for transport
// failures and timeouts.
type Executor interface {
	Execute(ctx context.Context, req *domain.OutboundRequest) (*domain.RawResponse, error)
}

// Registry selects the executor for an API call spec. Models addressed as
// bedrock:<model-id> go through the AWS SDK; everything else is plain HTTP.
type Registry struct {
	HTTP    Executor
	Bedrock Executor
}

func (r *Registry) ForSpec(api domain.APICallSpec) Executor {
	if strings.HasPrefix(api.URL, bedrockScheme) && r.Bedrock != nil {
		return r.Bedrock
	}
	return r.HTTP
}
