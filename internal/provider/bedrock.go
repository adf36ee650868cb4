package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/promptgate/promptgate/internal/domain"
)

// bedrockScheme addresses a model through the AWS Bedrock runtime instead
// of a plain HTTP endpoint: bedrock:anthropic.claude-3-haiku-20240307-v1:0.
// InvokeModel takes and returns raw JSON bodies, so the stored request and
// response mappings apply unchanged.
const bedrockScheme = "bedrock:"

type BedrockExecutor struct {
	client *bedrockruntime.Client
}

func NewBedrockExecutor(ctx context.Context, region string) (*BedrockExecutor, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &BedrockExecutor{client: bedrockruntime.NewFromConfig(cfg)}, nil
}

func NewBedrockExecutorWithConfig(cfg aws.Config) *BedrockExecutor {
	return &BedrockExecutor{client: bedrockruntime.NewFromConfig(cfg)}
}

func (e *BedrockExecutor) Execute(ctx context.Context, req *domain.OutboundRequest) (*domain.RawResponse, error) {
	modelID := strings.TrimPrefix(req.URL, bedrockScheme)
	if modelID == "" || modelID == req.URL {
		return nil, &domain.ProviderError{
			Kind: domain.ProviderErrorNetwork,
			Err:  fmt.Errorf("not a bedrock model address: %q", req.URL),
		}
	}

	input := &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        req.Body,
	}

	output, err := e.client.InvokeModel(ctx, input)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, &domain.ProviderError{Kind: domain.ProviderErrorTimeout, Err: err}
		}
		return nil, &domain.ProviderError{Kind: domain.ProviderErrorNetwork, Err: err}
	}

	return &domain.RawResponse{
		StatusCode: http.StatusOK,
		Body:       output.Body,
	}, nil
}
