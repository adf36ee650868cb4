// Package queue ships execution-log records to an external queue for
// downstream analytics. Shipping is best-effort and never blocks or fails
// the generation path.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/promptgate/promptgate/internal/domain"
)

// LogRecord is the wire form of a shipped execution-log entry.
type LogRecord struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenant_id"`
	ModelID    string    `json:"model_id"`
	PromptID   string    `json:"prompt_id,omitempty"`
	Status     int       `json:"status"`
	IsError    bool      `json:"is_error"`
	DurationMs int64     `json:"duration_ms"`
	Hash       string    `json:"hash,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func recordFromEntry(entry *domain.LogEntry) LogRecord {
	return LogRecord{
		ID:         entry.ID,
		TenantID:   entry.TenantID,
		ModelID:    entry.ModelID,
		PromptID:   entry.PromptID,
		Status:     entry.Status,
		IsError:    entry.IsError,
		DurationMs: entry.DurationMs,
		Hash:       entry.Hash,
		CreatedAt:  entry.CreatedAt,
	}
}

type Shipper interface {
	Ship(ctx context.Context, entry *domain.LogEntry) error
}

type SQSShipper struct {
	client   *sqs.Client
	queueURL string
}

func NewSQSShipper(ctx context.Context, region, queueURL string) (*SQSShipper, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &SQSShipper{
		client:   sqs.NewFromConfig(cfg),
		queueURL: queueURL,
	}, nil
}

func NewSQSShipperWithConfig(cfg aws.Config, queueURL string) *SQSShipper {
	return &SQSShipper{
		client:   sqs.NewFromConfig(cfg),
		queueURL: queueURL,
	}
}

func (s *SQSShipper) Ship(ctx context.Context, entry *domain.LogEntry) error {
	body, err := json.Marshal(recordFromEntry(entry))
	if err != nil {
		return fmt.Errorf("marshal log record: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(s.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"TenantID": {
				DataType:    aws.String("String"),
				StringValue: aws.String(entry.TenantID),
			},
			"EntryID": {
				DataType:    aws.String("String"),
				StringValue: aws.String(entry.ID),
			},
		},
	}

	_, err = s.client.SendMessage(ctx, input)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}

	return nil
}

type InMemoryShipper struct {
	mu      sync.Mutex
	shipped []LogRecord
}

func NewInMemoryShipper() *InMemoryShipper {
	return &InMemoryShipper{}
}

func (s *InMemoryShipper) Ship(ctx context.Context, entry *domain.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shipped = append(s.shipped, recordFromEntry(entry))
	return nil
}

func (s *InMemoryShipper) Shipped() []LogRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]LogRecord, len(s.shipped))
	copy(out, s.shipped)
	return out
}

// ShippingLogRepository decorates a log repository so every appended entry
// is also shipped to the queue. Shipping failures are logged and dropped.
type ShippingLogRepository struct {
	inner   LogAppender
	shipper Shipper
}

// LogAppender is the slice of the log repository the decorator needs.
type LogAppender interface {
	Append(ctx context.Context, entry *domain.LogEntry) (string, error)
}

func NewShippingLogRepository(inner LogAppender, shipper Shipper) *ShippingLogRepository {
	return &ShippingLogRepository{inner: inner, shipper: shipper}
}

func (r *ShippingLogRepository) Append(ctx context.Context, entry *domain.LogEntry) (string, error) {
	id, err := r.inner.Append(ctx, entry)
	if err != nil {
		return "", err
	}

	if err := r.shipper.Ship(ctx, entry); err != nil {
		slog.Warn("log shipping failed", "entry_id", id, "error", err)
	}
	return id, nil
}
