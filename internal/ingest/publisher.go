package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pzhine/js-worker-search/pkg/kafka"
	"github.com/pzhine/js-worker-search/pkg/resilience"
)

// publishRetry keeps broker hiccups from surfacing as 503s on the document
// endpoint; a publish that still fails after these attempts is a real outage.
var publishRetry = resilience.RetryConfig{
	MaxAttempts:  3,
	InitialDelay: 50 * time.Millisecond,
	MaxDelay:     time.Second,
}

// Publisher pushes accepted documents onto the ingest topic for asynchronous
// indexing by the consumer.
type Publisher struct {
	producer *kafka.Producer
	logger   *slog.Logger
}

// NewPublisher creates a Publisher backed by the given Kafka producer.
func NewPublisher(producer *kafka.Producer) *Publisher {
	return &Publisher{
		producer: producer,
		logger:   slog.Default().With("component", "ingest-publisher"),
	}
}

// Publish serialises the request as an IngestEvent keyed by uid, so repeated
// updates to one document land on one partition and index in order.
func (p *Publisher) Publish(ctx context.Context, req *IndexRequest) error {
	event := kafka.Event{
		Key: req.UID,
		Value: IngestEvent{
			UID:        req.UID,
			Text:       req.Text,
			IngestedAt: time.Now().UTC(),
		},
	}
	err := resilience.Retry(ctx, "ingest-publish", publishRetry, func() error {
		return p.producer.Publish(ctx, event)
	})
	if err != nil {
		return fmt.Errorf("publishing ingest event for %s: %w", req.UID, err)
	}
	p.logger.Debug("ingest event published", "uid", req.UID, "text_size", len(req.Text))
	return nil
}
