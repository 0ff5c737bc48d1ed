package ingest

import (
	"context"
	"log/slog"

	"github.com/pzhine/js-worker-search/pkg/kafka"
	"github.com/pzhine/js-worker-search/pkg/metrics"
	"github.com/pzhine/js-worker-search/search/worker"
)

// Invalidator drops cached query results after the index changes.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// HandleMessage returns a Kafka MessageHandler that feeds each ingest event
// into the search worker. cache and m may be nil.
//
// A malformed event is logged and skipped rather than retried: redelivery
// cannot fix a payload that does not decode.
func HandleMessage(proxy *worker.Proxy, cache Invalidator, m *metrics.Metrics) kafka.MessageHandler {
	logger := slog.Default().With("component", "ingest-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[IngestEvent](value)
		if err != nil {
			logger.Error("failed to decode ingest event",
				"error", err,
				"key", string(key),
			)
			if m != nil {
				m.IngestEventsTotal.WithLabelValues("failed").Inc()
			}
			return nil
		}

		proxy.IndexDocument(event.UID, event.Text)
		if m != nil {
			m.IngestEventsTotal.WithLabelValues("consumed").Inc()
			m.DocsIndexedTotal.Inc()
		}
		if cache != nil {
			if err := cache.Invalidate(ctx); err != nil {
				logger.Warn("cache invalidation failed after index", "error", err)
			}
		}

		logger.Info("document indexed from queue",
			"uid", event.UID,
			"text_size", len(event.Text),
		)
		return nil
	}
}
