package analytics

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/pzhine/js-worker-search/pkg/kafka"
)

const topQueryLimit = 10

// Stats is a snapshot of aggregated usage since startup.
type Stats struct {
	TotalSearches     int64        `json:"total_searches"`
	ZeroResultCount   int64        `json:"zero_result_count"`
	CacheHits         int64        `json:"cache_hits"`
	CacheMisses       int64        `json:"cache_misses"`
	AvgLatencyMS      float64      `json:"avg_latency_ms"`
	DocumentsIngested int64        `json:"documents_ingested"`
	TopQueries        []QueryCount `json:"top_queries"`
}

// QueryCount pairs a query with how often it was seen.
type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator consumes analytics events and maintains running totals.
type Aggregator struct {
	logger *slog.Logger

	mu             sync.RWMutex
	totalSearches  int64
	zeroResults    int64
	cacheHits      int64
	cacheMisses    int64
	totalLatencyMS int64
	docsIngested   int64
	queryCounts    map[string]int64
}

// NewAggregator creates an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		logger:      slog.Default().With("component", "analytics-aggregator"),
		queryCounts: make(map[string]int64),
	}
}

// HandleMessage returns a Kafka message handler that folds each analytics
// event into the running totals. Malformed events are logged and skipped so
// one bad message cannot stall the consumer group.
func (a *Aggregator) HandleMessage() kafka.MessageHandler {
	return func(ctx context.Context, key, value []byte) error {
		event, err := kafka.DecodeJSON[Event](value)
		if err != nil {
			a.logger.Error("skipping malformed analytics event", "error", err)
			return nil
		}
		a.record(event)
		return nil
	}
}

// Record folds an event into the totals directly, bypassing Kafka. Used when
// the broker is not configured and events are applied in-process.
func (a *Aggregator) Record(event Event) {
	a.record(event)
}

func (a *Aggregator) record(event Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch event.Type {
	case EventSearch:
		a.totalSearches++
		a.totalLatencyMS += event.LatencyMS
		if event.ResultCount == 0 {
			a.zeroResults++
		}
		if event.CacheHit {
			a.cacheHits++
		} else {
			a.cacheMisses++
		}
		if event.Query != "" {
			a.queryCounts[event.Query]++
		}
	case EventIndex:
		a.docsIngested++
	default:
		a.logger.Warn("unknown analytics event type", "type", event.Type)
	}
}

// Stats returns a snapshot of the aggregated totals.
func (a *Aggregator) Stats() Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var avg float64
	if a.totalSearches > 0 {
		avg = float64(a.totalLatencyMS) / float64(a.totalSearches)
	}

	top := make([]QueryCount, 0, len(a.queryCounts))
	for q, n := range a.queryCounts {
		top = append(top, QueryCount{Query: q, Count: n})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Count != top[j].Count {
			return top[i].Count > top[j].Count
		}
		return top[i].Query < top[j].Query
	})
	if len(top) > topQueryLimit {
		top = top[:topQueryLimit]
	}

	return Stats{
		TotalSearches:     a.totalSearches,
		ZeroResultCount:   a.zeroResults,
		CacheHits:         a.cacheHits,
		CacheMisses:       a.cacheMisses,
		AvgLatencyMS:      avg,
		DocumentsIngested: a.docsIngested,
		TopQueries:        top,
	}
}
