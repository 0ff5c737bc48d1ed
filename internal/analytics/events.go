// Package analytics tracks search and indexing activity. A Collector
// publishes events to Kafka off the request path; an Aggregator consumes
// them and maintains in-memory usage statistics served by the stats API.
package analytics

import "time"

// EventType discriminates analytics event payloads.
type EventType string

const (
	EventSearch EventType = "search"
	EventIndex  EventType = "index"
)

// Event is the envelope published to the analytics topic.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	// Search fields.
	Query       string `json:"query,omitempty"`
	ResultCount int    `json:"result_count,omitempty"`
	LatencyMS   int64  `json:"latency_ms,omitempty"`
	CacheHit    bool   `json:"cache_hit,omitempty"`

	// Index fields.
	UID      string `json:"uid,omitempty"`
	TextSize int    `json:"text_size,omitempty"`
}

// NewSearchEvent builds a search event stamped with the current time.
func NewSearchEvent(query string, resultCount int, latency time.Duration, cacheHit bool) Event {
	return Event{
		Type:        EventSearch,
		Timestamp:   time.Now().UTC(),
		Query:       query,
		ResultCount: resultCount,
		LatencyMS:   latency.Milliseconds(),
		CacheHit:    cacheHit,
	}
}

// NewIndexEvent builds an index event stamped with the current time.
func NewIndexEvent(uid string, textSize int) Event {
	return Event{
		Type:      EventIndex,
		Timestamp: time.Now().UTC(),
		UID:       uid,
		TextSize:  textSize,
	}
}
