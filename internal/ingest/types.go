// Package ingest defines the request types, validation, and Kafka pipeline
// for feeding documents into the search worker.
package ingest

import "time"

// IndexRequest is the JSON body accepted by the document endpoint.
type IndexRequest struct {
	UID  string `json:"uid"`
	Text string `json:"text"`
}

// IndexResponse is returned to the caller after a document is accepted.
// Status is "indexed" when the document was handed to the worker inline and
// "queued" when it was published to Kafka for asynchronous indexing.
type IndexResponse struct {
	UID    string `json:"uid"`
	Status string `json:"status"`
}

const (
	StatusIndexed = "indexed"
	StatusQueued  = "queued"
)

// IngestEvent is the Kafka message payload carrying a document to index.
type IngestEvent struct {
	UID        string    `json:"uid"`
	Text       string    `json:"text"`
	IngestedAt time.Time `json:"ingested_at"`
}
