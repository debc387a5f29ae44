package store

import (
	"time"
)

// DefaultMaxLogs is the capacity used when no positive limit is configured.
const DefaultMaxLogs = 200

// RecentActivitySize is the number of records summarized by Aggregate.
const RecentActivitySize = 10

// Record is one accepted callback. Records are immutable once appended.
type Record struct {
	RequestID     string            `json:"requestId"`
	Timestamp     time.Time         `json:"timestamp"`
	Endpoint      string            `json:"endpoint"`
	Payload       map[string]any    `json:"callback_data"`
	Headers       map[string]string `json:"headers,omitempty"`
	ClientAddress string            `json:"client_ip"`
	Method        string            `json:"method,omitempty"`
	Status        string            `json:"status"`
}

// SubmissionID returns the submissionId carried in the payload, or "N/A".
func (r Record) SubmissionID() string {
	if s, ok := r.Payload["submissionId"].(string); ok && s != "" {
		return s
	}
	return "N/A"
}

// Summary is the condensed view of a record used by Stats.
type Summary struct {
	Timestamp    time.Time `json:"timestamp"`
	Endpoint     string    `json:"endpoint"`
	Status       string    `json:"status"`
	SubmissionID string    `json:"submissionId"`
}

// Stats aggregates the full current history.
type Stats struct {
	Total          int            `json:"total_callbacks"`
	StatusCounts   map[string]int `json:"status_breakdown"`
	EndpointCounts map[string]int `json:"endpoint_breakdown"`
	Latest         *time.Time     `json:"latest_callback"`
	RecentActivity []Summary      `json:"recent_activity"`
}

// Store defines the callback history operations used by the ingestion layer.
type Store interface {
	// Append assigns a request id and timestamp to rec, stores it and evicts
	// the oldest record when capacity is exceeded.
	Append(rec Record) Record

	// Recent returns up to limit of the newest records, oldest first.
	Recent(limit int) []Record

	// Count returns the number of stored records.
	Count() int

	// Capacity returns the maximum number of stored records.
	Capacity() int

	// Aggregate computes status/endpoint breakdowns in one pass.
	Aggregate() Stats

	// Clear empties the history and reports how many records were removed.
	Clear() int
}
