package store

import (
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps the callback history in a bounded, insertion-ordered
// slice guarded by a single mutex.
type MemoryStore struct {
	mu       sync.Mutex
	records  []Record
	maxLogs  int
	lastSeen time.Time

	now   func() time.Time
	newID func() string
}

// Option configures a MemoryStore.
type Option func(*MemoryStore)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides request id generation.
func WithIDGenerator(newID func() string) Option {
	return func(s *MemoryStore) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// NewMemoryStore creates a store holding at most maxLogs records.
func NewMemoryStore(maxLogs int, opts ...Option) *MemoryStore {
	if maxLogs <= 0 {
		maxLogs = DefaultMaxLogs
	}
	s := &MemoryStore{
		records: make([]Record, 0, maxLogs+1),
		maxLogs: maxLogs,
		now:     time.Now,
		newID:   ShortID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ShortID returns the first eight characters of a random UUID.
func ShortID() string {
	return uuid.NewString()[:8]
}

// Append implements Store.
func (s *MemoryStore) Append(rec Record) Record {
	rec.Payload = maps.Clone(rec.Payload)
	rec.Headers = maps.Clone(rec.Headers)
	id := s.newID()

	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.now()
	if ts.Before(s.lastSeen) {
		ts = s.lastSeen
	}
	s.lastSeen = ts

	rec.RequestID = id
	rec.Timestamp = ts
	s.records = append(s.records, rec)
	if len(s.records) > s.maxLogs {
		// Evict index 0 in place; the backing array stays at maxLogs+1.
		copy(s.records, s.records[1:])
		s.records[len(s.records)-1] = Record{}
		s.records = s.records[:len(s.records)-1]
	}
	return rec
}

// Recent implements Store.
func (s *MemoryStore) Recent(limit int) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || len(s.records) == 0 {
		return []Record{}
	}
	if limit > len(s.records) {
		limit = len(s.records)
	}
	out := make([]Record, limit)
	copy(out, s.records[len(s.records)-limit:])
	return out
}

// Count implements Store.
func (s *MemoryStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Capacity implements Store.
func (s *MemoryStore) Capacity() int {
	return s.maxLogs
}

// Aggregate implements Store.
func (s *MemoryStore) Aggregate() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{
		Total:          len(s.records),
		StatusCounts:   make(map[string]int),
		EndpointCounts: make(map[string]int),
		RecentActivity: []Summary{},
	}
	recentFrom := len(s.records) - RecentActivitySize
	for i, rec := range s.records {
		status := rec.Status
		if status == "" {
			status = "UNKNOWN"
		}
		stats.StatusCounts[status]++
		stats.EndpointCounts[rec.Endpoint]++
		if i >= recentFrom {
			stats.RecentActivity = append(stats.RecentActivity, Summary{
				Timestamp:    rec.Timestamp,
				Endpoint:     rec.Endpoint,
				Status:       rec.Status,
				SubmissionID: rec.SubmissionID(),
			})
		}
	}
	if n := len(s.records); n > 0 {
		latest := s.records[n-1].Timestamp
		stats.Latest = &latest
	}
	return stats
}

// Clear implements Store.
func (s *MemoryStore) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := len(s.records)
	clear(s.records)
	s.records = s.records[:0]
	return removed
}

var _ Store = (*MemoryStore)(nil)
