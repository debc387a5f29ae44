package consumer

import (
	"context"
	"errors"
	"log"
	"sync"

	"taxcallback/internal/models"
)

// ErrClosed is returned by MockConsumer once its queue has been drained and closed.
var ErrClosed = errors.New("message channel closed")

// MockConsumer replays a fixed set of callback events. It backs the tail
// CLI's --mock mode and the worker tests.
type MockConsumer struct {
	logger   *log.Logger
	messages chan *models.CallbackEvent

	mu     sync.Mutex
	closed bool
}

// SampleEvents returns a small, fixed event sequence covering success,
// failure and an in-flight status.
func SampleEvents() []*models.CallbackEvent {
	return []*models.CallbackEvent{
		{
			RequestID:         "a1b1c1d1",
			Endpoint:          "GST-RETURN",
			SubmissionID:      "GST202501001234",
			Status:            "SUCCESS",
			CompanyUEN:        "201234567D",
			ClientIP:          "10.0.0.1",
			Message:           "GST F5 submission for period 202412 processed successfully",
			ReceivedTimestamp: "2025-01-15T14:30:00Z",
			Payload:           map[string]any{"formType": "F5", "taxPeriod": "202412"},
		},
		{
			RequestID:         "a2b2c2d2",
			Endpoint:          "E-STAMPING",
			SubmissionID:      "ES202501000042",
			Status:            "FAILED",
			CompanyUEN:        "12345678A",
			ClientIP:          "10.0.0.2",
			Message:           "E-stamping for LEASE_AGREEMENT submission failed",
			ReceivedTimestamp: "2025-01-15T14:31:00Z",
		},
		{
			RequestID:         "a3b3c3d3",
			Endpoint:          "FORM-CS-TEST",
			SubmissionID:      "CS20250115143200",
			Status:            "PENDING",
			CompanyUEN:        "201234567D",
			ClientIP:          "127.0.0.1",
			Message:           "Form CS (ANNUAL_RETURN) submission is pending",
			ReceivedTimestamp: "2025-01-15T14:32:00Z",
		},
	}
}

// NewMockConsumer creates a MockConsumer preloaded with events.
func NewMockConsumer(logger *log.Logger, events []*models.CallbackEvent) *MockConsumer {
	mc := &MockConsumer{
		logger:   logger,
		messages: make(chan *models.CallbackEvent, len(events)+5),
	}
	for _, msg := range events {
		mc.messages <- msg
	}
	logger.Printf("[MockConsumer] Loaded %d events", len(events))
	return mc
}

// Consume reads queued events; a NACKed event is re-queued.
func (m *MockConsumer) Consume(ctx context.Context) (msg *models.CallbackEvent, ack func(success bool), err error) {
	select {
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	case msg, ok := <-m.messages:
		if !ok || msg == nil {
			return nil, nil, ErrClosed
		}
		ackCallback := func(success bool) {
			if success {
				return
			}
			m.mu.Lock()
			defer m.mu.Unlock()
			if m.closed {
				return
			}
			select {
			case m.messages <- msg:
				m.logger.Printf("[MockConsumer] Message re-queued: request_id=%s", msg.RequestID)
			default:
				m.logger.Printf("[MockConsumer] Warning: Failed to re-queue message (channel full?): request_id=%s", msg.RequestID)
			}
		}
		return msg, ackCallback, nil
	}
}

// Drain closes the queue so Consume returns ErrClosed after the remaining
// events have been read.
func (m *MockConsumer) Drain() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.messages)
	}
}

// Close implements Consumer.
func (m *MockConsumer) Close() error {
	return nil
}

var _ Consumer = (*MockConsumer)(nil)
