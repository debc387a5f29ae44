package producer

import (
	"context"

	"taxcallback/internal/models"
)

// Producer defines the interface for the callback event stream producer
type Producer interface {
	// PublishBatch sends callback events in batch to the configured topic
	PublishBatch(ctx context.Context, msgs []*models.CallbackEvent) error

	// Close closes the producer connection
	Close() error
}
