package consumer

import (
	"context"

	"taxcallback/internal/models"
)

// Consumer defines the interface for callback event stream consumers.
type Consumer interface {
	// Consume blocks until a message is received or the context is cancelled.
	// It returns the message, an acknowledgement callback, and any error that occurred.
	// The ack callback: ack(true) commits the message; ack(false) leaves it
	// uncommitted so it is redelivered to the group.
	Consume(ctx context.Context) (msg *models.CallbackEvent, ack func(success bool), err error)

	// Close gracefully shuts down the consumer connection.
	Close() error
}
