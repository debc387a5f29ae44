package service

import (
	"context"
	"fmt"
	"log"
	"maps"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"taxcallback/config"
	"taxcallback/internal/messaging/producer"
	"taxcallback/internal/models"
	"taxcallback/internal/validation"
	"taxcallback/storage/store"
)

const tracerName = "taxcallback/ingestion"

// Origin describes who delivered a callback.
type Origin struct {
	ClientIP string
	Method   string
	Headers  map[string]string
}

// Ack is the acknowledgement returned for an accepted callback.
type Ack struct {
	Status       string    `json:"status"`
	Message      string    `json:"message"`
	SubmissionID string    `json:"submissionId"`
	Timestamp    time.Time `json:"timestamp"`
	RequestID    string    `json:"requestId"`
}

// MockResult pairs a generated payload with the acknowledgement it produced.
type MockResult struct {
	Message          string         `json:"message"`
	MockData         map[string]any `json:"mock_data"`
	CallbackResponse *Ack           `json:"callback_response"`
}

// SubmissionError wraps a rejected submission. SubmissionID is empty until
// the payload's submissionId has been read.
type SubmissionError struct {
	SubmissionID string
	Err          error
}

func (e *SubmissionError) Error() string {
	return e.Err.Error()
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// Service encapsulates the callback pipeline: validation, recording,
// acknowledgement and the optional event stream.
type Service struct {
	store          store.Store
	logger         *log.Logger
	batchProcessor *BatchProcessor
	formatter      *amountFormatter
	tracer         trace.Tracer
	now            func() time.Time
}

// NewService creates a new Service. A nil producer disables the event stream.
func NewService(s store.Store, p producer.Producer, l *log.Logger, batchCfg config.BatchProcessorConfig) *Service {
	svc := &Service{
		store:     s,
		logger:    l,
		formatter: newAmountFormatter(),
		tracer:    otel.Tracer(tracerName),
		now:       time.Now,
	}
	if p != nil {
		svc.batchProcessor = NewBatchProcessor(batchCfg.BatchSize, batchCfg.BatchTimeout, batchCfg.FlushChannelBuffer, p, l)
	}
	return svc
}

// Submit validates a callback of the given kind, records it and returns the
// acknowledgement. Validation problems come back as *validation.Failure
// wrapped in a *SubmissionError.
func (s *Service) Submit(ctx context.Context, kind Kind, data map[string]any, origin Origin) (*Ack, error) {
	schema, ok := Lookup(kind)
	if !ok {
		return nil, fmt.Errorf("unknown callback kind %q", kind)
	}
	return s.accept(ctx, schema, schema.Tag, data, origin)
}

// Validate runs the pipeline for kind without recording anything and returns
// the normalized payload.
func (s *Service) Validate(kind Kind, data map[string]any) (map[string]any, error) {
	schema, ok := Lookup(kind)
	if !ok {
		return nil, validation.FieldFail("type", fmt.Sprintf("Unknown callback type: %s", kind))
	}
	out, _, err := schema.normalize(data)
	return out, err
}

// SubmitMock generates a sample payload for kind and submits it under the
// kind's test tag.
func (s *Service) SubmitMock(ctx context.Context, kind Kind, origin Origin) (*MockResult, error) {
	schema, ok := Lookup(kind)
	if !ok {
		return nil, fmt.Errorf("unknown callback kind %q", kind)
	}
	data := schema.mock(s.now())
	ack, err := s.accept(ctx, schema, schema.Tag+MockTagSuffix, maps.Clone(data), origin)
	if err != nil {
		return nil, fmt.Errorf("mock %s callback rejected: %w", kind, err)
	}
	return &MockResult{
		Message:          fmt.Sprintf("Mock %s callback generated and processed successfully", schema.Title),
		MockData:         data,
		CallbackResponse: ack,
	}, nil
}

func (s *Service) accept(ctx context.Context, schema *Schema, tag string, data map[string]any, origin Origin) (*Ack, error) {
	_, span := s.tracer.Start(ctx, "callback.submit",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("callback.kind", string(schema.Kind)),
			attribute.String("callback.endpoint", tag),
		))
	defer span.End()

	payload, submissionID, err := schema.normalize(data)
	if err != nil {
		span.SetStatus(codes.Error, "validation failed")
		span.RecordError(err)
		return nil, &SubmissionError{SubmissionID: submissionID, Err: err}
	}

	rec := s.store.Append(store.Record{
		Endpoint:      tag,
		Payload:       payload,
		Headers:       origin.Headers,
		ClientAddress: origin.ClientIP,
		Method:        origin.Method,
		Status:        str(payload, "submissionStatus"),
	})
	span.SetAttributes(
		attribute.String("callback.request_id", rec.RequestID),
		attribute.String("callback.status", rec.Status),
	)

	reportAccepted(s.logger, s.formatter, schema, rec)
	message := schema.Message(payload)

	if s.batchProcessor != nil {
		s.batchProcessor.SubmitEvent(&models.CallbackEvent{
			RequestID:         rec.RequestID,
			Endpoint:          rec.Endpoint,
			SubmissionID:      submissionID,
			Status:            rec.Status,
			CompanyUEN:        str(payload, "companyUEN"),
			ClientIP:          rec.ClientAddress,
			Message:           message,
			ReceivedTimestamp: rec.Timestamp.Format(time.RFC3339Nano),
			Payload:           rec.Payload,
		})
	}

	return &Ack{
		Status:       "received",
		Message:      message,
		SubmissionID: submissionID,
		Timestamp:    rec.Timestamp,
		RequestID:    rec.RequestID,
	}, nil
}

// Recent returns up to limit of the newest records, oldest first.
func (s *Service) Recent(limit int) []store.Record {
	return s.store.Recent(limit)
}

// Count returns the number of recorded callbacks.
func (s *Service) Count() int {
	return s.store.Count()
}

// Capacity returns the history bound.
func (s *Service) Capacity() int {
	return s.store.Capacity()
}

// Stats aggregates the current history.
func (s *Service) Stats() store.Stats {
	return s.store.Aggregate()
}

// StreamDropped returns how many callback events the event stream discarded
// while behind. It is zero when the stream is disabled.
func (s *Service) StreamDropped() int {
	if s.batchProcessor == nil {
		return 0
	}
	return s.batchProcessor.Dropped()
}

// Clear empties the history and reports how many records were removed.
func (s *Service) Clear() int {
	n := s.store.Clear()
	s.logger.Printf("Service: Cleared %d callback logs", n)
	return n
}

// Close gracefully shuts down the service
func (s *Service) Close() {
	if s.batchProcessor != nil {
		s.batchProcessor.Close()
	}
}
