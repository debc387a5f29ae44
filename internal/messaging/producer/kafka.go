package producer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"taxcallback/config"
	"taxcallback/internal/models"
)

// KafkaProducer implements the Producer interface on a kafka-go Writer
type KafkaProducer struct {
	writer *kafka.Writer
	logger *log.Logger
	topic  string
}

// NewKafkaProducer creates a new KafkaProducer
func NewKafkaProducer(cfg config.KafkaProducerConfig, logger *log.Logger) (*KafkaProducer, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, errors.New("kafka producer configuration incomplete: both brokers and topic are required")
	}

	w := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers...),
		Topic:    cfg.Topic,
		Balancer: &kafka.Hash{}, // same request id, same partition

		BatchSize:    withDefault(cfg.BatchSize, 100),
		BatchTimeout: durationWithDefault(cfg.BatchTimeout, 100*time.Millisecond),
		BatchBytes:   int64(withDefault(cfg.BatchBytes, 1024*1024)),

		RequiredAcks: parseRequiredAcks(cfg.RequiredAcks),
		Async:        cfg.Async,

		WriteTimeout: durationWithDefault(cfg.WriteTimeout, 5*time.Second),
		ReadTimeout:  durationWithDefault(cfg.ReadTimeout, 5*time.Second),

		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Printf("Kafka producer error: "+msg, args...)
		}),
	}

	logger.Printf("Kafka producer created, connected to Brokers: %v, Topic: %s", cfg.Brokers, cfg.Topic)

	return &KafkaProducer{
		writer: w,
		logger: logger,
		topic:  cfg.Topic,
	}, nil
}

// PublishBatch sends events in one WriteMessages call
func (p *KafkaProducer) PublishBatch(ctx context.Context, msgs []*models.CallbackEvent) error {
	if len(msgs) == 0 {
		return nil
	}

	kafkaMsgs := make([]kafka.Message, 0, len(msgs))
	for _, msg := range msgs {
		kafkaMsg, err := encodeEvent(msg)
		if err != nil {
			return err
		}
		kafkaMsgs = append(kafkaMsgs, kafkaMsg)
	}

	if err := p.writer.WriteMessages(ctx, kafkaMsgs...); err != nil {
		p.logger.Printf("Kafka producer: failed to send %d events: %v", len(msgs), err)
		return fmt.Errorf("failed to batch write to Kafka: %w", err)
	}

	p.logger.Printf("Kafka producer: queued %d callback events (Topic: %s)", len(msgs), p.topic)
	return nil
}

// Close flushes pending writes and closes the producer
func (p *KafkaProducer) Close() error {
	p.logger.Println("Closing Kafka producer (and flushing buffer)...")
	return p.writer.Close()
}

// encodeEvent serializes an event, keyed by its request id.
func encodeEvent(msg *models.CallbackEvent) (kafka.Message, error) {
	value, err := json.Marshal(msg)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to serialize callback event (RequestID: %s): %w", msg.RequestID, err)
	}
	return kafka.Message{
		Key:   []byte(msg.RequestID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "endpoint", Value: []byte(msg.Endpoint)},
			{Key: "status", Value: []byte(msg.Status)},
		},
	}, nil
}

func parseRequiredAcks(v string) kafka.RequiredAcks {
	switch v {
	case "none":
		return kafka.RequireNone
	case "all":
		return kafka.RequireAll
	default:
		return kafka.RequireOne
	}
}

func withDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func durationWithDefault(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

var _ Producer = (*KafkaProducer)(nil) // Compile-time interface check
