package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"taxcallback/config"
	"taxcallback/internal/models"

	"github.com/segmentio/kafka-go"
)

// ErrUndecodable marks a message that was skipped because its value is not a
// CallbackEvent. Its offset has already been committed.
var ErrUndecodable = errors.New("callback event deserialization failed")

// KafkaConsumer implements the Consumer interface to consume callback events from Kafka
type KafkaConsumer struct {
	reader *kafka.Reader
	logger *log.Logger
	commit bool
}

// NewKafkaConsumer creates a new KafkaConsumer instance. Without a group id
// the reader follows every partition and offsets are never committed.
func NewKafkaConsumer(cfg config.KafkaConsumerConfig, logger *log.Logger) (*KafkaConsumer, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, errors.New("incomplete kafka configuration: brokers and topic are required")
	}

	readerConfig, err := readerConfigFor(cfg, logger)
	if err != nil {
		return nil, err
	}
	r := kafka.NewReader(readerConfig)

	logger.Printf("Kafka consumer created, connected to Brokers: %v, Topic: %s, GroupID: %q", cfg.Brokers, cfg.Topic, cfg.GroupID)

	return &KafkaConsumer{
		reader: r,
		logger: logger,
		commit: cfg.GroupID != "",
	}, nil
}

func readerConfigFor(cfg config.KafkaConsumerConfig, logger *log.Logger) (kafka.ReaderConfig, error) {
	sessionTimeout, err := time.ParseDuration(cfg.SessionTimeout)
	if err != nil {
		logger.Printf("Warning: Invalid session_timeout '%s', using default 30s", cfg.SessionTimeout)
		sessionTimeout = 30 * time.Second
	}

	heartbeatInterval, err := time.ParseDuration(cfg.HeartbeatInterval)
	if err != nil {
		logger.Printf("Warning: Invalid heartbeat_interval '%s', using default 3s", cfg.HeartbeatInterval)
		heartbeatInterval = 3 * time.Second
	}

	readerConfig := kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,            // 10MB
		MaxWait:  1 * time.Second, // Max wait time for message fetch
	}
	if cfg.GroupID != "" {
		readerConfig.SessionTimeout = sessionTimeout
		readerConfig.HeartbeatInterval = heartbeatInterval
	}

	switch cfg.AutoOffsetReset {
	case "latest", "":
		readerConfig.StartOffset = kafka.LastOffset
	case "earliest":
		readerConfig.StartOffset = kafka.FirstOffset
	default:
		return kafka.ReaderConfig{}, fmt.Errorf("unknown auto_offset_reset %q", cfg.AutoOffsetReset)
	}
	return readerConfig, nil
}

// Consume implements the Consumer interface by reading messages from Kafka
func (k *KafkaConsumer) Consume(ctx context.Context) (msg *models.CallbackEvent, ack func(success bool), err error) {
	kafkaMsg, err := k.reader.FetchMessage(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			k.logger.Println("Kafka consumer: Context cancelled, stopping consumption.")
			return nil, nil, ctx.Err()
		}
		return nil, nil, err
	}

	var event models.CallbackEvent
	if err := json.Unmarshal(kafkaMsg.Value, &event); err != nil {
		k.logger.Printf("Kafka consumer: Failed to deserialize message (Offset: %d): %v. Message will be discarded.", kafkaMsg.Offset, err)
		k.commitMessage(kafkaMsg)
		return nil, nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}

	ackCallback := func(success bool) {
		if success {
			k.commitMessage(kafkaMsg)
			return
		}
		k.logger.Printf("Kafka consumer: NACK received for offset %d (request_id %s). Offset will not be committed.", kafkaMsg.Offset, event.RequestID)
	}

	return &event, ackCallback, nil
}

func (k *KafkaConsumer) commitMessage(m kafka.Message) {
	if !k.commit {
		return
	}
	if err := k.reader.CommitMessages(context.Background(), m); err != nil {
		k.logger.Printf("Kafka consumer: Failed to commit offset %d: %v", m.Offset, err)
	}
}

// Close implements the Consumer interface by closing the Kafka reader
func (k *KafkaConsumer) Close() error {
	k.logger.Println("Closing Kafka consumer...")
	return k.reader.Close()
}

// Ensure KafkaConsumer implements the Consumer interface
var _ Consumer = (*KafkaConsumer)(nil)
