package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// KafkaConsumerConfig defines configuration for Kafka consumer
type KafkaConsumerConfig struct {
	Brokers           []string `yaml:"brokers" env:"CALLBACK_KAFKA_BROKERS" envSeparator:","` // e.g., ["kafka1:9092", "kafka2:9092"]
	Topic             string   `yaml:"topic" env:"CALLBACK_KAFKA_TOPIC"`                      // Topic to consume from
	GroupID           string   `yaml:"group_id" env:"CALLBACK_KAFKA_GROUP_ID"`                // Consumer group ID
	SessionTimeout    string   `yaml:"session_timeout"`                                       // Kafka session timeout
	HeartbeatInterval string   `yaml:"heartbeat_interval"`                                    // Kafka heartbeat interval
	AutoOffsetReset   string   `yaml:"auto_offset_reset"`                                     // earliest/latest
}

// SetDefaults sets reasonable default values for Kafka consumer configuration
func (c *KafkaConsumerConfig) SetDefaults() {
	if c.SessionTimeout == "" {
		c.SessionTimeout = "30s"
		fmt.Printf("Warning: kafka_consumer.session_timeout not set, defaulting to %s\n", c.SessionTimeout)
	}
	if c.HeartbeatInterval == "" {
		c.HeartbeatInterval = "3s"
		fmt.Printf("Warning: kafka_consumer.heartbeat_interval not set, defaulting to %s\n", c.HeartbeatInterval)
	}
	if c.AutoOffsetReset == "" {
		c.AutoOffsetReset = "latest"
		fmt.Printf("Warning: kafka_consumer.auto_offset_reset not set, defaulting to %s\n", c.AutoOffsetReset)
	}
}

// TailWorkerConfig defines how the tail worker reacts to consumer errors.
type TailWorkerConfig struct {
	ConsumerRetryDelay string `yaml:"consumer_retry_delay"` // Delay when consumer encounters errors
	Format             string `yaml:"format" env:"CALLBACK_TAIL_FORMAT"` // text or json
}

// SetDefaults sets reasonable default values for worker configuration
func (c *TailWorkerConfig) SetDefaults() {
	if c.ConsumerRetryDelay == "" {
		c.ConsumerRetryDelay = "5s"
		fmt.Printf("Warning: worker.consumer_retry_delay not set, defaulting to %s\n", c.ConsumerRetryDelay)
	}
	if c.Format == "" {
		c.Format = "text"
	}
}

// TailConfig defines all configuration for the callback tail CLI
type TailConfig struct {
	KafkaConsumer KafkaConsumerConfig `yaml:"kafka_consumer"`
	Worker        TailWorkerConfig    `yaml:"worker"`
}

// LoadTailConfig loads configuration from the specified YAML file path
func LoadTailConfig(path string) (*TailConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	var cfg TailConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config file: %w", err)
	}
	if err := ApplyEnv(&cfg); err != nil {
		return nil, err
	}

	cfg.KafkaConsumer.SetDefaults()
	cfg.Worker.SetDefaults()

	if cfg.Worker.Format != "text" && cfg.Worker.Format != "json" {
		return nil, fmt.Errorf("configuration error: worker.format must be text or json, got %q", cfg.Worker.Format)
	}

	return &cfg, nil
}
