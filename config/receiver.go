package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

// KafkaProducerConfig defines configuration for the callback event stream producer.
// An empty broker list disables the event stream.
type KafkaProducerConfig struct {
	Brokers []string `yaml:"brokers" env:"CALLBACK_KAFKA_BROKERS" envSeparator:","`
	Topic   string   `yaml:"topic" env:"CALLBACK_KAFKA_TOPIC"`

	// Batch processing settings
	BatchSize    int           `yaml:"batch_size"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
	BatchBytes   int           `yaml:"batch_bytes"`

	// Reliability settings
	RequiredAcks string `yaml:"required_acks"`
	Async        bool   `yaml:"async"`

	// Performance settings
	WriteTimeout time.Duration `yaml:"write_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
}

// Enabled reports whether the event stream should be started.
func (c *KafkaProducerConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

// BatchProcessorConfig defines configuration for event batching ahead of the producer
type BatchProcessorConfig struct {
	BatchSize          int           `yaml:"batch_size"`
	BatchTimeout       time.Duration `yaml:"batch_timeout"`
	FlushChannelBuffer int           `yaml:"flush_channel_buffer"`
}

// SetDefaults sets reasonable default values for batch processor configuration
func (c *BatchProcessorConfig) SetDefaults() {
	if c.BatchSize == 0 {
		c.BatchSize = 50
		fmt.Printf("Warning: batch_processor.batch_size not set, defaulting to %d\n", c.BatchSize)
	}
	if c.BatchTimeout == 0 {
		c.BatchTimeout = 500 * time.Millisecond
		fmt.Printf("Warning: batch_processor.batch_timeout not set, defaulting to %v\n", c.BatchTimeout)
	}
	if c.FlushChannelBuffer == 0 {
		c.FlushChannelBuffer = 16
		fmt.Printf("Warning: batch_processor.flush_channel_buffer not set, defaulting to %d\n", c.FlushChannelBuffer)
	}
}

// HttpServerConfig defines HTTP server configuration
type HttpServerConfig struct {
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	MaxHeaderBytes int           `yaml:"max_header_bytes"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes" env:"CALLBACK_MAX_BODY_BYTES"`
}

// SetDefaults fills zero values with the receiver's defaults.
func (c *HttpServerConfig) SetDefaults() {
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 5 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.MaxHeaderBytes == 0 {
		c.MaxHeaderBytes = 1 << 20 // 1 MB
	}
	if c.MaxBodyBytes == 0 {
		c.MaxBodyBytes = 1 << 20 // 1 MB
	}
}

// StoreConfig bounds the in-memory callback history and its read views.
type StoreConfig struct {
	MaxLogs          int `yaml:"max_logs" env:"CALLBACK_MAX_LOGS"`
	DefaultReadLimit int `yaml:"default_read_limit"`
	MaxReadLimit     int `yaml:"max_read_limit"`
}

// SetDefaults sets the capacity and read window defaults.
func (c *StoreConfig) SetDefaults() {
	if c.MaxLogs <= 0 {
		c.MaxLogs = 200
		fmt.Printf("Warning: store.max_logs not set or invalid, defaulting to %d\n", c.MaxLogs)
	}
	if c.DefaultReadLimit <= 0 {
		c.DefaultReadLimit = 10
	}
	if c.MaxReadLimit <= 0 {
		c.MaxReadLimit = 50
	}
}

// Validate checks the read window against the capacity.
func (c *StoreConfig) Validate() error {
	if c.DefaultReadLimit > c.MaxReadLimit {
		return fmt.Errorf("store default_read_limit (%d) cannot be greater than max_read_limit (%d)",
			c.DefaultReadLimit, c.MaxReadLimit)
	}
	return nil
}

// TracingConfig enables OTLP trace export when Endpoint is set.
type TracingConfig struct {
	Endpoint    string `yaml:"endpoint" env:"CALLBACK_OTEL_ENDPOINT"`
	ServiceName string `yaml:"service_name"`
}

// ReceiverConfig defines all configuration required for the callback receiver
type ReceiverConfig struct {
	HttpListenAddr string `yaml:"http_listen_addr" env:"CALLBACK_HTTP_ADDR"`
	GrpcListenAddr string `yaml:"grpc_listen_addr" env:"CALLBACK_GRPC_ADDR"`
	Port           string `yaml:"-" env:"PORT"`
	ServiceName    string `yaml:"service_name"`
	Debug          bool   `yaml:"debug" env:"CALLBACK_DEBUG"`

	Store          StoreConfig          `yaml:"store"`
	HttpServer     HttpServerConfig     `yaml:"http_server"`
	KafkaProducer  KafkaProducerConfig  `yaml:"kafka_producer"`
	BatchProcessor BatchProcessorConfig `yaml:"batch_processor"`
	Tracing        TracingConfig        `yaml:"tracing"`
}

// LoadReceiverConfig loads receiver configuration from the specified YAML file path,
// then applies environment overrides.
func LoadReceiverConfig(path string) (*ReceiverConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read receiver config file '%s': %w", path, err)
	}
	return ParseReceiverConfig(data)
}

// ParseReceiverConfig decodes YAML data, applies environment overrides,
// defaults and validation.
func ParseReceiverConfig(data []byte) (*ReceiverConfig, error) {
	var cfg ReceiverConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse receiver YAML config file: %w", err)
	}
	if err := ApplyEnv(&cfg); err != nil {
		return nil, err
	}

	// PORT wins over http_listen_addr, as hosting platforms inject it.
	if cfg.Port != "" {
		if _, err := strconv.Atoi(cfg.Port); err != nil {
			return nil, fmt.Errorf("configuration error: PORT must be numeric, got %q", cfg.Port)
		}
		cfg.HttpListenAddr = ":" + cfg.Port
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "tax-callback-receiver"
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = cfg.ServiceName
	}

	cfg.Store.SetDefaults()
	cfg.HttpServer.SetDefaults()
	if cfg.KafkaProducer.Enabled() {
		cfg.BatchProcessor.SetDefaults()
	}

	if cfg.HttpListenAddr == "" {
		return nil, fmt.Errorf("configuration error: http_listen_addr (or PORT) must be configured")
	}
	if cfg.KafkaProducer.Enabled() && cfg.KafkaProducer.Topic == "" {
		return nil, fmt.Errorf("configuration error: kafka_producer.topic is required when brokers are set")
	}
	if err := cfg.Store.Validate(); err != nil {
		return nil, fmt.Errorf("store configuration error: %w", err)
	}

	return &cfg, nil
}
