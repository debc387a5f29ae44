package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Default file names inside a config directory.
const (
	ReceiverConfigFile = "receiver.defaults.yml"
	TailConfigFile     = "tail.defaults.yml"
)

// Config represents the complete application configuration
type Config struct {
	Receiver *ReceiverConfig
	Tail     *TailConfig
}

// LoadConfig loads every configuration file present in a directory
func LoadConfig(configDir string) (*Config, error) {
	absDir, err := filepath.Abs(configDir)
	if err != nil {
		return nil, fmt.Errorf("unable to get absolute path of config directory: %w", err)
	}

	config := &Config{}

	receiverPath := filepath.Join(absDir, ReceiverConfigFile)
	if _, err := os.Stat(receiverPath); err == nil {
		receiverCfg, err := LoadReceiverConfig(receiverPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load receiver config: %w", err)
		}
		config.Receiver = receiverCfg
	}

	tailPath := filepath.Join(absDir, TailConfigFile)
	if _, err := os.Stat(tailPath); err == nil {
		tailCfg, err := LoadTailConfig(tailPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load tail config: %w", err)
		}
		config.Tail = tailCfg
	}

	return config, nil
}
