package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"taxcallback/config"
	"taxcallback/internal/messaging/consumer"
	worker "taxcallback/processing"
)

var Version = "dev"

const tailConfigPath = "./config/tail.defaults.yml"

type tailOptions struct {
	configPath    string
	format        string
	groupID       string
	fromBeginning bool
	mock          bool
	filter        worker.Filter
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	opts := &tailOptions{}

	cmd := &cobra.Command{
		Use:   "callback-tail",
		Short: "Follow callbacks accepted by a shared IRAS callback receiver",
		Long: `Consume the receiver's callback event stream and print one line per
accepted callback. Use --format json for machine-readable output, or --mock to
replay a built-in sample without a broker.`,
		Version:      Version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTail(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", tailConfigPath, "Path to the tail YAML config")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "", "Output format (text, json); overrides worker.format")
	cmd.Flags().StringVarP(&opts.groupID, "group", "g", "", "Kafka consumer group; commits offsets when set")
	cmd.Flags().BoolVar(&opts.fromBeginning, "from-beginning", false, "Start from the earliest retained event")
	cmd.Flags().BoolVar(&opts.mock, "mock", false, "Replay sample events instead of connecting to Kafka")
	cmd.Flags().StringVarP(&opts.filter.Endpoint, "endpoint", "e", "", "Only show endpoints with this prefix (e.g. GST-RETURN)")
	cmd.Flags().StringVarP(&opts.filter.Status, "status", "s", "", "Only show callbacks with this status")

	return cmd
}

func runTail(cmd *cobra.Command, opts *tailOptions) error {
	logger := log.New(cmd.ErrOrStderr(), "[TAIL] ", log.LstdFlags)

	cfg, err := config.LoadTailConfig(opts.configPath)
	if errors.Is(err, fs.ErrNotExist) && opts.mock {
		cfg = &config.TailConfig{}
		cfg.Worker.SetDefaults()
		err = nil
	}
	if err != nil {
		return fmt.Errorf("load tail configuration: %w", err)
	}

	if opts.format != "" {
		if opts.format != "text" && opts.format != "json" {
			return fmt.Errorf("unknown format %q (want text or json)", opts.format)
		}
		cfg.Worker.Format = opts.format
	}
	if opts.groupID != "" {
		cfg.KafkaConsumer.GroupID = opts.groupID
	}
	if opts.fromBeginning {
		cfg.KafkaConsumer.AutoOffsetReset = "earliest"
	}

	var c consumer.Consumer
	if opts.mock {
		mc := consumer.NewMockConsumer(logger, consumer.SampleEvents())
		mc.Drain()
		c = mc
	} else {
		kc, err := consumer.NewKafkaConsumer(cfg.KafkaConsumer, logger)
		if err != nil {
			return fmt.Errorf("initialize kafka consumer: %w", err)
		}
		c = kc
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Printf("Consumer close failed: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	w := worker.New(cfg.Worker, logger, c, cmd.OutOrStdout(), opts.filter)
	return w.Run(ctx)
}
