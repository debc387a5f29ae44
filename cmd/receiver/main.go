package main

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	gogrpc "google.golang.org/grpc"

	"taxcallback/config"
	core "taxcallback/ingestion/service/core"
	grpchandler "taxcallback/ingestion/service/grpc"
	httphandler "taxcallback/ingestion/service/http"
	"taxcallback/internal/messaging/producer"
	"taxcallback/internal/telemetry"
	"taxcallback/storage/store"
)

// Receiver configuration file path, overridable with CALLBACK_CONFIG
const receiverConfigPath = "./config/receiver.defaults.yml"

func main() {
	logger := log.New(os.Stdout, "[RECEIVER] ", log.LstdFlags|log.Lshortfile)
	logger.Println("Starting IRAS callback receiver...")

	// 1. Load receiver configuration
	path := receiverConfigPath
	if p := os.Getenv("CALLBACK_CONFIG"); p != "" {
		path = p
	}
	cfg, err := config.LoadReceiverConfig(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Printf("Config file %s not found, using built-in defaults", path)
		cfg, err = config.ParseReceiverConfig([]byte(`http_listen_addr: ":5000"`))
	}
	if err != nil {
		logger.Fatalf("Failed to load receiver configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Tracing (no-op without an endpoint)
	shutdownTracing, err := telemetry.Setup(ctx, cfg.Tracing)
	if err != nil {
		logger.Fatalf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Printf("Tracing shutdown failed: %v", err)
		}
	}()

	// 3. Initialize dependencies: callback history and optional event stream
	callbackStore := store.NewMemoryStore(cfg.Store.MaxLogs)
	logger.Printf("Callback history capacity: %d", callbackStore.Capacity())

	var eventProducer producer.Producer
	if cfg.KafkaProducer.Enabled() {
		logger.Println("Initializing Kafka producer for the callback event stream...")
		kafkaProducer, err := producer.NewKafkaProducer(cfg.KafkaProducer, logger)
		if err != nil {
			logger.Fatalf("Failed to initialize Kafka producer: %v", err)
		}
		defer kafkaProducer.Close()
		eventProducer = kafkaProducer
	} else {
		logger.Println("kafka_producer.brokers not configured, callback event stream disabled.")
	}

	// 4. Create core Service and handlers
	coreService := core.NewService(callbackStore, eventProducer, logger, cfg.BatchProcessor)
	defer coreService.Close()

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	callbackHandler := httphandler.NewCallbackHandler(coreService, logger, httphandler.Options{
		ServiceName:      cfg.ServiceName,
		MaxBodyBytes:     cfg.HttpServer.MaxBodyBytes,
		DefaultReadLimit: cfg.Store.DefaultReadLimit,
		MaxReadLimit:     cfg.Store.MaxReadLimit,
	})

	var wg sync.WaitGroup

	// 5. HTTP server
	httpServer := &http.Server{
		Addr:           cfg.HttpListenAddr,
		Handler:        httphandler.NewRouter(callbackHandler, logger),
		ReadTimeout:    cfg.HttpServer.ReadTimeout,
		WriteTimeout:   cfg.HttpServer.WriteTimeout,
		IdleTimeout:    cfg.HttpServer.IdleTimeout,
		MaxHeaderBytes: cfg.HttpServer.MaxHeaderBytes,
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Printf("HTTP server listening on %s (documentation at /docs, health at /health)", cfg.HttpListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("HTTP server startup failed: %v", err)
		}
		logger.Println("HTTP server stopped listening.")
	}()

	// 6. [Conditional startup] gRPC health server
	var grpcServer *grpchandler.Server
	if cfg.GrpcListenAddr != "" {
		lis, err := net.Listen("tcp", cfg.GrpcListenAddr)
		if err != nil {
			logger.Fatalf("Unable to listen on gRPC port %s: %v", cfg.GrpcListenAddr, err)
		}
		grpcServer = grpchandler.NewServer(logger, gogrpc.StatsHandler(otelgrpc.NewServerHandler()))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, gogrpc.ErrServerStopped) {
				logger.Fatalf("gRPC server startup failed: %v", err)
			}
			logger.Println("gRPC server stopped listening.")
		}()
	} else {
		logger.Println("grpc_listen_addr not configured, skipping gRPC health server startup.")
	}

	// 7. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Printf("Received shutdown signal: %s, starting graceful shutdown...", sig)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if grpcServer != nil {
		grpcServer.Shutdown()
	}
	logger.Println("Shutting down HTTP server...")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("HTTP server shutdown failed: %v", err)
	}

	wg.Wait()
	logger.Printf("All servers stopped. Total callbacks held at shutdown: %d", coreService.Count())
}
