package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"taxcallback/config"
	"taxcallback/internal/messaging/consumer"
	"taxcallback/internal/models"
)

// Filter narrows which events are printed. Empty fields match everything.
// Endpoint matches by prefix, so GST-RETURN also matches GST-RETURN-TEST.
type Filter struct {
	Endpoint string
	Status   string
}

func (f Filter) matches(ev *models.CallbackEvent) bool {
	if f.Endpoint != "" && !strings.HasPrefix(strings.ToUpper(ev.Endpoint), strings.ToUpper(f.Endpoint)) {
		return false
	}
	if f.Status != "" && !strings.EqualFold(ev.Status, f.Status) {
		return false
	}
	return true
}

// Worker prints callback events from the stream, one line per event
type Worker struct {
	format             string
	consumerRetryDelay time.Duration // Parsed from workerConfig.ConsumerRetryDelay
	filter             Filter

	logger   *log.Logger
	consumer consumer.Consumer
	out      io.Writer

	printed int
	skipped int
}

// New creates a new Worker instance
func New(cfg config.TailWorkerConfig, logger *log.Logger, c consumer.Consumer, out io.Writer, filter Filter) *Worker {
	consumerRetryDelay, err := time.ParseDuration(cfg.ConsumerRetryDelay)
	if err != nil {
		logger.Printf("Warning: Invalid consumer_retry_delay '%s', using default 5s", cfg.ConsumerRetryDelay)
		consumerRetryDelay = 5 * time.Second
	}
	format := cfg.Format
	if format != "json" {
		format = "text"
	}

	return &Worker{
		format:             format,
		consumerRetryDelay: consumerRetryDelay,
		filter:             filter,
		logger:             logger,
		consumer:           c,
		out:                out,
	}
}

// Run consumes until the context is cancelled or the consumer is exhausted.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Printf("Tail worker started (format: %s)", w.format)
	defer func() {
		w.logger.Printf("Tail worker stopped: printed=%d, filtered=%d", w.printed, w.skipped)
	}()

	for {
		msg, ack, err := w.consumer.Consume(ctx)
		if err != nil {
			switch {
			case ctx.Err() != nil, errors.Is(err, context.Canceled):
				return nil
			case errors.Is(err, consumer.ErrClosed):
				return nil
			case errors.Is(err, consumer.ErrUndecodable):
				continue
			}
			w.logger.Printf("Tail worker: Consumer error: %v", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(w.consumerRetryDelay):
			}
			continue
		}
		if msg == nil {
			continue
		}

		if !w.filter.matches(msg) {
			w.skipped++
			ack(true)
			continue
		}
		if err := w.print(msg); err != nil {
			ack(false)
			return fmt.Errorf("write callback event %s: %w", msg.RequestID, err)
		}
		w.printed++
		ack(true)
	}
}

// Printed returns how many events were written.
func (w *Worker) Printed() int {
	return w.printed
}

func (w *Worker) print(ev *models.CallbackEvent) error {
	if w.format == "json" {
		line, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w.out, "%s\n", line)
		return err
	}
	_, err := fmt.Fprintln(w.out, FormatText(ev))
	return err
}

// FormatText renders an event as a single operator-readable line.
func FormatText(ev *models.CallbackEvent) string {
	uen := ev.CompanyUEN
	if uen == "" {
		uen = "N/A"
	}
	return fmt.Sprintf("%s [%s] %s submission=%s request=%s uen=%s client=%s | %s",
		ev.ReceivedTimestamp, ev.Endpoint, ev.Status, ev.SubmissionID, ev.RequestID, uen, ev.ClientIP, ev.Message)
}
