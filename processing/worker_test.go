package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"taxcallback/config"
	"taxcallback/internal/messaging/consumer"
	"taxcallback/internal/models"
)

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func runToEnd(t *testing.T, w *Worker) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := w.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestWorkerPrintsTextLines(t *testing.T) {
	mc := consumer.NewMockConsumer(discardLogger(), consumer.SampleEvents())
	mc.Drain()

	var out bytes.Buffer
	w := New(config.TailWorkerConfig{ConsumerRetryDelay: "10ms", Format: "text"}, discardLogger(), mc, &out, Filter{})
	runToEnd(t, w)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 || w.Printed() != 3 {
		t.Fatalf("expected 3 lines, got %d: %q", len(lines), out.String())
	}
	want := "2025-01-15T14:30:00Z [GST-RETURN] SUCCESS submission=GST202501001234 request=a1b1c1d1 uen=201234567D client=10.0.0.1 | GST F5 submission for period 202412 processed successfully"
	if lines[0] != want {
		t.Fatalf("line = %q\nwant  %q", lines[0], want)
	}
}

func TestWorkerPrintsJSON(t *testing.T) {
	mc := consumer.NewMockConsumer(discardLogger(), consumer.SampleEvents())
	mc.Drain()

	var out bytes.Buffer
	w := New(config.TailWorkerConfig{ConsumerRetryDelay: "10ms", Format: "json"}, discardLogger(), mc, &out, Filter{})
	runToEnd(t, w)

	dec := json.NewDecoder(&out)
	count := 0
	for dec.More() {
		var ev models.CallbackEvent
		if err := dec.Decode(&ev); err != nil {
			t.Fatalf("decode line %d: %v", count, err)
		}
		count++
	}
	if count != 3 {
		t.Fatalf("expected 3 JSON events, got %d", count)
	}
}

func TestWorkerFilters(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"endpoint prefix matches test tag", Filter{Endpoint: "form-cs"}, 1},
		{"status", Filter{Status: "failed"}, 1},
		{"both", Filter{Endpoint: "GST-RETURN", Status: "SUCCESS"}, 1},
		{"none", Filter{Endpoint: "DONATION-RECORDS"}, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			mc := consumer.NewMockConsumer(discardLogger(), consumer.SampleEvents())
			mc.Drain()

			var out bytes.Buffer
			w := New(config.TailWorkerConfig{ConsumerRetryDelay: "10ms"}, discardLogger(), mc, &out, tc.filter)
			runToEnd(t, w)
			if w.Printed() != tc.want {
				t.Fatalf("printed %d, want %d: %q", w.Printed(), tc.want, out.String())
			}
		})
	}
}

func TestWorkerStopsOnCancel(t *testing.T) {
	mc := consumer.NewMockConsumer(discardLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	w := New(config.TailWorkerConfig{ConsumerRetryDelay: "10ms"}, discardLogger(), mc, io.Discard, Filter{})
	go func() { done <- w.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean stop, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestWorkerNacksOnWriteFailure(t *testing.T) {
	mc := consumer.NewMockConsumer(discardLogger(), consumer.SampleEvents()[:1])

	w := New(config.TailWorkerConfig{ConsumerRetryDelay: "10ms"}, discardLogger(), mc, failingWriter{}, Filter{})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := w.Run(ctx); err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected write error, got %v", err)
	}

	// The nacked event is re-queued for the next reader.
	mc.Drain()
	msg, _, err := mc.Consume(context.Background())
	if err != nil || msg.RequestID != "a1b1c1d1" {
		t.Fatalf("expected requeued event, got %v, %v", msg, err)
	}
}

func TestInvalidRetryDelayFallsBack(t *testing.T) {
	w := New(config.TailWorkerConfig{ConsumerRetryDelay: "soon"}, discardLogger(), nil, io.Discard, Filter{})
	if w.consumerRetryDelay != 5*time.Second || w.format != "text" {
		t.Fatalf("unexpected defaults %v/%s", w.consumerRetryDelay, w.format)
	}
}
