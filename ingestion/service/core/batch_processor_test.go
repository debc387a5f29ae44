package service

import (
	"bytes"
	"context"
	"io"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"taxcallback/internal/models"
)

type blockingProducer struct {
	release chan struct{}

	mu        sync.Mutex
	published int
}

func (b *blockingProducer) PublishBatch(_ context.Context, msgs []*models.CallbackEvent) error {
	<-b.release
	b.mu.Lock()
	b.published += len(msgs)
	b.mu.Unlock()
	return nil
}

func (b *blockingProducer) Close() error { return nil }

func TestBatchProcessorDropsOldestWhenBehind(t *testing.T) {
	p := &blockingProducer{release: make(chan struct{})}
	var logs bytes.Buffer
	bp := NewBatchProcessor(1, time.Hour, 1, p, log.New(&logs, "", 0))

	for i := 0; i < 10; i++ {
		bp.SubmitEvent(&models.CallbackEvent{RequestID: string(rune('a' + i))})
	}
	dropped := bp.Dropped()
	if dropped < 7 {
		t.Fatalf("expected at least 7 dropped events, got %d", dropped)
	}

	close(p.release)
	bp.Close()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.published+dropped != 10 {
		t.Fatalf("published %d + dropped %d should account for all 10 events", p.published, dropped)
	}

	out := logs.String()
	if !strings.Contains(out, "event stream is behind") {
		t.Fatalf("expected a falling-behind log line, got:\n%s", out)
	}
	if !strings.Contains(out, "callback events were dropped while the stream was behind") {
		t.Fatalf("expected the drop total to be logged on close, got:\n%s", out)
	}
}

func TestBatchProcessorFlushesOnClose(t *testing.T) {
	p := &fakeProducer{}
	bp := NewBatchProcessor(100, time.Hour, 4, p, log.New(io.Discard, "", 0))

	for i := 0; i < 5; i++ {
		bp.SubmitEvent(&models.CallbackEvent{RequestID: "r"})
	}
	bp.Close()
	bp.Close()

	if got := len(p.events()); got != 5 {
		t.Fatalf("expected buffered events to be flushed on close, got %d", got)
	}
}
