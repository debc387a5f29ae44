package service

import (
	"context"
	"log"
	"sync"
	"time"

	"taxcallback/internal/messaging/producer"
	"taxcallback/internal/models"
)

// publishTimeout bounds a single PublishBatch call.
const publishTimeout = 10 * time.Second

// BatchProcessor batches accepted callback events ahead of the producer.
// Publishing is best-effort: when the flush channel and buffer are full the
// oldest buffered events are dropped.
type BatchProcessor struct {
	batchSize    int
	batchTimeout time.Duration
	maxBuffer    int
	logger       *log.Logger
	producer     producer.Producer

	// Buffers
	buffer      []*models.CallbackEvent
	dropped     int
	dropRun     int
	bufferMutex sync.Mutex
	flushChan   chan []*models.CallbackEvent

	// Context for graceful shutdown
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewBatchProcessor creates a new batch processor and starts its goroutines
func NewBatchProcessor(batchSize int, batchTimeout time.Duration, flushChannelBuffer int,
	p producer.Producer, logger *log.Logger) *BatchProcessor {

	if batchSize <= 0 {
		batchSize = 50
	}
	if batchTimeout <= 0 {
		batchTimeout = 500 * time.Millisecond
	}
	if flushChannelBuffer <= 0 {
		flushChannelBuffer = 16
	}

	ctx, cancel := context.WithCancel(context.Background())

	bp := &BatchProcessor{
		batchSize:    batchSize,
		batchTimeout: batchTimeout,
		maxBuffer:    batchSize * flushChannelBuffer,
		logger:       logger,
		producer:     p,
		buffer:       make([]*models.CallbackEvent, 0, batchSize),
		flushChan:    make(chan []*models.CallbackEvent, flushChannelBuffer),
		ctx:          ctx,
		cancel:       cancel,
	}

	bp.wg.Add(2)
	go bp.batchTimer()
	go bp.batchProcessor()

	return bp
}

// SubmitEvent adds an event to the current batch. It never blocks on the producer.
func (bp *BatchProcessor) SubmitEvent(event *models.CallbackEvent) {
	bp.bufferMutex.Lock()
	bp.buffer = append(bp.buffer, event)
	if over := len(bp.buffer) - bp.maxBuffer; over > 0 {
		bp.buffer = bp.buffer[over:]
		if bp.dropRun == 0 {
			bp.logger.Printf("Batch processor: event stream is behind, dropping oldest buffered events (dropped so far: %d)", bp.dropped)
		}
		bp.dropRun += over
		bp.dropped += over
	}
	shouldFlush := len(bp.buffer) >= bp.batchSize
	bp.bufferMutex.Unlock()

	if shouldFlush {
		bp.flushIfNeeded()
	}
}

// Dropped returns how many events were discarded because the stream fell behind.
func (bp *BatchProcessor) Dropped() int {
	bp.bufferMutex.Lock()
	defer bp.bufferMutex.Unlock()
	return bp.dropped
}

// batchTimer handles periodic flushing
func (bp *BatchProcessor) batchTimer() {
	defer bp.wg.Done()

	ticker := time.NewTicker(bp.batchTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			bp.flushIfNeeded()
		case <-bp.ctx.Done():
			return
		}
	}
}

// batchProcessor publishes flushed batches until shutdown, then drains
func (bp *BatchProcessor) batchProcessor() {
	defer bp.wg.Done()

	for {
		select {
		case batch := <-bp.flushChan:
			bp.processBatch(batch)
		case <-bp.ctx.Done():
			for {
				select {
				case batch := <-bp.flushChan:
					bp.processBatch(batch)
					continue
				default:
				}
				break
			}
			bp.processBatch(bp.takeBuffer())
			return
		}
	}
}

// flushIfNeeded hands the buffer to the processor if it has entries and the
// flush channel has room; otherwise the entries stay buffered.
func (bp *BatchProcessor) flushIfNeeded() {
	bp.bufferMutex.Lock()
	defer bp.bufferMutex.Unlock()

	if len(bp.buffer) == 0 {
		return
	}
	batch := make([]*models.CallbackEvent, len(bp.buffer))
	copy(batch, bp.buffer)

	select {
	case bp.flushChan <- batch:
		bp.buffer = bp.buffer[:0]
		if bp.dropRun > 0 {
			bp.logger.Printf("Batch processor: event stream caught up after dropping %d events (total dropped: %d)", bp.dropRun, bp.dropped)
			bp.dropRun = 0
		}
	default:
	}
}

// takeBuffer safely gets the current buffer and resets it
func (bp *BatchProcessor) takeBuffer() []*models.CallbackEvent {
	bp.bufferMutex.Lock()
	defer bp.bufferMutex.Unlock()

	batch := make([]*models.CallbackEvent, len(bp.buffer))
	copy(batch, bp.buffer)
	bp.buffer = bp.buffer[:0]
	return batch
}

// processBatch publishes one batch
func (bp *BatchProcessor) processBatch(batch []*models.CallbackEvent) {
	if len(batch) == 0 {
		return
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := bp.producer.PublishBatch(ctx, batch); err != nil {
		bp.logger.Printf("Batch processor: publishing %d callback events failed: %v", len(batch), err)
		return
	}
	bp.logger.Printf("Batch processor: published %d callback events in %v", len(batch), time.Since(start))
}

// Close flushes what is buffered and stops the batch processor
func (bp *BatchProcessor) Close() {
	bp.closeOnce.Do(func() {
		bp.cancel()
		bp.wg.Wait()
		if dropped := bp.Dropped(); dropped > 0 {
			bp.logger.Printf("Batch processor: stopped, %d callback events were dropped while the stream was behind", dropped)
		}
	})
}
