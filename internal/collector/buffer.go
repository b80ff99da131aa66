package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/events"
	pkgerrors "github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/errors"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/logger"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/metrics"
)

var errBufferClosed = errors.New("event buffer is closed")

// BufferConfig controls when buffered events are written to the store.
type BufferConfig struct {
	BatchSize     int
	FlushInterval time.Duration
	FlushTimeout  time.Duration
}

// BufferStats is a point-in-time view of the buffer.
type BufferStats struct {
	Received      int64     `json:"received"`
	Flushed       int64     `json:"flushed"`
	Flushes       int64     `json:"flushes"`
	Failures      int64     `json:"failures"`
	Pending       int       `json:"pending"`
	LastFlushTime time.Time `json:"last_flush_time"`
	LastError     string    `json:"last_error,omitempty"`
}

// Buffer accumulates events and writes them in batches, when BatchSize is
// reached or every FlushInterval. Flushes are serialized; a failed chunk and
// everything after it go back to the front of the buffer.
type Buffer struct {
	store   events.Store
	cfg     BufferConfig
	metrics *metrics.CollectorMetrics
	logg    *logger.Logger

	mu      sync.Mutex
	pending []events.Event

	flushMu sync.Mutex
	flushWg sync.WaitGroup

	closed   atomic.Bool
	started  atomic.Bool
	stopChan chan struct{}
	doneChan chan struct{}

	received  atomic.Int64
	flushed   atomic.Int64
	flushes   atomic.Int64
	failures  atomic.Int64
	lastFlush atomic.Value // time.Time
	lastError atomic.Value // string
}

func NewBuffer(store events.Store, cfg BufferConfig, m *metrics.CollectorMetrics, logg *logger.Logger) (*Buffer, error) {
	if store == nil {
		return nil, errors.New("event store required")
	}
	if cfg.BatchSize <= 0 {
		return nil, errors.New("batch size must be positive")
	}
	if cfg.FlushInterval <= 0 {
		return nil, errors.New("flush interval must be positive")
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = 30 * time.Second
	}
	b := &Buffer{
		store:    store,
		cfg:      cfg,
		metrics:  m,
		logg:     logg,
		pending:  make([]events.Event, 0, cfg.BatchSize),
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
	b.lastFlush.Store(time.Time{})
	b.lastError.Store("")
	return b, nil
}

// Start launches the interval flush loop. ctx only controls shutdown.
func (b *Buffer) Start(ctx context.Context) error {
	if b.closed.Load() {
		return errBufferClosed
	}
	if b.started.Swap(true) {
		return nil
	}
	go b.loop(ctx)
	return nil
}

// Add queues one event, triggering an async flush when the batch is full.
func (b *Buffer) Add(e events.Event) error {
	if b.closed.Load() {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, errBufferClosed, "collector is shutting down")
	}
	b.mu.Lock()
	b.pending = append(b.pending, e)
	size := len(b.pending)
	b.mu.Unlock()

	b.received.Add(1)
	b.metrics.SetBufferSize(size)

	if size >= b.cfg.BatchSize {
		b.flushWg.Add(1)
		go func() {
			defer b.flushWg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), b.cfg.FlushTimeout)
			defer cancel()
			b.flushAsync(ctx)
		}()
	}
	return nil
}

// Flush waits for in-flight flushes and writes whatever is pending.
func (b *Buffer) Flush(ctx context.Context) error {
	b.flushWg.Wait()
	return b.flush(ctx)
}

// Close stops the loop and performs a final flush. Safe to call twice.
func (b *Buffer) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	if b.started.Load() {
		close(b.stopChan)
		<-b.doneChan
	}
	b.flushWg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.FlushTimeout)
	defer cancel()
	return b.flush(ctx)
}

func (b *Buffer) Stats() BufferStats {
	b.mu.Lock()
	pending := len(b.pending)
	b.mu.Unlock()

	last, _ := b.lastFlush.Load().(time.Time)
	lastErr, _ := b.lastError.Load().(string)
	return BufferStats{
		Received:      b.received.Load(),
		Flushed:       b.flushed.Load(),
		Flushes:       b.flushes.Load(),
		Failures:      b.failures.Load(),
		Pending:       pending,
		LastFlushTime: last,
		LastError:     lastErr,
	}
}

func (b *Buffer) loop(ctx context.Context) {
	defer close(b.doneChan)

	ticker := time.NewTicker(b.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.stopChan:
			return
		case <-ticker.C:
			flushCtx, cancel := context.WithTimeout(context.Background(), b.cfg.FlushTimeout)
			b.flushAsync(flushCtx)
			cancel()
		}
	}
}

func (b *Buffer) flushAsync(ctx context.Context) {
	if err := b.flush(ctx); err != nil && b.logg != nil {
		b.logg.Error(ctx, "event buffer flush failed, batch requeued", err)
	}
}

func (b *Buffer) flush(ctx context.Context) error {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.mu.Lock()
	if len(b.pending) == 0 {
		b.mu.Unlock()
		return nil
	}
	batch := b.pending
	b.pending = make([]events.Event, 0, b.cfg.BatchSize)
	b.mu.Unlock()

	for start := 0; start < len(batch); start += b.cfg.BatchSize {
		end := min(start+b.cfg.BatchSize, len(batch))
		chunk := batch[start:end]

		began := time.Now()
		err := b.store.AppendBatch(ctx, chunk)
		b.metrics.ObserveFlush(len(chunk), time.Since(began), err)

		if err != nil {
			unflushed := batch[start:]
			b.mu.Lock()
			b.pending = append(append(make([]events.Event, 0, len(unflushed)+len(b.pending)), unflushed...), b.pending...)
			size := len(b.pending)
			b.mu.Unlock()

			b.metrics.SetBufferSize(size)
			b.failures.Add(1)
			b.lastError.Store(err.Error())
			return pkgerrors.Wrap(pkgerrors.CodeFlush, err, fmt.Sprintf("flush events %d-%d", start, end))
		}
		b.flushed.Add(int64(len(chunk)))
	}

	b.flushes.Add(1)
	b.lastFlush.Store(time.Now())
	b.lastError.Store("")

	b.mu.Lock()
	size := len(b.pending)
	b.mu.Unlock()
	b.metrics.SetBufferSize(size)
	return nil
}
