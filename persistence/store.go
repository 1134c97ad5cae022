package persistence

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/consortium/internal/metrics"
	"github.com/BaSui01/consortium/types"
)

// RecordStore is the durable backend for the interaction log.
type RecordStore interface {
	Append(ctx context.Context, rec types.IterationRecord) error
	ListByRun(ctx context.Context, runID string) ([]types.IterationRecord, error)
	Close() error
}

// NopStore discards everything. Used when logging is disabled.
type NopStore struct{}

func (NopStore) Append(context.Context, types.IterationRecord) error { return nil }
func (NopStore) ListByRun(context.Context, string) ([]types.IterationRecord, error) {
	return nil, nil
}
func (NopStore) Close() error { return nil }

const (
	defaultQueueSize    = 256
	defaultWriteTimeout = 5 * time.Second
)

// AsyncAppender decouples orchestration from storage: Append enqueues and
// returns immediately, a single worker drains the queue into the store.
// When the queue is full the record is dropped with a warning; a slow or
// broken database must never block a run.
type AsyncAppender struct {
	store        RecordStore
	queue        chan types.IterationRecord
	writeTimeout time.Duration
	collector    *metrics.Collector
	logger       *zap.Logger

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// AppenderOption customizes an AsyncAppender.
type AppenderOption func(*AsyncAppender)

// WithQueueSize sets the queue capacity.
func WithQueueSize(n int) AppenderOption {
	return func(a *AsyncAppender) {
		if n > 0 {
			a.queue = make(chan types.IterationRecord, n)
		}
	}
}

// WithWriteTimeout bounds each store write.
func WithWriteTimeout(d time.Duration) AppenderOption {
	return func(a *AsyncAppender) {
		if d > 0 {
			a.writeTimeout = d
		}
	}
}

// WithCollector reports dropped records to the metrics collector.
func WithCollector(c *metrics.Collector) AppenderOption {
	return func(a *AsyncAppender) { a.collector = c }
}

// NewAsyncAppender starts the drain worker. Callers must Close it to flush
// pending records on shutdown.
func NewAsyncAppender(store RecordStore, logger *zap.Logger, opts ...AppenderOption) *AsyncAppender {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &AsyncAppender{
		store:        store,
		queue:        make(chan types.IterationRecord, defaultQueueSize),
		writeTimeout: defaultWriteTimeout,
		logger:       logger.With(zap.String("component", "record_appender")),
	}
	for _, opt := range opts {
		opt(a)
	}

	a.wg.Add(1)
	go a.drain()
	return a
}

// Append enqueues a record without blocking. Satisfies
// consortium.RecordSink.
func (a *AsyncAppender) Append(rec types.IterationRecord) {
	select {
	case a.queue <- rec:
	default:
		a.logger.Warn("record queue full, dropping record",
			zap.String("run_id", rec.RunID),
			zap.Int("round", rec.Round),
		)
		if a.collector != nil {
			a.collector.RecordDroppedRecord()
		}
	}
}

// Close stops accepting records, flushes the queue, and closes the store.
func (a *AsyncAppender) Close() error {
	a.closeOnce.Do(func() {
		close(a.queue)
	})
	a.wg.Wait()
	return a.store.Close()
}

func (a *AsyncAppender) drain() {
	defer a.wg.Done()
	for rec := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), a.writeTimeout)
		if err := a.store.Append(ctx, rec); err != nil {
			a.logger.Warn("failed to persist record",
				zap.String("run_id", rec.RunID),
				zap.Int("round", rec.Round),
				zap.Error(err),
			)
			if a.collector != nil {
				a.collector.RecordDroppedRecord()
			}
		}
		cancel()
	}
}
