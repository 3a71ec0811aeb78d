// Package txlog appends transaction records to the store off the caller's path.
package txlog

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MarkoPoloResearchLab/bazaar/pkg/economy"
	"go.uber.org/zap"
)

const (
	defaultBufferSize   = 4096
	defaultWriteTimeout = 5 * time.Second
)

// Inserter is the slice of the store the writer needs.
type Inserter interface {
	InsertTransaction(ctx context.Context, record economy.TransactionRecord) error
}

// Writer drains a buffered channel into the store from a single goroutine.
// Records are dropped with a warning when the buffer is full or the insert fails.
type Writer struct {
	store        Inserter
	logger       *zap.Logger
	writeTimeout time.Duration

	records chan economy.TransactionRecord
	wg      sync.WaitGroup
	once    sync.Once
	closed  atomic.Bool
	mu      sync.RWMutex

	dropped atomic.Int64
}

// NewWriter starts the drain goroutine. A non-positive bufferSize uses the default.
func NewWriter(store Inserter, logger *zap.Logger, bufferSize int) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	writer := &Writer{
		store:        store,
		logger:       logger,
		writeTimeout: defaultWriteTimeout,
		records:      make(chan economy.TransactionRecord, bufferSize),
	}
	writer.wg.Add(1)
	go func() {
		defer writer.wg.Done()
		writer.loop()
	}()
	return writer
}

// Append never blocks.
func (writer *Writer) Append(record economy.TransactionRecord) {
	if writer == nil || writer.closed.Load() {
		return
	}
	writer.mu.RLock()
	defer writer.mu.RUnlock()
	if writer.closed.Load() {
		return
	}
	select {
	case writer.records <- record:
	default:
		writer.dropped.Add(1)
		writer.logger.Warn("transaction log buffer full, dropping record",
			zap.String("transaction_id", record.ID),
			zap.String("kind", string(record.Kind)),
		)
	}
}

// Dropped reports how many records never reached the store.
func (writer *Writer) Dropped() int64 {
	return writer.dropped.Load()
}

// Close flushes buffered records.
func (writer *Writer) Close() {
	writer.once.Do(func() {
		writer.mu.Lock()
		writer.closed.Store(true)
		close(writer.records)
		writer.mu.Unlock()
		writer.wg.Wait()
	})
}

func (writer *Writer) loop() {
	for record := range writer.records {
		ctx, cancel := context.WithTimeout(context.Background(), writer.writeTimeout)
		err := writer.store.InsertTransaction(ctx, record)
		cancel()
		if err != nil {
			writer.dropped.Add(1)
			writer.logger.Warn("transaction log insert failed, dropping record",
				zap.String("transaction_id", record.ID),
				zap.String("kind", string(record.Kind)),
				zap.Error(err),
			)
		}
	}
}
