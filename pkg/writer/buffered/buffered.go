// Package buffered provides a buffered writer base for batch writes.
package buffered

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ArionMiles/homeplotter/pkg/api"
)

// DefaultBatchSize is the default number of transactions to buffer before flushing.
const DefaultBatchSize = 500

// Flusher is called with every batch.
type Flusher func(ctx context.Context, batch []*api.Transaction) error

// Config holds configuration for buffered writing.
type Config struct {
	// BatchSize is the number of transactions to buffer before flushing.
	// Defaults to DefaultBatchSize.
	BatchSize int
	// Boundary reports whether a batch may end between prev and next. A
	// full buffer is held back until it does. Nil allows every cut.
	Boundary func(prev, next *api.Transaction) bool
}

// NewDay allows a cut only between transactions of different days, so a
// date-ordered stream keeps each day in one batch.
func NewDay(prev, next *api.Transaction) bool {
	return !prev.Date.Equal(next.Date)
}

// Writer buffers transactions and flushes them in batches.
type Writer struct {
	buffer  []*api.Transaction
	mu      sync.Mutex
	flusher Flusher
	config  Config
	logger  *slog.Logger
	flushed int
}

// New creates a new buffered writer with the given flusher function.
func New(flusher Flusher, cfg Config, logger *slog.Logger) *Writer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Boundary == nil {
		cfg.Boundary = func(_, _ *api.Transaction) bool { return true }
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Writer{
		buffer:  make([]*api.Transaction, 0, cfg.BatchSize),
		flusher: flusher,
		config:  cfg,
		logger:  logger,
	}
}

// Write buffers transactions, flushing every full batch.
func (w *Writer) Write(ctx context.Context, transactions []*api.Transaction) error {
	for _, t := range transactions {
		if err := ctx.Err(); err != nil {
			return err
		}

		w.mu.Lock()
		n := len(w.buffer)
		full := n >= w.config.BatchSize && w.config.Boundary(w.buffer[n-1], t)
		w.mu.Unlock()

		if full {
			if err := w.Flush(ctx); err != nil {
				return err
			}
		}

		w.mu.Lock()
		w.buffer = append(w.buffer, t)
		w.mu.Unlock()
	}
	return nil
}

// Flush writes all buffered transactions using the flusher function.
func (w *Writer) Flush(ctx context.Context) error {
	w.mu.Lock()
	if len(w.buffer) == 0 {
		w.mu.Unlock()
		return nil
	}

	toFlush := make([]*api.Transaction, len(w.buffer))
	copy(toFlush, w.buffer)
	w.buffer = w.buffer[:0]
	w.mu.Unlock()

	w.logger.Debug("flushing buffer", "count", len(toFlush))

	if err := w.flusher(ctx, toFlush); err != nil {
		return err
	}

	w.mu.Lock()
	w.flushed += len(toFlush)
	w.mu.Unlock()
	return nil
}

// BufferLen returns the current number of buffered transactions.
func (w *Writer) BufferLen() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.buffer)
}

// Flushed returns the number of transactions handed to the flusher.
func (w *Writer) Flushed() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushed
}
