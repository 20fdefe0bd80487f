package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

// WriteFunc is a callback that performs database writes inside a transaction.
type WriteFunc func(ctx context.Context, tx *sql.Tx) error

// BatchWriter buffers write operations and flushes them in batches inside a transaction.
// Each write runs inside its own savepoint: a failing write is rolled back and reported
// through OnError while the rest of its batch still commits.
type BatchWriter struct {
	mu     sync.Mutex
	buf    []WriteFunc
	cap    int
	closed bool
	db     *sql.DB

	// OnError receives the error of every write that was rolled back.
	OnError func(error)
	// OnCommit is called after a batch is committed. It is not called for a batch
	// whose begin, savepoint or commit failed.
	OnCommit func()
}

// NewBatchWriter creates a new BatchWriter.
// db: the database connection to use for transactions.
// bufferSize: flush when buffer reaches this size.
func NewBatchWriter(db *sql.DB, bufferSize int) *BatchWriter {
	if bufferSize <= 0 {
		bufferSize = 10
	}
	return &BatchWriter{
		buf: make([]WriteFunc, 0, bufferSize),
		cap: bufferSize,
		db:  db,
	}
}

// Submit enqueues a write function, flushing when the buffer is full. The returned error
// is a batch-level failure (begin, savepoint or commit); per-write failures go to OnError.
func (bw *BatchWriter) Submit(w WriteFunc) error {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	if bw.closed {
		return ErrBatchWriterClosed
	}
	bw.buf = append(bw.buf, w)
	if len(bw.buf) >= bw.cap {
		return bw.flushLocked()
	}
	return nil
}

// Flush commits any buffered writes.
func (bw *BatchWriter) Flush() error {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	if bw.closed {
		return ErrBatchWriterClosed
	}
	return bw.flushLocked()
}

// flushLocked assumes bw.mu is held.
func (bw *BatchWriter) flushLocked() error {
	if len(bw.buf) == 0 {
		return nil
	}
	batch := bw.buf
	bw.buf = make([]WriteFunc, 0, bw.cap)
	return bw.executeBatch(batch)
}

func (bw *BatchWriter) report(err error) {
	if bw.OnError != nil {
		bw.OnError(err)
	}
}

func (bw *BatchWriter) executeBatch(batch []WriteFunc) error {
	// Flushing never uses a caller context: a canceled context would roll back the whole tx.
	ctx := context.Background()

	// If no DB is configured (e.g. testing without DB), just run callbacks with nil tx
	if bw.db == nil {
		for _, w := range batch {
			if err := w(ctx, nil); err != nil {
				bw.report(err)
			}
		}
		bw.committed()
		return nil
	}

	tx, err := bw.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin batch tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback() // ignored if committed
	}()

	for i, w := range batch {
		if _, err := tx.ExecContext(ctx, "SAVEPOINT batch_item"); err != nil {
			return fmt.Errorf("failed to open savepoint for item %d: %w", i, err)
		}
		if werr := w(ctx, tx); werr != nil {
			if _, err := tx.ExecContext(ctx, "ROLLBACK TO batch_item"); err != nil {
				return fmt.Errorf("failed to roll back item %d: %w", i, err)
			}
			bw.report(werr)
		}
		if _, err := tx.ExecContext(ctx, "RELEASE batch_item"); err != nil {
			return fmt.Errorf("failed to release savepoint for item %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch (%d items): %w", len(batch), err)
	}
	bw.committed()
	return nil
}

func (bw *BatchWriter) committed() {
	if bw.OnCommit != nil {
		bw.OnCommit()
	}
}

// Close flushes pending writes and stops accepting submissions.
func (bw *BatchWriter) Close() error {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	if bw.closed {
		return ErrBatchWriterClosed
	}
	bw.closed = true
	return bw.flushLocked()
}

var ErrBatchWriterClosed = &BatchWriterError{"batch writer closed"}

type BatchWriterError struct{ msg string }

func (e *BatchWriterError) Error() string { return e.msg }
