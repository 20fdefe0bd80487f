package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/cronokirby/ginkou/pkg/db"
	"github.com/cronokirby/ginkou/pkg/ginkou"
)

// WorkerPoolInterface abstracts the worker pool so tests can inject failing implementations.
type WorkerPoolInterface interface {
	Start(ctx context.Context)
	Submit(Job) error
	// SubmitCtx attempts to enqueue a job but returns promptly if ctx is canceled.
	SubmitCtx(ctx context.Context, job Job) error
	Close()
}

// ErrEmptySentence is returned for sentences that contain only whitespace.
var ErrEmptySentence = errors.New("sentence is empty")

// TokenizationError reports that the segmenter could not process a sentence.
type TokenizationError struct {
	Sentence string
	Err      error
}

func (e *TokenizationError) Error() string {
	return fmt.Sprintf("tokenize %q: %v", e.Sentence, e.Err)
}

func (e *TokenizationError) Unwrap() error { return e.Err }

// Failure records a sentence that was not stored and why.
type Failure struct {
	Index    int // position in the input, 0-based
	Sentence string
	Err      error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("sentence #%d %q: %v", f.Index+1, f.Sentence, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Report summarizes an IngestAll run.
type Report struct {
	Sentences int // sentences stored
	Links     int // word-sentence associations stored
	Failures  []Failure
}

// Ingester handles the ingestion of sentences into the database.
type Ingester struct {
	DB        *sql.DB
	Segmenter ginkou.Segmenter
	BatchSize int
	// FailFast stops IngestAll at the first failed sentence. Every sentence then commits on its own.
	FailFast bool
	// Logger is used for per-sentence failures. nil means no logging.
	Logger *log.Logger
	// OnProgress is called with the number of written sentences and total sentences.
	OnProgress func(current, total int)

	// Concurrency settings
	Workers int

	// PoolFactory allows tests to inject custom worker pool implementations.
	PoolFactory func(workers, queue int) WorkerPoolInterface
}

// NewIngester creates a new Ingester.
func NewIngester(conn *sql.DB, seg ginkou.Segmenter) *Ingester {
	return &Ingester{
		DB:        conn,
		Segmenter: seg,
		BatchSize: 50,
		Workers:   4,
	}
}

// segmented is a sentence after segmentation, waiting to be written.
type segmented struct {
	index    int
	sentence string
	words    []string
	err      error
}

// Ingest stores one sentence and links it to its distinct words in a single transaction.
// Nothing is committed if segmentation or any write fails.
func (ig *Ingester) Ingest(ctx context.Context, sentence string) error {
	words, err := ig.segment(sentence)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tx, err := ig.DB.BeginTx(ctx, nil)
	if err != nil {
		return &db.StorageError{Op: "begin", Err: err}
	}
	defer func() {
		_ = tx.Rollback() // ignored if committed
	}()

	if _, err := writeSentence(tx, sentence, words); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return &db.StorageError{Op: "commit", Err: err}
	}
	return nil
}

// segment runs the segmenter and reduces its output to distinct words in first-seen order.
func (ig *Ingester) segment(sentence string) ([]string, error) {
	if strings.TrimSpace(sentence) == "" {
		return nil, ErrEmptySentence
	}
	words, err := ig.Segmenter.Segment(sentence)
	if err != nil {
		return nil, &TokenizationError{Sentence: sentence, Err: err}
	}
	seen := make(map[string]struct{}, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		if w == "" {
			return nil, &TokenizationError{Sentence: sentence, Err: errors.New("segmenter returned an empty word")}
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out, nil
}

// writeSentence inserts the sentence row and links it to words, which must be distinct.
// It returns the number of links made.
func writeSentence(q db.DBExecutor, sentence string, words []string) (int, error) {
	sentenceID, err := db.InsertSentence(q, sentence)
	if err != nil {
		return 0, err
	}
	for _, w := range words {
		wordID, err := db.CreateOrGetWord(q, w)
		if err != nil {
			return 0, err
		}
		if err := db.LinkWordToSentence(q, wordID, sentenceID); err != nil {
			return 0, err
		}
	}
	return len(words), nil
}

// IngestAll stores every sentence, segmenting on the worker pool and writing in input
// order through a BatchWriter. A sentence that fails is rolled back on its own and
// recorded in the report. The returned error is reserved for failures that stop the
// whole run: database begin/commit errors, pool errors, and cancellation of ctx.
func (ig *Ingester) IngestAll(ctx context.Context, sentences []string) (Report, error) {
	var report Report
	total := len(sentences)
	if err := ctx.Err(); err != nil {
		return report, err
	}
	if total == 0 {
		return report, nil
	}

	workers := ig.Workers
	if workers <= 0 {
		workers = 1
	}
	batchSize := ig.BatchSize
	if ig.FailFast {
		batchSize = 1
	}

	parent := ctx
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wp WorkerPoolInterface
	if ig.PoolFactory != nil {
		wp = ig.PoolFactory(workers, workers*2)
	} else {
		wp = NewWorkerPool(workers, workers*2)
	}
	defer wp.Close()
	wp.Start(ctx)

	resultCh := make(chan segmented, workers*2)
	doneCh := make(chan error, 1)
	go func() {
		doneCh <- ig.write(ctx, cancel, resultCh, batchSize, total, &report)
	}()

	var submitErr error
	for i, s := range sentences {
		if ctx.Err() != nil {
			break
		}
		idx, sentence := i, s
		job := func(ctx context.Context) error {
			words, err := ig.segment(sentence)
			select {
			case resultCh <- segmented{index: idx, sentence: sentence, words: words, err: err}:
			case <-ctx.Done():
			}
			return nil
		}
		if err := wp.SubmitCtx(ctx, job); err != nil {
			if ctx.Err() == nil {
				submitErr = fmt.Errorf("submit sentence #%d: %w", idx+1, err)
				cancel()
			}
			break
		}
	}

	// Workers have exited once Close returns, so nothing sends on resultCh after this.
	wp.Close()
	close(resultCh)
	writeErr := <-doneCh

	switch {
	case writeErr != nil:
		return report, writeErr
	case submitErr != nil:
		return report, submitErr
	case parent.Err() != nil:
		return report, parent.Err()
	}
	return report, nil
}

// write is the single database writer. It restores input order, submits each sentence to
// a BatchWriter and flushes what is left once resultCh is closed. Sentences count towards
// the report only once their batch commits; if a batch cannot commit, its sentences are
// recorded as failures.
func (ig *Ingester) write(ctx context.Context, cancel context.CancelFunc, resultCh <-chan segmented, batchSize, total int, report *Report) error {
	batch := newStagedBatch()
	bw := NewBatchWriter(ig.DB, batchSize)
	bw.OnError = func(err error) {
		var f *Failure
		if !errors.As(err, &f) {
			f = &Failure{Index: -1, Err: err}
		}
		batch.failed[f.Index] = struct{}{}
		ig.fail(report, *f)
		if ig.FailFast {
			cancel()
		}
	}
	bw.OnCommit = func() {
		report.Sentences += batch.stored
		report.Links += batch.links
		batch = newStagedBatch()
	}
	abort := func(err error) error {
		for _, item := range batch.submitted {
			if _, done := batch.failed[item.index]; done {
				continue
			}
			ig.fail(report, Failure{Index: item.index, Sentence: item.sentence, Err: err})
		}
		batch = newStagedBatch()
		return err
	}

	pending := make(map[int]segmented)
	next := 0
	for res := range resultCh {
		pending[res.index] = res
		for {
			item, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++
			// After a stop, keep draining so workers are never blocked, but write nothing new.
			if ctx.Err() != nil {
				continue
			}
			batch.submitted = append(batch.submitted, item)
			if err := bw.Submit(sentenceWrite(item, batch)); err != nil {
				cancel()
				return abort(err)
			}
			if ig.OnProgress != nil {
				ig.OnProgress(next, total)
			}
		}
	}
	if err := bw.Close(); err != nil {
		return abort(err)
	}
	return nil
}

func (ig *Ingester) fail(report *Report, f Failure) {
	report.Failures = append(report.Failures, f)
	if ig.Logger != nil {
		ig.Logger.Printf("skipping %v", &f)
	}
}

// stagedBatch tracks the sentences of the open batch until it commits.
type stagedBatch struct {
	submitted []segmented
	failed    map[int]struct{}
	stored    int
	links     int
}

func newStagedBatch() *stagedBatch {
	return &stagedBatch{failed: make(map[int]struct{})}
}

func sentenceWrite(item segmented, batch *stagedBatch) WriteFunc {
	return func(ctx context.Context, tx *sql.Tx) error {
		if item.err != nil {
			return &Failure{Index: item.index, Sentence: item.sentence, Err: item.err}
		}
		links, err := writeSentence(tx, item.sentence, item.words)
		if err != nil {
			return &Failure{Index: item.index, Sentence: item.sentence, Err: err}
		}
		batch.stored++
		batch.links += links
		return nil
	}
}
