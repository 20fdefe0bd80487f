package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// failingPool always returns an error on Submit to simulate producer error.
type failingPool struct{}

func (f *failingPool) Start(ctx context.Context) {}
func (f *failingPool) Submit(job Job) error      { return errors.New("submit failed") }
func (f *failingPool) SubmitCtx(ctx context.Context, job Job) error {
	return errors.New("submit failed")
}
func (f *failingPool) Close() {}

func TestIngestHandlesSubmitErrorClosesResultCh(t *testing.T) {
	conn := setupDB(t)
	defer conn.Close()

	sentences := make([]string, 10)
	for i := range sentences {
		sentences[i] = "テスト"
	}

	ingester := NewIngester(conn, fieldsSegmenter{})
	// Inject failing pool so first Submit() returns an error
	ingester.PoolFactory = func(workers, queue int) WorkerPoolInterface { return &failingPool{} }

	// Run ingest and expect it to return quickly with the submit error
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	report, err := ingester.IngestAll(ctx, sentences)
	if err == nil {
		t.Fatalf("expected submit error, got nil")
	}
	if report.Sentences != 0 {
		t.Fatalf("expected nothing stored, got %d sentences", report.Sentences)
	}
}
