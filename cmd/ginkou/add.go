package main

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/cronokirby/ginkou/pkg/ginkou"
	"github.com/cronokirby/ginkou/pkg/ingest"
	"github.com/spf13/cobra"
)

type addOptions struct {
	*rootOptions
	file      string
	html      string
	url       string
	split     bool
	workers   int
	batchSize int
	failFast  bool
}

func newAddCmd(root *rootOptions) *cobra.Command {
	opts := &addOptions{rootOptions: root}
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add new sentences to the database",
		Long: `Add new sentences to the database.

Each non-empty line of the input is one sentence. Sentences are read from --file, or
from standard input when no file is given. With --html or --url the readable text of a
web page is extracted and split into sentences instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdd(cmd, opts)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.file, "file", "f", "", "file to read sentences from (default stdin)")
	f.StringVar(&opts.html, "html", "", "HTML file to extract sentences from")
	f.StringVar(&opts.url, "url", "", "web page to fetch and extract sentences from")
	f.BoolVar(&opts.split, "split", false, "also split lines on 。！？ and drop whitespace")
	f.IntVar(&opts.workers, "workers", 4, "number of segmentation workers")
	f.IntVar(&opts.batchSize, "batch-size", 50, "sentences committed per transaction")
	f.BoolVar(&opts.failFast, "fail-fast", false, "stop at the first sentence that cannot be added")
	cmd.MarkFlagsMutuallyExclusive("file", "html", "url")
	return cmd
}

func runAdd(cmd *cobra.Command, opts *addOptions) error {
	logger := log.New(cmd.ErrOrStderr(), "ginkou: ", 0)

	sentences, err := readInput(cmd, opts)
	if err != nil {
		return err
	}

	conn, err := opts.openDB()
	if err != nil {
		return err
	}
	defer conn.Close()

	analyzer, err := ginkou.NewAnalyzer()
	if err != nil {
		return fmt.Errorf("failed to create analyzer: %w", err)
	}

	ingester := ingest.NewIngester(conn, analyzer)
	ingester.Workers = opts.workers
	ingester.BatchSize = opts.batchSize
	ingester.FailFast = opts.failFast
	ingester.Logger = logger
	ingester.OnProgress = func(current, total int) {
		if current%1000 == 0 {
			logger.Printf("%d/%d sentences", current, total)
		}
	}

	report, err := ingester.IngestAll(cmd.Context(), sentences)
	fmt.Fprintf(cmd.OutOrStdout(), "Added %d of %d sentences (%d word links).\n", report.Sentences, len(sentences), report.Links)
	if err != nil {
		return fmt.Errorf("ingestion stopped: %w", err)
	}
	if n := len(report.Failures); n > 0 {
		return fmt.Errorf("%d sentences could not be added", n)
	}
	return nil
}

func readInput(cmd *cobra.Command, opts *addOptions) ([]string, error) {
	switch {
	case opts.url != "":
		pageURL, err := url.Parse(opts.url)
		if err != nil {
			return nil, fmt.Errorf("invalid url %q: %w", opts.url, err)
		}
		client := &http.Client{Timeout: 30 * time.Second}
		body, err := ginkou.FetchHTML(cmd.Context(), client, opts.url)
		if err != nil {
			return nil, err
		}
		return articleSentences(cmd, bytes.NewReader(body), pageURL)

	case opts.html != "":
		f, err := os.Open(opts.html)
		if err != nil {
			return nil, fmt.Errorf("couldn't open %s: %w", opts.html, err)
		}
		defer f.Close()
		abs, err := filepath.Abs(opts.html)
		if err != nil {
			return nil, err
		}
		return articleSentences(cmd, f, &url.URL{Scheme: "file", Path: filepath.ToSlash(abs)})

	case opts.file != "":
		f, err := os.Open(opts.file)
		if err != nil {
			return nil, fmt.Errorf("couldn't open %s: %w", opts.file, err)
		}
		defer f.Close()
		return readLines(f, opts.split)

	default:
		return readLines(cmd.InOrStdin(), opts.split)
	}
}

func articleSentences(cmd *cobra.Command, r io.Reader, pageURL *url.URL) ([]string, error) {
	article, err := ginkou.ExtractText(r, pageURL)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Title: %s\n", article.Title)
	return article.Sentences(), nil
}

// readLines returns every non-empty line of r, trimmed. With split set, lines are further
// divided into sentences.
func readLines(r io.Reader, split bool) ([]string, error) {
	var sentences []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if split {
			sentences = append(sentences, ginkou.SplitSentences(string(line))...)
			continue
		}
		sentences = append(sentences, string(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read sentences: %w", err)
	}
	return sentences, nil
}
