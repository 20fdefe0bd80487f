// Package lookup finds the sentences that contain a word.
package lookup

import (
	"bufio"
	"errors"
	"io"
	"syscall"

	"github.com/cronokirby/ginkou/pkg/db"
)

// MaxResults is the default number of sentences returned for a word.
const MaxResults = 200

const sentencesForWord = `SELECT s.text FROM words w
	JOIN word_sentences ws ON ws.word_id = w.id
	JOIN sentences s ON s.id = ws.sentence_id
	WHERE w.text = ?
	ORDER BY length(s.text), s.id`

// Lookup returns the sentences linked to exactly word, shortest first. Length is counted
// in characters; sentences of equal length come back in insertion order. At most limit
// sentences are returned, or all of them when limit <= 0. A word that was never ingested
// yields an empty slice.
func Lookup(q db.DBExecutor, word string, limit int) ([]string, error) {
	query := sentencesForWord
	args := []interface{}{word}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, &db.StorageError{Op: "lookup " + word, Err: err}
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, &db.StorageError{Op: "lookup " + word, Err: err}
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, &db.StorageError{Op: "lookup " + word, Err: err}
	}
	return out, nil
}

// Write prints one sentence per line. A closed pipe on the reading side (e.g. `| head`)
// ends the output without an error.
func Write(w io.Writer, sentences []string) error {
	bw := bufio.NewWriter(w)
	for _, s := range sentences {
		if _, err := bw.WriteString(s + "\n"); err != nil {
			return ignoreBrokenPipe(err)
		}
	}
	return ignoreBrokenPipe(bw.Flush())
}

func ignoreBrokenPipe(err error) error {
	if errors.Is(err, syscall.EPIPE) {
		return nil
	}
	return err
}
