package db

import (
	"database/sql"
	"fmt"
	"strings"
)

// DBExecutor is an interface that allows methods to accept either *sql.DB or *sql.Tx
type DBExecutor interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// StorageError reports a failure of the underlying store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage: %s: %v", e.Op, e.Err) }

func (e *StorageError) Unwrap() error { return e.Err }

// InsertSentence stores a new sentence row and returns its id.
// Sentences are occurrences: the same text inserted twice yields two rows.
func InsertSentence(db DBExecutor, text string) (int64, error) {
	if strings.TrimSpace(text) == "" {
		return 0, &StorageError{Op: "insert sentence", Err: fmt.Errorf("sentence must be non-empty")}
	}
	res, err := db.Exec(`INSERT INTO sentences (text) VALUES (?)`, text)
	if err != nil {
		return 0, &StorageError{Op: "insert sentence", Err: err}
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, &StorageError{Op: "insert sentence", Err: err}
	}
	return id, nil
}

// CreateOrGetWord returns existing word id or inserts a new word and returns its id.
func CreateOrGetWord(db DBExecutor, word string) (int64, error) {
	if word == "" {
		return 0, &StorageError{Op: "upsert word", Err: fmt.Errorf("word must be non-empty")}
	}

	// The no-op update makes RETURNING yield the existing row on conflict.
	var id int64
	err := db.QueryRow(`INSERT INTO words (text) VALUES (?)
			  ON CONFLICT(text) DO UPDATE SET text = excluded.text
			  RETURNING id`, word).Scan(&id)
	if err != nil {
		return 0, &StorageError{Op: fmt.Sprintf("upsert word %q", word), Err: err}
	}
	return id, nil
}

// LinkWordToSentence records that the word occurs in the sentence. Linking the same pair
// twice is a no-op.
func LinkWordToSentence(db DBExecutor, wordID, sentenceID int64) error {
	if wordID <= 0 {
		return &StorageError{Op: "link word", Err: fmt.Errorf("wordID must be positive")}
	}
	if sentenceID <= 0 {
		return &StorageError{Op: "link word", Err: fmt.Errorf("sentenceID must be positive")}
	}
	_, err := db.Exec(`INSERT INTO word_sentences (word_id, sentence_id) VALUES (?, ?)
		ON CONFLICT DO NOTHING`, wordID, sentenceID)
	if err != nil {
		return &StorageError{Op: fmt.Sprintf("link word %d to sentence %d", wordID, sentenceID), Err: err}
	}
	return nil
}

// GetWord returns the word row with exactly the given text. ok is false when there is none.
func GetWord(db DBExecutor, text string) (w Word, ok bool, err error) {
	err = db.QueryRow(`SELECT id, text FROM words WHERE text = ?`, text).Scan(&w.ID, &w.Text)
	if err == sql.ErrNoRows {
		return Word{}, false, nil
	}
	if err != nil {
		return Word{}, false, &StorageError{Op: "get word", Err: err}
	}
	return w, true, nil
}

// GetWordsBySentence returns the words linked to a sentence, ordered by id.
func GetWordsBySentence(db DBExecutor, sentenceID int64) ([]Word, error) {
	rows, err := db.Query(`SELECT w.id, w.text FROM words w
		JOIN word_sentences ws ON ws.word_id = w.id
		WHERE ws.sentence_id = ?
		ORDER BY w.id`, sentenceID)
	if err != nil {
		return nil, &StorageError{Op: "words by sentence", Err: err}
	}
	defer rows.Close()
	var out []Word
	for rows.Next() {
		var w Word
		if err := rows.Scan(&w.ID, &w.Text); err != nil {
			return nil, &StorageError{Op: "words by sentence", Err: err}
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "words by sentence", Err: err}
	}
	return out, nil
}

// CountWords returns the number of distinct words stored.
func CountWords(db DBExecutor) (int, error) {
	return count(db, "words")
}

// CountSentences returns the number of sentence rows stored.
func CountSentences(db DBExecutor) (int, error) {
	return count(db, "sentences")
}

// CountLinks returns the number of word-sentence associations stored.
func CountLinks(db DBExecutor) (int, error) {
	return count(db, "word_sentences")
}

// count is only called with the fixed table names above.
func count(db DBExecutor, table string) (int, error) {
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		return 0, &StorageError{Op: "count " + table, Err: err}
	}
	return n, nil
}
