package db

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	// Ensure single connection to avoid separate in-memory DBs per connection.
	db.SetMaxOpenConns(1)
	if err := InitDB(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestInitDBCreatesSchema(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	for _, table := range []string{"words", "sentences", "word_sentences"} {
		var name string
		if err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name); err != nil {
			t.Fatalf("%s table missing: %v", table, err)
		}
	}

	// Running again must not fail or drop data.
	if _, err := InsertSentence(db, "猫がいる。"); err != nil {
		t.Fatalf("insert sentence: %v", err)
	}
	if err := InitDB(db); err != nil {
		t.Fatalf("second InitDB failed: %v", err)
	}
	n, err := CountSentences(db)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 sentence after re-init, got %d", n)
	}
}

func TestOpenFile(t *testing.T) {
	tests := []struct {
		name string
		file string
	}{
		{"plain", "bank.db"},
		{"hash", "bank#1.db"},
		{"question mark", "bank?mode=ro.db"},
		{"percent", "bank%20.db"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, tt.file)
			conn, err := Open(path)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			if _, err := CreateOrGetWord(conn, "犬"); err != nil {
				t.Fatalf("create word: %v", err)
			}
			conn.Close()

			entries, err := os.ReadDir(dir)
			if err != nil {
				t.Fatal(err)
			}
			if len(entries) != 1 || entries[0].Name() != tt.file {
				var names []string
				for _, e := range entries {
					names = append(names, e.Name())
				}
				t.Fatalf("expected only %q in %s, found %v", tt.file, dir, names)
			}

			conn, err = Open(path)
			if err != nil {
				t.Fatalf("reopen: %v", err)
			}
			defer conn.Close()
			if _, ok, err := GetWord(conn, "犬"); err != nil || !ok {
				t.Fatalf("expected 犬 to survive reopen, ok=%v err=%v", ok, err)
			}
		})
	}
}

func TestCreateOrGetWord(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	id1, err := CreateOrGetWord(db, "犬")
	if err != nil {
		t.Fatalf("create word: %v", err)
	}
	id2, err := CreateOrGetWord(db, "犬")
	if err != nil {
		t.Fatalf("get word: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("expected same id, got %d and %d", id1, id2)
	}
	id3, err := CreateOrGetWord(db, "猫")
	if err != nil {
		t.Fatalf("create word: %v", err)
	}
	if id3 == id1 {
		t.Fatalf("expected distinct ids for distinct words, both %d", id1)
	}
	n, err := CountWords(db)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 word rows, got %d", n)
	}
}

func TestCreateOrGetWordEmpty(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	_, err := CreateOrGetWord(db, "")
	var se *StorageError
	if !errors.As(err, &se) {
		t.Fatalf("expected StorageError, got %v", err)
	}
}

func TestInsertSentenceKeepsDuplicates(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	id1, err := InsertSentence(db, "私が来た。")
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	id2, err := InsertSentence(db, "私が来た。")
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if id1 == id2 {
		t.Fatalf("expected distinct sentence ids, both %d", id1)
	}
}

func TestLinkAndQuery(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	wID, err := CreateOrGetWord(db, "猫")
	if err != nil {
		t.Fatalf("create word: %v", err)
	}
	sID, err := InsertSentence(db, "この猫は可愛い。")
	if err != nil {
		t.Fatalf("insert sentence: %v", err)
	}
	if err := LinkWordToSentence(db, wID, sID); err != nil {
		t.Fatalf("link: %v", err)
	}
	// Linking the same pair again is a no-op.
	if err := LinkWordToSentence(db, wID, sID); err != nil {
		t.Fatalf("link 2: %v", err)
	}
	n, err := CountLinks(db)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 link row, got %d", n)
	}

	words, err := GetWordsBySentence(db, sID)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(words) != 1 || words[0].Text != "猫" {
		t.Fatalf("expected [猫], got %v", words)
	}
}

func TestLinkRejectsBadIDs(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	tests := []struct {
		name               string
		wordID, sentenceID int64
	}{
		{"zero word", 0, 1},
		{"zero sentence", 1, 0},
		{"negative", -1, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := LinkWordToSentence(db, tt.wordID, tt.sentenceID); err == nil {
				t.Fatalf("expected error for ids (%d, %d)", tt.wordID, tt.sentenceID)
			}
		})
	}
}

func TestGetWordMissing(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	_, ok, err := GetWord(db, "ない")
	if err != nil {
		t.Fatalf("GetWord: %v", err)
	}
	if ok {
		t.Fatal("expected no row for unknown word")
	}
}
