package db

import (
	"database/sql"
	_ "embed"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// InitDB creates the words, sentences and word_sentences tables if they are missing.
// It is safe to call on every start.
func InitDB(db *sql.DB) error {
	stmts := strings.Split(schemaSQL, ";")
	for _, s := range stmts {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, err := db.Exec(s); err != nil {
			return &StorageError{Op: "init schema", Err: err}
		}
	}
	return nil
}

// dsnPathEscaper escapes the characters that end the path part of a "file:" URI.
var dsnPathEscaper = strings.NewReplacer("%", "%25", "?", "%3f", "#", "%23")

// Open opens (creating if needed) the SQLite database at path and initializes the schema.
// The caller owns the returned handle and must Close it.
func Open(path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite3", "file:"+dsnPathEscaper.Replace(path)+"?_foreign_keys=on")
	if err != nil {
		return nil, &StorageError{Op: "open " + path, Err: err}
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	conn.SetMaxOpenConns(1)
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, &StorageError{Op: "open " + path, Err: err}
	}
	if err := InitDB(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}
