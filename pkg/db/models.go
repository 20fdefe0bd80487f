package db

// Word is a normalized (dictionary form) word. Text is unique across rows.
type Word struct {
	ID   int64
	Text string
}
