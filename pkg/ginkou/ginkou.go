package ginkou

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ikawaha/kagome-dict/ipa"
	"github.com/ikawaha/kagome/v2/tokenizer"
)

// Version returns the current version of the package.
func Version() string { return "0.2.0" }

// Segmenter turns a sentence into its normalized (dictionary form) words, in order.
// Implementations must be safe for concurrent use.
type Segmenter interface {
	Segment(text string) ([]string, error)
}

// Token represents a single analyzed unit of text.
type Token struct {
	Surface  string // The text as it appears (e.g. "来")
	BaseForm string // The dictionary form (e.g. "来る")
	// PrimaryPOS stores the first (primary) part of speech if available.
	PrimaryPOS string
}

// Analyzer segments Japanese text with kagome and the IPA dictionary.
type Analyzer struct {
	t *tokenizer.Tokenizer
}

// NewAnalyzer creates a new tokenizer instance.
func NewAnalyzer() (*Analyzer, error) {
	t, err := tokenizer.New(ipa.Dict(), tokenizer.OmitBosEos())
	if err != nil {
		return nil, err
	}
	return &Analyzer{t: t}, nil
}

// Analyze breaks text into tokens with base forms.
func (a *Analyzer) Analyze(text string) ([]Token, error) {
	if !utf8.ValidString(text) {
		return nil, fmt.Errorf("analyze: text is not valid UTF-8")
	}
	tokens := a.t.Tokenize(text)
	var result []Token

	for _, token := range tokens {
		if token.Class == tokenizer.DUMMY {
			continue
		}
		if strings.TrimSpace(token.Surface) == "" {
			continue
		}

		// IPA features:
		// 0-3: Part of Speech and sub-POS
		// 4-5: Conjugation Type / Form
		// 6: Base Form (Lemma)
		features := token.Features()

		base := token.Surface
		if len(features) > 6 && features[6] != "*" {
			base = features[6]
		}

		primaryPOS := ""
		if len(features) > 0 {
			primaryPOS = features[0]
		}

		result = append(result, Token{
			Surface:    token.Surface,
			BaseForm:   base,
			PrimaryPOS: primaryPOS,
		})
	}

	return result, nil
}

// Segment returns the base form of every non-symbol token in text. Symbols (記号) such
// as 。 are not returned, so they are never stored as words and cannot be looked up.
func (a *Analyzer) Segment(text string) ([]string, error) {
	tokens, err := a.Analyze(text)
	if err != nil {
		return nil, err
	}
	words := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t.PrimaryPOS == "記号" {
			continue
		}
		words = append(words, t.BaseForm)
	}
	return words, nil
}

// SplitSentences splits text on Japanese sentence delimiters (。！？) and newlines.
// Whitespace inside a sentence is removed, delimiters and closing brackets that follow a
// delimiter stay with the sentence they end, and empty pieces are dropped.
func SplitSentences(text string) []string {
	var sentences []string
	var current strings.Builder
	ended := false

	flush := func() {
		if current.Len() > 0 {
			sentences = append(sentences, current.String())
			current.Reset()
		}
		ended = false
	}

	for _, r := range text {
		if r == '\n' {
			flush()
			continue
		}
		if unicode.IsSpace(r) {
			continue
		}
		if ended && !isDelimiter(r) && !isClosingBracket(r) {
			flush()
		}
		current.WriteRune(r)
		if isDelimiter(r) {
			ended = true
		}
	}
	flush()
	return sentences
}

func isDelimiter(r rune) bool {
	return r == '。' || r == '！' || r == '？'
}

func isClosingBracket(r rune) bool {
	switch r {
	case '」', '』', '）', ')', '】', '〉', '》':
		return true
	}
	return false
}
