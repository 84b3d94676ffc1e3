// Package tokens estimates token counts of conversational text.
package tokens

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"
)

const charsPerToken = 4

// Tokenizer names a counting strategy.
type Tokenizer string

const (
	// TokenizerEstimate approximates one token per four characters.
	TokenizerEstimate Tokenizer = "estimate"
	// TokenizerWords approximates four tokens per three words.
	TokenizerWords Tokenizer = "words"
)

// Counter counts tokens in text.
type Counter interface {
	Count(text string) int
}

// NewCounter returns the counter for the named tokenizer. An empty name
// selects TokenizerEstimate.
func NewCounter(t Tokenizer) (Counter, error) {
	switch t {
	case TokenizerEstimate, "":
		return &estimatingCounter{}, nil
	case TokenizerWords:
		return &wordCounter{}, nil
	default:
		return nil, fmt.Errorf("unknown tokenizer %q", t)
	}
}

type estimatingCounter struct{}

func (*estimatingCounter) Count(text string) int {
	return Estimate(text)
}

// Estimate approximates the token count of text as one token per four
// characters, rounded up.
func Estimate(text string) int {
	return int(math.Ceil(float64(utf8.RuneCountInString(text)) / float64(charsPerToken)))
}

type wordCounter struct{}

func (*wordCounter) Count(text string) int {
	words := len(strings.Fields(text))
	return int(math.Ceil(float64(words) * 4 / 3))
}
