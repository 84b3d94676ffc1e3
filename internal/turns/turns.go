// Package turns loads per-turn conversation measurements and turns them into
// the sanitized series consumed by the stability analysis.
package turns

import (
	"fmt"
	"strings"

	"github.com/dynlab/dynlab/internal/stability"
)

// SpeakerGPT is the speaker label of model turns.
const SpeakerGPT = "gpt"

// Turn is one row of a thread: a conversational exchange and its estimated
// token count.
type Turn struct {
	Turn      int     `json:"turn"`
	Speaker   string  `json:"speaker"`
	TokensEst float64 `json:"tokens_est"`
}

// Thread is a named, turn-ordered conversation.
type Thread struct {
	Name  string `json:"name"`
	Turns []Turn `json:"turns"`
}

// Scope selects which turns feed the stability statistics.
type Scope string

const (
	ScopeGPT Scope = "gpt"
	ScopeAll Scope = "all"
)

// ParseScope accepts "gpt" or "all" (case-insensitive).
func ParseScope(s string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(s))) {
	case ScopeGPT:
		return ScopeGPT, nil
	case ScopeAll:
		return ScopeAll, nil
	default:
		return "", fmt.Errorf("unknown scope %q (expected %q or %q)", s, ScopeGPT, ScopeAll)
	}
}

// Label returns the human readable description used in reports.
func (s Scope) Label() string {
	if s == ScopeGPT {
		return "GPT turns only"
	}
	return "All turns"
}

// Filter returns the turns in scope, preserving order. The input is not
// modified.
func Filter(turns []Turn, scope Scope) []Turn {
	if scope != ScopeGPT {
		return append([]Turn(nil), turns...)
	}
	var out []Turn
	for _, t := range turns {
		if strings.EqualFold(strings.TrimSpace(t.Speaker), SpeakerGPT) {
			out = append(out, t)
		}
	}
	return out
}

// ToSeries converts turns to the analysis series.
func ToSeries(turns []Turn) stability.Series {
	s := make(stability.Series, len(turns))
	for i, t := range turns {
		s[i] = stability.Point{Turn: t.Turn, Value: t.TokensEst}
	}
	return s
}

// Speakers returns the distinct speakers in order of first appearance.
func Speakers(turns []Turn) []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range turns {
		if !seen[t.Speaker] {
			seen[t.Speaker] = true
			out = append(out, t.Speaker)
		}
	}
	return out
}
