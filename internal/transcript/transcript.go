// Package transcript converts conversation transcripts into per-turn token
// measurements in the thread CSV layout.
package transcript

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/dynlab/dynlab/internal/tokens"
	"github.com/dynlab/dynlab/internal/turns"
)

// ErrEmptyTranscript is returned when a transcript has no entries.
var ErrEmptyTranscript = errors.New("transcript has no entries")

// Entry is one message of a transcript.
type Entry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Transcript is a named list of messages. Both the "name" and the
// "task_name" keys are accepted for the display name.
type Transcript struct {
	Name       string  `json:"name,omitempty"`
	TaskName   string  `json:"task_name,omitempty"`
	Transcript []Entry `json:"transcript"`
}

// DisplayName returns the transcript name, falling back to the task name.
func (t *Transcript) DisplayName() string {
	if t.Name != "" {
		return t.Name
	}
	return t.TaskName
}

// Load reads a transcript JSON file.
func Load(path string) (*Transcript, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening transcript: %w", err)
	}
	defer f.Close() //nolint:errcheck

	t, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if t.DisplayName() == "" {
		t.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return t, nil
}

// Read decodes a transcript document.
func Read(r io.Reader) (*Transcript, error) {
	var t Transcript
	if err := json.NewDecoder(r).Decode(&t); err != nil {
		return nil, fmt.Errorf("decoding transcript: %w", err)
	}
	if len(t.Transcript) == 0 {
		return nil, ErrEmptyTranscript
	}
	return &t, nil
}

// SpeakerForRole maps a message role to a thread speaker label. Assistant
// messages are attributed to the model.
func SpeakerForRole(role string) string {
	r := strings.ToLower(strings.TrimSpace(role))
	switch r {
	case "assistant", "model", turns.SpeakerGPT:
		return turns.SpeakerGPT
	case "":
		return "unknown"
	default:
		return r
	}
}

// ToTurns numbers the entries from 1 and estimates their token counts with
// counter.
func ToTurns(t *Transcript, counter tokens.Counter) []turns.Turn {
	out := make([]turns.Turn, len(t.Transcript))
	for i, e := range t.Transcript {
		out[i] = turns.Turn{
			Turn:      i + 1,
			Speaker:   SpeakerForRole(e.Role),
			TokensEst: float64(counter.Count(e.Content)),
		}
	}
	return out
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

func sanitizeName(name string) string {
	s := strings.TrimSpace(name)
	s = strings.ReplaceAll(s, " ", "")
	s = unsafeChars.ReplaceAllString(s, "")
	if s == "" {
		s = "unnamed"
	}
	return s
}

// Filename returns the thread CSV filename for a transcript name, e.g.
// "Big Flame" becomes "BigFlame_turns.csv".
func Filename(name string) string {
	return sanitizeName(name) + "_turns.csv"
}

// Write writes turns as a thread CSV into dir and returns the file path.
func Write(dir, name string, ts []turns.Turn) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	path := filepath.Join(dir, Filename(name))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create thread file: %w", err)
	}
	if err := turns.WriteCSV(f, ts); err != nil {
		f.Close() //nolint:errcheck
		return "", fmt.Errorf("write thread file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close thread file: %w", err)
	}
	return path, nil
}
