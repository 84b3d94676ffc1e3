// Package session records analysis runs as newline-delimited JSON events.
package session

import (
	"time"

	"github.com/dynlab/dynlab/internal/stability"
	"github.com/dynlab/dynlab/internal/turns"
)

// EventType identifies the kind of session event.
type EventType string

const (
	EventRunStart         EventType = "run_start"
	EventRunComplete      EventType = "run_complete"
	EventAnalysisStart    EventType = "analysis_start"
	EventAnalysisComplete EventType = "analysis_complete"
	EventError            EventType = "error"
)

// Event is a single timestamped entry in a session log.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Type      EventType      `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
}

// NewEvent creates an event with the current timestamp.
func NewEvent(t EventType, data map[string]any) Event {
	return Event{
		Timestamp: time.Now().UTC(),
		Type:      t,
		Data:      data,
	}
}

// RunStartData returns event data for the start of a multi-thread run.
func RunStartData(threads []string) map[string]any {
	return map[string]any{
		"threads":      threads,
		"thread_count": len(threads),
	}
}

// RunCompleteData returns event data for the end of a run.
func RunCompleteData(threadCount, stable int, durationMs int64) map[string]any {
	return map[string]any{
		"thread_count": threadCount,
		"stable":       stable,
		"duration_ms":  durationMs,
	}
}

// AnalysisStartData returns event data for the start of one thread analysis.
func AnalysisStartData(thread string, scope turns.Scope, p stability.Params, turnCount int) map[string]any {
	return map[string]any{
		"thread":  thread,
		"scope":   string(scope),
		"window":  p.Window,
		"sigma":   p.SigmaThreshold,
		"persist": p.PersistLength,
		"k":       p.BandK,
		"turns":   turnCount,
	}
}

// AnalysisCompleteData returns event data for a finished thread analysis.
// onset_turn is present only when a stable regime was found.
func AnalysisCompleteData(thread string, r stability.Result, durationMs int64) map[string]any {
	d := map[string]any{
		"thread":      thread,
		"found":       r.Found,
		"duration_ms": durationMs,
	}
	if r.Found {
		d["onset_turn"] = r.Turn
	}
	return d
}

// ErrorData returns event data for an error.
func ErrorData(message string, details map[string]any) map[string]any {
	d := map[string]any{
		"message": message,
	}
	for k, v := range details {
		d[k] = v
	}
	return d
}
