package main

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dynlab/dynlab/internal/projectconfig"
	"github.com/dynlab/dynlab/internal/session"
	"github.com/dynlab/dynlab/internal/stability"
)

type jsonReport struct {
	Threads []struct {
		Name   string           `json:"name"`
		Scope  string           `json:"scope"`
		Params stability.Params `json:"params"`
		Turns  int              `json:"turns"`
		Onset  *int             `json:"onset"`
	} `json:"threads"`
}

func analyzeJSON(t *testing.T, args ...string) jsonReport {
	t.Helper()
	out, _, err := runCLI(t, "", append([]string{"analyze", "--format", "json"}, args...)...)
	require.NoError(t, err)
	var rep jsonReport
	require.NoError(t, json.Unmarshal([]byte(out), &rep), out)
	return rep
}

var fastFlags = []string{"--window", "3", "--sigma", "1", "--persist", "5"}

func TestAnalyze_TableKeepsInputOrder(t *testing.T) {
	dir := t.TempDir()
	stable := writeThreadCSV(t, dir, "Anchor_turns.csv", constant(12, 100)...)
	noisy := writeThreadCSV(t, dir, "Drift_turns.csv", alternating(12, 10, 500)...)

	args := append([]string{"analyze", "--dir", dir, noisy, stable}, fastFlags...)
	out, _, err := runCLI(t, "", args...)
	require.NoError(t, err)

	assert.Contains(t, out, "=== Drift ===")
	assert.Contains(t, out, "=== Anchor ===")
	assert.Less(t, strings.Index(out, "Drift"), strings.Index(out, "Anchor"))
	// gpt turns are the even turn indices
	assert.Contains(t, out, "Stability detected at turn 2 (σ ≤ 1 for 5 turns)")
	assert.Contains(t, out, "No stable regime detected under current parameters.")
}

func TestAnalyze_JSON(t *testing.T) {
	dir := t.TempDir()
	stable := writeThreadCSV(t, dir, "Anchor_turns.csv", constant(12, 100)...)

	rep := analyzeJSON(t, append([]string{"--dir", dir, stable}, fastFlags...)...)
	require.Len(t, rep.Threads, 1)
	th := rep.Threads[0]
	assert.Equal(t, "Anchor", th.Name)
	assert.Equal(t, "gpt", th.Scope)
	assert.Equal(t, 12, th.Turns)
	require.NotNil(t, th.Onset)
	assert.Equal(t, 2, *th.Onset)
	assert.Equal(t, stability.Params{Window: 3, SigmaThreshold: 1, PersistLength: 5, BandK: 1}, th.Params)
}

func TestAnalyze_ScopeAll(t *testing.T) {
	dir := t.TempDir()
	path := writeThreadCSV(t, dir, "t.csv", constant(12, 100)...)

	rep := analyzeJSON(t, append([]string{"--dir", dir, "--scope", "all", path}, fastFlags...)...)
	require.Len(t, rep.Threads, 1)
	assert.Equal(t, 24, rep.Threads[0].Turns)
	assert.Equal(t, "all", rep.Threads[0].Scope)
	assert.Nil(t, rep.Threads[0].Onset, "user turns of 1 token keep σ high")
}

func TestAnalyze_ConfigThreadsAndOverrides(t *testing.T) {
	dir := t.TempDir()
	writeThreadCSV(t, dir, "a.csv", constant(12, 100)...)
	writeThreadCSV(t, dir, "b.csv", alternating(12, 10, 500)...)
	cfg := `analysis:
  window: 4
  sigma_threshold: 2
  persist_length: 6
  band_k: 2
threads:
  beta: b.csv
  alpha: a.csv
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, projectconfig.FileName), []byte(cfg), 0o644))

	t.Run("all_configured_threads_sorted", func(t *testing.T) {
		rep := analyzeJSON(t, "--dir", dir)
		require.Len(t, rep.Threads, 2)
		assert.Equal(t, "alpha", rep.Threads[0].Name)
		assert.Equal(t, "beta", rep.Threads[1].Name)
		assert.Equal(t, stability.Params{Window: 4, SigmaThreshold: 2, PersistLength: 6, BandK: 2}, rep.Threads[0].Params)
	})

	t.Run("thread_flag_and_override", func(t *testing.T) {
		rep := analyzeJSON(t, "--dir", dir, "--thread", "beta", "--persist", "3")
		require.Len(t, rep.Threads, 1)
		assert.Equal(t, "beta", rep.Threads[0].Name)
		assert.Equal(t, stability.Params{Window: 4, SigmaThreshold: 2, PersistLength: 3, BandK: 2}, rep.Threads[0].Params)
	})

	t.Run("unknown_thread", func(t *testing.T) {
		_, _, err := runCLI(t, "", "analyze", "--dir", dir, "--thread", "gamma")
		require.ErrorContains(t, err, `thread "gamma" is not defined`)
	})
}

func TestAnalyze_NoThreads(t *testing.T) {
	_, _, err := runCLI(t, "", "analyze", "--dir", t.TempDir())
	require.ErrorContains(t, err, "no threads to analyze")
	assert.Equal(t, ExitError, exitCode(err))
}

func TestAnalyze_FailUnstable(t *testing.T) {
	dir := t.TempDir()
	stable := writeThreadCSV(t, dir, "a.csv", constant(12, 100)...)
	noisy := writeThreadCSV(t, dir, "b.csv", alternating(12, 10, 500)...)

	_, _, err := runCLI(t, "", append([]string{"analyze", "--dir", dir, "--fail-unstable", stable}, fastFlags...)...)
	require.NoError(t, err)

	out, _, err := runCLI(t, "", append([]string{"analyze", "--dir", dir, "--fail-unstable", stable, noisy}, fastFlags...)...)
	var unstable *UnstableError
	require.True(t, errors.As(err, &unstable), "got %v", err)
	assert.Equal(t, "1 of 2 thread(s) show no stable regime", unstable.Message)
	assert.Equal(t, ExitUnstable, exitCode(err))
	assert.Contains(t, out, "=== b ===", "report is written before failing")
}

func TestAnalyze_InvalidInput(t *testing.T) {
	dir := t.TempDir()
	path := writeThreadCSV(t, dir, "a.csv", 1, 2, 3)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"zero_window", []string{"--window", "0"}, "window must be >= 1"},
		{"negative_sigma", []string{"--sigma", "-1"}, "sigma threshold"},
		{"bad_scope", []string{"--scope", "bots"}, "unknown scope"},
		{"bad_format", []string{"--format", "xml"}, "unknown format"},
		{"missing_file", []string{filepath.Join(dir, "nope.csv")}, "nope.csv"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"analyze", "--dir", dir, path}, tt.args...)
			_, _, err := runCLI(t, "", args...)
			require.ErrorContains(t, err, tt.wantErr)
			assert.Equal(t, ExitError, exitCode(err))
		})
	}
}

func TestAnalyze_SessionLog(t *testing.T) {
	dir := t.TempDir()
	stable := writeThreadCSV(t, dir, "a.csv", constant(12, 100)...)
	noisy := writeThreadCSV(t, dir, "b.csv", alternating(12, 10, 500)...)
	logPath := filepath.Join(dir, "logs", "run-session.jsonl")

	_, _, err := runCLI(t, "", append([]string{"analyze", "--dir", dir, "--session-log", logPath, stable, noisy}, fastFlags...)...)
	require.NoError(t, err)

	events, err := session.ReadEvents(logPath)
	require.NoError(t, err)
	require.Len(t, events, 6)
	assert.Equal(t, session.EventRunStart, events[0].Type)
	assert.Equal(t, session.EventRunComplete, events[5].Type)
	assert.Equal(t, 1.0, events[5].Data["stable"])

	counts := map[session.EventType]int{}
	for _, ev := range events {
		counts[ev.Type]++
	}
	assert.Equal(t, 2, counts[session.EventAnalysisStart])
	assert.Equal(t, 2, counts[session.EventAnalysisComplete])
}

func TestAnalyze_SessionLogRecordsErrors(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "s.jsonl")

	_, _, err := runCLI(t, "", "analyze", "--dir", dir, "--session-log", logPath, filepath.Join(dir, "missing.csv"))
	require.Error(t, err)

	events, err := session.ReadEvents(logPath)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, session.EventError, events[1].Type)
	assert.Equal(t, "missing", events[1].Data["thread"])
}

func TestThreadNameFromPath(t *testing.T) {
	assert.Equal(t, "BigFlame", threadNameFromPath("data/BigFlame_turns.csv"))
	assert.Equal(t, "plain", threadNameFromPath("plain.csv"))
	assert.Equal(t, "_turns", threadNameFromPath("_turns.csv"))
}
