package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dynlab/dynlab/internal/turns"
	"github.com/dynlab/dynlab/internal/webapi"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

func TestPlot_WritesPNG(t *testing.T) {
	dir := t.TempDir()
	csv := writeThreadCSV(t, dir, "Anchor_turns.csv", append(alternating(6, 10, 400), constant(10, 100)...)...)
	out := filepath.Join(dir, "chart.png")

	_, stderr, err := runCLI(t, "", "plot", "--dir", dir, "--window", "3", "--sigma", "1", "--persist", "4", "-o", out, "--width", "400", "--height", "300", csv)
	require.NoError(t, err)
	assert.Contains(t, stderr, "wrote "+out)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, pngMagic))
}

func TestPlot_Stdout(t *testing.T) {
	dir := t.TempDir()
	csv := writeThreadCSV(t, dir, "a.csv", constant(5, 3)...)

	stdout, _, err := runCLI(t, "", "plot", "--dir", dir, "--band=false", "-o", "-", csv)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix([]byte(stdout), pngMagic))
}

func TestPlot_Errors(t *testing.T) {
	dir := t.TempDir()
	one := writeThreadCSV(t, dir, "one.csv", 5)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"no_input", nil, "exactly one of"},
		{"both_inputs", []string{one, "--thread", "x"}, "exactly one of"},
		{"too_few_turns", []string{one, "-o", filepath.Join(dir, "x.png")}, "at least two turns"},
		{"unknown_thread", []string{"--thread", "x"}, `thread "x" is not defined`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := runCLI(t, "", append([]string{"plot", "--dir", dir}, tt.args...)...)
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestImport(t *testing.T) {
	dir := t.TempDir()
	doc := `{"name":"Big Flame","transcript":[
		{"role":"user","content":"hello there"},
		{"role":"assistant","content":"0123456789abcdef0"},
		{"role":"user","content":""}
	]}`
	src := filepath.Join(dir, "t.json")
	require.NoError(t, os.WriteFile(src, []byte(doc), 0o644))
	outDir := filepath.Join(dir, "threads")

	stdout, _, err := runCLI(t, "", "import", "-o", outDir, src)
	require.NoError(t, err)

	csvPath := filepath.Join(outDir, "BigFlame_turns.csv")
	assert.Contains(t, stdout, "Big Flame: 3 turns -> "+csvPath)

	got, err := turns.LoadCSV(csvPath)
	require.NoError(t, err)
	assert.Equal(t, []turns.Turn{
		{Turn: 1, Speaker: "user", TokensEst: 3},
		{Turn: 2, Speaker: "gpt", TokensEst: 5},
		{Turn: 3, Speaker: "user", TokensEst: 0},
	}, got)
}

func TestImport_Errors(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "t.json")
	require.NoError(t, os.WriteFile(src, []byte(`{"transcript":[]}`), 0o644))

	_, _, err := runCLI(t, "", "import", "-o", dir, src)
	require.ErrorContains(t, err, "transcript has no entries")

	_, _, err = runCLI(t, "", "import", "--tokenizer", "bpe", src)
	require.ErrorContains(t, err, `unknown tokenizer "bpe"`)
}

func TestTokensCount(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	require.NoError(t, os.WriteFile(a, []byte("12345678"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("one two three"), 0o644))

	stdout, _, err := runCLI(t, "", "tokens", "count", a, b)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Tokens")
	assert.Contains(t, stdout, "Total")

	stdout, _, err = runCLI(t, "", "tokens", "count", "--format", "json", "--tokenizer", "words", b)
	require.NoError(t, err)
	var got []tokenCount
	require.NoError(t, json.Unmarshal([]byte(stdout), &got))
	assert.Equal(t, []tokenCount{{Path: b, Tokens: 4, Characters: 13}}, got)
}

func TestSessionCommands(t *testing.T) {
	dir := t.TempDir()
	csv := writeThreadCSV(t, dir, "a.csv", constant(12, 100)...)
	logPath := filepath.Join(dir, "20260101T000000Z-session.jsonl")

	_, _, err := runCLI(t, "", append([]string{"analyze", "--dir", dir, "--session-log", logPath, csv}, fastFlags...)...)
	require.NoError(t, err)

	stdout, _, err := runCLI(t, "", "session", "list", "--in", dir)
	require.NoError(t, err)
	assert.Contains(t, stdout, "20260101T000000Z-session.jsonl")

	stdout, _, err = runCLI(t, "", "session", "view", logPath)
	require.NoError(t, err)
	assert.Contains(t, stdout, "SESSION TIMELINE")
	assert.Contains(t, stdout, "stable from turn 2")

	stdout, _, err = runCLI(t, "", "session", "list", "--in", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, stdout, "No session logs found.")
}

func TestWatchReload_RereadsThreadFiles(t *testing.T) {
	dir := t.TempDir()
	path := writeThreadCSV(t, dir, "Anchor_turns.csv", 10, 20)
	store := webapi.NewFileStore(map[string]string{"Anchor": path})

	th, err := store.GetThread("Anchor")
	require.NoError(t, err)
	require.Len(t, th.Turns, 4)

	writeThreadCSV(t, dir, "Anchor_turns.csv", 10, 20, 30)
	th, err = store.GetThread("Anchor")
	require.NoError(t, err)
	assert.Len(t, th.Turns, 4, "cached until reload")

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	done := make(chan struct{})
	go func() {
		watchReload(ctx, store, sig)
		close(done)
	}()

	sig <- syscall.SIGHUP
	require.Eventually(t, func() bool {
		th, err := store.GetThread("Anchor")
		return err == nil && len(th.Turns) == 6
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watchReload did not stop after cancel")
	}
}
