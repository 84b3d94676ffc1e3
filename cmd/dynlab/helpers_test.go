package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// runCLI executes the root command with args and returns stdout, stderr and
// the error.
func runCLI(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

// writeThreadCSV writes gpt turns with the given token values, interleaved
// with user turns of 1 token.
func writeThreadCSV(t *testing.T, dir, name string, values ...float64) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("turn,speaker,tokens_est\n")
	turn := 1
	for _, v := range values {
		fmt.Fprintf(&b, "%d,user,1\n", turn)
		fmt.Fprintf(&b, "%d,gpt,%g\n", turn+1, v)
		turn += 2
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func alternating(n int, a, b float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		if i%2 == 0 {
			out[i] = a
		} else {
			out[i] = b
		}
	}
	return out
}
