package turns

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dynlab/dynlab/internal/stability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCSV = `turn,speaker,tokens_est,text_len
3,gpt,120,480
1,user,15,60
2,gpt,abc,0
4,user,,10
5,GPT,-7,0
2,user,9,36
`

func TestReadCSV(t *testing.T) {
	got, err := ReadCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)

	want := []Turn{
		{Turn: 1, Speaker: "user", TokensEst: 15},
		{Turn: 2, Speaker: "gpt", TokensEst: 0},
		{Turn: 2, Speaker: "user", TokensEst: 9},
		{Turn: 3, Speaker: "gpt", TokensEst: 120},
		{Turn: 4, Speaker: "user", TokensEst: 0},
		{Turn: 5, Speaker: "GPT", TokensEst: 0},
	}
	assert.Equal(t, want, got)
}

func TestReadCSV_HeaderVariants(t *testing.T) {
	in := "\ufeff Turn , Tokens_Est\n1, 4.5\n2.0,NaN\n"
	got, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []Turn{{Turn: 1, TokensEst: 4.5}, {Turn: 2, TokensEst: 0}}, got)
}

func TestReadCSV_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{"empty", "", "missing column"},
		{"no_turn_column", "speaker,tokens_est\ngpt,1\n", `missing column: "turn"`},
		{"no_tokens_column", "turn,speaker\n1,gpt\n", `missing column: "tokens_est"`},
		{"bad_turn", "turn,tokens_est\n1,2\nx,3\n", `line 3: invalid turn "x"`},
		{"fractional_turn", "turn,tokens_est\n1.5,2\n", `invalid turn "1.5"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tt.input))
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestReadCSV_MissingColumnSentinel(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("turn\n1\n"))
	require.ErrorIs(t, err, ErrMissingColumn)
}

func TestLoadCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Anchor_turns.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0o644))

	got, err := LoadCSV(path)
	require.NoError(t, err)
	assert.Len(t, got, 6)

	_, err = LoadCSV(filepath.Join(t.TempDir(), "missing.csv"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestWriteCSV_RoundTrip(t *testing.T) {
	in := []Turn{
		{Turn: 1, Speaker: "user", TokensEst: 10},
		{Turn: 2, Speaker: "gpt", TokensEst: 0.25},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, in))
	assert.Equal(t, "turn,speaker,tokens_est\n1,user,10\n2,gpt,0.25\n", buf.String())

	out, err := ReadCSV(&buf)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestFilter(t *testing.T) {
	all, err := ReadCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)

	gpt := Filter(all, ScopeGPT)
	require.Len(t, gpt, 3)
	for _, turn := range gpt {
		assert.True(t, strings.EqualFold(turn.Speaker, "gpt"))
	}
	assert.Equal(t, []int{2, 3, 5}, []int{gpt[0].Turn, gpt[1].Turn, gpt[2].Turn})

	everything := Filter(all, ScopeAll)
	assert.Equal(t, all, everything)
	everything[0].TokensEst = 999
	assert.NotEqual(t, 999.0, all[0].TokensEst, "Filter must not alias its input")
}

func TestParseScope(t *testing.T) {
	tests := []struct {
		input   string
		want    Scope
		wantErr bool
	}{
		{"gpt", ScopeGPT, false},
		{" GPT ", ScopeGPT, false},
		{"all", ScopeAll, false},
		{"ALL", ScopeAll, false},
		{"user", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseScope(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestScopeLabel(t *testing.T) {
	assert.Equal(t, "GPT turns only", ScopeGPT.Label())
	assert.Equal(t, "All turns", ScopeAll.Label())
}

func TestToSeries(t *testing.T) {
	s := ToSeries([]Turn{{Turn: 4, Speaker: "gpt", TokensEst: 12}, {Turn: 9, Speaker: "gpt", TokensEst: 3}})
	assert.Equal(t, stability.Series{{Turn: 4, Value: 12}, {Turn: 9, Value: 3}}, s)
	assert.Empty(t, ToSeries(nil))
}

func TestSpeakers(t *testing.T) {
	all, err := ReadCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	assert.Equal(t, []string{"user", "gpt", "GPT"}, Speakers(all))
}
