package turns

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
)

// Column names of the thread CSV layout.
const (
	ColumnTurn      = "turn"
	ColumnSpeaker   = "speaker"
	ColumnTokensEst = "tokens_est"
)

// ErrMissingColumn is returned when a required CSV column is absent.
var ErrMissingColumn = errors.New("missing column")

// LoadCSV reads a thread CSV file.
func LoadCSV(path string) ([]Turn, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	turns, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return turns, nil
}

// ReadCSV parses a thread CSV with a header row. The turn and tokens_est
// columns are required; speaker is optional and extra columns are ignored.
// Token estimates that are empty, non-numeric, non-finite or negative are
// coerced to 0. Rows are returned sorted by turn, ties kept in file order.
func ReadCSV(r io.Reader) ([]Turn, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty input, expected a header", ErrMissingColumn)
		}
		return nil, fmt.Errorf("reading header: %w", err)
	}

	turnIdx, speakerIdx, tokensIdx := -1, -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))) {
		case ColumnTurn:
			turnIdx = i
		case ColumnSpeaker:
			speakerIdx = i
		case ColumnTokensEst:
			tokensIdx = i
		}
	}
	if turnIdx == -1 {
		return nil, fmt.Errorf("%w: %q", ErrMissingColumn, ColumnTurn)
	}
	if tokensIdx == -1 {
		return nil, fmt.Errorf("%w: %q", ErrMissingColumn, ColumnTokensEst)
	}

	var out []Turn
	line := 1
	coerced := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		turn, err := parseTurn(field(record, turnIdx))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		tokens, ok := parseTokens(field(record, tokensIdx))
		if !ok {
			coerced++
		}
		out = append(out, Turn{
			Turn:      turn,
			Speaker:   strings.TrimSpace(field(record, speakerIdx)),
			TokensEst: tokens,
		})
	}

	if coerced > 0 {
		slog.Debug("coerced invalid token estimates to 0", "rows", coerced)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Turn < out[j].Turn })
	return out, nil
}

// WriteCSV writes turns in the canonical thread layout.
func WriteCSV(w io.Writer, turns []Turn) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{ColumnTurn, ColumnSpeaker, ColumnTokensEst}); err != nil {
		return err
	}
	for _, t := range turns {
		rec := []string{
			strconv.Itoa(t.Turn),
			t.Speaker,
			strconv.FormatFloat(t.TokensEst, 'f', -1, 64),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func field(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return record[idx]
}

func parseTurn(s string) (int, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	// Exports occasionally write integral floats ("12.0").
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid turn %q", s)
	}
	return int(f), nil
}

// parseTokens returns the sanitized value and whether the raw field was
// already valid.
func parseTokens(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, false
	}
	return v, true
}
