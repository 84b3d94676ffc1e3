// Package report renders stability analyses as terminal tables or JSON.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dynlab/dynlab/internal/stability"
	"github.com/dynlab/dynlab/internal/statistics"
	"github.com/dynlab/dynlab/internal/turns"
	"github.com/mattn/go-runewidth"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Format selects the output encoding.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
)

// ParseFormat accepts "table" or "json".
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatTable, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown format %q (expected %q or %q)", s, FormatTable, FormatJSON)
	}
}

// Thread is the analysis of one named thread.
type Thread struct {
	Name     string
	Scope    turns.Scope
	Analysis *stability.Analysis
}

// Options controls rendering.
type Options struct {
	// Rows includes the per-turn rows in table output. JSON output always
	// carries them.
	Rows bool
	// GeneratedAt stamps JSON output. Zero means time.Now.
	GeneratedAt time.Time
}

var printer = message.NewPrinter(language.English)

// StabilityLine describes the scan result in one sentence.
func StabilityLine(p stability.Params, r stability.Result) string {
	if !r.Found {
		return "No stable regime detected under current parameters."
	}
	return printer.Sprintf("Stability detected at turn %d (σ ≤ %s for %d turns)",
		r.Turn, formatNumber(p.SigmaThreshold), p.PersistLength)
}

// Write renders threads in the requested format.
func Write(w io.Writer, format Format, threads []Thread, opts Options) error {
	switch format {
	case FormatJSON:
		return WriteJSON(w, threads, opts)
	case FormatTable, "":
		return WriteTable(w, threads, opts)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

// WriteTable writes a summary block per thread, optionally followed by the
// aligned rows.
func WriteTable(w io.Writer, threads []Thread, opts Options) error {
	var b strings.Builder
	for i, t := range threads {
		if i > 0 {
			b.WriteString("\n")
		}
		writeSummary(&b, t)
		if opts.Rows {
			b.WriteString("\n")
			writeRows(&b, t.Analysis.Rows())
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func writeSummary(b *strings.Builder, t Thread) {
	a := t.Analysis
	p := a.Params
	fmt.Fprintf(b, "=== %s ===\n", t.Name)
	fields := [][2]string{
		{"Scope", t.Scope.Label()},
		{"Turns", printer.Sprintf("%d", len(a.Series))},
		{"Window", printer.Sprintf("%d turns", p.Window)},
		{"Band", "mean ± " + formatNumber(p.BandK) + "σ"},
		{"Threshold", printer.Sprintf("σ ≤ %s for %d turns", formatNumber(p.SigmaThreshold), p.PersistLength)},
	}
	labelWidth := 0
	for _, f := range fields {
		labelWidth = max(labelWidth, runewidth.StringWidth(f[0])+1)
	}
	for _, f := range fields {
		fmt.Fprintf(b, "%s  %s\n", padRight(f[0]+":", labelWidth), f[1])
	}
	b.WriteString(StabilityLine(p, a.Result))
	b.WriteString("\n")
	if pl, ok := statistics.PlateauOf(a); ok {
		b.WriteString(PlateauLine(pl))
		b.WriteString("\n")
	}
}

// PlateauLine describes the token level of the stable regime.
func PlateauLine(pl statistics.Plateau) string {
	ci := pl.Level
	return printer.Sprintf("Plateau: %.1f tokens/turn over %d turns (%.0f%% CI %.1f–%.1f)",
		ci.Mean, pl.Turns, ci.ConfidenceLevel*100, ci.Lower, ci.Upper)
}

var rowHeader = []string{"Turn", "Tokens", "Mean", "σ", "Lower", "Upper"}

func writeRows(b *strings.Builder, rows []stability.Row) {
	cells := make([][]string, 0, len(rows)+1)
	cells = append(cells, rowHeader)
	for _, r := range rows {
		cells = append(cells, []string{
			printer.Sprintf("%d", r.Turn),
			printer.Sprintf("%.1f", r.Value),
			printer.Sprintf("%.1f", r.Mean),
			printer.Sprintf("%.1f", r.Std),
			printer.Sprintf("%.1f", r.Lower),
			printer.Sprintf("%.1f", r.Upper),
		})
	}

	widths := make([]int, len(rowHeader))
	for _, row := range cells {
		for i, c := range row {
			widths[i] = max(widths[i], runewidth.StringWidth(c))
		}
	}
	for _, row := range cells {
		parts := make([]string, len(row))
		for i, c := range row {
			parts[i] = padLeft(c, widths[i])
		}
		b.WriteString(strings.Join(parts, "  "))
		b.WriteString("\n")
	}
}

type jsonDocument struct {
	GeneratedAt time.Time    `json:"generatedAt"`
	Threads     []jsonThread `json:"threads"`
}

type jsonThread struct {
	Name   string           `json:"name"`
	Scope  turns.Scope      `json:"scope"`
	Params stability.Params `json:"params"`
	Turns  int              `json:"turns"`
	// Onset is null when no stable regime was found.
	Onset   *int                `json:"onset"`
	Plateau *statistics.Plateau `json:"plateau,omitempty"`
	Rows    []stability.Row     `json:"rows"`
}

// WriteJSON writes all threads as one indented JSON document.
func WriteJSON(w io.Writer, threads []Thread, opts Options) error {
	doc := jsonDocument{
		GeneratedAt: opts.GeneratedAt,
		Threads:     make([]jsonThread, 0, len(threads)),
	}
	if doc.GeneratedAt.IsZero() {
		doc.GeneratedAt = time.Now().UTC()
	}
	for _, t := range threads {
		a := t.Analysis
		jt := jsonThread{
			Name:   t.Name,
			Scope:  t.Scope,
			Params: a.Params,
			Turns:  len(a.Series),
			Rows:   a.Rows(),
		}
		if a.Result.Found {
			onset := a.Result.Turn
			jt.Onset = &onset
		}
		if pl, ok := statistics.PlateauOf(a); ok {
			jt.Plateau = &pl
		}
		doc.Threads = append(doc.Threads, jt)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// padRight pads s with spaces so its terminal display width reaches width.
func padRight(s string, width int) string {
	sw := runewidth.StringWidth(s)
	if sw >= width {
		return s
	}
	return s + strings.Repeat(" ", width-sw)
}

func padLeft(s string, width int) string {
	sw := runewidth.StringWidth(s)
	if sw >= width {
		return s
	}
	return strings.Repeat(" ", width-sw) + s
}
