// Package plot renders a stability analysis as a PNG chart.
package plot

import (
	"errors"
	"fmt"
	"io"
	"math"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/dynlab/dynlab/internal/stability"
	"github.com/dynlab/dynlab/internal/turns"
)

// ErrTooFewTurns is returned when the series cannot form a line.
var ErrTooFewTurns = errors.New("at least two turns are required to plot")

const (
	DefaultWidth  = 1200
	DefaultHeight = 600
)

// Options controls chart rendering.
type Options struct {
	Title    string
	ShowBand bool
	Width    int
	Height   int
	// Turns are the thread's turns of every speaker, drawn as one point
	// series per speaker. When empty the analyzed series is drawn instead.
	Turns []turns.Turn
}

var speakerColors = []drawing.Color{
	drawing.ColorFromHex("ff7f0e"),
	drawing.ColorFromHex("7f7f7f"),
	drawing.ColorFromHex("9467bd"),
	drawing.ColorFromHex("8c564b"),
	drawing.ColorFromHex("e377c2"),
	drawing.ColorFromHex("17becf"),
}

// SpeakerSeriesName is the legend label of a speaker's points.
func SpeakerSeriesName(speaker string) string {
	if speaker == "" {
		speaker = "unknown"
	}
	return "Tokens: " + speaker
}

// speakerSeries splits ts into one point series per speaker, in order of
// first appearance.
func speakerSeries(ts []turns.Turn) []chart.Series {
	var out []chart.Series
	for i, sp := range turns.Speakers(ts) {
		var xs, ys []float64
		for _, t := range ts {
			if t.Speaker == sp {
				xs = append(xs, float64(t.Turn))
				ys = append(ys, t.TokensEst)
			}
		}
		out = append(out, chart.ContinuousSeries{
			Name:    SpeakerSeriesName(sp),
			XValues: xs,
			YValues: ys,
			Style:   pointStyle(speakerColors[i%len(speakerColors)]),
		})
	}
	return out
}

// pointStyle renders points only, no connecting line.
func pointStyle(col drawing.Color) chart.Style {
	return chart.Style{
		StrokeWidth: chart.Disabled,
		DotWidth:    3,
		DotColor:    col,
	}
}

func lineStyle(col drawing.Color, width float64, dashed bool) chart.Style {
	st := chart.Style{StrokeColor: col, StrokeWidth: width}
	if dashed {
		st.StrokeDashArray = []float64{5, 5}
	}
	return st
}

// Build assembles the chart: raw values as points (per speaker when
// opts.Turns is set), the rolling mean, the optional ± k·σ band and a
// vertical marker at the stability onset. Statistics always come from a.
func Build(a *stability.Analysis, opts Options) (*chart.Chart, error) {
	rows := a.Rows()
	if len(rows) < 2 {
		return nil, ErrTooFewTurns
	}

	xs := make([]float64, len(rows))
	values := make([]float64, len(rows))
	means := make([]float64, len(rows))
	uppers := make([]float64, len(rows))
	lowers := make([]float64, len(rows))
	yMin, yMax := math.Inf(1), math.Inf(-1)
	for i, r := range rows {
		xs[i] = float64(r.Turn)
		values[i], means[i], uppers[i], lowers[i] = r.Value, r.Mean, r.Upper, r.Lower
		yMin = min(yMin, r.Value, r.Mean)
		yMax = max(yMax, r.Value, r.Mean)
		if opts.ShowBand {
			yMin = min(yMin, r.Lower)
			yMax = max(yMax, r.Upper)
		}
	}

	xMin, xMax := xs[0], xs[len(xs)-1]

	var series []chart.Series
	if len(opts.Turns) > 0 {
		for _, t := range opts.Turns {
			xMin, xMax = min(xMin, float64(t.Turn)), max(xMax, float64(t.Turn))
			yMin, yMax = min(yMin, t.TokensEst), max(yMax, t.TokensEst)
		}
		series = speakerSeries(opts.Turns)
	} else {
		series = []chart.Series{
			chart.ContinuousSeries{Name: "Tokens", XValues: xs, YValues: values, Style: pointStyle(chart.ColorAlternateGray)},
		}
	}
	series = append(series,
		chart.ContinuousSeries{Name: fmt.Sprintf("Rolling mean (w=%d)", a.Params.Window), XValues: xs, YValues: means, Style: lineStyle(chart.ColorBlue, 2, false)},
	)
	if opts.ShowBand {
		k := a.Params.BandK
		series = append(series,
			chart.ContinuousSeries{Name: fmt.Sprintf("Mean + %gσ", k), XValues: xs, YValues: uppers, Style: lineStyle(chart.ColorGreen, 1, true)},
			chart.ContinuousSeries{Name: fmt.Sprintf("Mean - %gσ", k), XValues: xs, YValues: lowers, Style: lineStyle(chart.ColorGreen, 1, true)},
		)
	}

	// A flat series would give the axis a zero-width range, which go-chart
	// refuses to render.
	if yMax-yMin < 1 {
		yMax = yMin + 1
	}
	if xMax <= xMin {
		xMax = xMin + 1
	}

	if a.Result.Found {
		x := float64(a.Result.Turn)
		series = append(series, chart.ContinuousSeries{
			Name:    fmt.Sprintf("Stability onset (turn %d)", a.Result.Turn),
			XValues: []float64{x, x},
			YValues: []float64{yMin, yMax},
			Style:   lineStyle(chart.ColorRed, 2, true),
		})
	}

	width, height := opts.Width, opts.Height
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}

	ch := &chart.Chart{
		Title:      opts.Title,
		Width:      width,
		Height:     height,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 12, Bottom: 16}},
		XAxis:      chart.XAxis{Name: "Turn", Range: &chart.ContinuousRange{Min: xMin, Max: xMax}},
		YAxis:      chart.YAxis{Name: "Tokens (est.)", Range: &chart.ContinuousRange{Min: yMin, Max: yMax}},
		Series:     series,
	}
	ch.Elements = []chart.Renderable{chart.Legend(ch)}
	return ch, nil
}

// Render writes the PNG chart of a to w.
func Render(w io.Writer, a *stability.Analysis, opts Options) error {
	ch, err := Build(a, opts)
	if err != nil {
		return err
	}
	if err := ch.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("rendering chart: %w", err)
	}
	return nil
}
