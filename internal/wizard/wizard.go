// Package wizard collects analysis parameters interactively.
package wizard

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/dynlab/dynlab/internal/stability"
	"github.com/dynlab/dynlab/internal/turns"
	"golang.org/x/term"
)

// Range bounds one numeric parameter. Step is the granularity values must
// land on, measured from Min; zero disables the check.
type Range struct {
	Min, Max, Step float64
}

// Parameter ranges offered by the wizard.
var (
	WindowRange  = Range{Min: 5, Max: 150, Step: 1}
	BandKRange   = Range{Min: 0.5, Max: 3.0, Step: 0.5}
	SigmaRange   = Range{Min: 10, Max: 300, Step: 5}
	PersistRange = Range{Min: 10, Max: 200, Step: 1}
)

// Selection is the outcome of the wizard.
type Selection struct {
	Params   stability.Params
	Scope    turns.Scope
	ShowBand bool
}

// formValues holds the raw text of the form fields.
type formValues struct {
	window, bandK, sigma, persist, scope string
	showBand                             bool
}

// displayFields are the chart and scope questions of the first page. The
// band toggle is only asked when the result is drawn.
func displayFields(v *formValues, withBand bool) []huh.Field {
	fields := []huh.Field{
		huh.NewInput().
			Title("Rolling window (turns)").
			Description(WindowRange.describe()).
			Value(&v.window).
			Validate(WindowRange.validateInt),
		huh.NewInput().
			Title("Band width (σ multiplier)").
			Description(BandKRange.describe()).
			Value(&v.bandK).
			Validate(BandKRange.validate),
	}
	if withBand {
		fields = append(fields, huh.NewConfirm().
			Title("Show mean ± kσ band").
			Value(&v.showBand))
	}
	return append(fields, huh.NewSelect[string]().
		Title("Compute stability on").
		Options(
			huh.NewOption(turns.ScopeGPT.Label(), string(turns.ScopeGPT)),
			huh.NewOption(turns.ScopeAll.Label(), string(turns.ScopeAll)),
		).
		Value(&v.scope))
}

// RunParamsWizard runs an interactive huh form pre-populated with defaults
// and returns the chosen parameters. withBand adds the band toggle; without
// it the selection keeps defaults.ShowBand.
func RunParamsWizard(in io.Reader, out io.Writer, defaults Selection, withBand bool) (*Selection, error) {
	v := &formValues{
		window:   strconv.Itoa(defaults.Params.Window),
		bandK:    formatFloat(defaults.Params.BandK),
		sigma:    formatFloat(defaults.Params.SigmaThreshold),
		persist:  strconv.Itoa(defaults.Params.PersistLength),
		scope:    string(defaults.Scope),
		showBand: defaults.ShowBand,
	}
	if v.scope == "" {
		v.scope = string(turns.ScopeGPT)
	}

	form := huh.NewForm(
		huh.NewGroup(displayFields(v, withBand)...),
		huh.NewGroup(
			huh.NewInput().
				Title("Stability threshold (σ)").
				Description(SigmaRange.describe()).
				Value(&v.sigma).
				Validate(SigmaRange.validate),
			huh.NewInput().
				Title("Required persistence (turns)").
				Description(PersistRange.describe()).
				Value(&v.persist).
				Validate(PersistRange.validateInt),
		),
	).
		WithInput(in).
		WithOutput(out)

	// Use accessible mode for non-TTY input (e.g., tests, piped input).
	if f, ok := in.(*os.File); !ok || !term.IsTerminal(int(f.Fd())) {
		form = form.WithAccessible(true)
	}

	if err := form.Run(); err != nil {
		return nil, fmt.Errorf("wizard failed: %w", err)
	}

	return buildSelection(v.window, v.bandK, v.sigma, v.persist, v.scope, v.showBand)
}

func buildSelection(window, bandK, sigma, persist, scope string, showBand bool) (*Selection, error) {
	w, err := WindowRange.parseInt(window)
	if err != nil {
		return nil, fmt.Errorf("window: %w", err)
	}
	k, err := BandKRange.parse(bandK)
	if err != nil {
		return nil, fmt.Errorf("band width: %w", err)
	}
	s, err := SigmaRange.parse(sigma)
	if err != nil {
		return nil, fmt.Errorf("threshold: %w", err)
	}
	p, err := PersistRange.parseInt(persist)
	if err != nil {
		return nil, fmt.Errorf("persistence: %w", err)
	}
	sc, err := turns.ParseScope(scope)
	if err != nil {
		return nil, err
	}
	return &Selection{
		Params:   stability.Params{Window: w, SigmaThreshold: s, PersistLength: p, BandK: k},
		Scope:    sc,
		ShowBand: showBand,
	}, nil
}

func (r Range) describe() string {
	if r.Step > 0 {
		return fmt.Sprintf("%s to %s in steps of %s", formatFloat(r.Min), formatFloat(r.Max), formatFloat(r.Step))
	}
	return fmt.Sprintf("%s to %s", formatFloat(r.Min), formatFloat(r.Max))
}

func (r Range) parse(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", s)
	}
	if v < r.Min || v > r.Max {
		return 0, fmt.Errorf("%s is outside %s", formatFloat(v), r.describe())
	}
	if r.Step > 0 {
		n := (v - r.Min) / r.Step
		if diff := n - float64(int(n+0.5)); diff > 1e-9 || diff < -1e-9 {
			return 0, fmt.Errorf("%s is not a multiple of %s", formatFloat(v), formatFloat(r.Step))
		}
	}
	return v, nil
}

func (r Range) parseInt(s string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%q is not a whole number", s)
	}
	if _, err := r.parse(strconv.Itoa(v)); err != nil {
		return 0, err
	}
	return v, nil
}

func (r Range) validate(s string) error {
	_, err := r.parse(s)
	return err
}

func (r Range) validateInt(s string) error {
	_, err := r.parseInt(s)
	return err
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
