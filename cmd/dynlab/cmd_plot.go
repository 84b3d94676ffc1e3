package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/dynlab/dynlab/internal/plot"
	"github.com/dynlab/dynlab/internal/wizard"
)

type plotOptions struct {
	params analysisFlags
	thread string
	output string
	band   bool
	width  int
	height int

	interactive bool
}

func newPlotCommand() *cobra.Command {
	var opts plotOptions

	cmd := &cobra.Command{
		Use:   "plot [csv]",
		Short: "Render a thread's rolling statistics as a PNG chart",
		Long: `Render raw token estimates, the rolling mean, the ± k·σ band and the
stability onset of a single thread as a PNG image.

The thread is a CSV path or, with --thread, a name configured in .dynlab.yaml.
Use -o - to write the PNG to stdout; this is refused when stdout is a terminal.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlot(cmd, args, &opts)
		},
	}

	opts.params.register(cmd)
	cmd.Flags().StringVar(&opts.thread, "thread", "", "Configured thread name to plot")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output PNG path, or - for stdout (default <thread>.png)")
	cmd.Flags().BoolVar(&opts.band, "band", true, "Draw the ± k·σ band (overrides show_band)")
	cmd.Flags().IntVar(&opts.width, "width", plot.DefaultWidth, "Image width in pixels")
	cmd.Flags().IntVar(&opts.height, "height", plot.DefaultHeight, "Image height in pixels")
	cmd.Flags().BoolVarP(&opts.interactive, "interactive", "i", false, "Choose parameters and the band with an interactive form")

	return cmd
}

func runPlot(cmd *cobra.Command, args []string, opts *plotOptions) error {
	if (len(args) == 1) == (opts.thread != "") {
		return errors.New("specify exactly one of a CSV path or --thread")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	params, scope, err := opts.params.resolve(cmd, cfg)
	if err != nil {
		return err
	}

	var names []string
	if opts.thread != "" {
		names = []string{opts.thread}
	}
	inputs, err := resolveThreads(cfg, args, names)
	if err != nil {
		return err
	}
	in := inputs[0]

	showBand := cfg.ShowBand()
	if cmd.Flags().Changed("band") {
		showBand = opts.band
	}
	if opts.interactive {
		sel, err := wizard.RunParamsWizard(cmd.InOrStdin(), cmd.ErrOrStderr(),
			wizard.Selection{Params: params, Scope: scope, ShowBand: showBand}, true)
		if err != nil {
			return err
		}
		params, scope, showBand = sel.Params, sel.Scope, sel.ShowBand
	}

	all, a, err := loadThread(in, params, scope)
	if err != nil {
		return err
	}
	if len(a.Series) < 2 {
		return fmt.Errorf("%s: %w", in.name, plot.ErrTooFewTurns)
	}

	popts := plot.Options{
		Title:    fmt.Sprintf("%s (%s)", in.name, scope.Label()),
		ShowBand: showBand,
		Width:    opts.width,
		Height:   opts.height,
		Turns:    all,
	}

	if opts.output == "-" {
		out := cmd.OutOrStdout()
		if isTerminal(out) {
			return errors.New("refusing to write PNG data to a terminal; use -o <file>")
		}
		return plot.Render(out, a, popts)
	}

	path := opts.output
	if path == "" {
		path = in.name + ".png"
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := plot.Render(f, a, popts); err != nil {
		f.Close() //nolint:errcheck
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	cmd.PrintErrf("wrote %s\n", path)
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
