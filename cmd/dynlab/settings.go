package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dynlab/dynlab/internal/projectconfig"
	"github.com/dynlab/dynlab/internal/stability"
	"github.com/dynlab/dynlab/internal/turns"
)

// analysisFlags are the parameter flags shared by analyze, plot and serve.
type analysisFlags struct {
	window  int
	sigma   float64
	persist int
	k       float64
	scope   string
}

func (f *analysisFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.window, "window", projectconfig.DefaultWindow, "Rolling window size in turns")
	cmd.Flags().Float64Var(&f.sigma, "sigma", projectconfig.DefaultSigmaThreshold, "Largest rolling σ considered stable")
	cmd.Flags().IntVar(&f.persist, "persist", projectconfig.DefaultPersistLength, "Consecutive stable turns required")
	cmd.Flags().Float64Var(&f.k, "k", projectconfig.DefaultBandK, "Band width as a multiple of σ")
	cmd.Flags().StringVar(&f.scope, "scope", string(projectconfig.DefaultScope), "Turns to analyze: gpt | all")
}

// resolve starts from the project configuration and applies only the flags
// the user set explicitly.
func (f *analysisFlags) resolve(cmd *cobra.Command, cfg *projectconfig.ProjectConfig) (stability.Params, turns.Scope, error) {
	p := cfg.Params()
	scope := cfg.Analysis.Scope
	flags := cmd.Flags()

	if flags.Changed("window") {
		p.Window = f.window
	}
	if flags.Changed("sigma") {
		p.SigmaThreshold = f.sigma
	}
	if flags.Changed("persist") {
		p.PersistLength = f.persist
	}
	if flags.Changed("k") {
		p.BandK = f.k
	}
	if flags.Changed("scope") {
		s, err := turns.ParseScope(f.scope)
		if err != nil {
			return stability.Params{}, "", err
		}
		scope = s
	}
	if err := p.Validate(); err != nil {
		return stability.Params{}, "", err
	}
	return p, scope, nil
}

func loadConfig(cmd *cobra.Command) (*projectconfig.ProjectConfig, error) {
	dir, err := cmd.Flags().GetString("dir")
	if err != nil {
		return nil, err
	}
	cfg, err := projectconfig.Load(dir)
	if err != nil {
		return nil, err
	}
	if cfg.Path != "" {
		slog.Debug("loaded project config", "path", cfg.Path)
	}
	return cfg, nil
}

// threadInput is one thread to load: a display name and its CSV path.
type threadInput struct {
	name string
	path string
}

// threadNameFromPath derives a display name from a CSV path, e.g.
// "data/BigFlame_turns.csv" becomes "BigFlame".
func threadNameFromPath(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if trimmed := strings.TrimSuffix(base, "_turns"); trimmed != "" {
		base = trimmed
	}
	return base
}

// resolveThreads combines positional CSV paths with configured thread names.
// With neither, every configured thread is used.
func resolveThreads(cfg *projectconfig.ProjectConfig, paths, names []string) ([]threadInput, error) {
	var out []threadInput
	for _, p := range paths {
		out = append(out, threadInput{name: threadNameFromPath(p), path: p})
	}
	for _, n := range names {
		p, ok := cfg.ThreadPath(n)
		if !ok {
			return nil, fmt.Errorf("thread %q is not defined in %s", n, projectconfig.FileName)
		}
		out = append(out, threadInput{name: n, path: p})
	}
	if len(paths) == 0 && len(names) == 0 {
		for _, n := range cfg.ThreadNames() {
			p, _ := cfg.ThreadPath(n)
			out = append(out, threadInput{name: n, path: p})
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no threads to analyze: pass CSV files or configure threads in %s", projectconfig.FileName)
	}
	return out, nil
}

// loadThread reads a thread CSV and returns all of its turns together with
// the analysis of the turns in scope.
func loadThread(in threadInput, p stability.Params, scope turns.Scope) ([]turns.Turn, *stability.Analysis, error) {
	rows, err := turns.LoadCSV(in.path)
	if err != nil {
		return nil, nil, err
	}
	a, err := stability.Analyze(turns.ToSeries(turns.Filter(rows, scope)), p)
	if err != nil {
		return nil, nil, fmt.Errorf("analyzing %s: %w", in.name, err)
	}
	return rows, a, nil
}
