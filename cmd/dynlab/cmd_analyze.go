package main

import (
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dynlab/dynlab/internal/report"
	"github.com/dynlab/dynlab/internal/session"
	"github.com/dynlab/dynlab/internal/stability"
	"github.com/dynlab/dynlab/internal/turns"
	"github.com/dynlab/dynlab/internal/wizard"
)

type analyzeOptions struct {
	params       analysisFlags
	threads      []string
	format       string
	rows         bool
	interactive  bool
	sessionLog   string
	failUnstable bool
}

func newAnalyzeCommand() *cobra.Command {
	var opts analyzeOptions

	cmd := &cobra.Command{
		Use:   "analyze [csv...]",
		Short: "Detect the stability onset of one or more threads",
		Long: `Analyze thread CSV files (columns turn, speaker, tokens_est).

Threads may be given as CSV paths, as names configured in .dynlab.yaml
(--thread), or omitted to analyze every configured thread. Parameters come
from .dynlab.yaml and are overridden by any flag set on the command line.

Threads are analyzed concurrently; output keeps the input order.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, args, &opts)
		},
	}

	opts.params.register(cmd)
	cmd.Flags().StringArrayVar(&opts.threads, "thread", nil, "Configured thread name to analyze (repeatable)")
	cmd.Flags().StringVar(&opts.format, "format", "table", "Output format: table | json")
	cmd.Flags().BoolVar(&opts.rows, "rows", false, "Include per-turn rows in table output")
	cmd.Flags().BoolVarP(&opts.interactive, "interactive", "i", false, "Choose parameters with an interactive form")
	cmd.Flags().StringVar(&opts.sessionLog, "session-log", "", "Append NDJSON analysis events to this file")
	cmd.Flags().BoolVar(&opts.failUnstable, "fail-unstable", false, "Exit with code 1 if any thread has no stable regime")

	return cmd
}

func runAnalyze(cmd *cobra.Command, args []string, opts *analyzeOptions) error {
	format, err := report.ParseFormat(opts.format)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	params, scope, err := opts.params.resolve(cmd, cfg)
	if err != nil {
		return err
	}
	inputs, err := resolveThreads(cfg, args, opts.threads)
	if err != nil {
		return err
	}

	if opts.interactive {
		sel, err := wizard.RunParamsWizard(cmd.InOrStdin(), cmd.ErrOrStderr(), wizard.Selection{Params: params, Scope: scope}, false)
		if err != nil {
			return err
		}
		params, scope = sel.Params, sel.Scope
	}

	var logger session.Logger = session.NopLogger{}
	if opts.sessionLog != "" {
		l, err := session.NewJSONLogger(opts.sessionLog)
		if err != nil {
			return err
		}
		logger = l
	}
	defer logger.Close() //nolint:errcheck

	start := time.Now()
	names := make([]string, len(inputs))
	for i, in := range inputs {
		names[i] = in.name
	}
	logEvent(logger, session.EventRunStart, session.RunStartData(names))

	results := make([]report.Thread, len(inputs))
	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, in := range inputs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			a, err := analyzeThread(logger, in, params, scope)
			if err != nil {
				return err
			}
			results[i] = report.Thread{Name: in.name, Scope: scope, Analysis: a}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	stable := 0
	for _, r := range results {
		if r.Analysis.Result.Found {
			stable++
		}
	}
	logEvent(logger, session.EventRunComplete, session.RunCompleteData(len(results), stable, time.Since(start).Milliseconds()))

	if err := report.Write(cmd.OutOrStdout(), format, results, report.Options{Rows: opts.rows}); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}

	if opts.failUnstable && stable < len(results) {
		return &UnstableError{
			Message: fmt.Sprintf("%d of %d thread(s) show no stable regime", len(results)-stable, len(results)),
		}
	}
	return nil
}

func analyzeThread(logger session.Logger, in threadInput, p stability.Params, scope turns.Scope) (*stability.Analysis, error) {
	started := time.Now()
	rows, err := turns.LoadCSV(in.path)
	if err != nil {
		logEvent(logger, session.EventError, session.ErrorData(err.Error(), map[string]any{"thread": in.name}))
		return nil, err
	}
	scoped := turns.Filter(rows, scope)
	logEvent(logger, session.EventAnalysisStart, session.AnalysisStartData(in.name, scope, p, len(scoped)))

	a, err := stability.Analyze(turns.ToSeries(scoped), p)
	if err != nil {
		logEvent(logger, session.EventError, session.ErrorData(err.Error(), map[string]any{"thread": in.name}))
		return nil, fmt.Errorf("analyzing %s: %w", in.name, err)
	}
	if len(scoped) <= p.PersistLength {
		slog.Debug("thread shorter than persistence, no onset possible",
			"thread", in.name, "turns", len(scoped), "persist", p.PersistLength)
	}

	logEvent(logger, session.EventAnalysisComplete, session.AnalysisCompleteData(in.name, a.Result, time.Since(started).Milliseconds()))
	return a, nil
}

func logEvent(logger session.Logger, t session.EventType, data map[string]any) {
	if err := logger.Log(session.NewEvent(t, data)); err != nil {
		slog.Warn("writing session event failed", "type", t, "error", err)
	}
}
