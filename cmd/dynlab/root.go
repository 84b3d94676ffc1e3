package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dynlab/dynlab/internal/webapi"
)

var version = "dev"

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dynlab",
		Short: "dynlab - stability analysis for conversation threads",
		Long: `dynlab measures how the per-turn token output of a conversation settles.

It computes a rolling mean and standard deviation over each thread and
reports the first turn from which the deviation stays under a threshold
for a required number of turns.`,
		Version:      version,
		SilenceUsage: true,
	}

	debugLogging := cmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	cmd.PersistentFlags().String("dir", ".", "Directory to search (upwards) for .dynlab.yaml")
	cmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if *debugLogging {
			slog.SetLogLoggerLevel(slog.LevelDebug)
		}
	}

	webapi.Version = version

	cmd.AddCommand(newAnalyzeCommand())
	cmd.AddCommand(newPlotCommand())
	cmd.AddCommand(newImportCommand())
	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newSessionCommand())
	cmd.AddCommand(newTokensCommand())

	return cmd
}

func execute() error {
	rootCmd := newRootCommand()
	return rootCmd.Execute()
}
