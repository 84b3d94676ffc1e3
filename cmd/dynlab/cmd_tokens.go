package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/dynlab/dynlab/internal/tokens"
)

func newTokensCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "Token estimation utilities",
	}
	cmd.AddCommand(newTokensCountCommand())
	return cmd
}

type tokenCount struct {
	Path       string `json:"path"`
	Tokens     int    `json:"tokens"`
	Characters int    `json:"characters"`
}

func newTokensCountCommand() *cobra.Command {
	var (
		format    string
		tokenizer string
	)

	cmd := &cobra.Command{
		Use:   "count <file>...",
		Short: "Estimate the token count of text files",
		Long: `Estimate token counts with the same estimator used by import, so a
transcript message can be checked against its tokens_est value.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			counter, err := tokens.NewCounter(tokens.Tokenizer(tokenizer))
			if err != nil {
				return err
			}

			var results []tokenCount
			for _, p := range args {
				data, err := os.ReadFile(p)
				if err != nil {
					return fmt.Errorf("reading %s: %w", p, err)
				}
				text := string(data)
				results = append(results, tokenCount{Path: p, Tokens: counter.Count(text), Characters: len([]rune(text))})
			}

			w := cmd.OutOrStdout()
			if format == "json" {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}

			width := runewidth.StringWidth("File")
			for _, r := range results {
				width = max(width, runewidth.StringWidth(r.Path))
			}
			fmt.Fprintf(w, "%s  %8s  %10s\n", runewidth.FillRight("File", width), "Tokens", "Characters") //nolint:errcheck
			total := 0
			for _, r := range results {
				total += r.Tokens
				fmt.Fprintf(w, "%s  %8d  %10d\n", runewidth.FillRight(r.Path, width), r.Tokens, r.Characters) //nolint:errcheck
			}
			if len(results) > 1 {
				fmt.Fprintf(w, "%s  %8d\n", runewidth.FillRight("Total", width), total) //nolint:errcheck
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "table", "Output format: table | json")
	cmd.Flags().StringVar(&tokenizer, "tokenizer", string(tokens.TokenizerEstimate), "Token estimator: estimate | words")

	return cmd
}
