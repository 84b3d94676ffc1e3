package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/dynlab/dynlab/internal/spinner"
	"github.com/dynlab/dynlab/internal/tokens"
	"github.com/dynlab/dynlab/internal/transcript"
)

func newImportCommand() *cobra.Command {
	var (
		outDir    string
		tokenizer string
	)

	cmd := &cobra.Command{
		Use:   "import <transcript.json>...",
		Short: "Convert conversation transcripts into thread CSV files",
		Long: `Convert JSON transcripts ({"name": ..., "transcript": [{"role", "content"}]})
into thread CSV files. Turns are numbered from 1, assistant messages are
attributed to the gpt speaker, and tokens_est is estimated from the content.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			counter, err := tokens.NewCounter(tokens.Tokenizer(tokenizer))
			if err != nil {
				return err
			}
			var spin *spinner.Spinner
			if f, ok := cmd.ErrOrStderr().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
				spin = spinner.Start(f, "Importing transcripts")
			}

			// Results are printed once the spinner has cleared its line.
			var done []string
			flush := func() {
				if spin != nil {
					spin.Stop()
				}
				for _, line := range done {
					fmt.Fprintln(cmd.OutOrStdout(), line) //nolint:errcheck
				}
			}

			for i, path := range args {
				if spin != nil {
					spin.Update(fmt.Sprintf("Importing %d/%d: %s", i+1, len(args), path))
				}
				t, err := transcript.Load(path)
				if err != nil {
					flush()
					return err
				}
				ts := transcript.ToTurns(t, counter)
				out, err := transcript.Write(outDir, t.DisplayName(), ts)
				if err != nil {
					flush()
					return err
				}
				done = append(done, fmt.Sprintf("%s: %d turns -> %s", t.DisplayName(), len(ts), out))
			}
			flush()
			return nil
		},
	}

	cmd.Flags().StringVarP(&outDir, "output-dir", "o", ".", "Directory for the generated CSV files")
	cmd.Flags().StringVar(&tokenizer, "tokenizer", string(tokens.TokenizerEstimate), "Token estimator: estimate | words")

	return cmd
}
