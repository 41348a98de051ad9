package main

import (
	"fmt"
	"io"

	"github.com/Cortexa-LLC/mcp/src/doc2md/converter"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

func newBatchCmd(a *app) *cobra.Command {
	var (
		outputDir string
		recursive bool
		workers   int
		inline    bool
		quiet     bool
	)
	cmd := &cobra.Command{
		Use:   "batch <dir>",
		Short: "Convert every PDF, DOC and DOCX file in a directory",
		Long: `Batch converts all supported files in <dir>. With --recursive the
sub-directories are walked too and their layout is mirrored under the output
root. Without --output-dir the folders are written next to the sources.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, log, conv, err := a.setup(cmd)
			if err != nil {
				return err
			}
			defer conv.Close()

			var bar *progressbar.ProgressBar
			req := converter.BatchRequest{
				InputDir:     args[0],
				OutputRoot:   outputDir,
				Recursive:    recursive,
				InlineImages: inline,
				Workers:      workers,
				Progress: func(done, total int, item converter.BatchItem) {
					if item.Err != nil && !item.Skipped {
						log.Warn().Err(item.Err).Str("source", item.Source).Msg("file failed")
					}
					if quiet {
						return
					}
					if bar == nil {
						bar = newProgressBar(cmd.ErrOrStderr(), total)
					}
					_ = bar.Set(done)
				},
			}

			res, err := conv.ConvertBatch(cmd.Context(), req)
			if bar != nil {
				_ = bar.Finish()
			}
			if res.Total() > 0 {
				printBatchResult(cmd.OutOrStdout(), res)
			}
			if err != nil {
				return err
			}
			if res.Total() == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no pdf, doc or docx files in %s\n", args[0])
				return nil
			}
			if res.HasFailures() {
				return fmt.Errorf("%d of %d files failed", res.Failed, res.Total())
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "output root (default: next to the sources)")
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "include sub-directories")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "concurrent conversions (default from config)")
	cmd.Flags().BoolVar(&inline, "inline-images", false, "embed images as data URIs instead of writing an images folder")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "no progress bar")
	return cmd
}

func newProgressBar(w io.Writer, total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("converting"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("files"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionOnCompletion(func() { fmt.Fprint(w, "\n") }),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func printBatchResult(w io.Writer, res converter.BatchResult) {
	for _, item := range res.Items {
		switch {
		case item.Skipped:
			fmt.Fprintf(w, "skipped  %s\n", item.Source)
		case item.Err != nil:
			fmt.Fprintf(w, "failed   %s: %v\n", item.Source, item.Err)
		default:
			fmt.Fprintf(w, "ok       %s -> %s\n", item.Source, item.Output)
		}
	}
	fmt.Fprintf(w, "\n%d converted, %d failed, %d skipped (%d total)\n",
		res.Converted, res.Failed, res.Skipped, res.Total())
}
