package main

import (
	"fmt"

	"github.com/Cortexa-LLC/mcp/src/doc2md/converter"
	"github.com/spf13/cobra"
)

func newConvertCmd(a *app) *cobra.Command {
	var (
		outputDir string
		inline    bool
	)
	cmd := &cobra.Command{
		Use:   "convert <file>...",
		Short: "Convert PDF, DOC or DOCX files to Markdown",
		Long: `Convert writes <output-dir>/<name>/<name>.md for every file, with the
extracted images in <output-dir>/<name>/<name>_images/. Files are converted
one after another; a failing file does not stop the rest.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, conv, err := a.setup(cmd)
			if err != nil {
				return err
			}
			defer conv.Close()

			if outputDir == "" {
				outputDir = cfg.OutputDir
			}
			failed := 0
			for _, src := range args {
				md, err := conv.Convert(cmd.Context(), converter.Request{
					SourcePath:   src,
					OutputRoot:   outputDir,
					InlineImages: inline,
				})
				if err != nil {
					failed++
					log.Error().Err(err).Str("kind", string(converter.KindOf(err))).Msg("conversion failed")
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", src, err)
					if cmd.Context().Err() != nil {
						break
					}
					continue
				}
				fmt.Fprintln(cmd.OutOrStdout(), md)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "output root (default from config)")
	cmd.Flags().BoolVar(&inline, "inline-images", false, "embed images as data URIs instead of writing an images folder")
	return cmd
}
