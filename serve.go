package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Cortexa-LLC/mcp/src/doc2md/server"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP upload and batch API",
		Long: `Serve listens for uploads (POST /upload), batch requests (POST /convert),
status polls (GET /status) and result downloads (GET /download). One
conversion runs at a time.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, conv, err := a.setup(cmd)
			if err != nil {
				return err
			}
			defer conv.Close()

			if listen == "" {
				listen = cfg.ListenAddr
			}
			srv := server.New(conv, server.Options{
				OutputDir:      cfg.OutputDir,
				MaxUploadBytes: cfg.MaxFileSizeBytes,
			}, log)
			defer srv.Close()

			httpSrv := &http.Server{
				Addr:              listen,
				Handler:           srv.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx := cmd.Context()
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := httpSrv.Shutdown(shutdownCtx); err != nil {
					log.Warn().Err(err).Msg("http shutdown")
				}
			}()

			log.Info().Str("addr", listen).Str("output_dir", cfg.OutputDir).Msg("listening")
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			log.Info().Msg("server stopped")
			return nil
		},
	}
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "listen address (default from config)")
	return cmd
}
