package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/annotator/internal/handlers"
	"github.com/lehigh-university-libraries/annotator/internal/storage"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var port, seed, imageDir string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the in-memory dataset backend",
		Long: `Starts the reference dataset backend on the specified port.

Datasets are held in memory and seeded from a YAML file. When a JWT secret is
configured (ANNOTATOR_JWT_SECRET), every dataset route requires a bearer token;
see "annotator token".`,
		Example: `  # Start server on default port 8888 with a seed file
  annotator serve --seed datasets.yaml

  # Serve image files as well
  annotator serve --seed datasets.yaml --images ./images --port 3000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			if cmd.Flags().Changed("port") || cfg.Port == "" {
				cfg.Port = port
			}
			if seed != "" {
				cfg.SeedFile = seed
			}
			if imageDir != "" {
				cfg.ImageDir = imageDir
			}

			store := storage.New()
			if cfg.SeedFile != "" {
				if err := store.LoadSeedFile(cfg.SeedFile); err != nil {
					return err
				}
				slog.Info("Loaded seed file", "path", cfg.SeedFile, "datasets", store.DatasetIDs())
			}

			var handlerOpts []handlers.Option
			if cfg.JWTSecret != "" {
				handlerOpts = append(handlerOpts, handlers.WithJWTSecret([]byte(cfg.JWTSecret)))
			} else {
				slog.Warn("No JWT secret configured, dataset routes are open")
			}
			if cfg.ImageDir != "" {
				handlerOpts = append(handlerOpts, handlers.WithImageDir(cfg.ImageDir))
			}
			handler := handlers.New(store, handlerOpts...)

			addr := ":" + cfg.Port
			server := &http.Server{
				Addr:              addr,
				Handler:           handler.Routes(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			// Start server in goroutine
			serverErr := make(chan error, 1)
			go func() {
				slog.Info("Annotator backend available", "addr", addr, "url", "http://localhost"+addr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			// Wait for context cancellation (Ctrl+C) or server error
			select {
			case <-cmd.Context().Done():
				slog.Info("Shutting down server...")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					slog.Error("Server shutdown failed", "err", err)
					return err
				}
				slog.Info("Server stopped")
				return nil
			case err := <-serverErr:
				return err
			}
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "8888", "Port to listen on")
	cmd.Flags().StringVar(&seed, "seed", "", "YAML seed file with datasets")
	cmd.Flags().StringVar(&imageDir, "images", "", "Directory served under /images/")

	return cmd
}
