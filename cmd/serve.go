package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/extractify-ai/extractify/internal/app"
	"github.com/extractify-ai/extractify/internal/handlers"
	"github.com/extractify-ai/extractify/internal/storage"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web interface",
		Long: `Starts the Extractify web interface.

Upload or link an image, crop the region that holds the text, extract it with
OCR, then read the generated summary and analysis or chat about the text.`,
		Example: `  # Start server on default port 8888
  extractify serve

  # Start server on custom port
  extractify serve --port 3000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}

			a, err := app.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			store := storage.New()
			handler := handlers.New(store, a.Service, a.Fetcher, cfg.MaxUploadBytes)

			mux := http.NewServeMux()
			handler.Register(mux)

			addr := ":" + cfg.Port
			server := &http.Server{
				Addr:              addr,
				Handler:           mux,
				ReadHeaderTimeout: 10 * time.Second,
			}

			go sweepSessions(cmd.Context(), store, cfg.SessionIdleTimeout)

			// Start server in goroutine
			serverErr := make(chan error, 1)
			go func() {
				slog.Info("Extractify interface available", "addr", addr, "url", "http://localhost"+addr)
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

	return cmd
}

// sweepSessions drops idle sessions until ctx is done.
func sweepSessions(ctx context.Context, store *storage.SessionStore, idle time.Duration) {
	interval := idle / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := store.Sweep(now, idle); n > 0 {
				slog.Info("Expired idle sessions", "count", n, "remaining", store.Len())
			}
		}
	}
}
