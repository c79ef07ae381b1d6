package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"iotml/internal/httpapi"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, os.Getenv)
			if err != nil {
				return err
			}
			log := newLogger(cfg, stderr)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			if cfg.WatchStorage {
				w, err := a.cache.Watch(ctx)
				if err != nil {
					log.Warn().Err(err).Msg("storage watcher disabled")
				} else {
					defer w.Close()
				}
			}

			httpapi.SetLogger(log.With().Str("component", "http").Logger())
			httpapi.SetLogLevel(cfg.LogLevel)
			httpapi.SetBaseContext(ctx)
			httpapi.SetMaxBodyBytes(cfg.MaxBodyBytes)
			httpapi.SetInferTimeoutSeconds(cfg.InferTimeoutSeconds)
			httpapi.SetProduction(cfg.Production())
			httpapi.SetCORSOptions(cfg.CORSEnabled, cfg.CORSAllowedOrigins, cfg.CORSAllowedMethods, cfg.CORSAllowedHeaders)

			var ready atomic.Bool
			srv := &http.Server{
				Addr: cfg.Addr,
				Handler: httpapi.NewMux(httpapi.Deps{
					Cache:     a.cache,
					Trainer:   a.trainer,
					ModelsDir: a.cache.Root(),
					Ready:     ready.Load,
				}),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errc := make(chan error, 1)
			go func() {
				log.Info().Str("addr", cfg.Addr).Str("models_dir", a.cache.Root()).Str("environment", cfg.Environment).Msg("iotmld listening")
				errc <- srv.ListenAndServe()
			}()
			ready.Store(true)

			select {
			case err := <-errc:
				if !errors.Is(err, http.ErrServerClosed) {
					_ = a.close(context.Background())
					return err
				}
			case <-ctx.Done():
			}
			ready.Store(false)
			log.Info().Msg("shutting down")

			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(sctx); err != nil {
				log.Error().Err(err).Msg("graceful shutdown error")
			}
			if err := a.close(sctx); err != nil {
				log.Error().Err(err).Msg("training workers did not stop in time")
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.String("addr", "", "HTTP listen address, e.g. :8000")
	f.Int("cache-size", 0, "maximum number of cached models")
	f.Int("training-workers", 0, "concurrent training runs")
	f.Int("max-jobs", 0, "maximum retained training jobs")
	f.Bool("watch", false, "invalidate cached models when artifacts change on disk")
	f.String("database-url", "", "Postgres DSN for telemetry training data")
	return cmd
}
