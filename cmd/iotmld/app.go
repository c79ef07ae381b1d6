package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"iotml/internal/config"
	"iotml/internal/events"
	"iotml/internal/modelcache"
	"iotml/internal/training"
)

// loadConfig layers the config file, the environment and explicitly set
// flags, in that order, then fills defaults and validates.
func loadConfig(cmd *cobra.Command, getenv func(string) string) (config.Config, error) {
	var cfg config.Config
	path, _ := cmd.Flags().GetString("config")
	if path != "" {
		c, err := config.Load(path)
		if err != nil {
			return cfg, err
		}
		cfg = c
	}
	if err := cfg.ApplyEnv(getenv); err != nil {
		return cfg, fmt.Errorf("environment: %w", err)
	}
	flagStrings := map[string]*string{
		"models-dir":   &cfg.ModelsDir,
		"environment":  &cfg.Environment,
		"log-level":    &cfg.LogLevel,
		"addr":         &cfg.Addr,
		"database-url": &cfg.DatabaseURL,
	}
	for name, dst := range flagStrings {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			*dst = f.Value.String()
		}
	}
	flagInts := map[string]*int{
		"cache-size":       &cfg.CacheSize,
		"training-workers": &cfg.TrainingWorkers,
		"max-jobs":         &cfg.MaxJobs,
	}
	for name, dst := range flagInts {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			n, err := cmd.Flags().GetInt(name)
			if err != nil {
				return cfg, err
			}
			*dst = n
		}
	}
	if f := cmd.Flags().Lookup("watch"); f != nil && f.Changed {
		cfg.WatchStorage, _ = cmd.Flags().GetBool("watch")
	}
	cfg.FillDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newLogger writes human-readable output in development and JSON in production.
func newLogger(cfg config.Config, w io.Writer) zerolog.Logger {
	if !cfg.Production() {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Str("service", "iotmld").Logger()
}

// app is the composition root shared by serve and train.
type app struct {
	cfg       config.Config
	log       zerolog.Logger
	cache     *modelcache.Cache
	trainer   *training.Orchestrator
	telemetry *training.PostgresSource
}

func newApp(ctx context.Context, cfg config.Config, log zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log}
	cache, err := modelcache.New(modelcache.Config{
		Root:        cfg.ModelsDir,
		MaxSize:     cfg.CacheSize,
		LoadTimeout: time.Duration(cfg.LoadTimeoutSeconds) * time.Second,
		Production:  cfg.Production(),
		DedupeLoads: cfg.DedupeLoads,
		Logger:      &a.log,
	})
	if err != nil {
		return nil, err
	}
	a.cache = cache

	var telemetry training.DataSource
	if cfg.DatabaseURL != "" {
		pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		src, err := training.OpenPostgres(pctx, cfg.DatabaseURL)
		cancel()
		if err != nil {
			return nil, err
		}
		a.telemetry = src
		telemetry = src
	}

	trainer, err := training.New(training.Config{
		ModelsDir:     cache.Root(),
		MaxJobs:       cfg.MaxJobs,
		MinSamples:    cfg.MinSamples,
		MaxSamples:    cfg.MaxSamples,
		MaxLogsPerJob: cfg.MaxLogsPerJob,
		Workers:       cfg.TrainingWorkers,
		QueueDepth:    cfg.TrainingQueueDepth,
		Production:    cfg.Production(),
		Telemetry:     telemetry,
		Publisher:     invalidateOnCompletion(cache, &a.log),
		Logger:        &a.log,
	})
	if err != nil {
		a.closeTelemetry()
		return nil, err
	}
	a.trainer = trainer
	return a, nil
}

// invalidateOnCompletion drops a retrained model from the cache so the next
// request loads the new artifact.
func invalidateOnCompletion(cache *modelcache.Cache, log *zerolog.Logger) events.Publisher {
	return events.Func(func(e events.Event) {
		if e.Name != "job_completed" || e.ModelID == "" {
			return
		}
		if cache.Invalidate(e.ModelID) {
			log.Info().Str("model_id", e.ModelID).Str("job_id", e.JobID).Msg("invalidated cached model after retraining")
		}
	})
}

func (a *app) close(ctx context.Context) error {
	err := a.trainer.Shutdown(ctx)
	a.closeTelemetry()
	return err
}

func (a *app) closeTelemetry() {
	if a.telemetry != nil {
		if err := a.telemetry.Close(); err != nil {
			a.log.Warn().Err(err).Msg("closing telemetry database")
		}
	}
}

var stderr io.Writer = os.Stderr
