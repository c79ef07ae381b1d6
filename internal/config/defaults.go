package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	DefaultAddr               = ":8000"
	DefaultModelsDir          = "~/.iotml/models"
	DefaultEnvironment        = "development"
	DefaultLogLevel           = "info"
	DefaultCacheSize          = 20
	DefaultLoadTimeoutSeconds = 30
	DefaultMaxJobs            = 100
	DefaultMinSamples         = 10
	DefaultMaxSamples         = 100000
	DefaultMaxLogsPerJob      = 1000
	DefaultTrainingWorkers    = 2
	DefaultTrainingQueueDepth = 64
	DefaultMaxBodyBytes       = 1 << 20
)

// FillDefaults replaces unspecified values with defaults.
func (c *Config) FillDefaults() {
	setStr := func(p *string, v string) {
		if *p == "" {
			*p = v
		}
	}
	setInt := func(p *int, v int) {
		if *p == 0 {
			*p = v
		}
	}
	setStr(&c.Addr, DefaultAddr)
	setStr(&c.ModelsDir, DefaultModelsDir)
	setStr(&c.Environment, DefaultEnvironment)
	setStr(&c.LogLevel, DefaultLogLevel)
	setInt(&c.CacheSize, DefaultCacheSize)
	setInt(&c.LoadTimeoutSeconds, DefaultLoadTimeoutSeconds)
	setInt(&c.MaxJobs, DefaultMaxJobs)
	setInt(&c.MinSamples, DefaultMinSamples)
	setInt(&c.MaxSamples, DefaultMaxSamples)
	setInt(&c.MaxLogsPerJob, DefaultMaxLogsPerJob)
	setInt(&c.TrainingWorkers, DefaultTrainingWorkers)
	setInt(&c.TrainingQueueDepth, DefaultTrainingQueueDepth)
	if c.MaxBodyBytes == 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
}

// envKeys maps environment variables to setters, first match wins per field.
var envKeys = []struct {
	names []string
	set   func(c *Config, v string) error
}{
	{[]string{"IOTML_ADDR"}, func(c *Config, v string) error { c.Addr = v; return nil }},
	{[]string{"IOTML_MODELS_DIR", "MODEL_STORAGE_PATH"}, func(c *Config, v string) error { c.ModelsDir = v; return nil }},
	{[]string{"IOTML_ENVIRONMENT", "ENVIRONMENT"}, func(c *Config, v string) error { c.Environment = v; return nil }},
	{[]string{"IOTML_LOG_LEVEL"}, func(c *Config, v string) error { c.LogLevel = v; return nil }},
	{[]string{"IOTML_CACHE_SIZE", "ML_MODEL_CACHE_SIZE"}, intSetter(func(c *Config) *int { return &c.CacheSize })},
	{[]string{"IOTML_LOAD_TIMEOUT_SECONDS"}, intSetter(func(c *Config) *int { return &c.LoadTimeoutSeconds })},
	{[]string{"IOTML_DEDUPE_LOADS"}, boolSetter(func(c *Config) *bool { return &c.DedupeLoads })},
	{[]string{"IOTML_WATCH_STORAGE"}, boolSetter(func(c *Config) *bool { return &c.WatchStorage })},
	{[]string{"IOTML_MAX_JOBS"}, intSetter(func(c *Config) *int { return &c.MaxJobs })},
	{[]string{"IOTML_MIN_SAMPLES"}, intSetter(func(c *Config) *int { return &c.MinSamples })},
	{[]string{"IOTML_MAX_SAMPLES"}, intSetter(func(c *Config) *int { return &c.MaxSamples })},
	{[]string{"IOTML_MAX_LOGS_PER_JOB"}, intSetter(func(c *Config) *int { return &c.MaxLogsPerJob })},
	{[]string{"IOTML_TRAINING_WORKERS"}, intSetter(func(c *Config) *int { return &c.TrainingWorkers })},
	{[]string{"IOTML_DATABASE_URL", "DATABASE_URL"}, func(c *Config, v string) error { c.DatabaseURL = v; return nil }},
	{[]string{"IOTML_CORS_ALLOWED_ORIGINS"}, func(c *Config, v string) error {
		c.CORSEnabled = true
		c.CORSAllowedOrigins = splitList(v)
		return nil
	}},
}

// ApplyEnv overrides fields from environment variables looked up with
// getenv (typically os.Getenv).
func (c *Config) ApplyEnv(getenv func(string) string) error {
	var errs []error
	for _, k := range envKeys {
		for _, name := range k.names {
			v := strings.TrimSpace(getenv(name))
			if v == "" {
				continue
			}
			if err := k.set(c, v); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
			}
			break
		}
	}
	return errors.Join(errs...)
}

func intSetter(field func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("not an integer: %q", v)
		}
		*field(c) = n
		return nil
	}
}

func boolSetter(field func(*Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("not a boolean: %q", v)
		}
		*field(c) = b
		return nil
	}
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks a filled configuration for contradictions.
func (c Config) Validate() error {
	var errs []error
	positive := map[string]int{
		"cache_size":           c.CacheSize,
		"load_timeout_seconds": c.LoadTimeoutSeconds,
		"max_jobs":             c.MaxJobs,
		"min_samples":          c.MinSamples,
		"max_samples":          c.MaxSamples,
		"max_logs_per_job":     c.MaxLogsPerJob,
		"training_workers":     c.TrainingWorkers,
		"training_queue_depth": c.TrainingQueueDepth,
	}
	for _, name := range []string{"cache_size", "load_timeout_seconds", "max_jobs", "min_samples", "max_samples", "max_logs_per_job", "training_workers", "training_queue_depth"} {
		if positive[name] <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", name, positive[name]))
		}
	}
	if c.MinSamples > c.MaxSamples {
		errs = append(errs, fmt.Errorf("min_samples %d exceeds max_samples %d", c.MinSamples, c.MaxSamples))
	}
	switch strings.ToLower(c.Environment) {
	case "production", "development", "test":
	default:
		errs = append(errs, fmt.Errorf("unknown environment %q", c.Environment))
	}
	return errors.Join(errs...)
}

// Defaults returns a configuration with every field at its default.
func Defaults() Config {
	var c Config
	c.FillDefaults()
	return c
}
