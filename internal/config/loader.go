package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and are replaced by FillDefaults.
type Config struct {
	Addr        string `json:"addr" yaml:"addr" toml:"addr"`
	ModelsDir   string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	Environment string `json:"environment" yaml:"environment" toml:"environment"`
	LogLevel    string `json:"log_level" yaml:"log_level" toml:"log_level"`

	CacheSize          int  `json:"cache_size" yaml:"cache_size" toml:"cache_size"`
	LoadTimeoutSeconds int  `json:"load_timeout_seconds" yaml:"load_timeout_seconds" toml:"load_timeout_seconds"`
	DedupeLoads        bool `json:"dedupe_loads" yaml:"dedupe_loads" toml:"dedupe_loads"`
	WatchStorage       bool `json:"watch_storage" yaml:"watch_storage" toml:"watch_storage"`

	MaxJobs            int `json:"max_jobs" yaml:"max_jobs" toml:"max_jobs"`
	MinSamples         int `json:"min_samples" yaml:"min_samples" toml:"min_samples"`
	MaxSamples         int `json:"max_samples" yaml:"max_samples" toml:"max_samples"`
	MaxLogsPerJob      int `json:"max_logs_per_job" yaml:"max_logs_per_job" toml:"max_logs_per_job"`
	TrainingWorkers    int `json:"training_workers" yaml:"training_workers" toml:"training_workers"`
	TrainingQueueDepth int `json:"training_queue_depth" yaml:"training_queue_depth" toml:"training_queue_depth"`

	DatabaseURL string `json:"database_url" yaml:"database_url" toml:"database_url"`

	MaxBodyBytes        int64    `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	InferTimeoutSeconds int64    `json:"infer_timeout_seconds" yaml:"infer_timeout_seconds" toml:"infer_timeout_seconds"`
	CORSEnabled         bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSAllowedOrigins  []string `json:"cors_allowed_origins" yaml:"cors_allowed_origins" toml:"cors_allowed_origins"`
	CORSAllowedMethods  []string `json:"cors_allowed_methods" yaml:"cors_allowed_methods" toml:"cors_allowed_methods"`
	CORSAllowedHeaders  []string `json:"cors_allowed_headers" yaml:"cors_allowed_headers" toml:"cors_allowed_headers"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &cfg)
	case ".json":
		err = json.Unmarshal(b, &cfg)
	case ".toml":
		err = toml.Unmarshal(b, &cfg)
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	if err != nil {
		return cfg, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return cfg, nil
}

// Production reports whether error detail must be hidden from callers.
func (c Config) Production() bool {
	return strings.EqualFold(c.Environment, "production")
}
