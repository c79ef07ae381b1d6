package training

import (
	"time"

	"github.com/rs/zerolog"

	"iotml/internal/events"
)

const (
	defaultMaxJobs        = 100
	defaultMinSamples     = 10
	defaultMaxSamples     = 100000
	defaultSamples        = 1000
	defaultMaxLogsPerJob  = 1000
	defaultWorkers        = 2
	defaultQueueDepth     = 64
	genericFailureMessage = "training failed due to an internal error"
)

// Config controls the orchestrator. Zero values select defaults.
type Config struct {
	// ModelsDir is where trained artifacts are written.
	ModelsDir string
	// MaxJobs bounds the number of retained jobs.
	MaxJobs int
	// MinSamples and MaxSamples bound the n_samples of a job's dataset.
	MinSamples int
	MaxSamples int
	// MaxLogsPerJob bounds each job's log; the oldest lines are dropped.
	MaxLogsPerJob int
	// Workers is the number of concurrent training runs.
	Workers int
	// QueueDepth bounds jobs waiting for a worker.
	QueueDepth int
	// Production replaces unexpected failure detail with a generic message.
	Production bool

	// Synthetic generates data when a job does not ask for telemetry
	// (default: SyntheticSource seeded with 42).
	Synthetic DataSource
	// Telemetry serves jobs configured with "data_source": "telemetry".
	Telemetry DataSource

	Publisher events.Publisher
	Logger    *zerolog.Logger
	// Now overrides the clock.
	Now func() time.Time
}

func (c *Config) applyDefaults() {
	if c.MaxJobs <= 0 {
		c.MaxJobs = defaultMaxJobs
	}
	if c.MinSamples <= 0 {
		c.MinSamples = defaultMinSamples
	}
	if c.MaxSamples <= 0 {
		c.MaxSamples = defaultMaxSamples
	}
	if c.MaxLogsPerJob <= 0 {
		c.MaxLogsPerJob = defaultMaxLogsPerJob
	}
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = defaultQueueDepth
	}
	if c.Synthetic == nil {
		c.Synthetic = SyntheticSource{Seed: 42}
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}
