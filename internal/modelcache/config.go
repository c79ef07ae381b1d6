package modelcache

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"iotml/internal/engine"
	"iotml/internal/events"
)

const (
	defaultMaxSize     = 20
	defaultLoadTimeout = 30 * time.Second
)

// Loader reads the artifact at an already validated path.
type Loader func(ctx context.Context, path string) (engine.Model, error)

// Config controls cache construction. Zero values select defaults.
type Config struct {
	// Root is the storage directory all artifacts must live under.
	Root string
	// MaxSize bounds the number of cached models (default 20).
	MaxSize int
	// LoadTimeout bounds a single load (default 30s).
	LoadTimeout time.Duration
	// Production hides underlying load failure detail from error messages.
	Production bool
	// DedupeLoads collapses concurrent loads of the same id into one.
	DedupeLoads bool
	// Loader overrides the artifact reader (default engine.Open).
	Loader Loader
	// Publisher receives cache events (default noop).
	Publisher events.Publisher
	// Logger receives structured logs (default disabled).
	Logger *zerolog.Logger
}

func openArtifact(_ context.Context, path string) (engine.Model, error) {
	return engine.Open(path)
}
