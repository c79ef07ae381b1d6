package modelcache

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"iotml/internal/engine"
)

// stubModel is a minimal engine.Model used to observe instance identity.
type stubModel struct {
	id   string
	kind engine.Kind
}

func (m *stubModel) Kind() engine.Kind { return m.kind }
func (m *stubModel) ID() string        { return m.id }
func (m *stubModel) Train(engine.Frame, []string, string, map[string]any) (engine.Metrics, error) {
	return engine.Metrics{}, nil
}
func (m *stubModel) Predict(d engine.Frame, _ []string) ([]float64, error) {
	return make([]float64, d.Len()), nil
}
func (m *stubModel) Save(p string) (string, error) { return p, nil }
func (m *stubModel) Load(string) error             { return nil }

// countingLoader returns a loader producing fresh stub models of kind and a
// counter of how many loads ran.
func countingLoader(kind engine.Kind) (Loader, *int64) {
	var n int64
	return func(_ context.Context, path string) (engine.Model, error) {
		atomic.AddInt64(&n, 1)
		id := strings.TrimSuffix(filepath.Base(path), engine.ArtifactExt)
		return &stubModel{id: id, kind: kind}, nil
	}, &n
}

func newTestCache(t *testing.T, cfg Config) *Cache {
	t.Helper()
	if cfg.Root == "" {
		cfg.Root = t.TempDir()
	}
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

// touchArtifact creates an (empty) artifact file for id under root.
func touchArtifact(t *testing.T, root, id string) string {
	t.Helper()
	p := engine.ArtifactPath(root, id)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(p, []byte("{}"), 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	return p
}

func mustGet(t *testing.T, c *Cache, id string, kind engine.Kind) engine.Model {
	t.Helper()
	m, err := c.Get(context.Background(), id, kind, "")
	if err != nil {
		t.Fatalf("Get(%s): %v", id, err)
	}
	return m
}
