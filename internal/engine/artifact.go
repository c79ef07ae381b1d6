package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	// ArtifactExt is the file extension of saved models.
	ArtifactExt     = ".model"
	artifactFormat  = "iotml-model"
	artifactVersion = 1
)

// Header is the metadata stored alongside a model's fitted state.
type Header struct {
	Format  string    `json:"format"`
	Version int       `json:"version"`
	Kind    Kind      `json:"kind"`
	ModelID string    `json:"model_id"`
	SavedAt time.Time `json:"saved_at"`
}

type envelope struct {
	Header
	State json.RawMessage `json:"state"`
}

// ArtifactPath returns the conventional artifact location for a model id.
func ArtifactPath(dir, modelID string) string {
	return filepath.Join(dir, modelID+ArtifactExt)
}

// writeArtifact encodes state into an envelope and replaces path atomically.
func writeArtifact(path string, kind Kind, modelID string, state any) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	data, err := json.Marshal(envelope{
		Header: Header{
			Format:  artifactFormat,
			Version: artifactVersion,
			Kind:    kind,
			ModelID: modelID,
			SavedAt: time.Now().UTC(),
		},
		State: raw,
	})
	if err != nil {
		return fmt.Errorf("encode artifact: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*"+ArtifactExt)
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename artifact: %w", err)
	}
	return nil
}

// readArtifact decodes the envelope at path. A missing file is reported with
// an error wrapping os.ErrNotExist.
func readArtifact(path string) (envelope, error) {
	var env envelope
	data, err := os.ReadFile(path)
	if err != nil {
		return env, err
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return env, fmt.Errorf("decode artifact: %w", err)
	}
	if env.Format != artifactFormat {
		return env, fmt.Errorf("unrecognised artifact format %q", env.Format)
	}
	if env.Version != artifactVersion {
		return env, fmt.Errorf("unsupported artifact version %d", env.Version)
	}
	if !env.Kind.Valid() {
		return env, fmt.Errorf("unknown model kind %q", env.Kind)
	}
	return env, nil
}

// ReadHeader returns the metadata of the artifact at path without
// constructing a model.
func ReadHeader(path string) (Header, error) {
	env, err := readArtifact(path)
	return env.Header, err
}

// Open loads the artifact at path into a model of whatever kind it declares.
func Open(path string) (Model, error) {
	env, err := readArtifact(path)
	if err != nil {
		return nil, err
	}
	m, err := New(env.Kind, env.ModelID)
	if err != nil {
		return nil, err
	}
	if err := m.Load(path); err != nil {
		return nil, err
	}
	return m, nil
}
