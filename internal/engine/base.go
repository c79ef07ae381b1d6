package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// base carries the identity and lifecycle flag shared by all variants.
type base struct {
	id       string
	kind     Kind
	features []string
	trained  bool
}

func (b *base) Kind() Kind { return b.kind }
func (b *base) ID() string { return b.id }

// Features returns the feature columns the model was fitted on.
func (b *base) Features() []string { return append([]string(nil), b.features...) }

// predictRows resolves the feature list for prediction. An empty list means
// the columns used during training.
func (b *base) predictRows(data Frame, features []string) ([][]float64, error) {
	if !b.trained {
		return nil, ErrNotTrained
	}
	if len(features) == 0 {
		features = b.features
	}
	if len(features) != len(b.features) {
		return nil, fmt.Errorf("model expects %d features, got %d", len(b.features), len(features))
	}
	return data.rows(features)
}

// save writes state to path. A directory path receives <dir>/<id>.model.
func (b *base) save(path string, state any) (string, error) {
	if !b.trained {
		return "", ErrNotTrained
	}
	if path == "" {
		return "", errors.New("empty artifact path")
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = ArtifactPath(path, b.id)
	}
	if err := writeArtifact(path, b.kind, b.id, state); err != nil {
		return "", err
	}
	return path, nil
}

func (b *base) load(path string, state any) error {
	env, err := readArtifact(path)
	if err != nil {
		return err
	}
	if env.Kind != b.kind {
		return &KindMismatchError{Want: b.kind, Got: env.Kind}
	}
	if err := json.Unmarshal(env.State, state); err != nil {
		return fmt.Errorf("decode state: %w", err)
	}
	if b.id == "" {
		b.id = env.ModelID
	}
	return nil
}

func supervised(data Frame, features []string, target string) ([][]float64, []float64, error) {
	if target == "" {
		return nil, nil, errors.New("target column is required")
	}
	x, err := data.rows(features)
	if err != nil {
		return nil, nil, err
	}
	y, err := data.Column(target)
	if err != nil {
		return nil, nil, err
	}
	if len(y) != len(x) {
		return nil, nil, fmt.Errorf("target has %d rows, features have %d", len(y), len(x))
	}
	return x, y, nil
}
