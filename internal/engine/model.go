package engine

import (
	"errors"
	"fmt"
)

// Metrics maps metric names to values as reported by Train.
type Metrics map[string]float64

// ErrNotTrained is returned by Predict and Save before Train or Load succeeded.
var ErrNotTrained = errors.New("model is not trained")

// Model is the uniform contract every variant implements. A model is empty
// after construction and becomes usable once Train or Load succeeds.
type Model interface {
	Kind() Kind
	ID() string
	Train(data Frame, features []string, target string, hp map[string]any) (Metrics, error)
	Predict(data Frame, features []string) ([]float64, error)
	Save(path string) (string, error)
	Load(path string) error
}

var constructors = map[Kind]func(id string) Model{
	KindAnomalyDetection:      func(id string) Model { return NewAnomalyDetector(id) },
	KindPredictiveMaintenance: func(id string) Model { return NewMaintenanceModel(id) },
	KindEnergyForecast:        func(id string) Model { return NewEnergyForecaster(id) },
	KindEquipmentRUL:          func(id string) Model { return NewRULModel(id) },
}

// New constructs an empty model of the given kind.
func New(kind Kind, modelID string) (Model, error) {
	c, ok := constructors[kind]
	if !ok {
		return nil, fmt.Errorf("unknown model kind %q", kind)
	}
	return c(modelID), nil
}

// KindMismatchError reports an artifact holding a different variant than expected.
type KindMismatchError struct {
	Want Kind
	Got  Kind
}

func (e *KindMismatchError) Error() string {
	return fmt.Sprintf("artifact holds %s model, expected %s", e.Got, e.Want)
}

// IsKindMismatch reports whether err is (or wraps) a *KindMismatchError.
func IsKindMismatch(err error) bool {
	var e *KindMismatchError
	return errors.As(err, &e)
}
