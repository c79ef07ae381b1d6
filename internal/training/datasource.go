package training

import (
	"context"
	"fmt"

	"iotml/internal/engine"
)

const (
	sourceSynthetic = "synthetic"
	sourceTelemetry = "telemetry"
)

// Dataset is the training input for one job.
type Dataset struct {
	Frame       engine.Frame
	Features    []string
	Target      string
	DeviceCount int64
}

// DataSource produces up to n samples for a job.
type DataSource interface {
	Fetch(ctx context.Context, job Job, n int) (Dataset, error)
}

var baseFeatures = []string{"temperature", "pressure", "vibration", "current"}

// featureSpec returns the feature columns and target for a model kind. The
// anomaly detector is unsupervised and has no target.
func featureSpec(kind engine.Kind) ([]string, string) {
	switch kind {
	case engine.KindEnergyForecast:
		return []string{"temperature", "pressure", "current"}, "energy_consumption"
	case engine.KindPredictiveMaintenance:
		return append([]string(nil), baseFeatures...), "failure"
	case engine.KindEquipmentRUL:
		return append([]string(nil), baseFeatures...), "rul_days"
	default:
		return append([]string(nil), baseFeatures...), ""
	}
}

// fetchData enforces the sample bounds and asks the configured source for
// data.
func (o *Orchestrator) fetchData(ctx context.Context, job Job) (Dataset, error) {
	n, err := sampleCount(job.Config)
	if err != nil {
		return Dataset{}, err
	}
	if n < o.cfg.MinSamples || n > o.cfg.MaxSamples {
		return Dataset{}, &ValidationError{
			Field:   "n_samples",
			Message: fmt.Sprintf("must be between %d and %d, got %d", o.cfg.MinSamples, o.cfg.MaxSamples, n),
		}
	}
	src := o.cfg.Synthetic
	if name, _ := job.Config["data_source"].(string); name == sourceTelemetry {
		if o.cfg.Telemetry == nil {
			return Dataset{}, &ValidationError{Field: "data_source", Message: "telemetry source is not configured"}
		}
		src = o.cfg.Telemetry
	}
	ds, err := src.Fetch(ctx, job, n)
	if err != nil {
		return Dataset{}, fmt.Errorf("fetch training data: %w", err)
	}
	if rows := ds.Frame.Len(); rows < o.cfg.MinSamples {
		return Dataset{}, &ValidationError{
			Field:   "n_samples",
			Message: fmt.Sprintf("only %d samples available, minimum is %d", rows, o.cfg.MinSamples),
		}
	}
	if ds.DeviceCount == 0 {
		ds.DeviceCount = intOption(job.Config, "device_count", 1)
	}
	return ds, nil
}
