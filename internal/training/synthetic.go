package training

import (
	"context"
	"math"
	"math/rand"

	"iotml/internal/engine"
)

// SyntheticSource generates telemetry-like data with a fixed seed, so the
// same job config always yields the same dataset.
type SyntheticSource struct {
	Seed int64
}

func (s SyntheticSource) Fetch(_ context.Context, job Job, n int) (Dataset, error) {
	rng := rand.New(rand.NewSource(s.Seed))
	normal := func(mu, sigma float64) []float64 {
		out := make([]float64, n)
		for i := range out {
			out[i] = mu + sigma*rng.NormFloat64()
		}
		return out
	}
	f := engine.Frame{
		"temperature": normal(25, 5),
		"pressure":    normal(101.3, 2),
		"vibration":   normal(0.5, 0.2),
		"current":     normal(10, 2),
	}
	features, target := featureSpec(job.ModelType)

	switch job.ModelType {
	case engine.KindEnergyForecast:
		f[target] = normal(100, 20)
	case engine.KindPredictiveMaintenance:
		// Higher vibration and temperature mean a higher failure likelihood.
		failure := make([]float64, n)
		for i := range failure {
			degradation := ((f["vibration"][i]-0.5)/0.2 + (f["temperature"][i]-25)/5) / 2
			if 1/(1+math.Exp(-degradation)) > 0.6 {
				failure[i] = 1
			}
		}
		f[target] = failure
	case engine.KindEquipmentRUL:
		noise := normal(0, 10)
		rul := make([]float64, n)
		for i := range rul {
			rul[i] = math.Max(0, 365-float64(i)*0.5+noise[i])
		}
		f[target] = rul
	default:
		// Inject 5% temperature spikes.
		temp := f["temperature"]
		for _, i := range rng.Perm(n)[:n/20] {
			temp[i] = 50 + 50*rng.Float64()
		}
	}
	return Dataset{Frame: f, Features: features, Target: target}, nil
}
