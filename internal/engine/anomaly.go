package engine

import (
	"fmt"
	"math"
)

type anomalyState struct {
	Features      []string `json:"features"`
	Scaler        scaler   `json:"scaler"`
	Threshold     float64  `json:"threshold"`
	Contamination float64  `json:"contamination"`
}

// AnomalyDetector flags rows whose largest standardised deviation exceeds a
// threshold fitted so that roughly `contamination` of the training rows are
// anomalous. It is unsupervised; the target argument of Train is ignored.
type AnomalyDetector struct {
	base
	state anomalyState
}

func NewAnomalyDetector(id string) *AnomalyDetector {
	return &AnomalyDetector{base: base{id: id, kind: KindAnomalyDetection}}
}

func (m *AnomalyDetector) Train(data Frame, features []string, _ string, hp map[string]any) (Metrics, error) {
	x, err := data.rows(features)
	if err != nil {
		return nil, err
	}
	contamination := hpFloat(hp, "contamination", 0.1)
	if contamination <= 0 || contamination >= 0.5 {
		return nil, fmt.Errorf("contamination must be in (0, 0.5), got %v", contamination)
	}
	sc := fitScaler(x)
	scores := maxDeviation(sc.transform(x))
	threshold := quantile(scores, 1-contamination)
	flagged := 0
	for _, s := range scores {
		if s > threshold {
			flagged++
		}
	}
	m.state = anomalyState{
		Features:      append([]string(nil), features...),
		Scaler:        sc,
		Threshold:     threshold,
		Contamination: contamination,
	}
	m.features = m.state.Features
	m.trained = true
	n := float64(len(x))
	return Metrics{
		"n_samples":     n,
		"n_features":    float64(len(features)),
		"contamination": contamination,
		"threshold":     threshold,
		"anomaly_rate":  float64(flagged) / n,
	}, nil
}

// Scores returns the anomaly score of every row.
func (m *AnomalyDetector) Scores(data Frame, features []string) ([]float64, error) {
	x, err := m.predictRows(data, features)
	if err != nil {
		return nil, err
	}
	return maxDeviation(m.state.Scaler.transform(x)), nil
}

// Predict returns 1 for anomalous rows and 0 otherwise.
func (m *AnomalyDetector) Predict(data Frame, features []string) ([]float64, error) {
	scores, err := m.Scores(data, features)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(scores))
	for i, s := range scores {
		if s > m.state.Threshold {
			out[i] = 1
		}
	}
	return out, nil
}

func (m *AnomalyDetector) Save(path string) (string, error) { return m.save(path, m.state) }

func (m *AnomalyDetector) Load(path string) error {
	var st anomalyState
	if err := m.load(path, &st); err != nil {
		return err
	}
	m.state = st
	m.features = st.Features
	m.trained = true
	return nil
}

func maxDeviation(z [][]float64) []float64 {
	out := make([]float64, len(z))
	for i, row := range z {
		for _, v := range row {
			out[i] = math.Max(out[i], math.Abs(v))
		}
	}
	return out
}
