package engine

import "fmt"

type maintenanceState struct {
	Features  []string `json:"features"`
	Scaler    scaler   `json:"scaler"`
	Model     linear   `json:"model"`
	Threshold float64  `json:"threshold"`
}

// MaintenanceModel estimates the probability of equipment failure with a
// logistic regression over standardised features. Targets are 0/1 labels.
type MaintenanceModel struct {
	base
	state maintenanceState
}

func NewMaintenanceModel(id string) *MaintenanceModel {
	return &MaintenanceModel{base: base{id: id, kind: KindPredictiveMaintenance}}
}

func (m *MaintenanceModel) Train(data Frame, features []string, target string, hp map[string]any) (Metrics, error) {
	x, y, err := supervised(data, features, target)
	if err != nil {
		return nil, err
	}
	for i, v := range y {
		if v != 0 && v != 1 {
			return nil, fmt.Errorf("target %q row %d is %v, expected 0 or 1", target, i, v)
		}
	}
	threshold := hpFloat(hp, "threshold", 0.5)
	sc := fitScaler(x)
	z := sc.transform(x)
	lm := fitLogistic(z, y, hpInt(hp, "epochs", 300), hpFloat(hp, "learning_rate", 0.5))

	var tp, fp, fn, correct float64
	for i, row := range z {
		pred := 0.0
		if sigmoid(lm.score(row)) >= threshold {
			pred = 1
		}
		switch {
		case pred == 1 && y[i] == 1:
			tp++
		case pred == 1 && y[i] == 0:
			fp++
		case pred == 0 && y[i] == 1:
			fn++
		}
		if pred == y[i] {
			correct++
		}
	}
	precision, recall := ratio(tp, tp+fp), ratio(tp, tp+fn)
	m.state = maintenanceState{
		Features:  append([]string(nil), features...),
		Scaler:    sc,
		Model:     lm,
		Threshold: threshold,
	}
	m.features = m.state.Features
	m.trained = true
	return Metrics{
		"n_samples":     float64(len(y)),
		"positive_rate": mean(y),
		"accuracy":      correct / float64(len(y)),
		"precision":     precision,
		"recall":        recall,
		"f1":            ratio(2*precision*recall, precision+recall),
	}, nil
}

// Predict returns the failure probability of every row.
func (m *MaintenanceModel) Predict(data Frame, features []string) ([]float64, error) {
	x, err := m.predictRows(data, features)
	if err != nil {
		return nil, err
	}
	z := m.state.Scaler.transform(x)
	out := make([]float64, len(z))
	for i, row := range z {
		out[i] = sigmoid(m.state.Model.score(row))
	}
	return out, nil
}

func (m *MaintenanceModel) Save(path string) (string, error) { return m.save(path, m.state) }

func (m *MaintenanceModel) Load(path string) error {
	var st maintenanceState
	if err := m.load(path, &st); err != nil {
		return err
	}
	m.state = st
	m.features = st.Features
	m.trained = true
	return nil
}

func ratio(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}
