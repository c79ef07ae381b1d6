package engine

import "math"

type regressionState struct {
	Features    []string           `json:"features"`
	Scaler      scaler             `json:"scaler"`
	Model       linear             `json:"model"`
	Importances map[string]float64 `json:"importances,omitempty"`
}

// fitRegression fits a linear model on the leading rows and reports error
// metrics on the trailing holdout block.
func fitRegression(data Frame, features []string, target string, hp map[string]any, floor bool) (regressionState, Metrics, error) {
	x, y, err := supervised(data, features, target)
	if err != nil {
		return regressionState{}, nil, err
	}
	nTrain, nTest := holdout(len(y), hpFloat(hp, "test_size", 0.2))
	sc := fitScaler(x[:nTrain])
	z := sc.transform(x)
	lm := fitLinear(z[:nTrain], y[:nTrain], hpInt(hp, "epochs", 500), hpFloat(hp, "learning_rate", 0.1))

	evalZ, evalY := z[nTrain:], y[nTrain:]
	if nTest == 0 {
		evalZ, evalY = z, y
	}
	pred := make([]float64, len(evalZ))
	for i, row := range evalZ {
		pred[i] = lm.score(row)
		if floor {
			pred[i] = math.Max(0, pred[i])
		}
	}
	st := regressionState{
		Features: append([]string(nil), features...),
		Scaler:   sc,
		Model:    lm,
	}
	return st, Metrics{
		"n_train": float64(nTrain),
		"n_test":  float64(nTest),
		"mae":     meanAbsError(evalY, pred),
		"rmse":    rootMeanSquaredError(evalY, pred),
		"r2":      r2Score(evalY, pred),
	}, nil
}

func (st regressionState) predict(x [][]float64, floor bool) []float64 {
	z := st.Scaler.transform(x)
	out := make([]float64, len(z))
	for i, row := range z {
		out[i] = st.Model.score(row)
		if floor {
			out[i] = math.Max(0, out[i])
		}
	}
	return out
}

// EnergyForecaster predicts energy consumption with a linear regression.
type EnergyForecaster struct {
	base
	state regressionState
}

func NewEnergyForecaster(id string) *EnergyForecaster {
	return &EnergyForecaster{base: base{id: id, kind: KindEnergyForecast}}
}

func (m *EnergyForecaster) Train(data Frame, features []string, target string, hp map[string]any) (Metrics, error) {
	st, metrics, err := fitRegression(data, features, target, hp, false)
	if err != nil {
		return nil, err
	}
	m.state = st
	m.features = st.Features
	m.trained = true
	return metrics, nil
}

func (m *EnergyForecaster) Predict(data Frame, features []string) ([]float64, error) {
	x, err := m.predictRows(data, features)
	if err != nil {
		return nil, err
	}
	return m.state.predict(x, false), nil
}

func (m *EnergyForecaster) Save(path string) (string, error) { return m.save(path, m.state) }

func (m *EnergyForecaster) Load(path string) error {
	var st regressionState
	if err := m.load(path, &st); err != nil {
		return err
	}
	m.state = st
	m.features = st.Features
	m.trained = true
	return nil
}

// RULModel estimates remaining useful life in days. Predictions never go
// below zero.
type RULModel struct {
	base
	state regressionState
}

func NewRULModel(id string) *RULModel {
	return &RULModel{base: base{id: id, kind: KindEquipmentRUL}}
}

func (m *RULModel) Train(data Frame, features []string, target string, hp map[string]any) (Metrics, error) {
	st, metrics, err := fitRegression(data, features, target, hp, true)
	if err != nil {
		return nil, err
	}
	var total float64
	for _, w := range st.Model.Weights {
		total += math.Abs(w)
	}
	st.Importances = make(map[string]float64, len(features))
	for j, name := range st.Features {
		st.Importances[name] = ratio(math.Abs(st.Model.Weights[j]), total)
	}
	m.state = st
	m.features = st.Features
	m.trained = true
	return metrics, nil
}

func (m *RULModel) Predict(data Frame, features []string) ([]float64, error) {
	x, err := m.predictRows(data, features)
	if err != nil {
		return nil, err
	}
	return m.state.predict(x, true), nil
}

// FeatureImportances returns the normalised absolute weight of each feature.
func (m *RULModel) FeatureImportances() map[string]float64 {
	out := make(map[string]float64, len(m.state.Importances))
	for k, v := range m.state.Importances {
		out[k] = v
	}
	return out
}

func (m *RULModel) Save(path string) (string, error) { return m.save(path, m.state) }

func (m *RULModel) Load(path string) error {
	var st regressionState
	if err := m.load(path, &st); err != nil {
		return err
	}
	m.state = st
	m.features = st.Features
	m.trained = true
	return nil
}
