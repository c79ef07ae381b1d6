package engine

import (
	"encoding/json"
	"math"
	"sort"
)

type scaler struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

func fitScaler(x [][]float64) scaler {
	d := len(x[0])
	s := scaler{Mean: make([]float64, d), Std: make([]float64, d)}
	n := float64(len(x))
	for _, row := range x {
		for j, v := range row {
			s.Mean[j] += v
		}
	}
	for j := range s.Mean {
		s.Mean[j] /= n
	}
	for _, row := range x {
		for j, v := range row {
			dv := v - s.Mean[j]
			s.Std[j] += dv * dv
		}
	}
	for j := range s.Std {
		s.Std[j] = math.Sqrt(s.Std[j] / n)
		if s.Std[j] == 0 {
			s.Std[j] = 1
		}
	}
	return s
}

func (s scaler) transform(x [][]float64) [][]float64 {
	out := make([][]float64, len(x))
	for i, row := range x {
		z := make([]float64, len(row))
		for j, v := range row {
			z[j] = (v - s.Mean[j]) / s.Std[j]
		}
		out[i] = z
	}
	return out
}

// linear holds weights over standardised features.
type linear struct {
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`
}

func (m linear) score(z []float64) float64 {
	v := m.Bias
	for j, w := range m.Weights {
		v += w * z[j]
	}
	return v
}

// fitLinear runs batch gradient descent on squared error.
func fitLinear(z [][]float64, y []float64, epochs int, lr float64) linear {
	m := linear{Weights: make([]float64, len(z[0])), Bias: mean(y)}
	n := float64(len(z))
	grad := make([]float64, len(m.Weights))
	for e := 0; e < epochs; e++ {
		for j := range grad {
			grad[j] = 0
		}
		var gb float64
		for i, row := range z {
			r := m.score(row) - y[i]
			for j, v := range row {
				grad[j] += r * v
			}
			gb += r
		}
		for j := range m.Weights {
			m.Weights[j] -= lr * grad[j] / n
		}
		m.Bias -= lr * gb / n
	}
	return m
}

// fitLogistic runs batch gradient descent on log loss; y holds 0/1 labels.
func fitLogistic(z [][]float64, y []float64, epochs int, lr float64) linear {
	m := linear{Weights: make([]float64, len(z[0]))}
	n := float64(len(z))
	grad := make([]float64, len(m.Weights))
	for e := 0; e < epochs; e++ {
		for j := range grad {
			grad[j] = 0
		}
		var gb float64
		for i, row := range z {
			r := sigmoid(m.score(row)) - y[i]
			for j, v := range row {
				grad[j] += r * v
			}
			gb += r
		}
		for j := range m.Weights {
			m.Weights[j] -= lr * grad[j] / n
		}
		m.Bias -= lr * gb / n
	}
	return m
}

func sigmoid(v float64) float64 { return 1 / (1 + math.Exp(-v)) }

func mean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	var s float64
	for _, x := range v {
		s += x
	}
	return s / float64(len(v))
}

func meanAbsError(y, p []float64) float64 {
	var s float64
	for i := range y {
		s += math.Abs(y[i] - p[i])
	}
	return s / float64(len(y))
}

func rootMeanSquaredError(y, p []float64) float64 {
	var s float64
	for i := range y {
		d := y[i] - p[i]
		s += d * d
	}
	return math.Sqrt(s / float64(len(y)))
}

func r2Score(y, p []float64) float64 {
	my := mean(y)
	var ssRes, ssTot float64
	for i := range y {
		ssRes += (y[i] - p[i]) * (y[i] - p[i])
		ssTot += (y[i] - my) * (y[i] - my)
	}
	if ssTot == 0 {
		return 0
	}
	return 1 - ssRes/ssTot
}

// quantile returns the q-quantile of v using the nearest-rank method.
func quantile(v []float64, q float64) float64 {
	s := append([]float64(nil), v...)
	sort.Float64s(s)
	idx := int(math.Ceil(q*float64(len(s)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(s) {
		idx = len(s) - 1
	}
	return s[idx]
}

// holdout splits n rows into a leading training block and a trailing
// evaluation block. Too few rows evaluate on the training block.
func holdout(n int, testSize float64) (train, test int) {
	test = int(float64(n) * testSize)
	if test < 1 || n-test < 2 {
		return n, 0
	}
	return n - test, test
}

func hpFloat(hp map[string]any, key string, def float64) float64 {
	switch v := hp[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
	}
	return def
}

func hpInt(hp map[string]any, key string, def int) int {
	f := hpFloat(hp, key, math.NaN())
	if math.IsNaN(f) || f < 1 {
		return def
	}
	return int(f)
}
