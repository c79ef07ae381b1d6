package engine

import (
	"fmt"
	"strings"
)

// Kind identifies one of the fixed model variants.
type Kind string

const (
	KindAnomalyDetection      Kind = "ANOMALY_DETECTION"
	KindPredictiveMaintenance Kind = "PREDICTIVE_MAINTENANCE"
	KindEnergyForecast        Kind = "ENERGY_FORECAST"
	KindEquipmentRUL          Kind = "EQUIPMENT_RUL"
)

var allKinds = []Kind{
	KindAnomalyDetection,
	KindPredictiveMaintenance,
	KindEnergyForecast,
	KindEquipmentRUL,
}

// Kinds returns every supported kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, len(allKinds))
	copy(out, allKinds)
	return out
}

func (k Kind) String() string { return string(k) }

// Valid reports whether k is one of the supported kinds.
func (k Kind) Valid() bool {
	_, ok := constructors[k]
	return ok
}

// ParseKind accepts the canonical upper-case names in any letter case.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToUpper(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("unknown model kind %q", s)
	}
	return k, nil
}
