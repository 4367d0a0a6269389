package neural

import (
	"fmt"
	"math"
)

// Activation selects the nonlinearity applied to a layer's outputs.
type Activation uint8

const (
	Identity Activation = iota
	Tanh
	ReLU
	Sigmoid
	HardTanh // clamp to [-1, 1]
)

var activationNames = [...]string{
	Identity: "identity",
	Tanh:     "tanh",
	ReLU:     "relu",
	Sigmoid:  "sigmoid",
	HardTanh: "hardtanh",
}

// String returns the config name of the activation.
func (a Activation) String() string {
	if int(a) < len(activationNames) {
		return activationNames[a]
	}
	return fmt.Sprintf("activation(%d)", uint8(a))
}

// ParseActivation maps a config name to an Activation.
func ParseActivation(name string) (Activation, error) {
	for i, n := range activationNames {
		if n == name {
			return Activation(i), nil
		}
	}
	return 0, fmt.Errorf("unknown activation %q", name)
}

// MarshalText implements encoding.TextMarshaler (used by both YAML and JSON).
func (a Activation) MarshalText() ([]byte, error) {
	if int(a) >= len(activationNames) {
		return nil, fmt.Errorf("unknown activation %d", uint8(a))
	}
	return []byte(activationNames[a]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Activation) UnmarshalText(text []byte) error {
	parsed, err := ParseActivation(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

func (a Activation) valid() bool {
	return int(a) < len(activationNames)
}

// apply runs the activation in place. Inputs are already saturated, so every
// branch maps finite values to finite values.
func (a Activation) apply(v []float64) {
	switch a {
	case Identity:
	case Tanh:
		for i, x := range v {
			v[i] = math.Tanh(x)
		}
	case ReLU:
		for i, x := range v {
			if x < 0 {
				v[i] = 0
			}
		}
	case Sigmoid:
		for i, x := range v {
			v[i] = sigmoid(x)
		}
	case HardTanh:
		for i, x := range v {
			v[i] = hardTanh(x)
		}
	}
}

// sigmoid is split on sign so exp never sees a large positive argument.
func sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

func hardTanh(x float64) float64 {
	if x <= -1 {
		return -1
	}
	if x >= 1 {
		return 1
	}
	return x
}

// SaturationLimit bounds every input and pre-activation value seen by the kernel.
const SaturationLimit = 1e30

// saturate replaces NaN with 0 and clamps to ±SaturationLimit.
func saturate(x float64) float64 {
	if x != x {
		return 0
	}
	if x > SaturationLimit {
		return SaturationLimit
	}
	if x < -SaturationLimit {
		return -SaturationLimit
	}
	return x
}
