package genome

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/pthm-cable/neuroevo/neural"
)

// Initialization distributions.
const (
	InitUniform  = "uniform"  // U[Min, Max] for every parameter
	InitGaussian = "gaussian" // N(0, Scale) for every parameter
	InitXavier   = "xavier"   // weights N(0, sqrt(2/fanIn)), biases zero
)

// InitParams configures how founder parameters are drawn.
type InitParams struct {
	Distribution string  `yaml:"distribution" json:"distribution"`
	Min          float64 `yaml:"min" json:"min"`
	Max          float64 `yaml:"max" json:"max"`
	Scale        float64 `yaml:"scale" json:"scale"`
}

// DefaultInit draws every parameter uniformly from [-1, 1].
func DefaultInit() InitParams {
	return InitParams{Distribution: InitUniform, Min: -1, Max: 1, Scale: 0.5}
}

// Validate checks that the distribution is known and its bounds are usable.
func (p InitParams) Validate() error {
	switch p.Distribution {
	case InitUniform:
		if !(p.Min <= p.Max) || math.IsInf(p.Min, 0) || math.IsInf(p.Max, 0) {
			return fmt.Errorf("uniform init needs finite min <= max, got [%v, %v]", p.Min, p.Max)
		}
	case InitGaussian:
		if !(p.Scale >= 0) || math.IsInf(p.Scale, 0) {
			return fmt.Errorf("gaussian init needs finite scale >= 0, got %v", p.Scale)
		}
	case InitXavier:
	default:
		return fmt.Errorf("unknown init distribution %q", p.Distribution)
	}
	return nil
}

func (p InitParams) fill(t *neural.Topology, params []float64, rng *rand.Rand) {
	switch p.Distribution {
	case InitGaussian:
		for i := range params {
			params[i] = rng.NormFloat64() * p.Scale
		}
	case InitXavier:
		for li := 0; li < t.NumLayers(); li++ {
			l := t.Layer(li)
			scale := math.Sqrt(2.0 / float64(l.FanIn))
			for i := l.WeightsOffset; i < l.BiasOffset; i++ {
				params[i] = rng.NormFloat64() * scale
			}
			for i := l.BiasOffset; i < l.BiasOffset+l.Units; i++ {
				params[i] = 0
			}
		}
	default:
		span := p.Max - p.Min
		for i := range params {
			params[i] = p.Min + rng.Float64()*span
		}
	}
}
