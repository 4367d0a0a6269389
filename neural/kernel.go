package neural

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"
)

// ErrShapeMismatch is returned when an input or parameter buffer disagrees
// with the topology.
var ErrShapeMismatch = errors.New("shape mismatch")

// Scratch holds the two ping-pong activation buffers used by EvaluateInto.
// A Scratch must not be shared between goroutines; keep one per worker.
type Scratch struct {
	a, b []float64
}

// NewScratch allocates buffers wide enough for any layer of t.
func NewScratch(t *Topology) *Scratch {
	return &Scratch{
		a: make([]float64, t.maxWidth),
		b: make([]float64, t.maxWidth),
	}
}

func (s *Scratch) fit(t *Topology) {
	if len(s.a) < t.maxWidth {
		s.a = make([]float64, t.maxWidth)
		s.b = make([]float64, t.maxWidth)
	}
}

// Evaluate runs params against input and returns a freshly allocated output.
// It touches no shared mutable state and may be called concurrently.
func Evaluate(t *Topology, params, input []float64) ([]float64, error) {
	var s Scratch
	out, err := EvaluateInto(t, params, input, &s)
	if err != nil {
		return nil, err
	}
	result := make([]float64, len(out))
	copy(result, out)
	return result, nil
}

// EvaluateInto is the allocation-free form of Evaluate. The returned slice
// aliases s and is only valid until the next call with the same Scratch.
func EvaluateInto(t *Topology, params, input []float64, s *Scratch) ([]float64, error) {
	if len(input) != t.inputDim {
		return nil, fmt.Errorf("%w: input has %d values, topology expects %d", ErrShapeMismatch, len(input), t.inputDim)
	}
	if len(params) != t.paramCount {
		return nil, fmt.Errorf("%w: parameters have %d values, topology expects %d", ErrShapeMismatch, len(params), t.paramCount)
	}
	s.fit(t)

	cur := s.a[:t.inputDim]
	for i, x := range input {
		cur[i] = saturate(x)
	}
	next := s.b

	for _, l := range t.layers {
		out := next[:l.Units]
		copy(out, params[l.BiasOffset:l.BiasOffset+l.Units])

		w := blas64.General{
			Rows:   l.Units,
			Cols:   l.FanIn,
			Stride: l.FanIn,
			Data:   params[l.WeightsOffset:l.BiasOffset],
		}
		x := blas64.Vector{N: l.FanIn, Inc: 1, Data: cur}
		y := blas64.Vector{N: l.Units, Inc: 1, Data: out}
		// out = W·x + b
		blas64.Gemv(blas.NoTrans, 1, w, x, 1, y)

		for i, v := range out {
			out[i] = saturate(v)
		}
		l.Activation.apply(out)

		next = cur[:cap(cur)]
		cur = out
	}

	return cur, nil
}
