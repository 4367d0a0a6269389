// Package neural provides the fixed-topology feedforward models evolved by the
// genetic algorithm. Parameters live in one flat buffer per genome; a Topology
// describes how that buffer is sliced into per-layer weights and biases.
package neural

import (
	"errors"
	"fmt"
)

// ErrInvalidTopology is returned when a Descriptor cannot be built.
var ErrInvalidTopology = errors.New("invalid topology")

// LayerSpec describes one computed layer (hidden or output).
type LayerSpec struct {
	Units      int        `yaml:"units" json:"units"`
	Activation Activation `yaml:"activation" json:"activation"`
}

// Descriptor is the serializable form of a Topology. Building the same
// Descriptor always yields the same layer shapes and parameter layout.
type Descriptor struct {
	InputDim int         `yaml:"input_dim" json:"input_dim"`
	Layers   []LayerSpec `yaml:"layers" json:"layers"` // last layer is the output layer
}

// Layout locates one layer's parameters inside the flat buffer.
type Layout struct {
	FanIn         int
	Units         int
	Activation    Activation
	WeightsOffset int // row-major Units x FanIn
	BiasOffset    int // WeightsOffset + Units*FanIn
}

// Topology is an immutable model shape shared read-only by every genome in a run.
type Topology struct {
	inputDim   int
	layers     []Layout
	paramCount int
	maxWidth   int
}

// Build validates the descriptor and computes the parameter layout.
// Layers are laid out in ascending order, each as all weights then all biases.
func (d Descriptor) Build() (*Topology, error) {
	if d.InputDim < 1 {
		return nil, fmt.Errorf("%w: input_dim must be >= 1, got %d", ErrInvalidTopology, d.InputDim)
	}
	if len(d.Layers) == 0 {
		return nil, fmt.Errorf("%w: at least one layer is required", ErrInvalidTopology)
	}

	t := &Topology{
		inputDim: d.InputDim,
		layers:   make([]Layout, len(d.Layers)),
		maxWidth: d.InputDim,
	}

	fanIn := d.InputDim
	offset := 0
	for i, spec := range d.Layers {
		if spec.Units < 1 {
			return nil, fmt.Errorf("%w: layer %d has %d units", ErrInvalidTopology, i, spec.Units)
		}
		if !spec.Activation.valid() {
			return nil, fmt.Errorf("%w: layer %d has unknown activation %d", ErrInvalidTopology, i, spec.Activation)
		}
		t.layers[i] = Layout{
			FanIn:         fanIn,
			Units:         spec.Units,
			Activation:    spec.Activation,
			WeightsOffset: offset,
			BiasOffset:    offset + spec.Units*fanIn,
		}
		offset += spec.Units*fanIn + spec.Units
		if spec.Units > t.maxWidth {
			t.maxWidth = spec.Units
		}
		fanIn = spec.Units
	}
	t.paramCount = offset

	return t, nil
}

// MustBuild is like Build but panics on error. Intended for tests and constants.
func (d Descriptor) MustBuild() *Topology {
	t, err := d.Build()
	if err != nil {
		panic(err)
	}
	return t
}

// InputDim returns the expected observation length.
func (t *Topology) InputDim() int { return t.inputDim }

// OutputDim returns the produced action length.
func (t *Topology) OutputDim() int { return t.layers[len(t.layers)-1].Units }

// ParamCount returns L, the length of every genome's parameter buffer.
func (t *Topology) ParamCount() int { return t.paramCount }

// NumLayers returns the number of computed layers.
func (t *Topology) NumLayers() int { return len(t.layers) }

// Layer returns the layout of computed layer i.
func (t *Topology) Layer(i int) Layout { return t.layers[i] }

// Descriptor returns a copy of the descriptor this topology was built from.
func (t *Topology) Descriptor() Descriptor {
	d := Descriptor{
		InputDim: t.inputDim,
		Layers:   make([]LayerSpec, len(t.layers)),
	}
	for i, l := range t.layers {
		d.Layers[i] = LayerSpec{Units: l.Units, Activation: l.Activation}
	}
	return d
}

// Equal reports whether two topologies have identical shapes and activations.
func (t *Topology) Equal(other *Topology) bool {
	if t == other {
		return true
	}
	if t == nil || other == nil || t.inputDim != other.inputDim || len(t.layers) != len(other.layers) {
		return false
	}
	for i := range t.layers {
		if t.layers[i] != other.layers[i] {
			return false
		}
	}
	return true
}

// String renders the shape as e.g. "4-8(tanh)-2(tanh)".
func (t *Topology) String() string {
	s := fmt.Sprintf("%d", t.inputDim)
	for _, l := range t.layers {
		s += fmt.Sprintf("-%d(%s)", l.Units, l.Activation)
	}
	return s
}
