// Package genome implements the unit of selection: a flat parameter buffer for a
// neural.Topology plus fitness and lineage metadata.
package genome

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync/atomic"

	"github.com/pthm-cable/neuroevo/neural"
)

// ErrTopologyMismatch is returned when two genomes with different parameter
// lengths are recombined.
var ErrTopologyMismatch = errors.New("topology mismatch")

// unassigned marks an empty fitness slot. Non-finite fitness values are
// rejected before they reach a slot, so NaN cannot collide with a real score.
var unassigned = math.Float64bits(math.NaN())

// Genome is one candidate solution. Genomes are always handled by pointer;
// the fitness slot must not be copied.
type Genome struct {
	ID         ID
	ParentIDs  []ID // nil for founders
	Age        int  // generations survived unchanged through elitism
	Parameters []float64

	fitness atomic.Uint64
}

func newGenome(id ID, params []float64) *Genome {
	g := &Genome{ID: id, Parameters: params}
	g.fitness.Store(unassigned)
	return g
}

// FromParameters wraps an existing parameter buffer as a founder genome.
// The buffer is copied.
func FromParameters(params []float64, ids *IDSource) *Genome {
	p := make([]float64, len(params))
	copy(p, params)
	return newGenome(ids.Next(), p)
}

// Restore rebuilds a genome with a known identity, e.g. from storage. The
// parameter buffer is copied and the fitness slot starts unassigned.
func Restore(id ID, parents []ID, age int, params []float64) *Genome {
	p := make([]float64, len(params))
	copy(p, params)
	g := newGenome(id, p)
	if len(parents) > 0 {
		g.ParentIDs = append([]ID(nil), parents...)
	}
	g.Age = age
	return g
}

// New creates a founder genome for t with parameters drawn from init using rng.
func New(t *neural.Topology, rng *rand.Rand, init InitParams, ids *IDSource) *Genome {
	g := newGenome(ids.Next(), make([]float64, t.ParamCount()))
	init.fill(t, g.Parameters, rng)
	return g
}

// Create is New with a dedicated random stream seeded by seed, so the same
// seed always yields the same parameters.
func Create(t *neural.Topology, seed int64, init InitParams, ids *IDSource) *Genome {
	return New(t, rand.New(rand.NewSource(seed)), init, ids)
}

// Fitness returns the assigned fitness and whether one has been assigned.
func (g *Genome) Fitness() (float64, bool) {
	bits := g.fitness.Load()
	if bits == unassigned {
		return 0, false
	}
	return math.Float64frombits(bits), true
}

// HasFitness reports whether a fitness value has been assigned.
func (g *Genome) HasFitness() bool {
	return g.fitness.Load() != unassigned
}

// SetFitness stores a fitness value. It is safe to call concurrently with
// other SetFitness and Fitness calls. Non-finite values are rejected.
func (g *Genome) SetFitness(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("genome %d: non-finite fitness %v", g.ID, v)
	}
	g.fitness.Store(math.Float64bits(v))
	return nil
}

// ResetFitness clears the fitness slot.
func (g *Genome) ResetFitness() {
	g.fitness.Store(unassigned)
}

// Clone returns a copy with a new ID, the same parameters and no fitness.
func (g *Genome) Clone(ids *IDSource) *Genome {
	p := make([]float64, len(g.Parameters))
	copy(p, g.Parameters)
	c := newGenome(ids.Next(), p)
	c.ParentIDs = []ID{g.ID, g.ID}
	return c
}

// Len returns the parameter count.
func (g *Genome) Len() int {
	return len(g.Parameters)
}

// Record captures the genome's model for persistence.
func (g *Genome) Record(t *neural.Topology) neural.ModelRecord {
	return neural.NewModelRecord(t, g.Parameters)
}
