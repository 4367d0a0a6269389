// Package evolution owns populations of genomes and the transition from one
// generation to the next.
package evolution

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/pthm-cable/neuroevo/genome"
	"github.com/pthm-cable/neuroevo/neural"
)

// Population is one generation of genomes sharing a topology. Its membership
// never changes after construction; only fitness slots are written.
type Population struct {
	Genomes    []*genome.Genome
	Generation int

	topology *neural.Topology
	ids      *genome.IDSource
	index    map[genome.ID]int
}

// NewPopulation creates generation 0 with size randomly initialized genomes.
// The same seed always yields the same genomes.
func NewPopulation(t *neural.Topology, size int, seed int64, init genome.InitParams, ids *genome.IDSource) (*Population, error) {
	if size < 2 {
		return nil, fmt.Errorf("%w: population size must be >= 2, got %d", ErrInvalidConfig, size)
	}
	if err := init.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if ids == nil {
		ids = genome.NewIDSource()
	}

	rng := rand.New(rand.NewSource(seed))
	genomes := make([]*genome.Genome, size)
	for i := range genomes {
		genomes[i] = genome.New(t, rng, init, ids)
	}
	return newPopulation(t, genomes, 0, ids), nil
}

// FromGenomes builds a population from existing genomes, e.g. loaded from storage.
func FromGenomes(t *neural.Topology, genomes []*genome.Genome, generation int, ids *genome.IDSource) (*Population, error) {
	if len(genomes) < 2 {
		return nil, fmt.Errorf("%w: population size must be >= 2, got %d", ErrInvalidConfig, len(genomes))
	}
	for _, g := range genomes {
		if g.Len() != t.ParamCount() {
			return nil, fmt.Errorf("%w: genome %d has %d parameters, topology %s expects %d",
				genome.ErrTopologyMismatch, g.ID, g.Len(), t, t.ParamCount())
		}
	}
	if ids == nil {
		var maxID genome.ID
		for _, g := range genomes {
			maxID = max(maxID, g.ID)
		}
		ids = genome.NewIDSourceFrom(maxID + 1)
	}
	p := newPopulation(t, genomes, generation, ids)
	if len(p.index) != len(genomes) {
		return nil, fmt.Errorf("%w: duplicate genome ids", ErrInvalidConfig)
	}
	return p, nil
}

func newPopulation(t *neural.Topology, genomes []*genome.Genome, generation int, ids *genome.IDSource) *Population {
	index := make(map[genome.ID]int, len(genomes))
	for i, g := range genomes {
		index[g.ID] = i
	}
	return &Population{
		Genomes:    genomes,
		Generation: generation,
		topology:   t,
		ids:        ids,
		index:      index,
	}
}

// Topology returns the shared model topology.
func (p *Population) Topology() *neural.Topology { return p.topology }

// IDs returns the run's genome ID source.
func (p *Population) IDs() *genome.IDSource { return p.ids }

// Size returns the number of genomes.
func (p *Population) Size() int { return len(p.Genomes) }

// Get returns the genome with the given ID.
func (p *Population) Get(id genome.ID) (*genome.Genome, bool) {
	i, ok := p.index[id]
	if !ok {
		return nil, false
	}
	return p.Genomes[i], true
}

// AssignFitness records the fitness of one genome. Reports may arrive
// concurrently from many goroutines; each genome has its own atomic slot.
// A later report for the same genome replaces the earlier one.
func (p *Population) AssignFitness(id genome.ID, value float64) error {
	i, ok := p.index[id]
	if !ok {
		return fmt.Errorf("%w: %d (generation %d)", ErrUnknownGenome, id, p.Generation)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("%w: genome %d reported %v", ErrInvalidFitness, id, value)
	}
	return p.Genomes[i].SetFitness(value)
}

// Evaluated returns how many genomes have a fitness value.
func (p *Population) Evaluated() int {
	n := 0
	for _, g := range p.Genomes {
		if g.HasFitness() {
			n++
		}
	}
	return n
}

// Complete reports whether every genome has a fitness value.
func (p *Population) Complete() bool {
	return p.Evaluated() == len(p.Genomes)
}

// Pending returns the IDs still waiting for a fitness report.
func (p *Population) Pending() []genome.ID {
	var ids []genome.ID
	for _, g := range p.Genomes {
		if !g.HasFitness() {
			ids = append(ids, g.ID)
		}
	}
	return ids
}

func (p *Population) requireComplete() error {
	if n := p.Evaluated(); n != len(p.Genomes) {
		return fmt.Errorf("%w: generation %d has %d of %d fitness values",
			ErrIncompleteEvaluation, p.Generation, n, len(p.Genomes))
	}
	return nil
}
