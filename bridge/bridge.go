// Package bridge is the adapter between a host simulation and the evolution
// core. The host asks for actions per tick and reports fitness per episode;
// the bridge never selects, mutates or restructures a population.
package bridge

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/pthm-cable/neuroevo/evolution"
	"github.com/pthm-cable/neuroevo/genome"
	"github.com/pthm-cable/neuroevo/neural"
)

// ErrNoPopulation is returned when the bridge has not been given a population.
var ErrNoPopulation = errors.New("bridge: no population installed")

// Capability is what a host needs from the core.
type Capability interface {
	Act(g *genome.Genome, observation []float64) ([]float64, error)
	ReportFitness(id genome.ID, fitness float64) error
}

// ScratchActor is implemented by capabilities that can evaluate into a
// caller-owned buffer.
type ScratchActor interface {
	ActInto(g *genome.Genome, observation []float64, s *neural.Scratch) ([]float64, error)
	Topology() *neural.Topology
}

// Bridge serves the currently installed population. Act and ReportFitness are
// safe for concurrent use; Swap must not race with an in-flight episode.
type Bridge struct {
	pop      atomic.Pointer[evolution.Population]
	reported atomic.Int64
	rejected atomic.Int64
}

var (
	_ Capability   = (*Bridge)(nil)
	_ ScratchActor = (*Bridge)(nil)
)

// New returns a bridge serving pop.
func New(pop *evolution.Population) *Bridge {
	b := &Bridge{}
	b.pop.Store(pop)
	return b
}

// Population returns the installed population.
func (b *Bridge) Population() *evolution.Population {
	return b.pop.Load()
}

// Topology returns the shared topology of the installed population.
func (b *Bridge) Topology() *neural.Topology {
	if p := b.pop.Load(); p != nil {
		return p.Topology()
	}
	return nil
}

// Swap installs the next generation. The topology may not change mid-run.
func (b *Bridge) Swap(next *evolution.Population) error {
	if next == nil {
		return ErrNoPopulation
	}
	if cur := b.pop.Load(); cur != nil && !cur.Topology().Equal(next.Topology()) {
		return fmt.Errorf("%w: %s -> %s", genome.ErrTopologyMismatch, cur.Topology(), next.Topology())
	}
	b.pop.Store(next)
	b.reported.Store(0)
	b.rejected.Store(0)
	return nil
}

// Act evaluates g on one observation and returns a freshly allocated action.
func (b *Bridge) Act(g *genome.Genome, observation []float64) ([]float64, error) {
	t := b.Topology()
	if t == nil {
		return nil, ErrNoPopulation
	}
	return neural.Evaluate(t, g.Parameters, observation)
}

// ActInto is the allocation-free form of Act. The returned slice aliases s.
func (b *Bridge) ActInto(g *genome.Genome, observation []float64, s *neural.Scratch) ([]float64, error) {
	t := b.Topology()
	if t == nil {
		return nil, ErrNoPopulation
	}
	return neural.EvaluateInto(t, g.Parameters, observation, s)
}

// ReportFitness forwards an end-of-episode score to the population.
func (b *Bridge) ReportFitness(id genome.ID, fitness float64) error {
	p := b.pop.Load()
	if p == nil {
		return ErrNoPopulation
	}
	if err := p.AssignFitness(id, fitness); err != nil {
		b.rejected.Add(1)
		return err
	}
	b.reported.Add(1)
	return nil
}

// Counts returns accepted and rejected fitness reports since the last Swap.
func (b *Bridge) Counts() (reported, rejected int64) {
	return b.reported.Load(), b.rejected.Load()
}
