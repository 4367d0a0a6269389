package genome

import (
	"fmt"
	"math"
	"math/rand"
)

// Crossover modes.
const (
	CrossoverUniform = "uniform"
	CrossoverSBX     = "sbx"
)

// CrossoverParams selects and tunes the recombination operator.
type CrossoverParams struct {
	Mode string  `yaml:"crossover"`
	Eta  float64 `yaml:"sbx_eta"` // SBX distribution index; higher keeps children closer to parents
	// Per-gene probability of blending in SBX mode; other genes are swapped as in uniform.
	GeneRate float64 `yaml:"sbx_gene_rate"`

	Clamp    bool    `yaml:"clamp_children"`
	ClampMin float64 `yaml:"clamp_min"`
	ClampMax float64 `yaml:"clamp_max"`
}

// Recombine dispatches to the configured crossover operator and applies
// optional child clamping.
func (g *Genome) Recombine(other *Genome, p CrossoverParams, rng *rand.Rand, ids *IDSource) (*Genome, *Genome, error) {
	var a, b *Genome
	var err error
	switch p.Mode {
	case CrossoverSBX:
		a, b, err = g.CrossoverSBX(other, p.Eta, p.GeneRate, rng, ids)
	case CrossoverUniform, "":
		a, b, err = g.Crossover(other, rng, ids)
	default:
		return nil, nil, fmt.Errorf("unknown crossover mode %q", p.Mode)
	}
	if err != nil {
		return nil, nil, err
	}
	if p.Clamp {
		clamp(a.Parameters, p.ClampMin, p.ClampMax)
		clamp(b.Parameters, p.ClampMin, p.ClampMax)
	}
	return a, b, nil
}

// Crossover performs uniform crossover. For every index independently child A
// takes the value of g or other with probability 0.5 and child B takes the
// other one, so each child value is copied from a parent, never blended.
func (g *Genome) Crossover(other *Genome, rng *rand.Rand, ids *IDSource) (*Genome, *Genome, error) {
	a, b, err := g.children(other, ids)
	if err != nil {
		return nil, nil, err
	}
	for i, x := range g.Parameters {
		y := other.Parameters[i]
		if rng.Float64() < 0.5 {
			a.Parameters[i], b.Parameters[i] = x, y
		} else {
			a.Parameters[i], b.Parameters[i] = y, x
		}
	}
	return a, b, nil
}

// CrossoverSBX performs simulated binary crossover (Deb) per gene with
// probability geneRate; remaining genes are exchanged as in Crossover.
func (g *Genome) CrossoverSBX(other *Genome, eta, geneRate float64, rng *rand.Rand, ids *IDSource) (*Genome, *Genome, error) {
	a, b, err := g.children(other, ids)
	if err != nil {
		return nil, nil, err
	}
	for i, x := range g.Parameters {
		y := other.Parameters[i]
		if rng.Float64() < geneRate {
			a.Parameters[i], b.Parameters[i] = sbxPair(x, y, rng.Float64(), eta)
			continue
		}
		if rng.Float64() < 0.5 {
			a.Parameters[i], b.Parameters[i] = x, y
		} else {
			a.Parameters[i], b.Parameters[i] = y, x
		}
	}
	return a, b, nil
}

func (g *Genome) children(other *Genome, ids *IDSource) (*Genome, *Genome, error) {
	if len(g.Parameters) != len(other.Parameters) {
		return nil, nil, fmt.Errorf("%w: genome %d has %d parameters, genome %d has %d",
			ErrTopologyMismatch, g.ID, len(g.Parameters), other.ID, len(other.Parameters))
	}
	n := len(g.Parameters)
	a := newGenome(ids.Next(), make([]float64, n))
	b := newGenome(ids.Next(), make([]float64, n))
	a.ParentIDs = []ID{g.ID, other.ID}
	b.ParentIDs = []ID{g.ID, other.ID}
	return a, b, nil
}

// sbxPair returns the two SBX children of x1 and x2 for uniform sample u in
// [0, 1), in the parents' original order.
func sbxPair(x1, x2, u, eta float64) (float64, float64) {
	lo, hi := x1, x2
	if lo > hi {
		lo, hi = hi, lo
	}

	exp := 1 / (eta + 1)
	var betaQ float64
	if u <= 0.5 {
		betaQ = math.Pow(2*u, exp)
	} else {
		betaQ = math.Pow(1/(2*(1-u)), exp)
	}

	mid := 0.5 * (lo + hi)
	half := 0.5 * betaQ * (hi - lo)
	c1, c2 := mid-half, mid+half
	if x1 <= x2 {
		return c1, c2
	}
	return c2, c1
}

func clamp(v []float64, lo, hi float64) {
	for i, x := range v {
		if x < lo {
			v[i] = lo
		} else if x > hi {
			v[i] = hi
		}
	}
}
