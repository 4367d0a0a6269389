package evolution

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/neuroevo/genome"
)

// Stats summarizes the fitness of one fully evaluated generation.
type Stats struct {
	Generation int
	Size       int
	Best       float64
	Mean       float64
	Worst      float64
	StdDev     float64
	Median     float64
	BestID     genome.ID
}

// Statistics computes best/mean/worst fitness. It fails with
// ErrIncompleteEvaluation if any genome lacks a fitness value.
func (p *Population) Statistics() (Stats, error) {
	if err := p.requireComplete(); err != nil {
		return Stats{}, err
	}

	values := make([]float64, len(p.Genomes))
	for i, g := range p.Genomes {
		values[i], _ = g.Fitness()
	}

	ranked := p.ranked()
	best, _ := ranked[0].Fitness()

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	return Stats{
		Generation: p.Generation,
		Size:       len(values),
		Best:       best,
		Mean:       stat.Mean(values, nil),
		Worst:      floats.Min(values),
		StdDev:     stat.StdDev(values, nil),
		Median:     stat.Quantile(0.5, stat.Empirical, sorted, nil),
		BestID:     ranked[0].ID,
	}, nil
}

// Ranked returns the genomes ordered by fitness descending, ties broken by
// lower ID. It fails with ErrIncompleteEvaluation if any fitness is missing.
func (p *Population) Ranked() ([]*genome.Genome, error) {
	if err := p.requireComplete(); err != nil {
		return nil, err
	}
	return p.ranked(), nil
}

func (p *Population) ranked() []*genome.Genome {
	ranked := make([]*genome.Genome, len(p.Genomes))
	copy(ranked, p.Genomes)
	sort.Slice(ranked, func(i, j int) bool {
		fi, _ := ranked[i].Fitness()
		fj, _ := ranked[j].Fitness()
		if fi != fj {
			return fi > fj
		}
		return ranked[i].ID < ranked[j].ID
	})
	return ranked
}
