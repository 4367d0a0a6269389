package evolution

import (
	"math/rand"

	"github.com/pthm-cable/neuroevo/genome"
)

// tournament samples size genomes uniformly with replacement and returns the
// fittest. The first-drawn candidate wins ties.
func tournament(rng *rand.Rand, genomes []*genome.Genome, size int) *genome.Genome {
	best := genomes[rng.Intn(len(genomes))]
	bestFit, _ := best.Fitness()
	for i := 1; i < size; i++ {
		candidate := genomes[rng.Intn(len(genomes))]
		if f, _ := candidate.Fitness(); f > bestFit {
			best, bestFit = candidate, f
		}
	}
	return best
}

// selectParents runs two independent tournaments.
func selectParents(rng *rand.Rand, genomes []*genome.Genome, size int) (*genome.Genome, *genome.Genome) {
	return tournament(rng, genomes, size), tournament(rng, genomes, size)
}
