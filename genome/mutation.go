package genome

import (
	"math"
	"math/rand"
)

// MutationParams configures Mutate.
type MutationParams struct {
	Rate     float64 `yaml:"mutation_rate"`     // per-parameter probability of perturbation
	Strength float64 `yaml:"mutation_strength"` // std-dev of the Gaussian perturbation

	// Occasional large perturbations: a mutated parameter uses BigStrength
	// instead of Strength with probability BigRate.
	BigRate     float64 `yaml:"big_rate"`
	BigStrength float64 `yaml:"big_strength"`

	// Per-genome chance of resetting between 1 and ResetMaxFraction*L
	// parameters to U[ResetMin, ResetMax].
	ResetChance      float64 `yaml:"reset_chance"`
	ResetMaxFraction float64 `yaml:"reset_max_fraction"`
	ResetMin         float64 `yaml:"reset_min"`
	ResetMax         float64 `yaml:"reset_max"`
}

// Mutate perturbs parameters in place and returns the mean absolute delta of
// the changes applied (0 if nothing changed).
func (g *Genome) Mutate(p MutationParams, rng *rand.Rand) float64 {
	var totalDelta float64
	var count int

	for i := range g.Parameters {
		if rng.Float64() >= p.Rate {
			continue
		}
		sigma := p.Strength
		if p.BigRate > 0 && rng.Float64() < p.BigRate {
			sigma = p.BigStrength
		}
		delta := rng.NormFloat64() * sigma
		g.Parameters[i] += delta
		totalDelta += math.Abs(delta)
		count++
	}

	if p.ResetChance > 0 && rng.Float64() < p.ResetChance {
		d, n := g.resetRandom(p, rng)
		totalDelta += d
		count += n
	}

	if count == 0 {
		return 0
	}
	return totalDelta / float64(count)
}

// resetRandom overwrites a random subset of unique parameters.
func (g *Genome) resetRandom(p MutationParams, rng *rand.Rand) (float64, int) {
	n := len(g.Parameters)
	if n == 0 {
		return 0, 0
	}

	k := 1
	if upper := int(math.Floor(p.ResetMaxFraction * float64(n))); upper > 0 {
		k = rng.Intn(upper + 1)
		if k < 1 {
			k = 1
		}
		if k > n {
			k = n
		}
	}

	lo, hi := p.ResetMin, p.ResetMax
	if lo > hi {
		lo, hi = hi, lo
	}

	var total float64
	for _, idx := range rng.Perm(n)[:k] {
		v := lo + rng.Float64()*(hi-lo)
		total += math.Abs(v - g.Parameters[idx])
		g.Parameters[idx] = v
	}
	return total, k
}
