package evolution

import (
	"fmt"

	"github.com/pthm-cable/neuroevo/genome"
)

// Config holds the generation-transition parameters.
type Config struct {
	genome.MutationParams  `yaml:",inline"`
	genome.CrossoverParams `yaml:",inline"`

	CrossoverRate  float64 `yaml:"crossover_rate"`  // probability a parent pair recombines instead of cloning
	EliteCount     int     `yaml:"elite_count"`     // top genomes copied unmodified
	TournamentSize int     `yaml:"tournament_size"` // candidates sampled per selection draw
}

// DefaultConfig returns a moderate configuration for small feedforward models.
func DefaultConfig() Config {
	return Config{
		MutationParams: genome.MutationParams{
			Rate:        0.1,
			Strength:    0.1,
			BigRate:     0.01,
			BigStrength: 0.5,
			ResetMin:    -1,
			ResetMax:    1,
		},
		CrossoverParams: genome.CrossoverParams{
			Mode:     genome.CrossoverUniform,
			Eta:      15,
			GeneRate: 0.9,
			ClampMin: -1,
			ClampMax: 1,
		},
		CrossoverRate:  0.7,
		EliteCount:     2,
		TournamentSize: 3,
	}
}

// Validate checks the config against a population size.
func (c Config) Validate(populationSize int) error {
	if populationSize < 2 {
		return fmt.Errorf("%w: population size must be >= 2, got %d", ErrInvalidConfig, populationSize)
	}
	for name, p := range map[string]float64{
		"mutation_rate":  c.Rate,
		"crossover_rate": c.CrossoverRate,
		"big_rate":       c.BigRate,
		"reset_chance":   c.ResetChance,
		"sbx_gene_rate":  c.GeneRate,
	} {
		if !(p >= 0 && p <= 1) {
			return fmt.Errorf("%w: %s must be in [0, 1], got %v", ErrInvalidConfig, name, p)
		}
	}
	if !(c.Strength >= 0) || !(c.BigStrength >= 0) {
		return fmt.Errorf("%w: mutation strengths must be >= 0", ErrInvalidConfig)
	}
	if c.ResetMaxFraction < 0 || c.ResetMaxFraction > 1 {
		return fmt.Errorf("%w: reset_max_fraction must be in [0, 1], got %v", ErrInvalidConfig, c.ResetMaxFraction)
	}
	if c.EliteCount < 0 || c.EliteCount > populationSize {
		return fmt.Errorf("%w: elite_count must be in [0, %d], got %d", ErrInvalidConfig, populationSize, c.EliteCount)
	}
	if c.TournamentSize < 1 {
		return fmt.Errorf("%w: tournament_size must be >= 1, got %d", ErrInvalidConfig, c.TournamentSize)
	}
	switch c.Mode {
	case genome.CrossoverUniform, "":
	case genome.CrossoverSBX:
		if c.Eta < 0 {
			return fmt.Errorf("%w: sbx_eta must be >= 0, got %v", ErrInvalidConfig, c.Eta)
		}
	default:
		return fmt.Errorf("%w: unknown crossover mode %q", ErrInvalidConfig, c.Mode)
	}
	if c.Clamp && c.ClampMin > c.ClampMax {
		return fmt.Errorf("%w: clamp_min %v > clamp_max %v", ErrInvalidConfig, c.ClampMin, c.ClampMax)
	}
	return nil
}
