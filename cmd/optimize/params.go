package main

import (
	"math"

	"github.com/pthm-cable/neuroevo/config"
)

// ParamSpec defines a single optimizable parameter.
type ParamSpec struct {
	Name    string  // Human-readable name
	Path    string  // Config path for logging
	Min     float64 // Lower bound
	Max     float64 // Upper bound
	Default float64 // Default value
}

// ParamVector holds the set of all optimizable parameters.
type ParamVector struct {
	Specs []ParamSpec
}

// NewParamVector creates the standard set of evolution hyperparameters.
func NewParamVector() *ParamVector {
	return &ParamVector{
		Specs: []ParamSpec{
			// Mutation
			{Name: "mutation_rate", Path: "evolution.mutation_rate", Min: 0.01, Max: 0.5, Default: 0.1},
			{Name: "mutation_strength", Path: "evolution.mutation_strength", Min: 0.01, Max: 1.0, Default: 0.1},
			{Name: "big_rate", Path: "evolution.big_rate", Min: 0, Max: 0.1, Default: 0.01},
			{Name: "big_strength", Path: "evolution.big_strength", Min: 0.1, Max: 2.0, Default: 0.5},
			{Name: "reset_chance", Path: "evolution.reset_chance", Min: 0, Max: 0.2, Default: 0},
			// Recombination and selection
			{Name: "crossover_rate", Path: "evolution.crossover_rate", Min: 0, Max: 1, Default: 0.7},
			{Name: "elite_count", Path: "evolution.elite_count", Min: 0, Max: 8, Default: 2},
			{Name: "tournament_size", Path: "evolution.tournament_size", Min: 2, Max: 8, Default: 3},
		},
	}
}

// Dim returns the number of parameters.
func (pv *ParamVector) Dim() int {
	return len(pv.Specs)
}

// DefaultVector returns the default parameter values as a slice.
func (pv *ParamVector) DefaultVector() []float64 {
	v := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		v[i] = spec.Default
	}
	return v
}

// Normalize converts raw parameter values to [0,1] range.
func (pv *ParamVector) Normalize(raw []float64) []float64 {
	normalized := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		normalized[i] = (raw[i] - spec.Min) / (spec.Max - spec.Min)
	}
	return normalized
}

// Denormalize converts [0,1] values back to raw parameter values.
func (pv *ParamVector) Denormalize(normalized []float64) []float64 {
	raw := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		raw[i] = spec.Min + normalized[i]*(spec.Max-spec.Min)
	}
	return raw
}

// Clamp ensures all values are within bounds.
func (pv *ParamVector) Clamp(v []float64) []float64 {
	clamped := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		clamped[i] = math.Min(math.Max(v[i], spec.Min), spec.Max)
	}
	return clamped
}

// ApplyToConfig applies parameter values to a Config struct.
// Order must match Specs order.
func (pv *ParamVector) ApplyToConfig(cfg *config.Config, values []float64) {
	clamped := pv.Clamp(values)
	evo := &cfg.Evolution

	evo.Rate = clamped[0]
	evo.Strength = clamped[1]
	evo.BigRate = clamped[2]
	evo.BigStrength = clamped[3]
	evo.ResetChance = clamped[4]

	evo.CrossoverRate = clamped[5]
	// Elites may not fill the population
	evo.EliteCount = min(int(math.Round(clamped[6])), cfg.Population.Size-1)
	evo.TournamentSize = int(math.Round(clamped[7]))
}

// ExtractFromConfig extracts current parameter values from a Config struct.
func (pv *ParamVector) ExtractFromConfig(cfg *config.Config) []float64 {
	evo := cfg.Evolution
	return []float64{
		evo.Rate,
		evo.Strength,
		evo.BigRate,
		evo.BigStrength,
		evo.ResetChance,
		evo.CrossoverRate,
		float64(evo.EliteCount),
		float64(evo.TournamentSize),
	}
}
