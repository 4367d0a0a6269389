package main

import (
	"context"
	"io"
	"log/slog"
	"math"
	"slices"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"github.com/pthm-cable/neuroevo/config"
	"github.com/pthm-cable/neuroevo/sim"
	"github.com/pthm-cable/neuroevo/telemetry"
)

// failedFitness is returned for parameter vectors that do not produce a
// valid run. Finite so the optimizer can keep ranking candidates.
const failedFitness = 1e9

// tailFraction is the share of final generations averaged into the fitness.
const tailFraction = 0.25

// FitnessEvaluator runs short evolution runs and scores a hyperparameter
// vector by how good the final generations are.
type FitnessEvaluator struct {
	params      *ParamVector
	generations int
	seeds       []int64
	baseConfig  *config.Config
	parallel    int
	logger      *slog.Logger

	// Best run tracking
	mu             sync.Mutex
	bestFitness    float64
	bestHallOfFame *telemetry.HallOfFame
	lastMean       float64 // tail mean fitness from the most recent Evaluate call
}

// NewFitnessEvaluator creates a new evaluator.
func NewFitnessEvaluator(params *ParamVector, generations int, seeds []int64, baseCfg *config.Config, parallel int) *FitnessEvaluator {
	return &FitnessEvaluator{
		params:      params,
		generations: generations,
		seeds:       seeds,
		baseConfig:  baseCfg,
		parallel:    max(parallel, 1),
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		bestFitness: math.Inf(1),
	}
}

// BestHallOfFame returns the hall of fame from the best evaluation.
func (fe *FitnessEvaluator) BestHallOfFame() *telemetry.HallOfFame {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.bestHallOfFame
}

// LastMean returns the tail mean fitness from the most recent evaluation.
func (fe *FitnessEvaluator) LastMean() float64 {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.lastMean
}

// seedResult holds the result from one seed evaluation.
type seedResult struct {
	fitness    float64
	tailMean   float64
	hallOfFame *telemetry.HallOfFame
	err        error
}

// Evaluate computes fitness for a parameter vector (lower = better).
// Fitness is the negated average best fitness over the tail generations.
func (fe *FitnessEvaluator) Evaluate(x []float64) float64 {
	cfg := fe.copyConfig()
	fe.params.ApplyToConfig(cfg, x)
	if err := cfg.Validate(); err != nil {
		fe.logger.Debug("invalid candidate", "error", err)
		return failedFitness
	}

	// Run all seeds in parallel
	results := make([]seedResult, len(fe.seeds))
	p := pool.New().WithMaxGoroutines(fe.parallel)
	for i, seed := range fe.seeds {
		p.Go(func() {
			results[i] = fe.runSimulation(cfg, seed)
		})
	}
	p.Wait()

	var totalFitness, totalMean float64
	bestSeedFitness := math.Inf(1)
	var bestSeedHallOfFame *telemetry.HallOfFame
	for _, r := range results {
		if r.err != nil {
			fe.logger.Debug("run failed", "error", r.err)
			return failedFitness
		}
		totalFitness += r.fitness
		totalMean += r.tailMean
		if r.fitness < bestSeedFitness {
			bestSeedFitness = r.fitness
			bestSeedHallOfFame = r.hallOfFame
		}
	}

	n := float64(len(fe.seeds))
	avgFitness := totalFitness / n

	fe.mu.Lock()
	if avgFitness < fe.bestFitness {
		fe.bestFitness = avgFitness
		fe.bestHallOfFame = bestSeedHallOfFame
	}
	fe.lastMean = totalMean / n
	fe.mu.Unlock()

	return avgFitness
}

// runSimulation executes one evolution run with a private config copy.
func (fe *FitnessEvaluator) runSimulation(base *config.Config, seed int64) seedResult {
	cfg := cloneConfig(base)
	cfg.Simulation.Workers = 1

	var history []telemetry.GenerationStats
	s, err := sim.New(sim.Options{
		Config:  cfg,
		Seed:    seed,
		Logger:  fe.logger,
		OnStats: func(st telemetry.GenerationStats) { history = append(history, st) },
	})
	if err != nil {
		return seedResult{err: err}
	}
	if err := s.Run(context.Background(), fe.generations); err != nil {
		return seedResult{err: err}
	}

	best, mean := tailAverages(history)
	return seedResult{
		fitness:    -best,
		tailMean:   mean,
		hallOfFame: s.HallOfFame(),
	}
}

// tailAverages averages best and mean fitness over the final generations.
func tailAverages(history []telemetry.GenerationStats) (best, mean float64) {
	if len(history) == 0 {
		return -failedFitness, -failedFitness
	}
	k := max(1, int(math.Ceil(float64(len(history))*tailFraction)))
	tail := history[len(history)-k:]
	for _, st := range tail {
		best += st.Best
		mean += st.Mean
	}
	return best / float64(k), mean / float64(k)
}

// copyConfig creates a copy of the base config with output and persistence
// disabled.
func (fe *FitnessEvaluator) copyConfig() *config.Config {
	cfg := cloneConfig(fe.baseConfig)
	cfg.Telemetry.OutputDir = ""
	cfg.Telemetry.LogStats = false
	cfg.Telemetry.MetricsAddr = ""
	cfg.Storage.Backend = "none"
	return cfg
}

// cloneConfig deep-copies the mutable parts of cfg. The derived topology is
// immutable and shared.
func cloneConfig(cfg *config.Config) *config.Config {
	c := *cfg
	c.Model.Layers = slices.Clone(cfg.Model.Layers)
	return &c
}
