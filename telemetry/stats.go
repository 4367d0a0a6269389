// Package telemetry records per-generation statistics, timings and the best
// models seen during a run.
package telemetry

import (
	"log/slog"
	"sort"
	"time"

	"github.com/pthm-cable/neuroevo/evolution"
)

// GenerationStats holds the aggregated outcome of one evaluated generation.
type GenerationStats struct {
	Generation int     `csv:"generation"`
	Size       int     `csv:"size"`
	Best       float64 `csv:"best"`
	Mean       float64 `csv:"mean"`
	Worst      float64 `csv:"worst"`
	StdDev     float64 `csv:"std"`
	P10        float64 `csv:"p10"`
	P50        float64 `csv:"p50"`
	P90        float64 `csv:"p90"`
	BestID     uint64  `csv:"best_id"`
	BestAge    int     `csv:"best_age"`

	// Host-side accounting for the episode
	Reported  int64   `csv:"reported"`
	Rejected  int64   `csv:"rejected"`
	ElapsedMS float64 `csv:"elapsed_ms"`
}

// Percentile calculates the p-th percentile of a sorted slice.
// p should be in [0, 1]. Returns 0 if slice is empty.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	// Linear interpolation
	idx := p * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// ComputeGenerationStats summarizes a fully evaluated population.
func ComputeGenerationStats(pop *evolution.Population, elapsed time.Duration) (GenerationStats, error) {
	s, err := pop.Statistics()
	if err != nil {
		return GenerationStats{}, err
	}

	values := make([]float64, 0, pop.Size())
	bestAge := 0
	for _, g := range pop.Genomes {
		f, _ := g.Fitness()
		values = append(values, f)
		if g.ID == s.BestID {
			bestAge = g.Age
		}
	}
	sort.Float64s(values)

	return GenerationStats{
		Generation: s.Generation,
		Size:       s.Size,
		Best:       s.Best,
		Mean:       s.Mean,
		Worst:      s.Worst,
		StdDev:     s.StdDev,
		P10:        Percentile(values, 0.10),
		P50:        Percentile(values, 0.50),
		P90:        Percentile(values, 0.90),
		BestID:     uint64(s.BestID),
		BestAge:    bestAge,
		ElapsedMS:  float64(elapsed.Microseconds()) / 1000,
	}, nil
}

// LogValue implements slog.LogValuer for structured logging.
func (s GenerationStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("generation", s.Generation),
		slog.Int("size", s.Size),
		slog.Float64("best", s.Best),
		slog.Float64("mean", s.Mean),
		slog.Float64("worst", s.Worst),
		slog.Float64("std", s.StdDev),
		slog.Float64("p10", s.P10),
		slog.Float64("p50", s.P50),
		slog.Float64("p90", s.P90),
		slog.Uint64("best_id", s.BestID),
		slog.Int("best_age", s.BestAge),
		slog.Int64("reported", s.Reported),
		slog.Int64("rejected", s.Rejected),
		slog.Float64("elapsed_ms", s.ElapsedMS),
	)
}

// LogStats logs the generation stats using slog.
func (s GenerationStats) LogStats() {
	slog.Info("generation",
		"generation", s.Generation,
		"best", s.Best,
		"mean", s.Mean,
		"worst", s.Worst,
		"std", s.StdDev,
		"p50", s.P50,
		"best_id", s.BestID,
		"best_age", s.BestAge,
		"rejected", s.Rejected,
		"elapsed_ms", s.ElapsedMS,
	)
}
