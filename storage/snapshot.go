package storage

import (
	"fmt"

	"github.com/pthm-cable/neuroevo/evolution"
	"github.com/pthm-cable/neuroevo/genome"
	"github.com/pthm-cable/neuroevo/neural"
)

// GenomeRecord is the stored form of one genome. Fitness is nil when unassigned.
type GenomeRecord struct {
	ID         uint64    `json:"id"`
	ParentIDs  []uint64  `json:"parent_ids,omitempty"`
	Age        int       `json:"age"`
	Parameters []float64 `json:"parameters"`
	Fitness    *float64  `json:"fitness,omitempty"`
}

// PopulationSnapshot is one generation of a run, sufficient to resume it.
type PopulationSnapshot struct {
	VersionedRecord
	RunID      string            `json:"run_id"`
	Generation int               `json:"generation"`
	Topology   neural.Descriptor `json:"topology"`
	NextID     uint64            `json:"next_id"`
	Genomes    []GenomeRecord    `json:"genomes"`
}

// Snapshot captures pop, including any fitness values already assigned.
func Snapshot(runID string, pop *evolution.Population) PopulationSnapshot {
	records := make([]GenomeRecord, len(pop.Genomes))
	for i, g := range pop.Genomes {
		r := GenomeRecord{
			ID:         uint64(g.ID),
			Age:        g.Age,
			Parameters: append([]float64(nil), g.Parameters...),
		}
		for _, p := range g.ParentIDs {
			r.ParentIDs = append(r.ParentIDs, uint64(p))
		}
		if f, ok := g.Fitness(); ok {
			r.Fitness = &f
		}
		records[i] = r
	}
	return PopulationSnapshot{
		VersionedRecord: currentVersion(),
		RunID:           runID,
		Generation:      pop.Generation,
		Topology:        pop.Topology().Descriptor(),
		NextID:          uint64(pop.IDs().Peek()),
		Genomes:         records,
	}
}

// Restore rebuilds the population. The ID source resumes where the snapshot
// left off, so a resumed run never reuses an ID.
func (s PopulationSnapshot) Restore() (*evolution.Population, error) {
	t, err := s.Topology.Build()
	if err != nil {
		return nil, fmt.Errorf("restoring generation %d: %w", s.Generation, err)
	}

	genomes := make([]*genome.Genome, len(s.Genomes))
	var maxID uint64
	for i, r := range s.Genomes {
		parents := make([]genome.ID, len(r.ParentIDs))
		for k, p := range r.ParentIDs {
			parents[k] = genome.ID(p)
		}
		g := genome.Restore(genome.ID(r.ID), parents, r.Age, r.Parameters)
		if r.Fitness != nil {
			if err := g.SetFitness(*r.Fitness); err != nil {
				return nil, fmt.Errorf("restoring genome %d: %w", r.ID, err)
			}
		}
		genomes[i] = g
		maxID = max(maxID, r.ID)
	}

	next := max(s.NextID, maxID+1)
	return evolution.FromGenomes(t, genomes, s.Generation, genome.NewIDSourceFrom(genome.ID(next)))
}
