package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"sort"

	"github.com/pthm-cable/neuroevo/evolution"
	"github.com/pthm-cable/neuroevo/genome"
	"github.com/pthm-cable/neuroevo/neural"
)

// HallEntry is one proven model and the fitness it earned.
type HallEntry struct {
	GenomeID   uint64             `json:"genome_id"`
	Generation int                `json:"generation"`
	Fitness    float64            `json:"fitness"`
	Age        int                `json:"age"`
	Model      neural.ModelRecord `json:"model"`
}

// HallOfFame keeps the best models seen across a run, sorted by fitness
// descending. Each genome ID and each parameter vector appears at most once,
// so an elite cloned forward under a new ID keeps a single entry holding its
// best score.
type HallOfFame struct {
	entries []HallEntry
	maxSize int
}

// NewHallOfFame creates a hall holding at most maxSize entries.
func NewHallOfFame(maxSize int) *HallOfFame {
	if maxSize < 1 {
		maxSize = 1
	}
	return &HallOfFame{entries: make([]HallEntry, 0, maxSize), maxSize: maxSize}
}

// Consider offers every evaluated genome of pop to the hall and returns how
// many were admitted.
func (hof *HallOfFame) Consider(pop *evolution.Population) int {
	added := 0
	for _, g := range pop.Genomes {
		if hof.consider(g, pop.Generation, pop.Topology()) {
			added++
		}
	}
	return added
}

func (hof *HallOfFame) consider(g *genome.Genome, generation int, t *neural.Topology) bool {
	f, ok := g.Fitness()
	if !ok {
		return false
	}
	if dup := hof.find(g); dup >= 0 {
		if f <= hof.entries[dup].Fitness {
			return false
		}
		hof.entries = slices.Delete(hof.entries, dup, dup+1)
	} else if len(hof.entries) >= hof.maxSize && f <= hof.entries[len(hof.entries)-1].Fitness {
		return false
	}
	hof.insertEntry(HallEntry{
		GenomeID:   uint64(g.ID),
		Generation: generation,
		Fitness:    f,
		Age:        g.Age,
		Model:      g.Record(t),
	})
	return true
}

// find returns the index of the entry holding g's ID or parameters, or -1.
func (hof *HallOfFame) find(g *genome.Genome) int {
	for i, e := range hof.entries {
		if e.GenomeID == uint64(g.ID) || slices.Equal(e.Model.Parameters, g.Parameters) {
			return i
		}
	}
	return -1
}

// insertEntry adds an entry, maintaining sorted order by fitness.
// If the hall is full, the lowest-fitness entry is removed.
func (hof *HallOfFame) insertEntry(entry HallEntry) {
	idx := sort.Search(len(hof.entries), func(i int) bool {
		return hof.entries[i].Fitness < entry.Fitness
	})
	if len(hof.entries) >= hof.maxSize && idx >= hof.maxSize {
		return
	}

	hof.entries = append(hof.entries, HallEntry{})
	copy(hof.entries[idx+1:], hof.entries[idx:])
	hof.entries[idx] = entry

	if len(hof.entries) > hof.maxSize {
		hof.entries = hof.entries[:hof.maxSize]
	}
}

// Best returns the top entry.
func (hof *HallOfFame) Best() (HallEntry, bool) {
	if len(hof.entries) == 0 {
		return HallEntry{}, false
	}
	return hof.entries[0], true
}

// Entries returns the entries, best first.
func (hof *HallOfFame) Entries() []HallEntry {
	return hof.entries
}

// Size returns the number of entries.
func (hof *HallOfFame) Size() int { return len(hof.entries) }

// MarshalJSON serializes the hall of fame to JSON.
func (hof *HallOfFame) MarshalJSON() ([]byte, error) {
	return json.MarshalIndent(hof.entries, "", "  ")
}

// LoadHallOfFameFromFile reads a hall written by OutputManager.WriteHallOfFame.
// Entries whose model record does not restore are rejected.
func LoadHallOfFameFromFile(path string) (*HallOfFame, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading hall of fame: %w", err)
	}

	var entries []HallEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing hall of fame JSON: %w", err)
	}

	hof := NewHallOfFame(max(len(entries), 1))
	for i, e := range entries {
		if _, _, err := e.Model.Restore(); err != nil {
			return nil, fmt.Errorf("hall of fame entry %d: %w", i, err)
		}
		hof.insertEntry(e)
	}
	return hof, nil
}
