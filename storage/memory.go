package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/pthm-cable/neuroevo/evolution"
)

type populationKey struct {
	runID      string
	generation int
}

type modelKey struct {
	runID, name string
}

// MemoryStore keeps encoded payloads in maps. Values go through the same
// codec as SQLiteStore so callers never share memory with the store.
type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	runs        map[string][]byte
	populations map[populationKey][]byte
	history     map[string][]evolution.Stats
	models      map[modelKey][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.runs = make(map[string][]byte)
	s.populations = make(map[populationKey][]byte)
	s.history = make(map[string][]evolution.Stats)
	s.models = make(map[modelKey][]byte)
	return nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run RunRecord) error {
	payload, err := EncodeRun(run)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return ErrNotInitialized
	}
	s.runs[run.ID] = payload
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.initialized {
		return RunRecord{}, false, ErrNotInitialized
	}
	payload, ok := s.runs[id]
	if !ok {
		return RunRecord{}, false, nil
	}
	run, err := DecodeRun(payload)
	return run, err == nil, err
}

func (s *MemoryStore) SavePopulation(_ context.Context, snap PopulationSnapshot) error {
	payload, err := EncodePopulation(snap)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return ErrNotInitialized
	}
	s.populations[populationKey{snap.RunID, snap.Generation}] = payload
	return nil
}

func (s *MemoryStore) GetPopulation(_ context.Context, runID string, generation int) (PopulationSnapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.initialized {
		return PopulationSnapshot{}, false, ErrNotInitialized
	}
	payload, ok := s.populations[populationKey{runID, generation}]
	if !ok {
		return PopulationSnapshot{}, false, nil
	}
	snap, err := DecodePopulation(payload)
	return snap, err == nil, err
}

func (s *MemoryStore) LatestPopulation(ctx context.Context, runID string) (PopulationSnapshot, bool, error) {
	s.mu.RLock()
	latest := -1
	for k := range s.populations {
		if k.runID == runID && k.generation > latest {
			latest = k.generation
		}
	}
	s.mu.RUnlock()
	if latest < 0 {
		return PopulationSnapshot{}, false, nil
	}
	return s.GetPopulation(ctx, runID, latest)
}

func (s *MemoryStore) AppendGeneration(_ context.Context, runID string, stats evolution.Stats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return ErrNotInitialized
	}
	h := s.history[runID]
	// Replace an existing entry for the same generation, keep order by generation.
	i := sort.Search(len(h), func(i int) bool { return h[i].Generation >= stats.Generation })
	if i < len(h) && h[i].Generation == stats.Generation {
		h[i] = stats
	} else {
		h = append(h, evolution.Stats{})
		copy(h[i+1:], h[i:])
		h[i] = stats
	}
	s.history[runID] = h
	return nil
}

func (s *MemoryStore) GetHistory(_ context.Context, runID string) ([]evolution.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.initialized {
		return nil, ErrNotInitialized
	}
	return append([]evolution.Stats(nil), s.history[runID]...), nil
}

func (s *MemoryStore) SaveModel(_ context.Context, entry ModelEntry) error {
	payload, err := EncodeModel(entry)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return ErrNotInitialized
	}
	s.models[modelKey{entry.RunID, entry.Name}] = payload
	return nil
}

func (s *MemoryStore) GetModel(_ context.Context, runID, name string) (ModelEntry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.initialized {
		return ModelEntry{}, false, ErrNotInitialized
	}
	payload, ok := s.models[modelKey{runID, name}]
	if !ok {
		return ModelEntry{}, false, nil
	}
	entry, err := DecodeModel(payload)
	return entry, err == nil, err
}
