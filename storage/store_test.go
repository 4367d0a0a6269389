package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/pthm-cable/neuroevo/evolution"
	"github.com/pthm-cable/neuroevo/genome"
	"github.com/pthm-cable/neuroevo/neural"
)

func testTopology() *neural.Topology {
	return neural.Descriptor{
		InputDim: 3,
		Layers: []neural.LayerSpec{
			{Units: 4, Activation: neural.ReLU},
			{Units: 2, Activation: neural.Sigmoid},
		},
	}.MustBuild()
}

func backends(t *testing.T) map[string]Store {
	t.Helper()
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": NewSQLiteStore(filepath.Join(t.TempDir(), "neuroevo.db")),
	}
}

func initStore(t *testing.T, s Store) {
	t.Helper()
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() { _ = CloseIfSupported(s) })
}

func TestRunRoundTrip(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			initStore(t, store)
			ctx := context.Background()

			run := NewRunRecord(7, testTopology(), 16)
			if run.ID == "" {
				t.Fatal("empty run ID")
			}
			if err := store.SaveRun(ctx, run); err != nil {
				t.Fatalf("save run: %v", err)
			}
			got, ok, err := store.GetRun(ctx, run.ID)
			if err != nil || !ok {
				t.Fatalf("get run: ok=%v err=%v", ok, err)
			}
			if got.Seed != 7 || got.PopulationSize != 16 {
				t.Errorf("unexpected run %+v", got)
			}
			if _, err := got.Topology.Build(); err != nil {
				t.Errorf("stored topology does not build: %v", err)
			}

			if _, ok, err := store.GetRun(ctx, "missing"); ok || err != nil {
				t.Errorf("missing run: ok=%v err=%v", ok, err)
			}
		})
	}
}

func TestPopulationSnapshotRoundTrip(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			initStore(t, store)
			ctx := context.Background()

			pop, err := evolution.NewPopulation(testTopology(), 6, 3, genome.DefaultInit(), nil)
			if err != nil {
				t.Fatal(err)
			}
			for i, g := range pop.Genomes {
				_ = pop.AssignFitness(g.ID, float64(i))
			}
			next, err := evolution.NewController(evolution.DefaultConfig(), 4).Advance(pop)
			if err != nil {
				t.Fatal(err)
			}
			// Partially evaluated generation 1.
			_ = next.AssignFitness(next.Genomes[0].ID, 2.5)

			for _, p := range []*evolution.Population{pop, next} {
				if err := store.SavePopulation(ctx, Snapshot("run-1", p)); err != nil {
					t.Fatalf("save population: %v", err)
				}
			}

			snap, ok, err := store.LatestPopulation(ctx, "run-1")
			if err != nil || !ok {
				t.Fatalf("latest: ok=%v err=%v", ok, err)
			}
			if snap.Generation != 1 {
				t.Errorf("latest generation = %d, want 1", snap.Generation)
			}

			restored, err := snap.Restore()
			if err != nil {
				t.Fatalf("restore: %v", err)
			}
			if restored.Size() != next.Size() || restored.Generation != 1 {
				t.Fatalf("restored size/gen = %d/%d", restored.Size(), restored.Generation)
			}
			for i, g := range restored.Genomes {
				want := next.Genomes[i]
				if g.ID != want.ID || g.Age != want.Age || len(g.ParentIDs) != len(want.ParentIDs) {
					t.Errorf("genome %d identity differs: %+v vs %+v", i, g, want)
				}
				for k := range want.Parameters {
					if g.Parameters[k] != want.Parameters[k] {
						t.Fatalf("genome %d param %d differs", i, k)
					}
				}
			}
			if f, ok := restored.Genomes[0].Fitness(); !ok || f != 2.5 {
				t.Errorf("restored fitness = %v,%v, want 2.5,true", f, ok)
			}
			if restored.Genomes[1].HasFitness() {
				t.Error("unassigned fitness restored as assigned")
			}
			if restored.IDs().Peek() != next.IDs().Peek() {
				t.Errorf("next ID = %d, want %d", restored.IDs().Peek(), next.IDs().Peek())
			}

			first, ok, err := store.GetPopulation(ctx, "run-1", 0)
			if err != nil || !ok || first.Generation != 0 {
				t.Errorf("generation 0: ok=%v err=%v gen=%d", ok, err, first.Generation)
			}
		})
	}
}

func TestHistoryOrdered(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			initStore(t, store)
			ctx := context.Background()

			for _, gen := range []int{2, 0, 1, 1} {
				s := evolution.Stats{Generation: gen, Best: float64(gen * 10)}
				if err := store.AppendGeneration(ctx, "run", s); err != nil {
					t.Fatalf("append: %v", err)
				}
			}
			h, err := store.GetHistory(ctx, "run")
			if err != nil {
				t.Fatalf("history: %v", err)
			}
			if len(h) != 3 {
				t.Fatalf("len(history) = %d, want 3", len(h))
			}
			for i, s := range h {
				if s.Generation != i || s.Best != float64(i*10) {
					t.Errorf("history[%d] = %+v", i, s)
				}
			}
		})
	}
}

func TestModelRoundTrip(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			initStore(t, store)
			ctx := context.Background()

			topo := testTopology()
			g := genome.Create(topo, 5, genome.DefaultInit(), genome.NewIDSource())
			entry := NewModelEntry("run", "best", 4, 1.25, g.Record(topo))
			if err := store.SaveModel(ctx, entry); err != nil {
				t.Fatalf("save model: %v", err)
			}
			got, ok, err := store.GetModel(ctx, "run", "best")
			if err != nil || !ok {
				t.Fatalf("get model: ok=%v err=%v", ok, err)
			}
			restoredTopo, params, err := got.Model.Restore()
			if err != nil {
				t.Fatalf("restore: %v", err)
			}
			in := []float64{0.1, 0.2, 0.3}
			a, _ := neural.Evaluate(topo, g.Parameters, in)
			b, _ := neural.Evaluate(restoredTopo, params, in)
			for i := range a {
				if a[i] != b[i] {
					t.Errorf("restored model output %v, want %v", b, a)
				}
			}
		})
	}
}

func TestUninitialized(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.SaveRun(ctx, RunRecord{ID: "x"}); !errors.Is(err, ErrNotInitialized) {
				t.Errorf("SaveRun before Init: %v, want ErrNotInitialized", err)
			}
		})
	}
}

func TestDecodeVersionMismatch(t *testing.T) {
	data, _ := EncodeRun(RunRecord{ID: "x"})
	if _, err := DecodeRun(data); !errors.Is(err, ErrVersionMismatch) {
		t.Errorf("DecodeRun: %v, want ErrVersionMismatch", err)
	}
}

func TestNewStore(t *testing.T) {
	s, err := NewStore("none", "")
	if err != nil || s != nil {
		t.Errorf("none: %v, %v", s, err)
	}
	if s, err := NewStore("memory", ""); err != nil || s == nil {
		t.Errorf("memory: %v, %v", s, err)
	}
	if _, err := NewStore("postgres", ""); err == nil {
		t.Error("expected error for unknown backend")
	}
	sq, err := NewStore("sqlite", "")
	if err != nil {
		t.Fatal(err)
	}
	if err := sq.Init(context.Background()); err == nil {
		t.Error("expected error initializing sqlite without a path")
	}
}
