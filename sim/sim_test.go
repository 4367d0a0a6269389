package sim

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/pthm-cable/neuroevo/bridge"
	"github.com/pthm-cable/neuroevo/config"
	"github.com/pthm-cable/neuroevo/genome"
	"github.com/pthm-cable/neuroevo/neural"
	"github.com/pthm-cable/neuroevo/storage"
	"github.com/pthm-cable/neuroevo/telemetry"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T, size, ticks, workers int) *config.Config {
	t.Helper()
	cfg, err := config.Defaults()
	if err != nil {
		t.Fatal(err)
	}
	cfg.Population.Size = size
	cfg.Simulation.EpisodeTicks = ticks
	cfg.Simulation.Workers = workers
	cfg.Telemetry.LogStats = false
	return cfg
}

func newTestSim(t *testing.T, opts Options) *Sim {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}
	s, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestPhysicsStep(t *testing.T) {
	p := physics{dt: 1, arena: 5, maxSpeed: 2, maxAccel: 10, dragMul: 1}

	pos, vel := p.step(Position{}, Velocity{}, []float64{1, 0})
	if vel.X != 2 || vel.Y != 0 {
		t.Errorf("speed not capped: %+v", vel)
	}
	if pos.X != 2 {
		t.Errorf("pos.X = %v, want 2", pos.X)
	}

	pos, vel = p.step(Position{X: 4.5}, Velocity{X: 2}, []float64{1, 0})
	if pos.X != 5 || vel.X != 0 {
		t.Errorf("wall not enforced: pos=%+v vel=%+v", pos, vel)
	}

	_, vel = p.step(Position{}, Velocity{}, []float64{math.NaN(), 50})
	if vel.X != 0 || vel.Y != 2 {
		t.Errorf("actions not clamped: %+v", vel)
	}
}

func TestObserve(t *testing.T) {
	p := physics{arena: 10, maxSpeed: 2}
	obs := make([]float64, ObservationDim)
	p.observe(obs, Position{X: 1, Y: 2}, Velocity{X: 1, Y: -2}, Target{X: 6, Y: -8})
	want := []float64{0.5, -1, 0.5, -1}
	for i := range want {
		if obs[i] != want[i] {
			t.Fatalf("obs = %v, want %v", obs, want)
		}
	}
}

func TestEpisodeFitness(t *testing.T) {
	tests := []struct {
		name  string
		agent Agent
		want  float64
	}{
		{"mean distance", Agent{DistanceSum: 6, Steps: 3}, -2},
		{"no steps", Agent{}, PenaltyFitness},
		{"failed", Agent{DistanceSum: 1, Steps: 1, Failed: true}, PenaltyFitness},
		{"nan", Agent{DistanceSum: math.NaN(), Steps: 1}, PenaltyFitness},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := episodeFitness(&tt.agent); got != tt.want {
				t.Errorf("episodeFitness = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewRejectsWrongShape(t *testing.T) {
	cfg := testConfig(t, 8, 10, 1)
	cfg.Derived.Topology = neural.Descriptor{
		InputDim: 3,
		Layers:   []neural.LayerSpec{{Units: 2, Activation: neural.Tanh}},
	}.MustBuild()

	if _, err := New(Options{Config: cfg, Logger: quietLogger()}); !errors.Is(err, ErrTaskShape) {
		t.Errorf("New: %v, want ErrTaskShape", err)
	}
}

func TestStepAdvancesGeneration(t *testing.T) {
	cfg := testConfig(t, 8, 20, 1)
	s := newTestSim(t, Options{Config: cfg, Seed: 1})

	for gen := 0; gen < 3; gen++ {
		if s.Generation() != gen {
			t.Fatalf("generation = %d, want %d", s.Generation(), gen)
		}
		stats, err := s.Step(context.Background())
		if err != nil {
			t.Fatalf("Step: %v", err)
		}
		if stats.Generation != gen || stats.Size != 8 {
			t.Errorf("stats gen/size = %d/%d", stats.Generation, stats.Size)
		}
		if stats.Reported != 8 || stats.Rejected != 0 {
			t.Errorf("reported/rejected = %d/%d, want 8/0", stats.Reported, stats.Rejected)
		}
		if stats.Best > 0 || stats.Best < stats.Worst {
			t.Errorf("implausible fitness best=%v worst=%v", stats.Best, stats.Worst)
		}
	}
	if s.Ticks() != 60 {
		t.Errorf("ticks = %d, want 60", s.Ticks())
	}
	if s.HallOfFame().Size() == 0 {
		t.Error("hall of fame is empty")
	}
	if s.Perf().Stats().TicksPerSecond <= 0 {
		t.Error("perf collector recorded no ticks")
	}
}

func runStats(t *testing.T, cfg *config.Config, seed int64, gens int) []telemetry.GenerationStats {
	t.Helper()
	var out []telemetry.GenerationStats
	s := newTestSim(t, Options{
		Config:  cfg,
		Seed:    seed,
		OnStats: func(st telemetry.GenerationStats) { out = append(out, st) },
	})
	if err := s.Run(context.Background(), gens); err != nil {
		t.Fatalf("Run: %v", err)
	}
	return out
}

func TestRunReproducible(t *testing.T) {
	a := runStats(t, testConfig(t, 10, 30, 1), 99, 3)
	b := runStats(t, testConfig(t, 10, 30, 1), 99, 3)
	if len(a) != 3 || len(b) != 3 {
		t.Fatalf("got %d and %d generations, want 3", len(a), len(b))
	}
	for i := range a {
		if a[i].Best != b[i].Best || a[i].Mean != b[i].Mean || a[i].BestID != b[i].BestID {
			t.Errorf("generation %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestParallelMatchesSequential(t *testing.T) {
	seq := runStats(t, testConfig(t, 2*parallelThreshold, 15, 1), 5, 2)
	par := runStats(t, testConfig(t, 2*parallelThreshold, 15, 4), 5, 2)
	for i := range seq {
		if seq[i].Best != par[i].Best || seq[i].Mean != par[i].Mean {
			t.Errorf("generation %d: sequential %+v, parallel %+v", i, seq[i], par[i])
		}
	}
}

// failingActor rejects one genome and delegates the rest.
type failingActor struct {
	inner bridge.ScratchActor
	fail  genome.ID
}

func (f failingActor) ActInto(g *genome.Genome, obs []float64, s *neural.Scratch) ([]float64, error) {
	if g.ID == f.fail {
		return nil, neural.ErrShapeMismatch
	}
	return f.inner.ActInto(g, obs, s)
}

func (f failingActor) Topology() *neural.Topology { return f.inner.Topology() }

func TestFailedActGetsPenalty(t *testing.T) {
	s := newTestSim(t, Options{Config: testConfig(t, 6, 10, 1), Seed: 3})
	bad := s.Population().Genomes[2].ID
	s.actor = failingActor{inner: s.bridge, fail: bad}

	if err := s.RunEpisode(context.Background()); err != nil {
		t.Fatalf("RunEpisode: %v", err)
	}
	g, _ := s.Population().Get(bad)
	if f, ok := g.Fitness(); !ok || f != PenaltyFitness {
		t.Errorf("failed genome fitness = %v,%v, want penalty", f, ok)
	}
	if !s.Population().Complete() {
		t.Error("population not complete after episode")
	}
}

func TestPersistenceAndResume(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatal(err)
	}

	cfg := testConfig(t, 8, 10, 1)
	cfg.Storage.SnapshotEvery = 1
	s := newTestSim(t, Options{Config: cfg, Seed: 11, RunID: "run", Store: store})
	if err := s.Run(ctx, 2); err != nil {
		t.Fatalf("Run: %v", err)
	}

	history, err := store.GetHistory(ctx, "run")
	if err != nil || len(history) != 2 {
		t.Fatalf("history len = %d, err = %v", len(history), err)
	}
	if _, ok, err := store.GetModel(ctx, "run", "best"); !ok || err != nil {
		t.Errorf("best model not stored: ok=%v err=%v", ok, err)
	}

	snap, ok, err := store.LatestPopulation(ctx, "run")
	if err != nil || !ok || snap.Generation != 1 {
		t.Fatalf("latest snapshot: ok=%v err=%v", ok, err)
	}
	pop, err := snap.Restore()
	if err != nil {
		t.Fatal(err)
	}
	resumed := newTestSim(t, Options{Config: cfg, Seed: 12, Population: pop})
	if resumed.Generation() != 2 {
		t.Errorf("resumed generation = %d, want 2", resumed.Generation())
	}
	for _, g := range resumed.Population().Genomes {
		if uint64(g.ID) < snap.NextID {
			t.Errorf("genome ID %d collides with the snapshot's ID range", g.ID)
		}
	}
}

func TestRunInterrupted(t *testing.T) {
	s := newTestSim(t, Options{Config: testConfig(t, 4, 10, 1), Seed: 2})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Step(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Step: %v, want context.Canceled", err)
	}
	if err := s.Run(ctx, 0); err != nil {
		t.Errorf("Run after cancel: %v", err)
	}
}

func TestResetEpisodePlacesAgents(t *testing.T) {
	cfg := testConfig(t, 6, 10, 1)
	a := newTestSim(t, Options{Config: cfg, Seed: 21})
	b := newTestSim(t, Options{Config: cfg, Seed: 21})
	a.resetEpisode()
	b.resetEpisode()

	if a.Target() != b.Target() {
		t.Errorf("targets differ for one seed: %+v vs %+v", a.Target(), b.Target())
	}
	jitter := cfg.Simulation.TargetJitter
	if tg := a.Target(); math.Abs(tg.X) > jitter || math.Abs(tg.Y) > jitter {
		t.Errorf("target %+v outside jitter %v", tg, jitter)
	}
	if r := math.Hypot(a.start.X, a.start.Y); math.Abs(r-cfg.Simulation.ArenaSize/2) > 1e-9 {
		t.Errorf("start radius = %v, want %v", r, cfg.Simulation.ArenaSize/2)
	}

	pop := a.Population()
	for i, e := range a.entities {
		pos, vel, agent := a.agentMapper.Get(e)
		if *pos != a.start || *vel != (Velocity{}) {
			t.Errorf("agent %d at %+v moving %+v, want start at rest", i, *pos, *vel)
		}
		if agent.Genome != pop.Genomes[i] || agent.Slot != i {
			t.Errorf("agent %d bound to slot %d", i, agent.Slot)
		}
	}
}
