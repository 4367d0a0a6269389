// Package sim is a reference host for the evolution core: a 2-D
// target-seeking task on an ark ECS world. Each generation runs one fixed
// length episode, reports every agent's fitness through the bridge and then
// advances the population.
package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/mlange-42/ark/ecs"
	"github.com/sourcegraph/conc/pool"

	"github.com/pthm-cable/neuroevo/bridge"
	"github.com/pthm-cable/neuroevo/config"
	"github.com/pthm-cable/neuroevo/evolution"
	"github.com/pthm-cable/neuroevo/genome"
	"github.com/pthm-cable/neuroevo/neural"
	"github.com/pthm-cable/neuroevo/storage"
	"github.com/pthm-cable/neuroevo/telemetry"
)

// ErrTaskShape is returned when the model does not fit the task's
// observation and action sizes.
var ErrTaskShape = errors.New("model shape does not fit task")

// Options configures a Sim.
type Options struct {
	Config *config.Config
	Seed   int64

	// Population resumes from an existing generation instead of creating
	// generation 0. A fully evaluated population is advanced first.
	Population *evolution.Population

	RunID   string
	Store   storage.Store            // nil disables persistence
	Output  *telemetry.OutputManager // nil disables file output
	Metrics *telemetry.Metrics       // nil disables Prometheus export
	Logger  *slog.Logger             // nil uses slog.Default()
	OnStats func(telemetry.GenerationStats)
}

// Sim holds the complete host state.
type Sim struct {
	cfg    *config.Config
	world  *ecs.World
	rng    *rand.Rand
	logger *slog.Logger

	agentMapper *ecs.Map3[Position, Velocity, Agent]
	agentFilter *ecs.Filter3[Position, Velocity, Agent]
	posMap      *ecs.Map[Position]
	velMap      *ecs.Map[Velocity]
	agentMap    *ecs.Map[Agent]
	entities    []ecs.Entity

	bridge   *bridge.Bridge
	actor    bridge.ScratchActor
	ctrl     *evolution.Controller
	parallel *parallelState
	phys     physics
	target   Target
	start    Position

	perf    *telemetry.PerfCollector
	hof     *telemetry.HallOfFame
	output  *telemetry.OutputManager
	metrics *telemetry.Metrics
	store   storage.Store
	runID   string
	onStats func(telemetry.GenerationStats)

	ticks int64
}

// New creates a host with one entity per genome.
func New(opts Options) (*Sim, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("sim: nil config")
	}
	topo := cfg.Derived.Topology
	if topo == nil {
		return nil, errors.New("sim: config has no derived topology")
	}
	if topo.InputDim() != ObservationDim || topo.OutputDim() != ActionDim {
		return nil, fmt.Errorf("%w: model %s, task wants %d inputs and %d outputs",
			ErrTaskShape, topo, ObservationDim, ActionDim)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	ctrl := evolution.NewController(cfg.Evolution, rng.Int63())
	ctrl.SetLogger(logger)

	pop := opts.Population
	if pop == nil {
		var err error
		pop, err = evolution.NewPopulation(topo, cfg.Population.Size, rng.Int63(), cfg.Init, nil)
		if err != nil {
			return nil, fmt.Errorf("creating population: %w", err)
		}
	} else {
		if !pop.Topology().Equal(topo) {
			return nil, fmt.Errorf("%w: resumed population %s, config %s",
				genome.ErrTopologyMismatch, pop.Topology(), topo)
		}
		if pop.Complete() {
			next, err := ctrl.Advance(pop)
			if err != nil {
				return nil, fmt.Errorf("advancing resumed population: %w", err)
			}
			pop = next
		}
	}

	world := ecs.NewWorld()
	s := &Sim{
		cfg:         cfg,
		world:       world,
		rng:         rng,
		logger:      logger,
		agentMapper: ecs.NewMap3[Position, Velocity, Agent](world),
		agentFilter: ecs.NewFilter3[Position, Velocity, Agent](world),
		posMap:      ecs.NewMap[Position](world),
		velMap:      ecs.NewMap[Velocity](world),
		agentMap:    ecs.NewMap[Agent](world),
		bridge:      bridge.New(pop),
		ctrl:        ctrl,
		parallel:    newParallelState(cfg.Simulation.Workers, topo),
		phys:        newPhysics(cfg.Simulation),
		perf:        telemetry.NewPerfCollector(cfg.Telemetry.PerfWindow),
		hof:         telemetry.NewHallOfFame(cfg.Telemetry.HallOfFameSize),
		output:      opts.Output,
		metrics:     opts.Metrics,
		store:       opts.Store,
		runID:       opts.RunID,
		onStats:     opts.OnStats,
	}
	s.actor = s.bridge
	s.syncEntities(pop.Size())
	return s, nil
}

// Population returns the generation currently being evaluated.
func (s *Sim) Population() *evolution.Population { return s.bridge.Population() }

// Generation returns the index of the generation currently being evaluated.
func (s *Sim) Generation() int { return s.Population().Generation }

// HallOfFame returns the best genomes seen so far.
func (s *Sim) HallOfFame() *telemetry.HallOfFame { return s.hof }

// Perf returns the phase timing collector.
func (s *Sim) Perf() *telemetry.PerfCollector { return s.perf }

// Ticks returns the number of simulation ticks run so far.
func (s *Sim) Ticks() int64 { return s.ticks }

// Target returns the target of the current episode.
func (s *Sim) Target() Target { return s.target }

// Close stops the worker pool.
func (s *Sim) Close() {
	s.stopParallelWorkers()
}

// syncEntities spawns or removes entities so there is one per genome.
func (s *Sim) syncEntities(n int) {
	for len(s.entities) < n {
		pos, vel, agent := Position{}, Velocity{}, Agent{}
		s.entities = append(s.entities, s.agentMapper.NewEntity(&pos, &vel, &agent))
	}
	for len(s.entities) > n {
		last := s.entities[len(s.entities)-1]
		s.world.RemoveEntity(last)
		s.entities = s.entities[:len(s.entities)-1]
	}
}

// resetEpisode places every agent at a shared start point, binds it to its
// genome and picks this episode's target.
func (s *Sim) resetEpisode() {
	pop := s.Population()
	s.syncEntities(pop.Size())

	c := s.cfg.Simulation
	angle := s.rng.Float64() * 2 * math.Pi
	s.start = Position{
		X: math.Cos(angle) * c.ArenaSize * 0.5,
		Y: math.Sin(angle) * c.ArenaSize * 0.5,
	}
	s.target = Target{
		X: (s.rng.Float64()*2 - 1) * c.TargetJitter,
		Y: (s.rng.Float64()*2 - 1) * c.TargetJitter,
	}

	for i, e := range s.entities {
		pos, vel, agent := s.agentMapper.Get(e)
		*pos = s.start
		*vel = Velocity{}
		*agent = Agent{Genome: pop.Genomes[i], Slot: i}
	}
}

// RunEpisode evaluates the current generation: it resets the arena, runs the
// configured number of ticks and reports every agent's fitness.
func (s *Sim) RunEpisode(ctx context.Context) error {
	s.perf.StartPhase(telemetry.PhaseReset)
	s.resetEpisode()

	for t := 0; t < s.cfg.Simulation.EpisodeTicks; t++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.tick()
		s.perf.Tick()
		s.ticks++
	}

	s.perf.StartPhase(telemetry.PhaseReport)
	s.reportFitness()
	return nil
}

// reportFitness sends each agent's score through the bridge concurrently.
// Rejected reports are logged and skipped; genomes left without a fitness
// get PenaltyFitness so the generation can still advance.
func (s *Sim) reportFitness() {
	type report struct {
		id      genome.ID
		fitness float64
	}
	reports := make([]report, 0, len(s.entities))
	query := s.agentFilter.Query()
	for query.Next() {
		_, _, agent := query.Get()
		if agent.Genome == nil {
			continue
		}
		reports = append(reports, report{agent.Genome.ID, episodeFitness(agent)})
	}

	p := pool.New().WithMaxGoroutines(s.parallel.numWorkers)
	for _, r := range reports {
		p.Go(func() {
			if err := s.bridge.ReportFitness(r.id, r.fitness); err != nil {
				s.logger.Warn("fitness report rejected",
					"genome", uint64(r.id),
					"fitness", r.fitness,
					"error", err,
				)
			}
		})
	}
	p.Wait()

	pop := s.Population()
	for _, id := range pop.Pending() {
		s.logger.Warn("genome unscored, assigning penalty", "genome", uint64(id))
		_ = pop.AssignFitness(id, PenaltyFitness)
	}
}

// Step evaluates one generation, records telemetry and persistence, and
// installs the next generation.
func (s *Sim) Step(ctx context.Context) (telemetry.GenerationStats, error) {
	start := time.Now()
	s.perf.StartGeneration()

	if err := s.RunEpisode(ctx); err != nil {
		return telemetry.GenerationStats{}, err
	}
	pop := s.Population()

	s.perf.StartPhase(telemetry.PhaseTelemetry)
	stats, err := telemetry.ComputeGenerationStats(pop, time.Since(start))
	if err != nil {
		return telemetry.GenerationStats{}, err
	}
	stats.Reported, stats.Rejected = s.bridge.Counts()
	s.hof.Consider(pop)
	if err := s.output.WriteGeneration(stats); err != nil {
		s.logger.Error("failed to write generation", "error", err)
	}
	s.metrics.Observe(stats)
	if s.cfg.Telemetry.LogStats {
		stats.LogStats()
	}

	s.perf.StartPhase(telemetry.PhaseStorage)
	if err := s.persist(ctx, pop); err != nil {
		s.logger.Error("failed to persist generation", "generation", pop.Generation, "error", err)
	}

	s.perf.StartPhase(telemetry.PhaseAdvance)
	next, err := s.ctrl.Advance(pop)
	if err != nil {
		return stats, fmt.Errorf("advancing generation %d: %w", pop.Generation, err)
	}
	if err := s.bridge.Swap(next); err != nil {
		return stats, err
	}

	s.perf.EndGeneration()
	perfStats := s.perf.Stats()
	if err := s.output.WritePerf(perfStats, pop.Generation); err != nil {
		s.logger.Error("failed to write perf", "error", err)
	}
	if s.cfg.Telemetry.LogStats {
		perfStats.LogStats()
	}

	if s.onStats != nil {
		s.onStats(stats)
	}
	return stats, nil
}

// persist appends the generation history and snapshots the evaluated
// population every SnapshotEvery generations.
func (s *Sim) persist(ctx context.Context, pop *evolution.Population) error {
	if s.store == nil {
		return nil
	}
	evo, err := pop.Statistics()
	if err != nil {
		return err
	}
	if err := s.store.AppendGeneration(ctx, s.runID, evo); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	every := s.cfg.Storage.SnapshotEvery
	if every > 0 && pop.Generation%every == 0 {
		if err := s.store.SavePopulation(ctx, storage.Snapshot(s.runID, pop)); err != nil {
			return fmt.Errorf("save population: %w", err)
		}
	}
	return nil
}

// Run steps generations until n have been evaluated (n <= 0 runs until ctx
// is cancelled), then writes the hall of fame and the best model.
func (s *Sim) Run(ctx context.Context, n int) error {
	defer s.Close()

	for i := 0; n <= 0 || i < n; i++ {
		if _, err := s.Step(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				s.logger.Info("run interrupted", "generation", s.Generation())
				break
			}
			return err
		}
	}
	return s.finish(context.WithoutCancel(ctx))
}

// finish writes end-of-run artifacts.
func (s *Sim) finish(ctx context.Context) error {
	if err := s.output.WriteHallOfFame(s.hof); err != nil {
		return err
	}
	best, ok := s.hof.Best()
	if !ok {
		return nil
	}
	if path, err := s.output.WriteModel("best_model", best.Model); err != nil {
		return err
	} else if path != "" {
		s.logger.Info("best model saved", "path", path, "fitness", best.Fitness, "genome", best.GenomeID)
	}
	if s.store != nil {
		entry := storage.NewModelEntry(s.runID, "best", best.Generation, best.Fitness, best.Model)
		if err := s.store.SaveModel(ctx, entry); err != nil {
			return fmt.Errorf("save best model: %w", err)
		}
	}
	return nil
}

// BestModel returns the best model seen so far.
func (s *Sim) BestModel() (neural.ModelRecord, bool) {
	best, ok := s.hof.Best()
	return best.Model, ok
}
