package sim

import (
	"runtime"
	"sync"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/neuroevo/genome"
	"github.com/pthm-cable/neuroevo/neural"
	"github.com/pthm-cable/neuroevo/telemetry"
)

// parallelThreshold is the minimum agent count to use the worker pool.
// Below this, single-threaded is faster due to goroutine overhead.
const parallelThreshold = 64

// agentSnapshot captures read-only state for the act phase.
type agentSnapshot struct {
	Entity ecs.Entity
	Genome *genome.Genome
	Pos    Position
	Vel    Velocity
}

// intent captures computed outputs to apply after the parallel phase.
type intent struct {
	Pos  Position
	Vel  Velocity
	Dist float64
	Err  error
}

// workerScratch holds per-worker reusable buffers.
type workerScratch struct {
	Obs    []float64
	Kernel *neural.Scratch
}

// workChunk represents a range of agents for a worker to process.
type workChunk struct {
	start, end int
}

// parallelState holds resources for the parallel act phase.
type parallelState struct {
	snapshots  []agentSnapshot
	intents    []intent
	scratches  []workerScratch
	numWorkers int

	// Worker pool channels
	workChan chan workChunk
	doneChan chan struct{}
	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
}

func newParallelState(workers int, t *neural.Topology) *parallelState {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	scratches := make([]workerScratch, workers)
	for i := range scratches {
		scratches[i].Obs = make([]float64, t.InputDim())
		scratches[i].Kernel = neural.NewScratch(t)
	}
	return &parallelState{
		numWorkers: workers,
		scratches:  scratches,
	}
}

// startWorkers launches persistent worker goroutines.
func (p *parallelState) startWorkers(s *Sim) {
	if p.running {
		return
	}

	p.workChan = make(chan workChunk, p.numWorkers)
	p.doneChan = make(chan struct{}, p.numWorkers)
	p.stopChan = make(chan struct{})
	p.running = true

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(s, i)
	}
}

// stopWorkers signals all workers to exit and waits for them.
func (p *parallelState) stopWorkers() {
	if !p.running {
		return
	}

	close(p.stopChan)
	p.wg.Wait()
	close(p.workChan)
	close(p.doneChan)
	p.running = false
}

func (p *parallelState) worker(s *Sim, workerID int) {
	defer p.wg.Done()
	scratch := &p.scratches[workerID]

	for {
		select {
		case <-p.stopChan:
			return
		case chunk, ok := <-p.workChan:
			if !ok {
				return
			}
			s.computeChunk(chunk.start, chunk.end, scratch)
			p.doneChan <- struct{}{}
		}
	}
}

// tick runs one act/physics step for every live agent: snapshot, compute,
// then apply in entity order.
func (s *Sim) tick() {
	s.perf.StartPhase(telemetry.PhaseAct)

	// Phase A: build snapshots (single-threaded)
	s.parallel.snapshots = s.parallel.snapshots[:0]
	query := s.agentFilter.Query()
	for query.Next() {
		pos, vel, agent := query.Get()
		if agent.Genome == nil || agent.Failed {
			continue
		}
		s.parallel.snapshots = append(s.parallel.snapshots, agentSnapshot{
			Entity: query.Entity(),
			Genome: agent.Genome,
			Pos:    *pos,
			Vel:    *vel,
		})
	}

	n := len(s.parallel.snapshots)
	if n == 0 {
		return
	}
	if cap(s.parallel.intents) < n {
		s.parallel.intents = make([]intent, n)
	}
	s.parallel.intents = s.parallel.intents[:n]

	// Phase B: compute
	if n < parallelThreshold || s.parallel.numWorkers == 1 {
		s.computeChunk(0, n, &s.parallel.scratches[0])
	} else {
		s.computeParallel(n)
	}

	// Phase C: apply (single-threaded, preserves determinism)
	s.perf.StartPhase(telemetry.PhasePhysics)
	s.applyIntents()
}

// computeParallel dispatches work to the worker pool.
func (s *Sim) computeParallel(n int) {
	if !s.parallel.running {
		s.parallel.startWorkers(s)
	}

	numWorkers := s.parallel.numWorkers
	chunkSize := (n + numWorkers - 1) / numWorkers

	dispatched := 0
	for w := 0; w < numWorkers; w++ {
		start := w * chunkSize
		end := min(start+chunkSize, n)
		if start >= end {
			continue
		}
		s.parallel.workChan <- workChunk{start: start, end: end}
		dispatched++
	}

	for i := 0; i < dispatched; i++ {
		<-s.parallel.doneChan
	}
}

// computeChunk evaluates and integrates a range of agents for one worker.
// It only reads shared state.
func (s *Sim) computeChunk(i0, i1 int, scratch *workerScratch) {
	for i := i0; i < i1; i++ {
		snap := &s.parallel.snapshots[i]
		in := &s.parallel.intents[i]

		s.phys.observe(scratch.Obs, snap.Pos, snap.Vel, s.target)
		action, err := s.actor.ActInto(snap.Genome, scratch.Obs, scratch.Kernel)
		if err != nil {
			*in = intent{Err: err}
			continue
		}

		pos, vel := s.phys.step(snap.Pos, snap.Vel, action)
		*in = intent{Pos: pos, Vel: vel, Dist: distance(pos, s.target)}
	}
}

// applyIntents writes computed results back to the ECS components.
func (s *Sim) applyIntents() {
	for i, snap := range s.parallel.snapshots {
		in := &s.parallel.intents[i]

		agent := s.agentMap.Get(snap.Entity)
		if agent == nil {
			continue
		}
		if in.Err != nil {
			agent.Failed = true
			s.logger.Warn("act failed, agent skipped for the episode",
				"genome", uint64(snap.Genome.ID),
				"error", in.Err,
			)
			continue
		}

		pos := s.posMap.Get(snap.Entity)
		vel := s.velMap.Get(snap.Entity)
		if pos == nil || vel == nil {
			continue
		}
		*pos = in.Pos
		*vel = in.Vel
		agent.DistanceSum += in.Dist
		agent.Steps++
	}
}

func (s *Sim) stopParallelWorkers() {
	if s.parallel != nil {
		s.parallel.stopWorkers()
	}
}
