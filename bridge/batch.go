package bridge

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/sourcegraph/conc/pool"

	"github.com/pthm-cable/neuroevo/genome"
	"github.com/pthm-cable/neuroevo/neural"
)

// batchThreshold is the job count below which ActBatch stays on the caller's
// goroutine.
const batchThreshold = 64

// Job is one act request. Action is reused when it has enough capacity.
type Job struct {
	Genome      *genome.Genome
	Observation []float64
	Action      []float64
	Err         error
}

// ActBatch evaluates every job, splitting them into contiguous chunks across
// at most workers goroutines. Each job's result lands in its own slot, so the
// outcome does not depend on scheduling. The returned error joins every
// per-job failure.
func ActBatch(c Capability, jobs []Job, workers int) error {
	n := len(jobs)
	if n == 0 {
		return nil
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if n < batchThreshold || workers == 1 {
		runChunk(c, jobs, newScratch(c))
		return joinErrors(jobs)
	}

	chunk := (n + workers - 1) / workers
	p := pool.New().WithMaxGoroutines(workers)
	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		part := jobs[start:end]
		p.Go(func() {
			runChunk(c, part, newScratch(c))
		})
	}
	p.Wait()
	return joinErrors(jobs)
}

func newScratch(c Capability) *neural.Scratch {
	if sa, ok := c.(ScratchActor); ok {
		if t := sa.Topology(); t != nil {
			return neural.NewScratch(t)
		}
	}
	return nil
}

func runChunk(c Capability, jobs []Job, s *neural.Scratch) {
	sa, scratchOK := c.(ScratchActor)
	for i := range jobs {
		j := &jobs[i]
		var out []float64
		if scratchOK && s != nil {
			out, j.Err = sa.ActInto(j.Genome, j.Observation, s)
		} else {
			out, j.Err = c.Act(j.Genome, j.Observation)
		}
		if j.Err != nil {
			j.Action = j.Action[:0]
			continue
		}
		if cap(j.Action) < len(out) {
			j.Action = make([]float64, len(out))
		}
		j.Action = j.Action[:len(out)]
		copy(j.Action, out)
	}
}

func joinErrors(jobs []Job) error {
	var errs []error
	for i := range jobs {
		if jobs[i].Err != nil {
			errs = append(errs, fmt.Errorf("job %d (genome %d): %w", i, jobs[i].Genome.ID, jobs[i].Err))
		}
	}
	return errors.Join(errs...)
}
