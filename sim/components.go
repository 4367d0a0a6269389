package sim

import "github.com/pthm-cable/neuroevo/genome"

// Position represents an agent's location in the arena.
type Position struct {
	X, Y float64
}

// Velocity represents an agent's velocity in arena units per second.
type Velocity struct {
	X, Y float64
}

// Agent binds an entity to the genome driving it for the current episode.
type Agent struct {
	Genome *genome.Genome
	Slot   int // index into the population's genome slice

	// Episode accumulators
	DistanceSum float64
	Steps       int
	Failed      bool // evaluation error this episode; the agent stops acting
}
