package sim

import (
	"math"

	"github.com/pthm-cable/neuroevo/config"
)

// Shape of the target-seeking task.
const (
	ObservationDim = 4 // target dx, dy, own vx, vy
	ActionDim      = 2 // acceleration x, y in [-1, 1]
)

// PenaltyFitness is assigned to genomes whose episode produced no usable score.
const PenaltyFitness = -1e30

// Target is the point agents steer towards during an episode.
type Target struct {
	X, Y float64
}

// physics holds the per-run integration parameters.
type physics struct {
	dt       float64
	arena    float64
	maxSpeed float64
	maxAccel float64
	dragMul  float64
}

func newPhysics(c config.SimulationConfig) physics {
	return physics{
		dt:       c.DT,
		arena:    c.ArenaSize,
		maxSpeed: c.MaxSpeed,
		maxAccel: c.MaxAccel,
		dragMul:  math.Exp(-c.Drag * c.DT),
	}
}

// observe fills obs with the target offset and the agent's velocity, both
// normalized to roughly [-1, 1].
func (p physics) observe(obs []float64, pos Position, vel Velocity, t Target) {
	obs[0] = (t.X - pos.X) / p.arena
	obs[1] = (t.Y - pos.Y) / p.arena
	obs[2] = vel.X / p.maxSpeed
	obs[3] = vel.Y / p.maxSpeed
}

// step integrates one tick. Actions outside [-1, 1] are clamped, the speed is
// capped at maxSpeed and agents stop against the arena walls.
func (p physics) step(pos Position, vel Velocity, action []float64) (Position, Velocity) {
	ax := clampUnit(action[0]) * p.maxAccel
	ay := clampUnit(action[1]) * p.maxAccel

	vel.X = (vel.X + ax*p.dt) * p.dragMul
	vel.Y = (vel.Y + ay*p.dt) * p.dragMul

	if speed := math.Hypot(vel.X, vel.Y); speed > p.maxSpeed {
		scale := p.maxSpeed / speed
		vel.X *= scale
		vel.Y *= scale
	}

	pos.X += vel.X * p.dt
	pos.Y += vel.Y * p.dt

	if pos.X > p.arena {
		pos.X, vel.X = p.arena, 0
	} else if pos.X < -p.arena {
		pos.X, vel.X = -p.arena, 0
	}
	if pos.Y > p.arena {
		pos.Y, vel.Y = p.arena, 0
	} else if pos.Y < -p.arena {
		pos.Y, vel.Y = -p.arena, 0
	}
	return pos, vel
}

func distance(pos Position, t Target) float64 {
	return math.Hypot(t.X-pos.X, t.Y-pos.Y)
}

// episodeFitness is the negated mean distance to the target over the episode.
func episodeFitness(a *Agent) float64 {
	if a.Failed || a.Steps == 0 {
		return PenaltyFitness
	}
	f := -a.DistanceSum / float64(a.Steps)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return PenaltyFitness
	}
	return f
}

// clampUnit clamps v to [-1, 1]; NaN becomes 0.
func clampUnit(v float64) float64 {
	switch {
	case v > 1:
		return 1
	case v < -1:
		return -1
	case v != v:
		return 0
	}
	return v
}
