package evolution

import (
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/pthm-cable/neuroevo/genome"
)

// State is the controller's position in a generation transition.
type State uint8

const (
	StateEvaluated   State = iota // waiting for a fully evaluated population
	StateSelecting                // elitism and tournament selection
	StateRecombining              // crossover or cloning of parent pairs
	StateMutating                 // mutation of non-elite children
)

func (s State) String() string {
	switch s {
	case StateEvaluated:
		return "evaluated"
	case StateSelecting:
		return "selecting"
	case StateRecombining:
		return "recombining"
	case StateMutating:
		return "mutating"
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// Controller drives generation transitions. It is synchronous and assumes a
// single caller; all randomness comes from its own stream.
type Controller struct {
	cfg    Config
	rng    *rand.Rand
	state  State
	logger *slog.Logger
}

// NewController creates a controller with a random stream seeded by seed.
func NewController(cfg Config, seed int64) *Controller {
	return NewControllerWithRand(cfg, rand.New(rand.NewSource(seed)))
}

// NewControllerWithRand creates a controller that draws from rng.
func NewControllerWithRand(cfg Config, rng *rand.Rand) *Controller {
	return &Controller{
		cfg:    cfg,
		rng:    rng,
		state:  StateEvaluated,
		logger: slog.Default(),
	}
}

// SetLogger replaces the logger used for transition diagnostics.
func (c *Controller) SetLogger(l *slog.Logger) { c.logger = l }

// Config returns the controller's configuration.
func (c *Controller) Config() Config { return c.cfg }

// State returns the current transition phase.
func (c *Controller) State() State { return c.state }

type parentPair struct {
	a, b *genome.Genome
}

// Advance consumes a fully evaluated population and returns the next
// generation: same size, generation index + 1, every fitness unassigned.
// It fails with ErrIncompleteEvaluation, without consuming randomness, if any
// genome has no fitness yet.
func (c *Controller) Advance(pop *Population) (*Population, error) {
	if err := c.cfg.Validate(pop.Size()); err != nil {
		return nil, err
	}
	if err := pop.requireComplete(); err != nil {
		return nil, err
	}
	defer func() { c.state = StateEvaluated }()

	n := pop.Size()
	next := make([]*genome.Genome, 0, n)

	// Elitism: best first, ties by lower ID.
	c.state = StateSelecting
	ranked := pop.ranked()
	for _, g := range ranked[:c.cfg.EliteCount] {
		elite := g.Clone(pop.ids)
		elite.Age = g.Age + 1
		next = append(next, elite)
	}

	remaining := n - c.cfg.EliteCount
	pairs := make([]parentPair, remaining/2)
	for i := range pairs {
		a, b := selectParents(c.rng, pop.Genomes, c.cfg.TournamentSize)
		pairs[i] = parentPair{a, b}
	}
	var single *genome.Genome
	if remaining%2 == 1 {
		single = tournament(c.rng, pop.Genomes, c.cfg.TournamentSize)
	}

	c.state = StateRecombining
	children := make([]*genome.Genome, 0, remaining)
	crossovers := 0
	for _, pair := range pairs {
		if c.rng.Float64() < c.cfg.CrossoverRate {
			a, b, err := pair.a.Recombine(pair.b, c.cfg.CrossoverParams, c.rng, pop.ids)
			if err != nil {
				return nil, fmt.Errorf("recombining %d x %d: %w", pair.a.ID, pair.b.ID, err)
			}
			children = append(children, a, b)
			crossovers++
			continue
		}
		children = append(children, pair.a.Clone(pop.ids), pair.b.Clone(pop.ids))
	}
	if single != nil {
		children = append(children, single.Clone(pop.ids))
	}

	c.state = StateMutating
	var deltaSum float64
	for _, child := range children {
		deltaSum += child.Mutate(c.cfg.MutationParams, c.rng)
	}
	next = append(next, children...)

	if len(children) > 0 {
		c.logger.Debug("generation advanced",
			"generation", pop.Generation+1,
			"elites", c.cfg.EliteCount,
			"crossovers", crossovers,
			"children", len(children),
			"mean_mutation_delta", deltaSum/float64(len(children)),
		)
	}

	return newPopulation(pop.topology, next, pop.Generation+1, pop.ids), nil
}
