package evolution

import "errors"

var (
	// ErrUnknownGenome is returned when a fitness report names an ID that is
	// not part of the current generation.
	ErrUnknownGenome = errors.New("unknown genome")

	// ErrInvalidFitness is returned for non-finite fitness reports.
	ErrInvalidFitness = errors.New("invalid fitness")

	// ErrIncompleteEvaluation is returned when statistics or a generation
	// transition are requested before every genome has a fitness value.
	ErrIncompleteEvaluation = errors.New("incomplete evaluation")

	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig = errors.New("invalid evolution config")
)
