package chain

import (
	"fmt"
	"math"

	"ikchain/pkg/errors"
	"ikchain/pkg/solver"
)

// Config describes a chain and how it is driven.
type Config struct {
	// Links is the number of unit-length links.
	Links int

	// StepSize is the base angle change of one nudge, in radians.
	StepSize float64

	// StepScale multiplies StepSize per link.
	StepScale []float64

	// InitialGuess is where every solve starts unless WarmStart is set.
	InitialGuess []float64

	// WarmStart starts each solve from the previous recovered angles.
	WarmStart bool

	// RestartCost: a solve that ends above this cost is run again from the
	// headings of the target endpoints and the better result is kept.
	// Zero disables the restart.
	RestartCost float64

	// Solver configures the least-squares iteration. The zero value means
	// solver.DefaultOptions.
	Solver solver.Options

	// Trace logs every residual evaluation at DEBUG level.
	Trace bool
}

// DefaultConfig returns the configuration for an n-link chain: step 0.05,
// link i scaled by i+1, every solve starting from -1.2 rad per link and
// restarted when it stalls above a cost of 1e-10.
func DefaultConfig(n int) Config {
	cfg := Config{
		Links:       n,
		StepSize:    0.05,
		RestartCost: 1e-10,
		Solver:      solver.DefaultOptions(),
	}
	if n > 0 {
		cfg.StepScale = make([]float64, n)
		cfg.InitialGuess = make([]float64, n)
		for i := range cfg.StepScale {
			cfg.StepScale[i] = float64(i + 1)
			cfg.InitialGuess[i] = -1.2
		}
	}
	return cfg
}

func allFinite(vs []float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Validate checks the configuration. Every failure is a CONFIG_VALIDATION
// error naming the offending option.
func (c Config) Validate() error {
	switch {
	case c.Links <= 0:
		return errors.ConfigValidationError("chain", "links",
			fmt.Sprintf("must be positive, got %d", c.Links))
	case math.IsNaN(c.StepSize) || math.IsInf(c.StepSize, 0) || c.StepSize <= 0:
		return errors.ConfigValidationError("chain", "step_size",
			fmt.Sprintf("must be a positive number, got %v", c.StepSize))
	case len(c.StepScale) != c.Links:
		return errors.ConfigValidationError("chain", "step_scale",
			fmt.Sprintf("has %d entries for %d links", len(c.StepScale), c.Links))
	case !allFinite(c.StepScale):
		return errors.ConfigValidationError("chain", "step_scale", "entries must be finite")
	case len(c.InitialGuess) != c.Links:
		return errors.ConfigValidationError("chain", "initial_guess",
			fmt.Sprintf("has %d entries for %d links", len(c.InitialGuess), c.Links))
	case !allFinite(c.InitialGuess):
		return errors.ConfigValidationError("chain", "initial_guess", "entries must be finite")
	case math.IsNaN(c.RestartCost) || math.IsInf(c.RestartCost, 0) || c.RestartCost < 0:
		return errors.ConfigValidationError("chain", "restart_cost",
			fmt.Sprintf("must be a non-negative number, got %v", c.RestartCost))
	}
	if err := c.solverOptions().Validate(); err != nil {
		return errors.Wrap(err, errors.ErrConfigValidation, err.Error()).SetSection("solver")
	}
	return nil
}

func (c Config) solverOptions() solver.Options {
	if c.Solver == (solver.Options{}) {
		return solver.DefaultOptions()
	}
	return c.Solver
}

func (c Config) clone() Config {
	out := c
	out.StepScale = append([]float64(nil), c.StepScale...)
	out.InitialGuess = append([]float64(nil), c.InitialGuess...)
	out.Solver = c.solverOptions()
	return out
}
