package config

import (
	"time"

	"ikchain/pkg/chain"
	"ikchain/pkg/errors"
	"ikchain/pkg/log"
)

// SessionSettings configures the session server.
type SessionSettings struct {
	Listen            string
	BroadcastInterval time.Duration
}

// LogSettings configures the default logger.
type LogSettings struct {
	Level  log.LogLevel
	Format log.OutputFormat
}

// Settings is everything a configuration file can set.
type Settings struct {
	Chain chain.Config

	// GroundTruth is applied after the chain is built; nil keeps zeros.
	GroundTruth []float64

	Session SessionSettings
	Log     LogSettings
}

// DefaultSettings returns the settings used without a configuration file.
func DefaultSettings() *Settings {
	return &Settings{
		Chain: chain.DefaultConfig(2),
		Session: SessionSettings{
			Listen:            "127.0.0.1:7130",
			BroadcastInterval: 250 * time.Millisecond,
		},
		Log: LogSettings{Level: log.INFO, Format: log.FormatText},
	}
}

// LoadChainConfig reads and maps a configuration file.
func LoadChainConfig(path string) (*Settings, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return ParseChainConfig(cfg)
}

// ParseChainConfig maps the [chain], [solver], [session] and [log]
// sections. Every section is optional. Unknown sections or options are
// errors, and the chain configuration is validated before returning.
func ParseChainConfig(cfg *Config) (*Settings, error) {
	s := DefaultSettings()

	if sec := cfg.GetSectionOptional("chain"); sec != nil {
		if err := parseChain(sec, s); err != nil {
			return nil, err
		}
	}
	if sec := cfg.GetSectionOptional("solver"); sec != nil {
		if err := parseSolver(sec, &s.Chain); err != nil {
			return nil, err
		}
	}
	if sec := cfg.GetSectionOptional("session"); sec != nil {
		if err := parseSession(sec, &s.Session); err != nil {
			return nil, err
		}
	}
	if sec := cfg.GetSectionOptional("log"); sec != nil {
		if err := parseLog(sec, &s.Log); err != nil {
			return nil, err
		}
	}

	if err := cfg.CheckUnusedSections(); err != nil {
		return nil, err
	}
	if err := cfg.CheckUnusedOptions(); err != nil {
		return nil, err
	}
	if err := s.Chain.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func parseChain(sec *Section, s *Settings) error {
	one := 1
	links, err := sec.GetIntWithBounds("links", &one, nil, s.Chain.Links)
	if err != nil {
		return err
	}
	defaults := chain.DefaultConfig(links)
	c := &s.Chain
	c.Links = links

	zero := 0.0
	if c.StepSize, err = sec.GetFloatWithBounds("step_size", FloatBounds{Above: &zero}, defaults.StepSize); err != nil {
		return err
	}
	if c.StepScale, err = sec.GetFloatList("step_scale", ",", defaults.StepScale); err != nil {
		return err
	}
	if c.InitialGuess, err = sec.GetFloatList("initial_guess", ",", defaults.InitialGuess); err != nil {
		return err
	}
	if c.WarmStart, err = sec.GetBool("warm_start", false); err != nil {
		return err
	}
	if c.RestartCost, err = sec.GetFloatWithBounds("restart_cost", FloatBounds{MinVal: &zero}, defaults.RestartCost); err != nil {
		return err
	}

	if sec.HasOption("ground_truth") {
		truth, err := sec.GetFloatList("ground_truth", ",")
		if err != nil {
			return err
		}
		if len(truth) != links {
			return errors.ConfigValidationError("chain", "ground_truth", "needs one angle per link")
		}
		s.GroundTruth = truth
	}
	return nil
}

func parseSolver(sec *Section, c *chain.Config) error {
	o := &c.Solver
	one := 1
	zero := 0.0
	var err error
	if o.MaxIterations, err = sec.GetIntWithBounds("max_iterations", &one, nil, o.MaxIterations); err != nil {
		return err
	}
	if o.MaxRejections, err = sec.GetIntWithBounds("max_rejections", &one, nil, o.MaxRejections); err != nil {
		return err
	}
	nonNegative := FloatBounds{MinVal: &zero}
	if o.GradientTolerance, err = sec.GetFloatWithBounds("gradient_tolerance", nonNegative, o.GradientTolerance); err != nil {
		return err
	}
	if o.ParameterTolerance, err = sec.GetFloatWithBounds("parameter_tolerance", nonNegative, o.ParameterTolerance); err != nil {
		return err
	}
	if o.CostTolerance, err = sec.GetFloatWithBounds("cost_tolerance", nonNegative, o.CostTolerance); err != nil {
		return err
	}
	if o.InitialLambda, err = sec.GetFloatWithBounds("initial_lambda", FloatBounds{Above: &zero}, o.InitialLambda); err != nil {
		return err
	}
	if c.Trace, err = sec.GetBool("trace", false); err != nil {
		return err
	}
	return nil
}

func parseSession(sec *Section, s *SessionSettings) error {
	var err error
	if s.Listen, err = sec.Get("listen", s.Listen); err != nil {
		return err
	}
	if s.BroadcastInterval, err = sec.GetDuration("broadcast_interval", s.BroadcastInterval); err != nil {
		return err
	}
	return nil
}

func parseLog(sec *Section, s *LogSettings) error {
	level, err := sec.GetChoice("level", []string{"debug", "info", "warn", "error"}, s.Level.String())
	if err != nil {
		return err
	}
	format, err := sec.GetChoice("format", []string{"text", "json"}, "text")
	if err != nil {
		return err
	}
	s.Level = log.ParseLevel(level)
	s.Format = log.ParseFormat(format)
	return nil
}
