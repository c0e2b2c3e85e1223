package main

import (
	"github.com/spf13/cobra"

	"ikchain/pkg/chain"
	"ikchain/pkg/config"
	"ikchain/pkg/log"
	"ikchain/pkg/metrics"
)

// globalOptions are the flags shared by every command.
type globalOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:   "ikchain",
		Short: "Inverse kinematics for planar chains of unit links",
		Long: `ikchain recovers the joint angles of a planar chain of unit-length links
from the positions of its link endpoints, using Levenberg-Marquardt with
automatically differentiated Jacobians.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "configuration file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "log format (text, json)")

	root.AddCommand(newSolveCmd(opts))
	root.AddCommand(newRunCmd(opts))
	root.AddCommand(newServeCmd(opts))
	return root
}

// load reads the configuration file, if any, and configures the default
// logger. Flags win over the [log] section, which wins over the environment.
func (o *globalOptions) load(cmd *cobra.Command) (*config.Settings, error) {
	settings := config.DefaultSettings()
	if o.configPath != "" {
		var err error
		if settings, err = config.LoadChainConfig(o.configPath); err != nil {
			return nil, err
		}
	}

	logger := log.New("ikchain")
	logger.SetWriter(cmd.ErrOrStderr())
	log.ConfigureFromEnv(logger)
	if o.configPath != "" {
		logger.SetLevel(settings.Log.Level)
		logger.SetFormat(settings.Log.Format)
	}
	if o.logLevel != "" {
		logger.SetLevel(log.ParseLevel(o.logLevel))
	}
	if o.logFormat != "" {
		logger.SetFormat(log.ParseFormat(o.logFormat))
	}
	log.SetDefaultLogger(logger)
	return settings, nil
}

// newState builds the chain described by settings and applies its ground
// truth.
func newState(settings *config.Settings, m *metrics.SolverMetrics) (*chain.State, error) {
	var opts []chain.Option
	if m != nil {
		opts = append(opts, chain.WithMetrics(m))
	}
	state, err := chain.New(settings.Chain, opts...)
	if err != nil {
		return nil, err
	}
	if settings.GroundTruth != nil {
		if err := state.SetGroundTruth(settings.GroundTruth); err != nil {
			return nil, err
		}
	}
	return state, nil
}
