// Chain state and driver
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package chain owns the ground-truth and recovered configurations of one
// planar chain and drives the solver between them.
package chain

import (
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"ikchain/pkg/errors"
	"ikchain/pkg/kinematics"
	"ikchain/pkg/log"
	"ikchain/pkg/metrics"
	"ikchain/pkg/solver"
)

// Direction is the sign of a nudge.
type Direction int

const (
	Decrease Direction = -1
	Increase Direction = 1
)

func (d Direction) String() string {
	switch d {
	case Increase:
		return "increase"
	case Decrease:
		return "decrease"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// ParseDirection accepts "increase"/"decrease" and their "+"/"-" shorthands.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "increase", "inc", "+":
		return Increase, nil
	case "decrease", "dec", "-":
		return Decrease, nil
	}
	return 0, errors.New(errors.ErrSessionParams, fmt.Sprintf("unknown direction %q", s))
}

// State holds a chain's ground truth, the solver's recovered configuration
// and the last solve summary. It has a single owner and is not safe for
// concurrent use.
type State struct {
	cfg   Config
	chain *kinematics.Chain

	truth        []float64
	truthPos     []kinematics.Vec2
	recovered    []float64
	recoveredPos []kinematics.Vec2

	last      solver.Summary
	solved    bool
	restarted bool
	// warm is the last solver result; recompute leaves it alone.
	warm []float64

	metrics *metrics.SolverMetrics
	tracer  trace.Tracer
	logger  *log.Logger
}

// Option configures a State.
type Option func(*State)

// WithMetrics records solves and updates on m.
func WithMetrics(m *metrics.SolverMetrics) Option {
	return func(s *State) {
		s.metrics = m
	}
}

// WithTracerProvider creates solve spans from tp instead of the global
// provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *State) {
		s.tracer = tp.Tracer(tracerName)
	}
}

// WithLogger replaces the "chain" logger.
func WithLogger(l *log.Logger) Option {
	return func(s *State) {
		s.logger = l
	}
}

const tracerName = "ikchain.chain"

// New builds a chain from cfg with all angles at zero. An invalid
// configuration is refused with a CONFIG_VALIDATION error.
func New(cfg Config, opts ...Option) (*State, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	kc, err := kinematics.NewChain(cfg.Links)
	if err != nil {
		return nil, err
	}
	s := &State{
		cfg:       cfg.clone(),
		chain:     kc,
		truth:     make([]float64, cfg.Links),
		recovered: make([]float64, cfg.Links),
		tracer:    otel.Tracer(tracerName),
		logger:    log.GetLogger("chain"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.recompute()
	return s, nil
}

// recompute refreshes both position sets and puts the recovered angles
// back to zero. Every ground-truth change goes through here.
func (s *State) recompute() {
	for i := range s.recovered {
		s.recovered[i] = 0
	}
	s.truthPos = kinematics.Forward(s.truth)
	s.recoveredPos = kinematics.Forward(s.recovered)
}

// SetGroundTruth replaces the ground-truth angles.
func (s *State) SetGroundTruth(angles []float64) error {
	if len(angles) != s.cfg.Links {
		err := errors.ChainInvalidError(fmt.Sprintf("expected %d angles, got %d", s.cfg.Links, len(angles)))
		s.observeError(err)
		return err
	}
	if !allFinite(angles) {
		err := errors.ChainInvalidError("angles must be finite")
		s.observeError(err)
		return err
	}
	copy(s.truth, angles)
	s.recompute()
	if s.metrics != nil {
		s.metrics.ObserveUpdate("set")
	}
	s.logger.WithField("angles", s.truth).Debug("ground truth set")
	return nil
}

// Nudge moves every ground-truth angle by dir * StepSize * StepScale[i].
func (s *State) Nudge(dir Direction) {
	for i := range s.truth {
		s.truth[i] += float64(dir) * s.cfg.StepSize * s.cfg.StepScale[i]
	}
	s.recompute()
	if s.metrics != nil {
		s.metrics.ObserveUpdate(dir.String())
	}
	s.logger.WithFields(log.Fields{
		"direction": dir.String(),
		"angles":    s.truth,
	}).Debug("ground truth nudged")
}

func (s *State) observeError(err error) {
	if s.metrics != nil {
		s.metrics.ObserveError(err)
	}
}

func clone[T any](in []T) []T {
	out := make([]T, len(in))
	copy(out, in)
	return out
}

// Links returns the link count.
func (s *State) Links() int { return s.cfg.Links }

// Config returns a copy of the configuration.
func (s *State) Config() Config { return s.cfg.clone() }

// GroundTruthAngles returns a copy of the ground-truth angles.
func (s *State) GroundTruthAngles() []float64 { return clone(s.truth) }

// GroundTruthPositions returns a copy of the ground-truth endpoints.
func (s *State) GroundTruthPositions() []kinematics.Vec2 { return clone(s.truthPos) }

// RecoveredAngles returns a copy of the recovered angles.
func (s *State) RecoveredAngles() []float64 { return clone(s.recovered) }

// RecoveredPositions returns a copy of the recovered endpoints.
func (s *State) RecoveredPositions() []kinematics.Vec2 { return clone(s.recoveredPos) }

// LastSummary returns the summary of the most recent solve and whether a
// solve has run since the chain was built.
func (s *State) LastSummary() (solver.Summary, bool) { return s.last, s.solved }

// Snapshot is a copy of the whole observable state.
type Snapshot struct {
	Links                int               `json:"links" yaml:"links"`
	GroundTruthAngles    []float64         `json:"ground_truth_angles" yaml:"ground_truth_angles"`
	GroundTruthPositions []kinematics.Vec2 `json:"ground_truth_positions" yaml:"ground_truth_positions"`
	RecoveredAngles      []float64         `json:"recovered_angles" yaml:"recovered_angles"`
	RecoveredPositions   []kinematics.Vec2 `json:"recovered_positions" yaml:"recovered_positions"`
	MaxDeviation         float64           `json:"max_deviation" yaml:"max_deviation"`
	LastSummary          *solver.Summary   `json:"last_summary,omitempty" yaml:"last_summary,omitempty"`
	Restarted            bool              `json:"restarted" yaml:"restarted"`
}

// Snapshot returns a copy of the current state.
func (s *State) Snapshot() Snapshot {
	snap := Snapshot{
		Links:                s.cfg.Links,
		GroundTruthAngles:    s.GroundTruthAngles(),
		GroundTruthPositions: s.GroundTruthPositions(),
		RecoveredAngles:      s.RecoveredAngles(),
		RecoveredPositions:   s.RecoveredPositions(),
		MaxDeviation:         kinematics.MaxDeviation(s.truthPos, s.recoveredPos),
	}
	if s.solved {
		summary := s.last
		snap.LastSummary = &summary
		snap.Restarted = s.restarted
	}
	return snap
}

// Status returns the chain description for status reporting.
func (s *State) Status() map[string]interface{} {
	status := s.chain.GetStatus()
	status["step_size"] = s.cfg.StepSize
	status["warm_start"] = s.cfg.WarmStart
	status["restart_cost"] = s.cfg.RestartCost
	return status
}
