package chain

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"ikchain/pkg/errors"
	"ikchain/pkg/kinematics"
	"ikchain/pkg/metrics"
	"ikchain/pkg/solver"
)

func newState(t *testing.T, n int, opts ...Option) *State {
	t.Helper()
	s, err := New(DefaultConfig(n), opts...)
	require.NoError(t, err)
	return s
}

// sameAngles compares angles modulo 2π.
func sameAngles(t *testing.T, want, got []float64, tol float64) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		d := math.Remainder(got[i]-want[i], 2*math.Pi)
		assert.InDelta(t, 0, d, tol, "angle %d: want %v got %v", i, want[i], got[i])
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig(3)
	assert.Equal(t, 3, cfg.Links)
	assert.Equal(t, 0.05, cfg.StepSize)
	assert.Equal(t, []float64{1, 2, 3}, cfg.StepScale)
	assert.Equal(t, []float64{-1.2, -1.2, -1.2}, cfg.InitialGuess)
	assert.Equal(t, 1e-10, cfg.RestartCost)
	assert.Equal(t, solver.DefaultOptions(), cfg.Solver)
	assert.NoError(t, cfg.Validate())
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		option string
		mutate func(c *Config)
	}{
		{"zero links", "links", func(c *Config) { c.Links = 0 }},
		{"negative step", "step_size", func(c *Config) { c.StepSize = -0.1 }},
		{"nan step", "step_size", func(c *Config) { c.StepSize = math.NaN() }},
		{"short scale", "step_scale", func(c *Config) { c.StepScale = []float64{1} }},
		{"inf scale", "step_scale", func(c *Config) { c.StepScale[1] = math.Inf(1) }},
		{"long guess", "initial_guess", func(c *Config) { c.InitialGuess = []float64{0, 0, 0} }},
		{"negative restart", "restart_cost", func(c *Config) { c.RestartCost = -1 }},
		{"nan restart", "restart_cost", func(c *Config) { c.RestartCost = math.NaN() }},
		{"bad solver", "max_iterations", func(c *Config) { c.Solver.MaxIterations = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig(2)
			tt.mutate(&cfg)
			s, err := New(cfg)
			require.Error(t, err)
			assert.Nil(t, s)
			assert.True(t, errors.Is(err, errors.ErrConfigValidation), "got %v", err)
			assert.Contains(t, err.Error(), tt.option)
		})
	}
}

func TestZeroSolverOptionsUseDefaults(t *testing.T) {
	cfg := DefaultConfig(2)
	cfg.Solver = solver.Options{}
	s, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, solver.DefaultOptions(), s.Config().Solver)
}

func TestNewStartsAtZero(t *testing.T) {
	s := newState(t, 2)
	assert.Equal(t, 2, s.Links())
	assert.Equal(t, []float64{0, 0}, s.GroundTruthAngles())
	assert.Equal(t, []float64{0, 0}, s.RecoveredAngles())
	assert.Equal(t, []kinematics.Vec2{{X: 1}, {X: 2}}, s.GroundTruthPositions())

	_, solved := s.LastSummary()
	assert.False(t, solved)
	assert.Nil(t, s.Snapshot().LastSummary)
}

func TestNudgeScenario(t *testing.T) {
	s := newState(t, 2)

	s.Nudge(Increase)
	assert.InDeltaSlice(t, []float64{0.05, 0.10}, s.GroundTruthAngles(), 1e-15)
	pos := s.GroundTruthPositions()
	require.Len(t, pos, 2)
	assert.InDelta(t, math.Cos(0.05), pos[0].X, 1e-12)
	assert.InDelta(t, math.Sin(0.05), pos[0].Y, 1e-12)
	assert.InDelta(t, math.Cos(0.05)+math.Cos(0.15), pos[1].X, 1e-12)
	assert.InDelta(t, math.Sin(0.05)+math.Sin(0.15), pos[1].Y, 1e-12)

	s.Nudge(Decrease)
	s.Nudge(Decrease)
	assert.InDeltaSlice(t, []float64{-0.05, -0.10}, s.GroundTruthAngles(), 1e-15)
}

func TestGroundTruthChangeResetsRecovered(t *testing.T) {
	s := newState(t, 2)
	require.NoError(t, s.SetGroundTruth([]float64{-0.5, -0.4}))
	_, err := s.TriggerSolve(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, []float64{0, 0}, s.RecoveredAngles())

	s.Nudge(Increase)
	assert.Equal(t, []float64{0, 0}, s.RecoveredAngles())
	assert.Equal(t, []kinematics.Vec2{{X: 1}, {X: 2}}, s.RecoveredPositions())
}

func TestSetGroundTruthValidation(t *testing.T) {
	s := newState(t, 2)
	err := s.SetGroundTruth([]float64{1})
	assert.True(t, errors.Is(err, errors.ErrChainInvalid))
	err = s.SetGroundTruth([]float64{1, math.NaN()})
	assert.True(t, errors.Is(err, errors.ErrChainInvalid))
	assert.Equal(t, []float64{0, 0}, s.GroundTruthAngles())
}

func TestSetGroundTruthCopiesInput(t *testing.T) {
	s := newState(t, 2)
	in := []float64{0.3, 0.6}
	require.NoError(t, s.SetGroundTruth(in))
	in[0] = 9
	assert.Equal(t, []float64{0.3, 0.6}, s.GroundTruthAngles())

	out := s.GroundTruthAngles()
	out[1] = 9
	assert.Equal(t, []float64{0.3, 0.6}, s.GroundTruthAngles())
}

func TestTriggerSolveConverges(t *testing.T) {
	truths := [][]float64{
		{-0.5, -0.4},
		{0.05, 0.10},
		{-1.0, 0.5},
		{0.2, -0.3},
		{-0.8, -0.9, -1.0},
		{2.39, 1.92, 1.17},
	}
	for _, truth := range truths {
		s := newState(t, len(truth))
		require.NoError(t, s.SetGroundTruth(truth))

		summary, err := s.TriggerSolve(context.Background())
		require.NoError(t, err)
		assert.True(t, summary.Converged(), "truth %v: status %s", truth, summary.Status)

		assert.Less(t, kinematics.MaxDeviation(s.GroundTruthPositions(), s.RecoveredPositions()), 1e-5)
		sameAngles(t, truth, s.RecoveredAngles(), 1e-5)

		last, solved := s.LastSummary()
		assert.True(t, solved)
		assert.Equal(t, summary, last)
	}
}

func TestTriggerSolveConvergesOnRandomTargets(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for n := 1; n <= 6; n++ {
		s := newState(t, n)
		for trial := 0; trial < 200; trial++ {
			truth := make([]float64, n)
			for i := range truth {
				truth[i] = (2*rng.Float64() - 1) * math.Pi
			}
			require.NoError(t, s.SetGroundTruth(truth))

			summary, err := s.TriggerSolve(context.Background())
			require.NoError(t, err)
			if !assert.LessOrEqual(t, summary.FinalCost, 1e-10, "truth %v: status %s", truth, summary.Status) {
				continue
			}
			assert.True(t, summary.Converged(), "truth %v: status %s", truth, summary.Status)
			assert.Less(t, kinematics.MaxDeviation(s.GroundTruthPositions(), s.RecoveredPositions()), 1e-5, "truth %v", truth)
			sameAngles(t, truth, s.RecoveredAngles(), 1e-5)
		}
	}
}

func TestTriggerSolveRestartsWhenStalled(t *testing.T) {
	cfg := DefaultConfig(3)
	cfg.Solver.MaxIterations = 1
	m := metrics.NewSolverMetrics()
	s, err := New(cfg, WithMetrics(m))
	require.NoError(t, err)
	truth := []float64{2.39, 1.92, 1.17}
	require.NoError(t, s.SetGroundTruth(truth))

	summary, err := s.TriggerSolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, solver.CostTooSmall, summary.Status)
	assert.True(t, s.Snapshot().Restarted)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Restarts))
	sameAngles(t, truth, s.RecoveredAngles(), 1e-9)

	// Without the restart the single iteration is all there is.
	cfg.RestartCost = 0
	s, err = New(cfg)
	require.NoError(t, err)
	require.NoError(t, s.SetGroundTruth(truth))
	summary, err = s.TriggerSolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, solver.HitMaxIterations, summary.Status)
	assert.False(t, s.Snapshot().Restarted)
	assert.Greater(t, summary.FinalCost, 1e-10)
}

func TestTriggerSolveRoundTrip(t *testing.T) {
	// Starting at the answer stops before the first iteration.
	cfg := DefaultConfig(2)
	cfg.InitialGuess = []float64{0.3, -0.2}
	s, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, s.SetGroundTruth([]float64{0.3, -0.2}))

	summary, err := s.TriggerSolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, solver.CostTooSmall, summary.Status)
	assert.Equal(t, 0, summary.Iterations)
	assert.Equal(t, []float64{0.3, -0.2}, s.RecoveredAngles())
}

func TestTriggerSolveDeterministic(t *testing.T) {
	a := newState(t, 3)
	b := newState(t, 3)
	for _, s := range []*State{a, b} {
		require.NoError(t, s.SetGroundTruth([]float64{0.4, -0.3, 0.7}))
	}
	sa, err := a.TriggerSolve(context.Background())
	require.NoError(t, err)
	sb, err := b.TriggerSolve(context.Background())
	require.NoError(t, err)

	assert.Equal(t, sa, sb)
	assert.Equal(t, a.RecoveredAngles(), b.RecoveredAngles())

	// Repeated solves start from the same guess.
	again, err := a.TriggerSolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, sa, again)
}

func TestWarmStart(t *testing.T) {
	cfg := DefaultConfig(2)
	cfg.WarmStart = true
	s, err := New(cfg)
	require.NoError(t, err)

	require.NoError(t, s.SetGroundTruth([]float64{-0.5, -0.4}))
	first, err := s.TriggerSolve(context.Background())
	require.NoError(t, err)
	require.True(t, first.Converged())

	s.Nudge(Increase)
	second, err := s.TriggerSolve(context.Background())
	require.NoError(t, err)
	assert.True(t, second.Converged())
	assert.Less(t, second.InitialCost, first.InitialCost)
	sameAngles(t, []float64{-0.45, -0.3}, s.RecoveredAngles(), 1e-5)
}

func TestTriggerSolveCanceled(t *testing.T) {
	s := newState(t, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.TriggerSolve(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	_, solved := s.LastSummary()
	assert.False(t, solved)
}

func TestTriggerSolveTracesAndRecords(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	defer tp.Shutdown(context.Background())
	m := metrics.NewSolverMetrics()

	s := newState(t, 2, WithTracerProvider(tp), WithMetrics(m))
	require.NoError(t, s.SetGroundTruth([]float64{0.2, -0.3}))
	s.Nudge(Increase)
	summary, err := s.TriggerSolve(context.Background())
	require.NoError(t, err)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "State.TriggerSolve", spans[0].Name())
	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range spans[0].Attributes() {
		attrs[kv.Key] = kv.Value
	}
	assert.Equal(t, int64(2), attrs["chain.links"].AsInt64())
	assert.Equal(t, summary.Status.String(), attrs["solver.status"].AsString())
	assert.Equal(t, int64(summary.Iterations), attrs["solver.iterations"].AsInt64())
	assert.False(t, attrs["chain.restarted"].AsBool())

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SolvesTotal.WithLabelValues(summary.Status.String())))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UpdatesTotal.WithLabelValues("set")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UpdatesTotal.WithLabelValues("increase")))
}

func TestSnapshot(t *testing.T) {
	s := newState(t, 2)
	require.NoError(t, s.SetGroundTruth([]float64{0.05, 0.10}))
	snap := s.Snapshot()
	assert.Equal(t, 2, snap.Links)
	assert.Greater(t, snap.MaxDeviation, 0.0)

	_, err := s.TriggerSolve(context.Background())
	require.NoError(t, err)
	snap = s.Snapshot()
	require.NotNil(t, snap.LastSummary)
	assert.Less(t, snap.MaxDeviation, 1e-5)

	snap.RecoveredAngles[0] = 42
	assert.NotEqual(t, 42.0, s.RecoveredAngles()[0])
}

func TestParseDirection(t *testing.T) {
	d, err := ParseDirection("Increase")
	require.NoError(t, err)
	assert.Equal(t, Increase, d)
	d, err = ParseDirection("-")
	require.NoError(t, err)
	assert.Equal(t, Decrease, d)
	_, err = ParseDirection("sideways")
	assert.True(t, errors.Is(err, errors.ErrSessionParams))

	assert.Equal(t, "increase", Increase.String())
	assert.Equal(t, "direction(0)", Direction(0).String())
}

func TestStatus(t *testing.T) {
	status := newState(t, 3).Status()
	assert.Equal(t, "planar_chain", status["kinematics"])
	assert.Equal(t, 3, status["links"])
	assert.Equal(t, 0.05, status["step_size"])
}
