package chain

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ikchain/pkg/ik"
	"ikchain/pkg/kinematics"
	"ikchain/pkg/log"
	"ikchain/pkg/solver"
)

func (s *State) startSolveSpan(ctx context.Context) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "State.TriggerSolve",
		trace.WithAttributes(
			attribute.Int("chain.links", s.cfg.Links),
			attribute.Bool("chain.warm_start", s.cfg.WarmStart),
		),
	)
}

func setSolveSpanResult(span trace.Span, summary solver.Summary, restarted bool) {
	span.SetAttributes(
		attribute.String("solver.status", summary.Status.String()),
		attribute.Int("solver.iterations", summary.Iterations),
		attribute.Float64("solver.final_cost", summary.FinalCost),
		attribute.Bool("solver.converged", summary.Converged()),
		attribute.Bool("chain.restarted", restarted),
	)
}

// needsRestart reports whether a finished solve stalled away from the
// targets. Convergence by step or gradient can stop at a local minimum, so
// only the cost decides.
func (s *State) needsRestart(summary solver.Summary) bool {
	return s.cfg.RestartCost > 0 && !(summary.FinalCost <= s.cfg.RestartCost)
}

// TriggerSolve recovers the angles that reproduce the current ground-truth
// endpoints. The solve starts from the configured initial guess, or from
// the previous result when WarmStart is set. When it ends above RestartCost
// it is run once more from the target headings and the lower-cost result
// wins. Failing to converge is not an error; the returned summary carries
// the status and the best angles found are stored either way.
func (s *State) TriggerSolve(ctx context.Context) (solver.Summary, error) {
	ctx, span := s.startSolveSpan(ctx)
	defer span.End()

	fail := func(err error) (solver.Summary, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.observeError(err)
		return solver.Summary{}, err
	}
	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	res, err := ik.NewResidual(s.truthPos)
	if err != nil {
		return fail(err)
	}
	var popts []ik.ProblemOption
	if s.cfg.Trace {
		popts = append(popts, ik.WithTrace(s.logger))
	}

	x := clone(s.cfg.InitialGuess)
	if s.cfg.WarmStart && s.warm != nil {
		x = clone(s.warm)
	}

	start := time.Now()
	summary, err := solver.Solve(ik.NewProblem(res, popts...), x, s.cfg.Solver)
	if err != nil {
		return fail(err)
	}

	restarted := false
	if s.needsRestart(summary) {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		s.logger.WithFields(log.Fields{
			"status":     summary.Status.String(),
			"final_cost": summary.FinalCost,
		}).Info("solve stalled, restarting from target headings")

		retry := res.HeadingGuess()
		again, err := solver.Solve(ik.NewProblem(res, popts...), retry, s.cfg.Solver)
		if err != nil {
			return fail(err)
		}
		restarted = true
		if s.metrics != nil {
			s.metrics.ObserveRestart()
		}
		if again.FinalCost < summary.FinalCost {
			x, summary = retry, again
		}
	}
	elapsed := time.Since(start)

	s.recovered = x
	s.warm = clone(x)
	s.recoveredPos = kinematics.Forward(x)
	s.last = summary
	s.restarted = restarted
	s.solved = true

	setSolveSpanResult(span, summary, restarted)
	if s.metrics != nil {
		s.metrics.ObserveSolve(summary, elapsed)
	}

	entry := s.logger.WithFields(log.Fields{
		"status":     summary.Status.String(),
		"iterations": summary.Iterations,
		"final_cost": summary.FinalCost,
		"restarted":  restarted,
		"elapsed":    elapsed,
	})
	if summary.Converged() {
		entry.Debug("solve converged")
	} else {
		entry.Warn("solve did not converge")
	}
	return summary, nil
}
