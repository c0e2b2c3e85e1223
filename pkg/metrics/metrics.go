// Prometheus metrics for the inverse kinematics solver
//
// Defines the metrics recorded by the chain driver and the session server:
// - Solve outcomes, iteration counts and durations
// - Final residual cost of the last solve
// - Restarts from target headings
// - Ground-truth updates by source
// - Errors by code
// - Connected session clients
//
// Copyright (C) 2026 Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ikchain/pkg/errors"
	"ikchain/pkg/solver"
)

const namespace = "ikchain"

// SolverMetrics holds every metric of one chain session. Each instance owns
// its registry so tests and multiple sessions do not collide.
type SolverMetrics struct {
	// Solve metrics
	SolvesTotal   *prometheus.CounterVec
	Iterations    prometheus.Histogram
	SolveDuration prometheus.Histogram
	FinalCost     prometheus.Gauge
	SVDFallbacks  prometheus.Counter
	Restarts      prometheus.Counter

	// Chain metrics
	UpdatesTotal *prometheus.CounterVec
	ErrorsTotal  *prometheus.CounterVec

	// Session metrics
	SessionClients prometheus.Gauge

	registry *prometheus.Registry
}

// NewSolverMetrics creates and registers all metrics on a fresh registry.
func NewSolverMetrics() *SolverMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	factory := promauto.With(reg)

	return &SolverMetrics{
		SolvesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solver",
			Name:      "solves_total",
			Help:      "Total solves by termination status",
		}, []string{"status"}),
		Iterations: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solver",
			Name:      "iterations",
			Help:      "Iterations used per solve",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100},
		}),
		SolveDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solver",
			Name:      "duration_seconds",
			Help:      "Wall time per solve",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
		}),
		FinalCost: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "solver",
			Name:      "final_cost",
			Help:      "Residual cost after the last solve",
		}),
		SVDFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solver",
			Name:      "svd_fallbacks_total",
			Help:      "Steps solved through the SVD fallback",
		}),
		Restarts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solver",
			Name:      "restarts_total",
			Help:      "Solves retried from the target headings",
		}),
		UpdatesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "ground_truth_updates_total",
			Help:      "Ground-truth changes by source",
		}, []string{"source"}),
		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Errors by code",
		}, []string{"code"}),
		SessionClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "clients",
			Help:      "Connected websocket clients",
		}),
		registry: reg,
	}
}

// ObserveSolve records the outcome of one solve.
func (m *SolverMetrics) ObserveSolve(summary solver.Summary, elapsed time.Duration) {
	m.SolvesTotal.WithLabelValues(summary.Status.String()).Inc()
	m.Iterations.Observe(float64(summary.Iterations))
	m.SolveDuration.Observe(elapsed.Seconds())
	m.FinalCost.Set(summary.FinalCost)
	m.SVDFallbacks.Add(float64(summary.SVDFallbacks))
}

// ObserveRestart counts a solve retried from a second start point.
func (m *SolverMetrics) ObserveRestart() {
	m.Restarts.Inc()
}

// ObserveUpdate counts a ground-truth change.
func (m *SolverMetrics) ObserveUpdate(source string) {
	m.UpdatesTotal.WithLabelValues(source).Inc()
}

// ObserveError counts err under its error code.
func (m *SolverMetrics) ObserveError(err error) {
	if err == nil {
		return
	}
	code := string(errors.CodeOf(err))
	if code == "" {
		code = "unknown"
	}
	m.ErrorsTotal.WithLabelValues(code).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *SolverMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
