// Copyright (c) 2026 the datachat authors.
// Licensed under the GNU Affero General Public License v3.0 or later.
// See LICENSE for details.

// Package metrics declares the Prometheus counters and histograms the
// agent loop and query engine increment, scraped at GET /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TurnsTotal counts completed turns by outcome (finalize, safety_net, max_iterations, error, cancelled).
	TurnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "datachat_turns_total",
		Help: "Total agent turns by outcome",
	}, []string{"outcome"})

	// ToolCallsTotal counts tool invocations by tool name and error status.
	ToolCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "datachat_tool_calls_total",
		Help: "Total tool invocations by tool name and result",
	}, []string{"tool", "result"})

	// TurnIterations tracks how many LLM-call/tool-call round trips a
	// turn took before finishing.
	TurnIterations = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "datachat_turn_iterations",
		Help:    "Number of iterations per agent turn",
		Buckets: []float64{1, 2, 3, 5, 8, 13, 15},
	})

	// QueryDuration tracks SQL execution latency.
	QueryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "datachat_query_duration_seconds",
		Help:    "SQL query execution duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})
)

// ObserveQueryDuration records how long a query took, given its start time.
func ObserveQueryDuration(start time.Time) {
	QueryDuration.Observe(time.Since(start).Seconds())
}
