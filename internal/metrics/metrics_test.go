// Copyright (c) 2026 the datachat authors.
// Licensed under the GNU Affero General Public License v3.0 or later.
// See LICENSE for details.

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestTurnsTotal_IncrementsByOutcome(t *testing.T) {
	before := testutil.ToFloat64(TurnsTotal.WithLabelValues("finalize"))

	TurnsTotal.WithLabelValues("finalize").Inc()

	after := testutil.ToFloat64(TurnsTotal.WithLabelValues("finalize"))
	require.Equal(t, before+1, after)
}

func TestToolCallsTotal_IncrementsByToolAndResult(t *testing.T) {
	before := testutil.ToFloat64(ToolCallsTotal.WithLabelValues("sql_query", "ok"))

	ToolCallsTotal.WithLabelValues("sql_query", "ok").Inc()

	after := testutil.ToFloat64(ToolCallsTotal.WithLabelValues("sql_query", "ok"))
	require.Equal(t, before+1, after)
}

func TestObserveQueryDuration_DoesNotPanic(t *testing.T) {
	require.NotPanics(t, func() {
		ObserveQueryDuration(time.Now().Add(-5 * time.Millisecond))
	})
}
