// Copyright (c) 2026 the datachat authors.
// Licensed under the GNU Affero General Public License v3.0 or later.
// See LICENSE for details.

package tools

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/datachat-oss/datachat/internal/query"
	"github.com/stretchr/testify/require"
)

func newTestExecutor(t *testing.T) *Executor {
	t.Helper()
	engine, err := query.Open(50, 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })
	require.NoError(t, engine.LoadCSV(context.Background(), writeSampleCSV(t)))
	return NewExecutor(engine, 100)
}

func writeSampleCSV(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := dir + "/sample.csv"
	require.NoError(t, os.WriteFile(path, []byte("x,y\n1,2\n3,4\n"), 0o600))
	return path
}

func TestExecutor_SQLQuery_Success(t *testing.T) {
	e := newTestExecutor(t)
	out, err := e.Execute(context.Background(), SQLQuery, map[string]any{
		"query": "SELECT * FROM data", "description": "peek",
	})
	require.NoError(t, err)
	require.Equal(t, "query_result", out.Kind)
	require.False(t, out.IsError)
	require.Equal(t, 2, out.Payload["row_count"])
}

func TestExecutor_SQLQuery_ValidationErrorSurfacesAsOutcome(t *testing.T) {
	e := newTestExecutor(t)
	out, err := e.Execute(context.Background(), SQLQuery, map[string]any{
		"query": "DROP TABLE data", "description": "oops",
	})
	require.NoError(t, err)
	require.True(t, out.IsError)
	require.Equal(t, "query_result", out.Kind)
	require.NotEmpty(t, out.ErrorText)
	require.Equal(t, true, out.Payload["is_error"])
}

func TestExecutor_OutputText_RequiresText(t *testing.T) {
	e := newTestExecutor(t)
	_, err := e.Execute(context.Background(), OutputText, map[string]any{})
	require.ErrorIs(t, err, ErrValidationFailed)
}

func TestExecutor_CreatePlot_TruncatesValues(t *testing.T) {
	e := newTestExecutor(t)
	values := make([]any, 250)
	for i := range values {
		values[i] = map[string]any{"x": i}
	}
	out, err := e.Execute(context.Background(), CreatePlot, map[string]any{
		"title": "chart",
		"spec": map[string]any{
			"mark": "point",
			"data": map[string]any{"values": values},
		},
	})
	require.NoError(t, err)
	spec := out.Payload["spec"].(map[string]any)
	data := spec["data"].(map[string]any)
	require.Len(t, data["values"], 100)
}

func TestExecutor_CreatePlot_AcceptsCompositionDiscriminator(t *testing.T) {
	e := newTestExecutor(t)
	out, err := e.Execute(context.Background(), CreatePlot, map[string]any{
		"title": "chart",
		"spec": map[string]any{
			"hconcat": []any{map[string]any{"mark": "bar"}},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "plot", out.Kind)
}

func TestExecutor_CreatePlot_RejectsSpecWithoutChartTypeDiscriminator(t *testing.T) {
	e := newTestExecutor(t)
	_, err := e.Execute(context.Background(), CreatePlot, map[string]any{
		"title": "chart",
		"spec": map[string]any{
			"data": map[string]any{"values": []any{map[string]any{"x": 1}}},
		},
	})
	require.ErrorIs(t, err, ErrValidationFailed)
}

func TestExecutor_Finalize_ParsesOptionalTitle(t *testing.T) {
	e := newTestExecutor(t)
	out, err := e.Execute(context.Background(), Finalize, map[string]any{"session_title": "My Analysis"})
	require.NoError(t, err)
	require.NotNil(t, out.FinalizeTitle)
	require.Equal(t, "My Analysis", *out.FinalizeTitle)

	out, err = e.Execute(context.Background(), Finalize, map[string]any{"session_title": nil})
	require.NoError(t, err)
	require.Nil(t, out.FinalizeTitle)
}

func TestExecutor_UnknownTool_ReturnsRecoverableOutcomeNotError(t *testing.T) {
	e := newTestExecutor(t)
	out, err := e.Execute(context.Background(), Name("delete_everything"), map[string]any{})
	require.NoError(t, err)
	require.True(t, out.IsError)
	require.Equal(t, "text", out.Kind)
	require.Contains(t, out.ErrorText, "delete_everything")
}
