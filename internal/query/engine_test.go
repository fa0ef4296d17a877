// Copyright (c) 2026 the datachat authors.
// Licensed under the GNU Affero General Public License v3.0 or later.
// See LICENSE for details.

package query

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeCSV(t *testing.T, dir string, rows int) string {
	t.Helper()
	path := filepath.Join(dir, "sample.csv")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	_, err = f.WriteString("id,name,score\n")
	require.NoError(t, err)
	for i := 0; i < rows; i++ {
		_, err = f.WriteString(
			string(rune('0'+i%10)) + ",row,1.5\n",
		)
		require.NoError(t, err)
	}
	return path
}

func TestEngine_RunAppliesRowCapAndReportsTotal(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, 10)

	e, err := Open(3, 5*time.Second)
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.LoadCSV(context.Background(), path))

	result, err := e.Run(context.Background(), "SELECT * FROM data")
	require.NoError(t, err)
	require.Len(t, result.Rows, 3)
	require.Equal(t, 10, result.RowCount)
	require.True(t, result.Truncated)
}

func TestEngine_RunAcceptsTrailingSemicolon(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, 5)

	e, err := Open(50, 5*time.Second)
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.LoadCSV(context.Background(), path))

	result, err := e.Run(context.Background(), "SELECT * FROM data;")
	require.NoError(t, err)
	require.Len(t, result.Rows, 5)
}

func TestEngine_RunRejectsInvalidQuery(t *testing.T) {
	e, err := Open(50, 5*time.Second)
	require.NoError(t, err)
	defer e.Close()

	_, err = e.Run(context.Background(), "DROP TABLE data")
	require.ErrorIs(t, err, ErrForbiddenKeyword)
}

func TestEngine_RunTimesOut(t *testing.T) {
	e, err := Open(50, time.Nanosecond)
	require.NoError(t, err)
	defer e.Close()

	dir := t.TempDir()
	path := writeCSV(t, dir, 5)
	require.NoError(t, e.LoadCSV(context.Background(), path))

	_, err = e.Run(context.Background(), "SELECT * FROM data")
	require.Error(t, err)
}
