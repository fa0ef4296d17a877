// Copyright (c) 2026 the datachat authors.
// Licensed under the GNU Affero General Public License v3.0 or later.
// See LICENSE for details.

package dataset

import (
	"context"
	"testing"
	"time"

	"github.com/datachat-oss/datachat/internal/query"
	"github.com/stretchr/testify/require"
)

func TestIngest_ComputesProfile(t *testing.T) {
	engine, err := query.Open(500, 5*time.Second)
	require.NoError(t, err)
	defer engine.Close()

	csv := []byte("id,label,score\n1,a,10.5\n2,b,\n3,a,20.5\n")
	ds, err := Ingest(context.Background(), engine, t.TempDir(), "sample.csv", csv, 1<<20)
	require.NoError(t, err)

	require.Equal(t, 3, ds.Profile.RowCount)
	require.Equal(t, 3, ds.Profile.ColumnCount)

	var scoreCol *ColumnProfile
	for i := range ds.Profile.Columns {
		if ds.Profile.Columns[i].Name == "score" {
			scoreCol = &ds.Profile.Columns[i]
		}
	}
	require.NotNil(t, scoreCol)
	require.Equal(t, int64(1), scoreCol.NullCount)
	require.NotNil(t, scoreCol.Mean)
}

func TestIngest_ProfilesColumnsWithSpecTypeEnum(t *testing.T) {
	engine, err := query.Open(500, 5*time.Second)
	require.NoError(t, err)
	defer engine.Close()

	csv := []byte("id,score,label\n1,10.5,a\n2,20.5,b\n3,30.5,a\n")
	ds, err := Ingest(context.Background(), engine, t.TempDir(), "sample.csv", csv, 1<<20)
	require.NoError(t, err)

	byName := map[string]ColumnProfile{}
	for _, c := range ds.Profile.Columns {
		byName[c.Name] = c
	}
	require.Equal(t, "integer", byName["id"].Type)
	require.Equal(t, "floating", byName["score"].Type)
	require.Equal(t, "textual", byName["label"].Type)
}

func TestBucketRatio_MatchesSpecFixedThresholds(t *testing.T) {
	cases := []struct {
		nullCount int64
		total     int
		want      string
	}{
		{0, 100, "none"},
		{4, 100, "low"},
		{5, 100, "moderate"},
		{24, 100, "moderate"},
		{25, 100, "high"},
		{100, 100, "high"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, bucketRatio(tc.nullCount, tc.total),
			"nullCount=%d total=%d", tc.nullCount, tc.total)
	}
}

func TestIngest_RejectsEmptyFile(t *testing.T) {
	engine, err := query.Open(500, 5*time.Second)
	require.NoError(t, err)
	defer engine.Close()

	_, err = Ingest(context.Background(), engine, t.TempDir(), "sample.csv", nil, 1<<20)
	require.ErrorIs(t, err, ErrEmptyFile)
}

func TestIngest_RejectsOversizedFile(t *testing.T) {
	engine, err := query.Open(500, 5*time.Second)
	require.NoError(t, err)
	defer engine.Close()

	_, err = Ingest(context.Background(), engine, t.TempDir(), "sample.csv", []byte("id\n1\n"), 1)
	require.ErrorIs(t, err, ErrFileTooLarge)
}

func TestIngest_RejectsUnsupportedExtension(t *testing.T) {
	engine, err := query.Open(500, 5*time.Second)
	require.NoError(t, err)
	defer engine.Close()

	_, err = Ingest(context.Background(), engine, t.TempDir(), "sample.txt", []byte("hi"), 1<<20)
	require.Error(t, err)
}
