// Copyright (c) 2026 the datachat authors.
// Licensed under the GNU Affero General Public License v3.0 or later.
// See LICENSE for details.

package cache

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/datachat-oss/datachat/internal/dataset"
)

func openTestCache(t *testing.T) *ProfileCache {
	t.Helper()
	c, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func sampleProfile() dataset.Profile {
	return dataset.Profile{
		RowCount:    2,
		ColumnCount: 1,
		Columns: []dataset.ColumnProfile{
			{Name: "x", Type: "INTEGER", NullRatioBucket: "none", UniqueCount: 2, SampleValues: []string{"1", "2"}},
		},
	}
}

func TestPut_ThenGet_ReturnsStoredProfile(t *testing.T) {
	c := openTestCache(t)
	profile := sampleProfile()

	require.NoError(t, c.Put("session-1", profile))

	got, found, err := c.Get("session-1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, profile, got)
}

func TestGet_UnknownSessionReturnsNotFound(t *testing.T) {
	c := openTestCache(t)

	got, found, err := c.Get("nonexistent")
	require.NoError(t, err)
	require.False(t, found)
	require.Equal(t, dataset.Profile{}, got)
}

func TestPut_OverwritesExistingEntry(t *testing.T) {
	c := openTestCache(t)
	first := sampleProfile()
	require.NoError(t, c.Put("session-1", first))

	second := sampleProfile()
	second.RowCount = 99
	require.NoError(t, c.Put("session-1", second))

	got, found, err := c.Get("session-1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 99, got.RowCount)
}

func TestDelete_RemovesEntry(t *testing.T) {
	c := openTestCache(t)
	require.NoError(t, c.Put("session-1", sampleProfile()))
	require.NoError(t, c.Delete("session-1"))

	_, found, err := c.Get("session-1")
	require.NoError(t, err)
	require.False(t, found)
}

func TestDelete_UnknownSessionIsNotAnError(t *testing.T) {
	c := openTestCache(t)
	require.NoError(t, c.Delete("nonexistent"))
}
