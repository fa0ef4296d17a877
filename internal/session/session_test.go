// Copyright (c) 2026 the datachat authors.
// Licensed under the GNU Affero General Public License v3.0 or later.
// See LICENSE for details.

package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTryAcquire_RejectsSecondConcurrentTurn(t *testing.T) {
	r := NewRegistry()

	_, release, err := r.TryAcquire(context.Background(), "s1")
	require.NoError(t, err)
	require.True(t, r.IsActive("s1"))

	_, _, err = r.TryAcquire(context.Background(), "s1")
	require.ErrorIs(t, err, ErrTurnInProgress)

	release()
	require.False(t, r.IsActive("s1"))
}

func TestTryAcquire_AllowsReacquireAfterRelease(t *testing.T) {
	r := NewRegistry()

	_, release, err := r.TryAcquire(context.Background(), "s1")
	require.NoError(t, err)
	release()

	_, release2, err := r.TryAcquire(context.Background(), "s1")
	require.NoError(t, err)
	release2()
}

func TestStop_CancelsTurnContext(t *testing.T) {
	r := NewRegistry()

	ctx, release, err := r.TryAcquire(context.Background(), "s1")
	require.NoError(t, err)
	defer release()

	require.NoError(t, r.Stop("s1"))
	select {
	case <-ctx.Done():
	default:
		t.Fatal("expected turn context to be cancelled")
	}
}

func TestStop_ReturnsErrorWhenNoActiveTurn(t *testing.T) {
	r := NewRegistry()
	require.ErrorIs(t, r.Stop("missing"), ErrNoActiveTurn)
}

func TestTryAcquire_DifferentSessionsDoNotBlockEachOther(t *testing.T) {
	r := NewRegistry()

	_, release1, err := r.TryAcquire(context.Background(), "s1")
	require.NoError(t, err)
	defer release1()

	_, release2, err := r.TryAcquire(context.Background(), "s2")
	require.NoError(t, err)
	defer release2()
}
