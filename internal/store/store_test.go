// Copyright (c) 2026 the datachat authors.
// Licensed under the GNU Affero General Public License v3.0 or later.
// See LICENSE for details.

package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/datachat-oss/datachat/internal/dataset"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)
	return s
}

func sampleDataset() *dataset.Dataset {
	return &dataset.Dataset{
		Filename:   "sample.csv",
		PathOnDisk: "/tmp/sample.csv",
		Profile: dataset.Profile{
			RowCount: 2, ColumnCount: 1,
			Columns: []dataset.ColumnProfile{{Name: "x", Type: "numeric"}},
		},
	}
}

func TestCreateSession_PersistsSessionAndDataset(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	session, err := s.CreateSession(ctx, uuid.NewString(), "user-1", sampleDataset())
	require.NoError(t, err)
	require.NotEmpty(t, session.ID)

	got, err := s.GetSession(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, "user-1", got.UserID)

	ds, err := s.GetDataset(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, "sample.csv", ds.Filename)
}

func TestAppendMessage_AndListForClientExcludesInternal(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	session, err := s.CreateSession(ctx, uuid.NewString(), "user-1", sampleDataset())
	require.NoError(t, err)

	_, err = s.AppendMessage(ctx, session.ID, RoleUser, "user", "how many rows?", nil)
	require.NoError(t, err)
	_, err = s.AppendMessage(ctx, session.ID, RoleInternal, "reasoning", "checking row count", nil)
	require.NoError(t, err)
	_, err = s.AppendMessage(ctx, session.ID, RoleAssistant, "text", "there are 2 rows", nil)
	require.NoError(t, err)

	clientView, err := s.ListMessagesForClient(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, clientView, 2)

	fullView, err := s.ListMessagesForContext(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, fullView, 3)
}

func TestListMessagesForClient_ExcludesQueryResult(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	session, err := s.CreateSession(ctx, uuid.NewString(), "user-1", sampleDataset())
	require.NoError(t, err)

	_, err = s.AppendMessage(ctx, session.ID, RoleUser, "user", "hi", nil)
	require.NoError(t, err)
	_, err = s.AppendMessage(ctx, session.ID, RoleAssistant, "text", "hello", nil)
	require.NoError(t, err)
	_, err = s.AppendMessage(ctx, session.ID, RoleAssistant, "query_result", "1 row", map[string]any{"rows": []any{1}})
	require.NoError(t, err)

	clientView, err := s.ListMessagesForClient(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, clientView, 2)
	require.Equal(t, "hi", clientView[0].Body)
	require.Equal(t, "hello", clientView[1].Body)

	fullView, err := s.ListMessagesForContext(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, fullView, 3)
}

func TestSetTitleIfUnset_DoesNotOverwriteExistingTitle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	session, err := s.CreateSession(ctx, uuid.NewString(), "user-1", sampleDataset())
	require.NoError(t, err)

	require.NoError(t, s.SetTitleIfUnset(ctx, session.ID, "First Title"))
	require.NoError(t, s.SetTitleIfUnset(ctx, session.ID, "Second Title"))

	got, err := s.GetSession(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, "First Title", got.Title)
}

func TestDeleteSession_CascadesToMessagesAndDataset(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	session, err := s.CreateSession(ctx, uuid.NewString(), "user-1", sampleDataset())
	require.NoError(t, err)
	_, err = s.AppendMessage(ctx, session.ID, RoleUser, "user", "hi", nil)
	require.NoError(t, err)

	require.NoError(t, s.DeleteSession(ctx, session.ID))

	_, err = s.GetSession(ctx, session.ID)
	require.Error(t, err)

	messages, err := s.ListMessagesForContext(ctx, session.ID)
	require.NoError(t, err)
	require.Empty(t, messages)
}
