// Copyright (c) 2026 the datachat authors.
// Licensed under the GNU Affero General Public License v3.0 or later.
// See LICENSE for details.

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/datachat-oss/datachat/internal/dataset"
)

// ErrNotFound wraps gorm.ErrRecordNotFound so callers don't need to
// import gorm directly.
var ErrNotFound = gorm.ErrRecordNotFound

// Store is the C4 Message Store: sessions, their datasets, and their
// message history, backed by a pure-Go SQLite driver so the module stays
// cgo-free end to end.
type Store struct {
	db *gorm.DB
}

// Open opens (creating and migrating if necessary) the database at dsn.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	if err := db.AutoMigrate(&Session{}, &Message{}, &Dataset{}); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// CreateSession inserts a new session and its dataset row in one
// transaction, matching the original's "session and file record created
// together at upload" invariant. sessionID is generated by the caller
// (rather than here) so the caller can lay the dataset's on-disk file
// under a directory named after it before the row exists.
func (s *Store) CreateSession(ctx context.Context, sessionID, userID string, ds *dataset.Dataset) (*Session, error) {
	columns, err := json.Marshal(columnNames(ds.Profile))
	if err != nil {
		return nil, fmt.Errorf("store: marshal columns: %w", err)
	}
	profile, err := json.Marshal(ds.Profile)
	if err != nil {
		return nil, fmt.Errorf("store: marshal profile: %w", err)
	}

	session := &Session{ID: sessionID, UserID: userID}
	record := &Dataset{
		SessionID:   session.ID,
		Filename:    ds.Filename,
		PathOnDisk:  ds.PathOnDisk,
		RowCount:    ds.Profile.RowCount,
		ColumnCount: ds.Profile.ColumnCount,
		Columns:     columns,
		Profile:     profile,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(session).Error; err != nil {
			return err
		}
		return tx.Create(record).Error
	})
	if err != nil {
		return nil, fmt.Errorf("store: create session: %w", err)
	}
	return session, nil
}

// GetSession returns a session by ID.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	var session Session
	if err := s.db.WithContext(ctx).First(&session, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

// ListSessions returns userID's sessions, most recent first.
func (s *Store) ListSessions(ctx context.Context, userID string) ([]Session, error) {
	var sessions []Session
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&sessions).Error
	return sessions, err
}

// DeleteSession removes a session together with its messages and dataset
// row in one transaction. The child rows are deleted explicitly, since
// SQLite applies the models' ON DELETE CASCADE only when foreign-key
// enforcement is enabled on the connection.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", id).Delete(&Message{}).Error; err != nil {
			return err
		}
		if err := tx.Where("session_id = ?", id).Delete(&Dataset{}).Error; err != nil {
			return err
		}
		return tx.Delete(&Session{}, "id = ?", id).Error
	})
}

// GetDataset returns id's dataset row.
func (s *Store) GetDataset(ctx context.Context, sessionID string) (*Dataset, error) {
	var ds Dataset
	if err := s.db.WithContext(ctx).First(&ds, "session_id = ?", sessionID).Error; err != nil {
		return nil, err
	}
	return &ds, nil
}

// UnmarshalProfile decodes a Dataset row's cached profile.
func (d *Dataset) UnmarshalProfile() (dataset.Profile, error) {
	var p dataset.Profile
	err := json.Unmarshal(d.Profile, &p)
	return p, err
}

// AppendMessage inserts one message into a session's history.
func (s *Store) AppendMessage(ctx context.Context, sessionID string, role Role, kind, body string, payload map[string]any) (*Message, error) {
	var payloadJSON []byte
	if payload != nil {
		var err error
		payloadJSON, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("store: marshal payload: %w", err)
		}
	}
	msg := &Message{SessionID: sessionID, Role: role, Kind: kind, Body: body, Payload: payloadJSON}
	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return nil, fmt.Errorf("store: append message: %w", err)
	}
	return msg, nil
}

// ListMessagesForClient returns a session's history excluding internal
// (reasoning) entries and query_result entries, oldest first — what a
// connected client is shown. query_result carries the model's private
// memory of what it already ran, not a chat bubble (spec: "Messages
// exclude kind query_result").
func (s *Store) ListMessagesForClient(ctx context.Context, sessionID string) ([]Message, error) {
	var messages []Message
	err := s.db.WithContext(ctx).
		Where("session_id = ? AND role <> ? AND kind <> ?", sessionID, RoleInternal, "query_result").
		Order("id ASC").
		Find(&messages).Error
	return messages, err
}

// ListMessagesForContext returns the full history including internal
// entries, oldest first — what the context builder flattens for the LLM.
func (s *Store) ListMessagesForContext(ctx context.Context, sessionID string) ([]Message, error) {
	var messages []Message
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id ASC").
		Find(&messages).Error
	return messages, err
}

// SetTitleIfUnset applies title to session only if it has none yet,
// enforcing finalize's set-once title rule at the layer that can
// actually see current session state.
func (s *Store) SetTitleIfUnset(ctx context.Context, sessionID, title string) error {
	res := s.db.WithContext(ctx).
		Model(&Session{}).
		Where("id = ? AND (title = ? OR title IS NULL)", sessionID, "").
		Update("title", title)
	if res.Error != nil {
		return fmt.Errorf("store: set title: %w", res.Error)
	}
	return nil
}

func columnNames(profile dataset.Profile) []string {
	names := make([]string, 0, len(profile.Columns))
	for _, c := range profile.Columns {
		names = append(names, c.Name)
	}
	return names
}

// IsNotFound reports whether err is the store's not-found sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
