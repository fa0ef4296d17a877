// Copyright (c) 2026 the datachat authors.
// Licensed under the GNU Affero General Public License v3.0 or later.
// See LICENSE for details.

// Package cache stores each session's dataset profile in an embedded
// Badger database, keyed by session ID, so the profile is computed once
// at upload and looked up cheaply on every subsequent Context Builder call
// rather than recomputed against the live query engine each turn.
package cache

import (
	"encoding/json"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/datachat-oss/datachat/internal/dataset"
)

// ProfileCache is a session-ID-keyed store of computed dataset profiles.
type ProfileCache struct {
	db *badger.DB
}

// Open opens (creating if necessary) a Badger database at dir.
func Open(dir string) (*ProfileCache, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("cache: open badger db: %w", err)
	}
	return &ProfileCache{db: db}, nil
}

// Close releases the underlying database.
func (c *ProfileCache) Close() error {
	return c.db.Close()
}

// Put stores profile under sessionID, overwriting any existing entry.
func (c *ProfileCache) Put(sessionID string, profile dataset.Profile) error {
	payload, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("cache: marshal profile: %w", err)
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(sessionID), payload)
	})
}

// Get returns the cached profile for sessionID, or false if none exists.
func (c *ProfileCache) Get(sessionID string) (dataset.Profile, bool, error) {
	var profile dataset.Profile
	found := false
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(sessionID))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &profile)
		})
	})
	if err != nil {
		return dataset.Profile{}, false, fmt.Errorf("cache: get profile: %w", err)
	}
	return profile, found, nil
}

// Delete removes the cached profile for sessionID, if any.
func (c *ProfileCache) Delete(sessionID string) error {
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(sessionID))
	})
}
