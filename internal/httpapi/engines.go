// Copyright (c) 2026 the datachat authors.
// Licensed under the GNU Affero General Public License v3.0 or later.
// See LICENSE for details.

package httpapi

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/datachat-oss/datachat/internal/query"
	"github.com/datachat-oss/datachat/internal/store"
)

// EngineRegistry keeps one live query.Engine per session in memory,
// lazily reloading a session's dataset from disk after a process
// restart — the query engine itself is an in-memory sqlite database and
// does not survive a restart, but the uploaded file and its computed
// profile do (in internal/store), so reload is cheap and deterministic.
type EngineRegistry struct {
	mu      sync.Mutex
	engines map[string]*query.Engine
	rowCap  int
	timeout time.Duration
}

// NewEngineRegistry builds a registry whose engines share rowCap and timeout.
func NewEngineRegistry(rowCap int, timeout time.Duration) *EngineRegistry {
	return &EngineRegistry{engines: make(map[string]*query.Engine), rowCap: rowCap, timeout: timeout}
}

// Register adopts an already-loaded engine for sessionID, used right
// after an upload where the engine was just populated.
func (r *EngineRegistry) Register(sessionID string, engine *query.Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[sessionID] = engine
}

// Get returns sessionID's engine, reloading it from ds.PathOnDisk if the
// process was restarted since the session's engine was last live.
func (r *EngineRegistry) Get(ctx context.Context, sessionID string, ds *store.Dataset) (*query.Engine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if engine, ok := r.engines[sessionID]; ok {
		return engine, nil
	}

	engine, err := query.Open(r.rowCap, r.timeout)
	if err != nil {
		return nil, fmt.Errorf("httpapi: reopen engine for session %s: %w", sessionID, err)
	}

	switch filepath.Ext(ds.PathOnDisk) {
	case ".csv":
		err = engine.LoadCSV(ctx, ds.PathOnDisk)
	case ".parquet", ".pq":
		err = engine.LoadParquet(ctx, ds.PathOnDisk)
	default:
		err = fmt.Errorf("httpapi: unrecognized dataset file extension for session %s", sessionID)
	}
	if err != nil {
		engine.Close()
		return nil, fmt.Errorf("httpapi: reload dataset for session %s: %w", sessionID, err)
	}

	r.engines[sessionID] = engine
	return engine, nil
}

// Close releases and forgets sessionID's engine, if any.
func (r *EngineRegistry) Close(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if engine, ok := r.engines[sessionID]; ok {
		engine.Close()
		delete(r.engines, sessionID)
	}
}
