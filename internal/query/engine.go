// Copyright (c) 2026 the datachat authors.
// Licensed under the GNU Affero General Public License v3.0 or later.
// See LICENSE for details.

// Package query implements the read-only SQL surface the agent uses to
// explore an uploaded dataset. Every session gets its own engine backed by
// a single table named `data`; queries are validated before they ever
// reach the driver, and results are capped and time-boxed regardless of
// what the query itself asks for.
package query

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"github.com/datachat-oss/datachat/internal/metrics"
)

// Engine executes validated, read-only queries against one session's
// loaded dataset.
type Engine struct {
	db      *sql.DB
	rowCap  int
	timeout time.Duration

	// columnTypes records the SQL type each column of `data` was declared
	// with at load time (see createAndLoad), so callers profiling the
	// dataset can use the type the loader actually inferred instead of
	// re-deriving it from a runtime probe.
	columnTypes map[string]string
}

// Open creates an Engine backed by an in-memory sqlite database. Callers
// load rows into the `data` table with LoadCSV or LoadParquet before
// running queries.
func Open(rowCap int, timeout time.Duration) (*Engine, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("query: open engine: %w", err)
	}
	db.SetMaxOpenConns(1) // glebarez/go-sqlite in-memory DBs are per-connection
	return &Engine{db: db, rowCap: rowCap, timeout: timeout}, nil
}

// ColumnType returns the SQL type name (INTEGER, REAL, BOOLEAN, or TEXT) that name
// was declared with at load time, and whether name is a known column.
func (e *Engine) ColumnType(name string) (string, bool) {
	t, ok := e.columnTypes[name]
	return t, ok
}

// Close releases the underlying database handle.
func (e *Engine) Close() error {
	return e.db.Close()
}

// Result is the outcome of a successful query.
type Result struct {
	Columns   []string         `json:"columns"`
	Rows      []map[string]any `json:"rows"`
	RowCount  int              `json:"row_count"`
	Truncated bool             `json:"truncated"`
}

// Run validates q and, if it passes, executes it against the `data` table.
// The result set is capped at the engine's row cap and the true row count
// (pre-cap) is reported separately so callers can tell the user how much
// was hidden. The query is aborted if it does not complete within the
// engine's timeout or ctx is cancelled first.
func (e *Engine) Run(ctx context.Context, q string) (*Result, error) {
	if err := Validate(q); err != nil {
		return nil, err
	}
	// Validate accepts one trailing semicolon (a normal statement
	// terminator); strip it before wrapping, since a semicolon inside the
	// subquery parens below would be a syntax error.
	q = strings.TrimRight(strings.TrimSpace(q), "; \t\n\r")
	defer metrics.ObserveQueryDuration(time.Now())

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM (%s) _datachat_count", q)
	var total int
	if err := e.db.QueryRowContext(ctx, countQuery).Scan(&total); err != nil {
		return nil, translateExecErr(err)
	}

	capped := fmt.Sprintf("SELECT * FROM (%s) _datachat_sub LIMIT ?", q)
	rows, err := e.db.QueryContext(ctx, capped, e.rowCap)
	if err != nil {
		return nil, translateExecErr(err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, translateExecErr(err)
	}

	result := &Result{Columns: cols, Rows: make([]map[string]any, 0, e.rowCap)}
	scanTargets := make([]any, len(cols))
	scanPtrs := make([]any, len(cols))
	for i := range scanTargets {
		scanPtrs[i] = &scanTargets[i]
	}

	for rows.Next() {
		if err := rows.Scan(scanPtrs...); err != nil {
			return nil, translateExecErr(err)
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = normalizeCell(scanTargets[i])
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, translateExecErr(err)
	}

	result.RowCount = total
	result.Truncated = total > e.rowCap
	return result, nil
}

func translateExecErr(err error) error {
	if err == context.DeadlineExceeded {
		return ErrTimeout
	}
	return fmt.Errorf("%w: %v", ErrExecution, err)
}

// normalizeCell converts a driver value into a JSON-friendly one: byte
// slices become strings, NaN/Inf floats become nil (JSON has no NaN), and
// everything else passes through unchanged. This is an enrichment over
// the naive str()-everything normalization this engine's design was
// ported from — it preserves numeric and boolean types for the client.
func normalizeCell(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil
		}
		return t
	default:
		return v
	}
}
