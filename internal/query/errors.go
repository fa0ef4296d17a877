// Copyright (c) 2026 the datachat authors.
// Licensed under the GNU Affero General Public License v3.0 or later.
// See LICENSE for details.

package query

import "errors"

// Sentinel errors returned by Validate and Run. Callers should match with
// errors.Is rather than string comparison.
var (
	ErrEmptyQuery      = errors.New("query: empty query is not allowed")
	ErrMultiStatement  = errors.New("query: multiple statements are not allowed")
	ErrForbiddenKeyword = errors.New("query: statement type is not allowed, only SELECT queries are permitted")
	ErrNotSelect       = errors.New("query: statement must start with SELECT or WITH")
	ErrForeignTable    = errors.New("query: only the `data` table may be referenced")
	ErrExecution       = errors.New("query: execution failed")
	ErrTimeout         = errors.New("query: execution timed out")
)
