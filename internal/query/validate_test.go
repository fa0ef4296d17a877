// Copyright (c) 2026 the datachat authors.
// Licensed under the GNU Affero General Public License v3.0 or later.
// See LICENSE for details.

package query

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate_AllowsSelectAndWith(t *testing.T) {
	cases := []string{
		"SELECT * FROM data",
		"  select count(*) from data  ",
		"WITH t AS (SELECT * FROM data) SELECT * FROM t",
		"SELECT a, b FROM data WHERE a = 'x;y'", // semicolon inside a literal is fine
	}
	for _, q := range cases {
		assert.NoError(t, Validate(q), q)
	}
}

func TestValidate_RejectsEmpty(t *testing.T) {
	assert.ErrorIs(t, Validate(""), ErrEmptyQuery)
	assert.ErrorIs(t, Validate("   "), ErrEmptyQuery)
}

func TestValidate_RejectsMultipleStatements(t *testing.T) {
	err := Validate("SELECT * FROM data; DROP TABLE data")
	assert.ErrorIs(t, err, ErrMultiStatement)
}

func TestValidate_AllowsSingleTrailingSemicolon(t *testing.T) {
	cases := []string{
		"SELECT * FROM data;",
		"SELECT * FROM data; ",
		"SELECT * FROM data;\n",
	}
	for _, q := range cases {
		assert.NoError(t, Validate(q), q)
	}
}

func TestValidate_RejectsForbiddenKeywords(t *testing.T) {
	cases := []string{
		"DELETE FROM data",
		"insert into data values (1)",
		"DROP TABLE data",
		"ATTACH DATABASE 'x' AS y",
		"PRAGMA table_info(data)",
	}
	for _, q := range cases {
		err := Validate(q)
		assert.True(t, errors.Is(err, ErrForbiddenKeyword), "query %q should be rejected, got %v", q, err)
	}
}

func TestValidate_RejectsNonSelectFirstToken(t *testing.T) {
	err := Validate("EXPLAIN SELECT * FROM data")
	assert.ErrorIs(t, err, ErrNotSelect)
}

func TestValidate_RejectsForeignTables(t *testing.T) {
	cases := []string{
		"SELECT * FROM users",
		"SELECT * FROM data JOIN secrets ON data.id = secrets.id",
	}
	for _, q := range cases {
		assert.ErrorIs(t, Validate(q), ErrForeignTable, q)
	}
}

func TestValidate_AllowsSelfJoinOnData(t *testing.T) {
	err := Validate("SELECT a.x FROM data a JOIN data b ON a.id = b.id")
	assert.NoError(t, err)
}

func TestValidate_KeywordInsideCommentStillRejected(t *testing.T) {
	// Keyword scanning happens before comment stripping, deliberately
	// over-cautious — preserved from the algorithm this was ported from.
	err := Validate("SELECT * FROM data -- DROP everything\n")
	assert.ErrorIs(t, err, ErrForbiddenKeyword)
}
