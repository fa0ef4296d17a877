// Copyright (c) 2026 the datachat authors.
// Licensed under the GNU Affero General Public License v3.0 or later.
// See LICENSE for details.

package query

import (
	_ "embed"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed keywords.yaml
var keywordsYAML []byte

var forbiddenKeywords *regexp.Regexp

func init() {
	var doc struct {
		Keywords []string `yaml:"keywords"`
	}
	if err := yaml.Unmarshal(keywordsYAML, &doc); err != nil {
		panic(fmt.Sprintf("query: malformed keywords.yaml: %v", err))
	}
	forbiddenKeywords = regexp.MustCompile(`(?i)\b(` + strings.Join(doc.Keywords, "|") + `)\b`)
}

var (
	stringLiteralRe = regexp.MustCompile(`'[^']*'`)
	lineCommentRe   = regexp.MustCompile(`--[^\n]*`)
	blockCommentRe  = regexp.MustCompile(`(?s)/\*.*?\*/`)
	tableRefRe      = regexp.MustCompile(`(?i)\b(?:FROM|JOIN)\s+` + "`" + `?"?\[?([a-zA-Z_][a-zA-Z0-9_]*)` + "`" + `?"?\]?`)
)

// Validate checks that query is a single, read-only SELECT/WITH statement
// against the `data` table and nothing else.
//
// Order of checks mirrors the original sanitizer this was ported from:
// strip string literals, reject semicolons (multi-statement), scan for
// forbidden keywords on the string-stripped-but-comment-intact text (so a
// forbidden word inside a comment is still rejected, deliberately
// over-cautious), strip comments, then require the first token be SELECT
// or WITH. The final table-reference check — requiring every FROM/JOIN
// target to be exactly `data` or a name defined by the statement's own
// WITH clause — has no equivalent in the source this was
// ported from, which relied on connection-scoped view isolation instead;
// it is implemented fresh here as a stricter, explicit guarantee.
func Validate(q string) error {
	stripped := strings.TrimSpace(q)
	if stripped == "" {
		return ErrEmptyQuery
	}

	noStrings := stringLiteralRe.ReplaceAllString(stripped, "")
	// A single trailing semicolon is how most SQL clients terminate a
	// statement and isn't a second statement; only a semicolon followed
	// by further content indicates multiple statements.
	if strings.Contains(strings.TrimRight(noStrings, "; \t\n\r"), ";") {
		return ErrMultiStatement
	}

	if m := forbiddenKeywords.FindString(noStrings); m != "" {
		return fmt.Errorf("%w: %q", ErrForbiddenKeyword, strings.ToUpper(m))
	}

	noComments := lineCommentRe.ReplaceAllString(noStrings, "")
	noComments = blockCommentRe.ReplaceAllString(noComments, "")
	fields := strings.Fields(noComments)
	if len(fields) == 0 {
		return ErrNotSelect
	}
	first := strings.ToUpper(fields[0])
	if first != "SELECT" && first != "WITH" {
		return fmt.Errorf("%w: found %q", ErrNotSelect, first)
	}

	// Names the statement's own WITH clause defines are legal FROM/JOIN
	// targets alongside `data`; the CTE bodies are still scanned below.
	allowed := map[string]bool{"data": true}
	if first == "WITH" {
		cteNameRe := regexp.MustCompile(`(?i)(?:\bWITH\s+(?:RECURSIVE\s+)?|,\s*)([a-zA-Z_][a-zA-Z0-9_]*)(?:\s*\([^)]*\))?\s+AS\s*\(`)
		for _, m := range cteNameRe.FindAllStringSubmatch(noComments, -1) {
			allowed[strings.ToLower(m[1])] = true
		}
	}

	for _, m := range tableRefRe.FindAllStringSubmatch(noComments, -1) {
		name := strings.Trim(m[1], `"`+"`"+`[]`)
		if !allowed[strings.ToLower(name)] {
			return fmt.Errorf("%w: %q", ErrForeignTable, name)
		}
	}

	return nil
}
