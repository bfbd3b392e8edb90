// Copyright 2020-2021 Dolthub, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package parse wraps the vitess SQL tokenizer/parser (via
// sqlparser.ParseOneWithOptions) with a pre-parse
// dialect substitution table and a post-parse entry point that hands a
// vitess AST to the plan builder (builder.go).
package parse

import "regexp"

// DialectSubstitution is one entry of ordered, documented
// substitution table: a conservative text rewrite that smooths over a
// known-buggy shape a specific BI tool produces, applied before parsing.
// Order matters — a later entry may depend on an earlier one having
// already fired, per "changing the order can change which
// substitution fires".
type DialectSubstitution struct {
	// Tool names the BI client this substitution targets, e.g. "Sigma",
	// "Redshift-style output", "Tableau". Required so engineers reviewing
	// the table can tell which integration a given entry protects.
	Tool string
	// Pattern is compiled once; Replacement follows regexp.ReplaceAll's
	// $-group syntax.
	Pattern *regexp.Regexp
	Replacement string
}

// SubstitutionTable is an ordered list of DialectSubstitution, applied in
// sequence by Apply.
type SubstitutionTable []DialectSubstitution

// NewSubstitutionTable compiles the fixed set of pre-parse workarounds
// documented for this implementation. Each entry is a narrow, targeted
// fix: requires these never change the semantics of a query
// that was already valid, so each pattern rewrites a shape into an
// equivalent form the parser accepts.
func NewSubstitutionTable() SubstitutionTable {
	return SubstitutionTable{
		{
			// Some BI tools emit a Postgres-only double-colon cast
			// against a bare identifier (inside window frame bounds,
			// among other places), which the grammar this parser targets
			// doesn't accept; rewrite to the equivalent CAST(... AS ...)
			// form, which it does. The pattern is not limited to frame
			// bounds: every identifier::type in the statement is rewritten.
			Tool: "generic-postgres-cast",
			Pattern: regexp.MustCompile(`(?i)\b([A-Za-z_][A-Za-z0-9_.]*)\s*::\s*([A-Za-z][A-Za-z0-9_]*)\b`),
			Replacement: "CAST($1 AS $2)",
		},
		{
			// Sigma emits `FROM (subquery) WITH nsp.tbl` as a hint
			// comment-like suffix that the parser doesn't expect after a
			// derived table; drop the hint, the subquery alias is
			// already present so no information is lost.
			Tool: "Sigma",
			Pattern: regexp.MustCompile(`(?i)\)\s+WITH\s+[A-Za-z_][A-Za-z0-9_.]*\s+AS\b`),
			Replacement: ") AS",
		},
		{
			// Redshift-style tools sometimes omit a required alias on a
			// derived table in the FROM clause; synthesize one so the
			// grammar accepts it. Only matches a single-level-nested
			// "FROM (...)" immediately followed by a clause keyword
			// with no alias already present — a derived table whose own
			// subquery contains parentheses isn't rewritten by this
			// entry and must carry an explicit alias already.
			Tool: "Redshift-derived-table-alias",
			Pattern: regexp.MustCompile(`(?i)FROM\s*(\([^()]*\))\s*(WHERE|GROUP\s+BY|ORDER\s+BY|LIMIT|;|$)`),
			Replacement: "FROM $1 AS __cubebridge_derived $2",
		},
	}
}

// Apply runs every substitution in order against sql, returning the final
// rewritten string.
func (t SubstitutionTable) Apply(sql string) string {
	for _, s := range t {
		sql = s.Pattern.ReplaceAllString(sql, s.Replacement)
	}
	return sql
}
