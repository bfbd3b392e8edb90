// Copyright 2020-2021 Dolthub, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package parse

import (
	"fmt"
	"strings"

	"github.com/dolthub/vitess/go/vt/sqlparser"

	cerrors "github.com/cubebridge/cubesql/cubesql/errors"
)

// Diagnostic wraps a parse failure together with the exact query text that
// produced it. The message handed to the client never embeds the query
// itself — callers that want to log or echo it back read Query directly
// rather than parsing it back out of the error string.
type Diagnostic struct {
	err   error
	Query string
}

func (d *Diagnostic) Error() string { return d.err.Error() }

// Cause satisfies the causer interface cerrors.IsKind walks, so
// cerrors.IsKind(cerrors.UserError, diagnostic) still reports true.
func (d *Diagnostic) Cause() error { return d.err }

// Parse turns sql into a vitess statement under dialect, applying the
// fixed pre-parse substitution table first. It implements the three
// failure modes this package's contract names: a malformed single
// statement fails as a *Diagnostic wrapping cerrors.UserError, more than
// one statement fails as cerrors.UnsupportedMultipleStatements, and an
// input with no statements at all (empty, or only whitespace/comments)
// fails as cerrors.NoStatements.
func Parse(sql string, dialect Dialect) (sqlparser.Statement, error) {
	substituted := NewSubstitutionTable().Apply(sql)

	pieces, err := sqlparser.SplitStatementToPieces(substituted)
	if err != nil {
		return nil, &Diagnostic{err: cerrors.UserError.New(fmt.Sprintf("Unable to parse: %s", err)), Query: sql}
	}

	var statements []string
	for _, p := range pieces {
		if strings.TrimSpace(p) != "" {
			statements = append(statements, p)
		}
	}

	if len(statements) == 0 {
		return nil, cerrors.NoStatements.New()
	}
	if len(statements) > 1 {
		return nil, cerrors.UnsupportedMultipleStatements.New()
	}

	stmt, _, err := sqlparser.ParseOneWithOptions(statements[0], dialect.Options())
	if err != nil {
		return nil, &Diagnostic{err: cerrors.UserError.New(fmt.Sprintf("Unable to parse: %s", err)), Query: sql}
	}
	return stmt, nil
}
