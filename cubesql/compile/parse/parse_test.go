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

package parse_test

import (
	"testing"

	"github.com/dolthub/vitess/go/vt/sqlparser"
	"github.com/stretchr/testify/require"

	cerrors "github.com/cubebridge/cubesql/cubesql/errors"
	"github.com/cubebridge/cubesql/cubesql/compile/parse"
)

func TestParseSingleStatement(t *testing.T) {
	stmt, err := parse.Parse("SELECT a FROM t WHERE a > 1", parse.Postgres)
	require.NoError(t, err)
	_, ok := stmt.(*sqlparser.Select)
	require.True(t, ok)
}

func TestParseAppliesSubstitutionsBeforeParsing(t *testing.T) {
	// The generic-postgres-cast substitution rewrites "a::int" to
	// "CAST(a AS int)" before the vitess grammar ever sees it.
	stmt, err := parse.Parse("SELECT a::int FROM t", parse.Postgres)
	require.NoError(t, err)
	_, ok := stmt.(*sqlparser.Select)
	require.True(t, ok)
}

func TestParseNoStatements(t *testing.T) {
	_, err := parse.Parse("   -- just a comment\n", parse.MySQL)
	require.Error(t, err)
	require.True(t, cerrors.IsKind(cerrors.NoStatements, err))
}

func TestParseMultipleStatements(t *testing.T) {
	_, err := parse.Parse("SELECT 1; SELECT 2;", parse.MySQL)
	require.Error(t, err)
	require.True(t, cerrors.IsKind(cerrors.UnsupportedMultipleStatements, err))
}

func TestParseMalformedStatementIsDiagnostic(t *testing.T) {
	_, err := parse.Parse("SELECT FROM FROM FROM", parse.Postgres)
	require.Error(t, err)
	require.True(t, cerrors.IsKind(cerrors.UserError, err))

	diag, ok := err.(*parse.Diagnostic)
	require.True(t, ok)
	require.Equal(t, "SELECT FROM FROM FROM", diag.Query)
}
