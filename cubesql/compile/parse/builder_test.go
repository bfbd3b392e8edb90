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

	"github.com/stretchr/testify/require"

	"github.com/cubebridge/cubesql/cubesql/compile/parse"
	"github.com/cubebridge/cubesql/cubesql/cube"
	cerrors "github.com/cubebridge/cubesql/cubesql/errors"
	"github.com/cubebridge/cubesql/cubesql/plan"
)

func ordersCatalog() parse.MetadataCatalog {
	return parse.MetadataCatalog{Meta: cube.MetadataContext{
		Cubes: map[string]cube.CubeMeta{
			"Orders": {
				Name:       "Orders",
				Measures:   map[string]cube.AggregateType{"count": cube.AggCount},
				Dimensions: map[string]bool{"status": true},
			},
		},
	}}
}

func buildSQL(t *testing.T, sql string) plan.Node {
	t.Helper()
	stmt, err := parse.Parse(sql, parse.MySQL)
	require.NoError(t, err)
	node, err := parse.Build(stmt, ordersCatalog())
	require.NoError(t, err)
	return node
}

func TestBuildPlainProjection(t *testing.T) {
	node := buildSQL(t, "SELECT status FROM Orders")
	require.Equal(t, "Projection → TableScan(Orders)", plan.Pretty(node))
}

func TestBuildFilterAppliesWhereClause(t *testing.T) {
	node := buildSQL(t, "SELECT status FROM Orders WHERE status = 'shipped'")
	require.Equal(t, "Projection → Filter((status = shipped)) → TableScan(Orders)", plan.Pretty(node))
}

func TestBuildGroupByProducesAggregate(t *testing.T) {
	node := buildSQL(t, "SELECT status, COUNT(*) FROM Orders GROUP BY status")
	require.Equal(t, "Aggregate(group=[status], agg=[COUNT()]) → TableScan(Orders)", plan.Pretty(node))
}

func TestBuildImplicitGroupByFromPlainSelectColumn(t *testing.T) {
	node := buildSQL(t, "SELECT status, COUNT(*) FROM Orders")
	require.Equal(t, "Aggregate(group=[status], agg=[COUNT()]) → TableScan(Orders)", plan.Pretty(node))
}

func TestBuildOrderByAndLimit(t *testing.T) {
	node := buildSQL(t, "SELECT status FROM Orders ORDER BY status DESC LIMIT 10")
	require.Equal(t, "Limit(skip=none, fetch=10) → Sort(status DESC) → Projection → TableScan(Orders)", plan.Pretty(node))
}

func TestBuildAliasedTableUsesSubqueryAlias(t *testing.T) {
	node := buildSQL(t, "SELECT o.status FROM Orders o")
	require.Equal(t, "Projection → SubqueryAlias(o) → TableScan(Orders)", plan.Pretty(node))
}

func TestBuildUnknownTableIsUnsupportedSql(t *testing.T) {
	stmt, err := parse.Parse("SELECT * FROM NoSuchCube", parse.MySQL)
	require.NoError(t, err)
	_, err = parse.Build(stmt, ordersCatalog())
	require.Error(t, err)
	require.True(t, cerrors.IsKind(cerrors.UnsupportedSql, err))
}

func TestBuildInListPredicate(t *testing.T) {
	node := buildSQL(t, "SELECT status FROM Orders WHERE status IN ('a', 'b')")
	require.Equal(t, "Projection → Filter(status IN (a, b)) → TableScan(Orders)", plan.Pretty(node))
}
