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

package optimize_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cubebridge/cubesql/cubesql/optimize"
	. "github.com/cubebridge/cubesql/cubesql/plan"
)

// TestSortPushDownThroughProjectionAndFilter exercises the case where a sort on a
// simple column maps through a trivial projection and passes through a
// filter untouched, landing directly above the scan.
func TestSortPushDownThroughProjectionAndFilter(t *testing.T) {
	scan := NewTableScan("t", Schema{{Name: "a", Type: Int64}, {Name: "b", Type: Int64}})
	filter := NewFilter(NewBinary(">", col("a"), lit(1)), scan)
	proj := NewProjection([]Expression{col("a"), NewAlias("bb", col("b"))}, []string{"a", "bb"}, filter)
	sort := NewSort([]SortField{{Expr: col("bb"), Asc: true}}, proj)

	out, err := optimize.SortPushDown(sort)
	require.NoError(t, err)
	require.Equal(t, "Projection → Filter((a > 1)) → Sort(b ASC) → TableScan(t)", Pretty(out))
}

// TestSortPushDownBlockedByNonMappableProjection exercises the
// "otherwise... not mappable" clause: a projection computing a new
// expression blocks the sort, which is issued directly above it.
func TestSortPushDownBlockedByNonMappableProjection(t *testing.T) {
	scan := NewTableScan("t", Schema{{Name: "a", Type: Int64}})
	proj := NewProjection([]Expression{NewAlias("doubled", NewBinary("+", col("a"), col("a")))}, []string{"doubled"}, scan)
	sort := NewSort([]SortField{{Expr: col("doubled"), Asc: true}}, proj)

	out, err := optimize.SortPushDown(sort)
	require.NoError(t, err)
	require.Equal(t, "Sort(doubled ASC) → Projection → TableScan(t)", Pretty(out))
}

// TestSortPushDownBlockedByAggregate exercises the Aggregate row: sort
// cannot pass through an aggregate and must be issued above it.
func TestSortPushDownBlockedByAggregate(t *testing.T) {
	scan := NewTableScan("t", Schema{{Name: "a", Type: Int64}})
	agg := NewAggregate([]Expression{col("a")}, nil, nil, scan)
	sort := NewSort([]SortField{{Expr: col("a"), Asc: false}}, agg)

	out, err := optimize.SortPushDown(sort)
	require.NoError(t, err)
	require.Equal(t, "Sort(a DESC) → Aggregate(group=[a], agg=[]) → TableScan(t)", Pretty(out))
}

// TestSortPushDownNestedSortOuterWins exercises "when two nested sorts are
// encountered, the outer wins" — the inner Sort is dropped entirely.
func TestSortPushDownNestedSortOuterWins(t *testing.T) {
	scan := NewTableScan("t", Schema{{Name: "a", Type: Int64}, {Name: "b", Type: Int64}})
	inner := NewSort([]SortField{{Expr: col("b"), Asc: true}}, scan)
	outer := NewSort([]SortField{{Expr: col("a"), Asc: false}}, inner)

	out, err := optimize.SortPushDown(outer)
	require.NoError(t, err)
	require.Equal(t, "Sort(a DESC) → TableScan(t)", Pretty(out))
}
