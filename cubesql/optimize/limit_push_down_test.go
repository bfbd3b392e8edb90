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

func i64(v int64) *int64 { return &v }

// TestLimitPushDownThroughProjectionChain exercises the Projection rule: a Limit
// pushes past a chain of Projections and is issued just above the one
// closest to the scan.
func TestLimitPushDownThroughProjectionChain(t *testing.T) {
	scan := NewTableScan("t", Schema{{Name: "a", Type: Int64}})
	inner := NewProjection([]Expression{col("a")}, []string{"a"}, scan)
	outer := NewProjection([]Expression{col("a")}, []string{"a"}, inner)
	limit := NewLimit(nil, i64(5), outer)

	out, err := optimize.LimitPushDown(limit)
	require.NoError(t, err)
	require.Equal(t, "Projection → Limit(skip=none, fetch=5) → Projection → TableScan(t)", Pretty(out))
}

// TestLimitPushDownIssuedAtFilter exercises the Filter row: a limit above
// a Filter is issued right there rather than pushed through it (a filter
// changes cardinality).
func TestLimitPushDownIssuedAtFilter(t *testing.T) {
	scan := NewTableScan("t", Schema{{Name: "a", Type: Int64}})
	filter := NewFilter(NewBinary(">", col("a"), lit(1)), scan)
	limit := NewLimit(nil, i64(5), filter)

	out, err := optimize.LimitPushDown(limit)
	require.NoError(t, err)
	require.Equal(t, "Limit(skip=none, fetch=5) → Filter((a > 1)) → TableScan(t)", Pretty(out))
}

// TestLimitPushDownCrossJoinSingleRowRight exercises the CrossJoin
// rule: when the right side is a guaranteed single row (an ungrouped
// Aggregate), the limit pushes into the left child only.
func TestLimitPushDownCrossJoinSingleRowRight(t *testing.T) {
	left := NewTableScan("l", Schema{{Name: "a", Type: Int64}})
	right := NewAggregate(nil, []Expression{NewFunc("COUNT", Int64, col("a"))}, []string{"n"}, NewTableScan("r", Schema{{Name: "a", Type: Int64}}))
	cross := NewCrossJoin(left, right)
	limit := NewLimit(nil, i64(5), cross)

	out, err := optimize.LimitPushDown(limit)
	require.NoError(t, err)

	cj, ok := out.(*CrossJoin)
	require.True(t, ok)
	require.Equal(t, "Limit(skip=none, fetch=5) → TableScan(l)", Pretty(cj.Left))
	require.Equal(t, "Aggregate(group=[], agg=[COUNT(a)]) → TableScan(r)", Pretty(cj.Right))
}

// TestLimitPushDownAcrossSubquery pins the documented (unflattened) shape
// a Limit above a Projection above a SubqueryAlias takes: a Projection
// only lets an accumulated limit pass through when its own child is
// itself a Projection, so here the limit is issued right above the
// Projection instead of pushed past it, and the Subquery boundary below
// resets to an empty limit state of its own, per the per-node table.
func TestLimitPushDownAcrossSubquery(t *testing.T) {
	scan := NewTableScan("t", Schema{{Name: "a", Type: Int64}})
	sub := NewSubquery("s", scan)
	proj := NewProjection([]Expression{col("a")}, []string{"a"}, sub)
	limit := NewLimit(nil, i64(5), proj)

	out, err := optimize.LimitPushDown(limit)
	require.NoError(t, err)
	require.Equal(t, "Limit(skip=none, fetch=5) → Projection → SubqueryAlias(s) → TableScan(t)", Pretty(out))
}

// TestLimitPushDownCrossJoinMultiRowRight exercises the "otherwise issue
// here" branch of the same rule.
func TestLimitPushDownCrossJoinMultiRowRight(t *testing.T) {
	left := NewTableScan("l", Schema{{Name: "a", Type: Int64}})
	right := NewTableScan("r", Schema{{Name: "b", Type: Int64}})
	cross := NewCrossJoin(left, right)
	limit := NewLimit(nil, i64(5), cross)

	out, err := optimize.LimitPushDown(limit)
	require.NoError(t, err)
	limitNode, ok := out.(*Limit)
	require.True(t, ok, "limit must be issued at the CrossJoin itself")
	require.IsType(t, &CrossJoin{}, limitNode.Child)
}
