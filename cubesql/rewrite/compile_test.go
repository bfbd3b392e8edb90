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

package rewrite

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cubebridge/cubesql/cubesql/cube"
	cerrors "github.com/cubebridge/cubesql/cubesql/errors"
	"github.com/cubebridge/cubesql/cubesql/plan"
)

func ordersMeta() cube.MetadataContext {
	return cube.MetadataContext{
		Cubes: map[string]cube.CubeMeta{
			"Orders": {
				Name:       "Orders",
				Measures:   map[string]cube.AggregateType{"count": cube.AggCount},
				Dimensions: map[string]bool{"status": true},
			},
		},
	}
}

func ordersScan() *plan.TableScan {
	return plan.NewTableScan("Orders", plan.Schema{
		{Name: "status", Type: plan.Utf8},
	})
}

// TestCompileAggregateSpecializesScan exercises ruleSpecializeAggregate:
// an Aggregate directly over the seeded scan becomes a single grouped
// CubeScan with the resolved measure and dimension.
func TestCompileAggregateSpecializesScan(t *testing.T) {
	scan := ordersScan()
	agg := plan.NewAggregate(
		[]plan.Expression{plan.NewColumn("", "status", plan.Utf8)},
		[]plan.Expression{plan.NewFunc("COUNT", plan.Int64)},
		[]string{"count(*)"},
		scan,
	)

	out, err := Compile(agg, ordersMeta(), plan.AuthContext{UserID: "u1"})
	require.NoError(t, err)

	result, ok := out.(*plan.CubeScan)
	require.True(t, ok, "expected a bare CubeScan, got %T", out)
	require.Equal(t, "Orders", result.CubeName)
	require.ElementsMatch(t, []string{"Orders.status"}, result.Request.Dimensions)
	require.ElementsMatch(t, []string{"Orders.count"}, result.Request.Measures)
	require.False(t, result.Request.Ungrouped)
}

// TestCompileFilterSortLimitCascade builds Limit(Sort(Filter(Aggregate(scan))))
// and checks that all four levels collapse into one CubeScan: the rule
// wired on the Filter's own class only sees a CubeScan once
// ruleSpecializeAggregate has unioned one into the Aggregate's class, which
// is exactly the cross-rule visibility the class-lookup (rather than
// literal child pointer) design exists for.
func TestCompileFilterSortLimitCascade(t *testing.T) {
	scan := ordersScan()
	agg := plan.NewAggregate(
		[]plan.Expression{plan.NewColumn("", "status", plan.Utf8)},
		[]plan.Expression{plan.NewFunc("COUNT", plan.Int64)},
		[]string{"count(*)"},
		scan,
	)
	filter := plan.NewFilter(
		plan.NewBinary("=", plan.NewColumn("", "status", plan.Utf8), plan.NewLiteral("shipped", plan.Utf8)),
		agg,
	)
	sort := plan.NewSort([]plan.SortField{{Expr: plan.NewColumn("", "status", plan.Utf8), Asc: true}}, filter)
	fetch := int64(10)
	limit := plan.NewLimit(nil, &fetch, sort)

	out, err := Compile(limit, ordersMeta(), plan.AuthContext{})
	require.NoError(t, err)

	result, ok := out.(*plan.CubeScan)
	require.True(t, ok, "expected the whole tree to collapse into a CubeScan, got %T", out)
	require.ElementsMatch(t, []string{"Orders.count"}, result.Request.Measures)
	require.ElementsMatch(t, []string{"Orders.status"}, result.Request.Dimensions)
	require.Len(t, result.Request.Filters, 1)
	require.Equal(t, cube.OpEquals, result.Request.Filters[0].Operator)
	require.Len(t, result.Request.Order, 1)
	require.Equal(t, "Orders.status", result.Request.Order[0].Member)
	require.NotNil(t, result.Request.Limit)
	require.EqualValues(t, 10, *result.Request.Limit)
}

// TestCompileLimitSortProjectionRestructures covers ruleLimitSortProjection:
// Limit(Sort(Projection(Aggregate(scan)))) only exposes the aggregate's
// CubeScan to the limit/sort rules after the projection has been pushed
// below them.
func TestCompileLimitSortProjectionRestructures(t *testing.T) {
	scan := ordersScan()
	agg := plan.NewAggregate(
		[]plan.Expression{plan.NewColumn("", "status", plan.Utf8)},
		[]plan.Expression{plan.NewFunc("COUNT", plan.Int64)},
		[]string{"count(*)"},
		scan,
	)
	proj := plan.NewProjection(
		[]plan.Expression{plan.NewColumn("", "status", plan.Utf8), plan.NewColumn("", "count(*)", plan.Int64)},
		[]string{"status", "cnt"},
		agg,
	)
	sort := plan.NewSort([]plan.SortField{{Expr: plan.NewColumn("", "status", plan.Utf8), Asc: true}}, proj)
	fetch := int64(5)
	limit := plan.NewLimit(nil, &fetch, sort)

	out, err := Compile(limit, ordersMeta(), plan.AuthContext{})
	require.NoError(t, err)

	result, ok := out.(*plan.Projection)
	require.True(t, ok, "expected the projection to survive on top, got %T", out)
	scanOut, ok := result.Child.(*plan.CubeScan)
	require.True(t, ok, "expected the projection's child to collapse into a CubeScan, got %T", result.Child)
	require.NotNil(t, scanOut.Request.Limit)
	require.EqualValues(t, 5, *scanOut.Request.Limit)
	require.Len(t, scanOut.Request.Order, 1)
}

// TestCompileUnresolvedGroupByDeclines checks the "declined" path:
// ruleSpecializeAggregate must not fire when a GROUP BY expression isn't a
// plain dimension column. Compile still succeeds — it falls back to the
// Aggregate sitting over the bare ungrouped CubeScan seedCubeScans already
// produced, rather than fabricating a grouped request specializeAggregate
// couldn't actually resolve.
func TestCompileUnresolvedGroupByDeclines(t *testing.T) {
	scan := ordersScan()
	agg := plan.NewAggregate(
		[]plan.Expression{plan.NewFunc("LOWER", plan.Utf8, plan.NewColumn("", "status", plan.Utf8))},
		[]plan.Expression{plan.NewFunc("COUNT", plan.Int64)},
		[]string{"count(*)"},
		scan,
	)

	out, err := Compile(agg, ordersMeta(), plan.AuthContext{})
	require.NoError(t, err)

	result, ok := out.(*plan.Aggregate)
	require.True(t, ok, "expected the unresolved Aggregate to survive, got %T", out)
	scanOut, ok := result.Child.(*plan.CubeScan)
	require.True(t, ok, "expected the Aggregate's child to stay the seeded ungrouped scan, got %T", result.Child)
	require.True(t, scanOut.Request.Ungrouped)
}

// TestCompileUnknownTableDeclines checks that a TableScan naming a cube
// absent from meta never gets seeded into a CubeScan at all, so Compile
// reports UnsupportedSql instead of fabricating an empty scan.
func TestCompileUnknownTableDeclines(t *testing.T) {
	scan := plan.NewTableScan("NoSuchTable", plan.Schema{{Name: "x", Type: plan.Utf8}})
	_, err := Compile(scan, ordersMeta(), plan.AuthContext{})
	require.Error(t, err)
	require.True(t, cerrors.IsKind(cerrors.UnsupportedSql, err))
}

// TestAddPlanNodeReusesClassForSharedChild is a focused unit test of
// addPlanNode/nodeClass: inserting the same *plan.Node pointer twice (once
// directly, once as a rebuilt wrapper's child) must resolve to the same
// class rather than minting a duplicate.
func TestAddPlanNodeReusesClassForSharedChild(t *testing.T) {
	scan := ordersScan()
	g := NewEGraph()
	nodeClass := make(map[plan.Node]EClassID)

	firstID := addPlanNode(g, scan, nodeClass)
	secondID := addPlanNode(g, scan, nodeClass)
	require.Equal(t, firstID, secondID)
	require.Len(t, nodeClass, 1)
}
