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

package optimize_test

import ("testing"

	"github.com/stretchr/testify/require"

	"github.com/cubebridge/cubesql/cubesql/optimize"
	. "github.com/cubebridge/cubesql/cubesql/plan")

func col(name string) *ColumnExpr { return NewColumn("", name, Int64) }
func lit(v interface{}) *LiteralExpr { return NewLiteral(v, Utf8) }

// TestFilterSplitMetaScenarioS2 reproduces S2 scenario:
// Projection → Filter(c1>10 AND c2<5) → Filter(__user='postgres' AND
// __user IS NOT NULL) → TableScan(t1).
func TestFilterSplitMetaScenarioS2(t *testing.T) {
	scan := NewTableScan("t1", Schema{
			{Name: "c1", Type: Int64}, {Name: "c2", Type: Int64}, {Name: "__user", Type: Utf8},
	})
	predicate := NewBinary("AND",
		NewBinary("AND",
			NewBinary("AND", NewBinary(">", col("c1"), lit(10)), NewBinary("=", col("__user"), lit("postgres"))),
			NewBinary("<", col("c2"), lit(5))),
		NewIsNull(col("__user")))
	predicate.Right.(*IsNullExpr).Not = true

	filter := NewFilter(predicate, scan)
	proj := NewProjection([]Expression{col("c1"), col("c2")}, []string{"c1", "c2"}, filter)

	out, err := optimize.FilterSplitMeta(proj)
	require.NoError(t, err)
	require.Equal(t,
		"Projection → Filter(((c1 > 10) AND (c2 < 5))) → Filter(((__user = postgres) AND __user IS NOT NULL)) → TableScan(t1)",
		Pretty(out))
}

// TestFilterSplitMetaBlockedByAggregate verifies the Aggregate row of the
// per-node table: meta predicates above an Aggregate must not be pushed
// into its child, and are instead reissued directly above it.
func TestFilterSplitMetaBlockedByAggregate(t *testing.T) {
	scan := NewTableScan("t1", Schema{{Name: "__user", Type: Utf8}, {Name: "amount", Type: Int64}})
	agg := NewAggregate(nil, []Expression{NewFunc("SUM", Int64, col("amount"))}, []string{"total"}, scan)
	filter := NewFilter(NewBinary("=", col("__user"), lit("postgres")), agg)

	out, err := optimize.FilterSplitMeta(filter)
	require.NoError(t, err)
	require.Equal(t, "Filter((__user = postgres)) → Aggregate(group=[], agg=[SUM(amount)]) → TableScan(t1)", Pretty(out))
}

// TestFilterSplitMetaJoinIntersection verifies the Join rule: each side
// receives its own copy of the carried meta predicates and, on reaching a
// TableScan, issues them directly above it, so the intersection left over
// for the join's parent is empty and no error is raised.
func TestFilterSplitMetaJoinIntersection(t *testing.T) {
	left := NewTableScan("l", Schema{{Name: "id", Type: Int64}})
	right := NewTableScan("r", Schema{{Name: "id", Type: Int64}})
	join := NewJoin(InnerJoin, NewBinary("=", col("id"), col("id")), left, right)
	filter := NewFilter(NewBinary("=", col("__user"), lit("x")), join)

	out, err := optimize.FilterSplitMeta(filter)
	require.NoError(t, err)
	require.Equal(t,
		"Join((id = id), [Filter((__user = x)) → TableScan(l)], [Filter((__user = x)) → TableScan(r)])",
		Pretty(out))
}
