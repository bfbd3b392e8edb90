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

package cubescan_test

import (
	"context"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/stretchr/testify/require"

	"github.com/cubebridge/cubesql/cubesql/compile"
	"github.com/cubebridge/cubesql/cubesql/compile/parse"
	"github.com/cubebridge/cubesql/cubesql/cube"
	"github.com/cubebridge/cubesql/cubesql/cubescan"
	"github.com/cubebridge/cubesql/cubesql/plan"
)

// ordersWithAdditiveAmount declares a cube with no direct AVG measure, only
// the additive sum/count pair an AVG(amount) query must be split across —
// the shape MatchAggregateFunction's AggAvg branch exists for.
func ordersWithAdditiveAmount() cube.MetadataContext {
	return cube.MetadataContext{
		Cubes: map[string]cube.CubeMeta{
			"Orders": {
				Name: "Orders",
				Measures: map[string]cube.AggregateType{
					"amount": cube.AggSum,
					"count":  cube.AggCount,
				},
			},
		},
	}
}

// TestAvgOverAdditiveCubeCompilesAndExecutes is the end-to-end path from SQL
// text through the rewrite engine's AVG split to the physical division
// appendAvgDivision performs: compile.Compile must produce a CubeScan
// requesting both raw measures and recording the AvgDivision, and
// cubescan.Exec must turn a transport response carrying only those two raw
// measures into the single averaged output column the query asked for.
func TestAvgOverAdditiveCubeCompilesAndExecutes(t *testing.T) {
	meta := ordersWithAdditiveAmount()

	result, err := compile.Compile(
		"SELECT AVG(amount) AS avg_amount FROM Orders",
		parse.Postgres, meta, plan.AuthContext{UserID: "u1"},
	)
	require.NoError(t, err)
	require.NotNil(t, result.Scan)
	require.ElementsMatch(t, []string{"Orders.amount", "Orders.count"}, result.Scan.Request.Measures)
	require.Equal(t, map[string]plan.AvgDivision{
		"avg_amount": {SumMember: "Orders.amount", CountMember: "Orders.count"},
	}, result.Scan.AvgDivisions)

	transport := &fakeTransport{batch: cubescan.RowBatch{
		{"Orders.amount": float64(900), "Orders.count": float64(3)},
	}}
	exec := cubescan.NewExec(result.Scan, transport)
	rec, err := exec.Execute(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), rec.NumRows())
	require.Equal(t, "avg_amount", rec.Schema().Field(0).Name)

	col, ok := rec.Column(0).(*array.Float64)
	require.True(t, ok, "expected avg_amount to be a float64 column, got %T", rec.Column(0))
	require.Equal(t, 300.0, col.Value(0))
}

// TestAvgOverAdditiveCubeNullsOnZeroCount checks the empty-group fallback:
// a zero count must never divide, matching SQL AVG's null-on-empty-group
// behavior rather than propagating a division-by-zero result.
func TestAvgOverAdditiveCubeNullsOnZeroCount(t *testing.T) {
	meta := ordersWithAdditiveAmount()

	result, err := compile.Compile(
		"SELECT AVG(amount) AS avg_amount FROM Orders",
		parse.Postgres, meta, plan.AuthContext{},
	)
	require.NoError(t, err)

	transport := &fakeTransport{batch: cubescan.RowBatch{
		{"Orders.amount": float64(0), "Orders.count": float64(0)},
	}}
	exec := cubescan.NewExec(result.Scan, transport)
	rec, err := exec.Execute(context.Background())
	require.NoError(t, err)

	col, ok := rec.Column(0).(*array.Float64)
	require.True(t, ok)
	require.True(t, col.IsNull(0))
}
