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

package plan_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	. "github.com/cubebridge/cubesql/cubesql/plan"
)

func tableT1() *TableScan {
	return NewTableScan("t1", Schema{
		{Qualifier: "t1", Name: "c1", Type: Int64},
		{Qualifier: "t1", Name: "c2", Type: Int64},
	})
}

func TestProjectionSchemaMatchesColNames(t *testing.T) {
	scan := tableT1()
	proj := NewProjection(
		[]Expression{NewColumn("t1", "c1", Int64), NewColumn("t1", "c2", Int64)},
		[]string{"c1", "c2"},
		scan,
	)
	require.Equal(t, []string{"c1", "c2"}, proj.Schema().Names())
}

func TestFilterSchemaPassesThroughChild(t *testing.T) {
	scan := tableT1()
	f := NewFilter(NewBinary("=", NewColumn("t1", "c1", Int64), NewLiteral(int64(1), Int64)), scan)
	require.Equal(t, scan.Schema(), f.Schema())
}

func TestWithChildrenRejectsWrongArity(t *testing.T) {
	scan := tableT1()
	f := NewFilter(NewLiteral(true, Boolean), scan)
	_, err := f.WithChildren(scan, scan)
	require.Error(t, err)
}

func TestSubqueryRequalifiesColumns(t *testing.T) {
	scan := tableT1()
	sq := NewSubquery("s", scan)
	sch := sq.Schema()
	require.Equal(t, "s", sch[0].Qualifier)
	require.Equal(t, "c1", sch[0].Name)
}

func TestCrossJoinRightYieldsSingleRow(t *testing.T) {
	scan := tableT1()
	agg := NewAggregate(nil, []Expression{NewFunc("COUNT", Int64, NewColumn("t1", "c1", Int64))}, []string{"count"}, scan)
	cj := NewCrossJoin(scan, agg)
	require.True(t, cj.RightYieldsSingleRow())

	aggGrouped := NewAggregate([]Expression{NewColumn("t1", "c1", Int64)}, nil, nil, scan)
	cj2 := NewCrossJoin(scan, aggGrouped)
	require.False(t, cj2.RightYieldsSingleRow())
}
