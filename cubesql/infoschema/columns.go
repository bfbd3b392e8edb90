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

package infoschema

import (
	"context"
	"sort"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/cubebridge/cubesql/cubesql/cube"
	"github.com/cubebridge/cubesql/cubesql/plan"
)

// Columns implements Postgres's information_schema.columns, one row per
// cube member across every cube in the metadata context.
//
// Real-value columns: table_catalog, table_schema, table_name,
// column_name, ordinal_position, data_type, is_nullable.
// Placeholder columns: column_default (always null, no cube member has a
// default), collation_name (always the empty string, members have no
// collation), and
// is_identity (always "NO", cubes have no identity columns).
type Columns struct{}

func (Columns) Name() string { return "information_schema.columns" }

func (Columns) FilterPushdown() PushdownSupport { return Unsupported }

func (Columns) Schema() plan.Schema {
	return plan.Schema{
		{Name: "table_catalog", Type: plan.Utf8},
		{Name: "table_schema", Type: plan.Utf8},
		{Name: "table_name", Type: plan.Utf8},
		{Name: "column_name", Type: plan.Utf8},
		{Name: "ordinal_position", Type: plan.Int64},
		{Name: "column_default", Type: plan.Utf8, Nullable: true},
		{Name: "is_nullable", Type: plan.Utf8},
		{Name: "data_type", Type: plan.Utf8},
		{Name: "collation_name", Type: plan.Utf8, Nullable: true},
		{Name: "is_identity", Type: plan.Utf8},
	}
}

// member is one row's worth of column-identifying data, gathered ahead of
// time so every cube's members can be sorted into a stable ordinal order
// before any builder is touched.
type member struct {
	cube, name, dataType string
	nullable             bool
}

func membersOf(name string, meta cube.CubeMeta) []member {
	var out []member
	for m := range meta.Dimensions {
		out = append(out, member{cube: name, name: m, dataType: "character varying", nullable: true})
	}
	for m := range meta.TimeDimensions {
		out = append(out, member{cube: name, name: m, dataType: "timestamp without time zone", nullable: true})
	}
	for m, agg := range meta.Measures {
		out = append(out, member{cube: name, name: m, dataType: dataTypeOf(agg), nullable: true})
	}
	for m := range meta.Segments {
		out = append(out, member{cube: name, name: m, dataType: "boolean", nullable: false})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

func (c Columns) Rows(ctx context.Context, meta cube.MetadataContext) (arrow.Record, error) {
	b := newBuilders(c.Schema())
	for _, cubeName := range sortedCubeNames(meta) {
		for i, m := range membersOf(cubeName, meta.Cubes[cubeName]) {
			b.appendString(0, "def")
			b.appendString(1, "public")
			b.appendString(2, m.cube)
			b.appendString(3, m.name)
			b.appendInt64(4, int64(i+1))
			b.appendNull(5)
			b.appendString(6, isNullable(m.nullable))
			b.appendString(7, m.dataType)
			b.appendString(8, "")
			b.appendString(9, "NO")
		}
	}
	return b.record(), nil
}

func isNullable(nullable bool) string {
	if nullable {
		return "YES"
	}
	return "NO"
}

var _ Provider = Columns{}
