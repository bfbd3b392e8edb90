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

// Package infoschema implements the virtual tables of C7: fixed-schema
// tables materialized entirely from a cube.MetadataContext, mimicking the
// catalog views of the emulated product (Postgres's information_schema and
// pg_catalog, Redshift's svv_table_info) closely enough for BI clients
// that introspect a connection before querying it.
//
// Every table here declares pushdown Unsupported, following the
// convention of embedding the base table interface and overriding only
// the capability methods a table
// actually implements; a table that implements none of them is, by
// omission, not pushdown-capable. These providers follow the same shape
// with a narrower interface, since there is no optimizer rule in this
// implementation that would ever consult a richer one — the metadata
// context is small enough that materializing the whole table and letting
// a client-side filter do the rest is the only behavior asks for.
package infoschema

import ("context"
	"sort"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/cubebridge/cubesql/cubesql/cube"
	"github.com/cubebridge/cubesql/cubesql/plan")

// PushdownSupport models filter/projection pushdown capability flags,
// collapsed to the one value every provider here declares.
type PushdownSupport int

const (Unsupported PushdownSupport = iota)

// Provider is a virtual table backed entirely by an in-memory batch built
// from the metadata context.
type Provider interface {
	// Name is the catalog-qualified table name, e.g. "information_schema.columns".
	Name() string
	Schema() plan.Schema
	FilterPushdown() PushdownSupport
	Rows(ctx context.Context, meta cube.MetadataContext) (arrow.Record, error)
}

// sortedCubeNames returns the cubes of meta in a stable order, since
// Go map iteration order is not, and every provider here must produce the
// same row order on every call for a client paging through results.
func sortedCubeNames(meta cube.MetadataContext) []string {
	names := make([]string, 0, len(meta.Cubes))
	for name := range meta.Cubes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// builders holds one Arrow array builder per column of a provider's
// schema, in schema order.
type builders struct {
	mem memory.Allocator
	sch plan.Schema
	cols []array.Builder
}

func newBuilders(sch plan.Schema) *builders {
	mem := memory.NewGoAllocator()
	cols := make([]array.Builder, len(sch))
	for i, c := range sch {
		switch c.Type {
			case plan.Int64:
			cols[i] = array.NewInt64Builder(mem)
			case plan.Float64:
			cols[i] = array.NewFloat64Builder(mem)
			case plan.Boolean:
			cols[i] = array.NewBooleanBuilder(mem)
			default:
			cols[i] = array.NewStringBuilder(mem)
		}
	}
	return &builders{mem: mem, sch: sch, cols: cols}
}

func (b *builders) appendString(col int, v string) {
	b.cols[col].(*array.StringBuilder).Append(v)
}

func (b *builders) appendInt64(col int, v int64) {
	b.cols[col].(*array.Int64Builder).Append(v)
}

func (b *builders) appendNull(col int) {
	b.cols[col].AppendNull()
}

func (b *builders) appendFloat64(col int, v float64) {
	b.cols[col].(*array.Float64Builder).Append(v)
}

func (b *builders) record() arrow.Record {
	fields := make([]arrow.Field, len(b.sch))
	arrays := make([]arrow.Array, len(b.sch))
	var rows int64
	for i, c := range b.sch {
		fields[i] = arrow.Field{Name: c.Name, Type: arrowTypeOf(c.Type), Nullable: c.Nullable}
		arrays[i] = b.cols[i].NewArray()
		rows = int64(arrays[i].Len())
	}
	return array.NewRecord(arrow.NewSchema(fields, nil), arrays, rows)
}

func arrowTypeOf(t plan.Type) arrow.DataType {
	switch t {
	case plan.Int64:
		return arrow.PrimitiveTypes.Int64
	case plan.Float64:
		return arrow.PrimitiveTypes.Float64
	case plan.Boolean:
		return arrow.FixedWidthTypes.Boolean
	default:
		return arrow.BinaryTypes.String
	}
}

// dataTypeOf maps a measure's declared AggregateType to the Postgres-style
// type name information_schema.columns.data_type reports for it: count is
// always integral, everything else is reported as double precision since
// cube.CubeMeta carries no finer-grained numeric type than AggregateType.
func dataTypeOf(agg cube.AggregateType) string {
	if agg == cube.AggCount {
		return "bigint"
	}
	return "double precision"
}
