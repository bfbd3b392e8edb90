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

package infoschema

import ("context"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/cubebridge/cubesql/cubesql/cube"
	"github.com/cubebridge/cubesql/cubesql/plan")

// pgType is one row of the fixed type catalog, keyed off the same OID
// table assigns the PostgreSQL wire front-end (C8): bool=16,
// int2=21, int4=23, int8=20, float4=700, float8=701, text=25,
// varchar=1043, timestamp=1114, timestamptz=1184, interval=1186,
// numeric=1700, plus each scalar's real PostgreSQL array-type OID (typarray).
type pgType struct {
	oid int64
	name string
	typarray int64
}

// pgTypes is unexported and package-level rather than a method literal. It
// is this package's copy of the OID table: the C8 wire codec
// (cubesql/pgwire/oid.go) declares its own constants for the same OIDs
// rather than sharing this slice.
var pgTypes = []pgType{
	{16, "bool", 1000},
	{20, "int8", 1016},
	{21, "int2", 1005},
	{23, "int4", 1007},
	{25, "text", 1009},
	{700, "float4", 1021},
	{701, "float8", 1022},
	{1043, "varchar", 1015},
	{1114, "timestamp", 1115},
	{1184, "timestamptz", 1185},
	{1186, "interval", 1187},
	{1700, "numeric", 1231},
}

// PgType implements Postgres's pg_catalog.pg_type, the table every
// wire-protocol-aware driver resolves a column's type OID against before
// it will decode a DataRow. Unlike Columns/Tables/SvvTableInfo this table
// is not derived from the metadata context at all — the OID table is a
// fixed property of the wire protocol this server speaks, not of any
// cube — so Rows ignores its meta argument.
//
// Real-value columns: oid, typname, typarray.
// Placeholder columns: typnamespace (always the "pg_catalog" OID
// constant 11, since every row lives in that namespace) and typtype
// (always "b" for base type, since none of these are composite, enum,
// domain, or pseudo types).
type PgType struct{}

func (PgType) Name() string { return "pg_catalog.pg_type" }

func (PgType) FilterPushdown() PushdownSupport { return Unsupported }

func (PgType) Schema() plan.Schema {
	return plan.Schema{
		{Name: "oid", Type: plan.Int64},
		{Name: "typname", Type: plan.Utf8},
		{Name: "typnamespace", Type: plan.Int64},
		{Name: "typtype", Type: plan.Utf8},
		{Name: "typarray", Type: plan.Int64},
	}
}

const pgCatalogNamespaceOid = 11

func (p PgType) Rows(ctx context.Context, meta cube.MetadataContext) (arrow.Record, error) {
	b := newBuilders(p.Schema())
	for _, t := range pgTypes {
		b.appendInt64(0, t.oid)
		b.appendString(1, t.name)
		b.appendInt64(2, pgCatalogNamespaceOid)
		b.appendString(3, "b")
		b.appendInt64(4, t.typarray)
	}
	return b.record(), nil
}

var _ Provider = PgType{}
