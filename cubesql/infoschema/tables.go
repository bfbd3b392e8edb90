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

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/cubebridge/cubesql/cubesql/cube"
	"github.com/cubebridge/cubesql/cubesql/plan"
)

// Tables implements Postgres's information_schema.tables, one row per
// cube, each reported as a BASE TABLE (cubes have no view/materialized-view
// distinction in the metadata context).
//
// Real-value columns: table_catalog, table_schema, table_name, table_type.
// Placeholder columns: self_referencing_column_name and reference_generation
// are always null, since neither concept exists for a cube.
type Tables struct{}

func (Tables) Name() string { return "information_schema.tables" }

func (Tables) FilterPushdown() PushdownSupport { return Unsupported }

func (Tables) Schema() plan.Schema {
	return plan.Schema{
		{Name: "table_catalog", Type: plan.Utf8},
		{Name: "table_schema", Type: plan.Utf8},
		{Name: "table_name", Type: plan.Utf8},
		{Name: "table_type", Type: plan.Utf8},
		{Name: "self_referencing_column_name", Type: plan.Utf8, Nullable: true},
		{Name: "reference_generation", Type: plan.Utf8, Nullable: true},
	}
}

func (t Tables) Rows(ctx context.Context, meta cube.MetadataContext) (arrow.Record, error) {
	b := newBuilders(t.Schema())
	for _, name := range sortedCubeNames(meta) {
		b.appendString(0, "def")
		b.appendString(1, "public")
		b.appendString(2, name)
		b.appendString(3, "BASE TABLE")
		b.appendNull(4)
		b.appendNull(5)
	}
	return b.record(), nil
}

var _ Provider = Tables{}
