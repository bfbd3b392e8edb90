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

package infoschema_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cubebridge/cubesql/cubesql/cube"
	"github.com/cubebridge/cubesql/cubesql/infoschema"
)

func sampleMeta() cube.MetadataContext {
	return cube.MetadataContext{
		Cubes: map[string]cube.CubeMeta{
			"Orders": {
				Name:           "Orders",
				Measures:       map[string]cube.AggregateType{"count": cube.AggCount, "total": cube.AggSum},
				Dimensions:     map[string]bool{"status": true},
				TimeDimensions: map[string]bool{"createdAt": true},
				Segments:       map[string]bool{"completed": true},
			},
		},
	}
}

func TestColumnsListsEveryCubeMember(t *testing.T) {
	c := infoschema.Columns{}
	require.Equal(t, infoschema.Unsupported, c.FilterPushdown())

	rec, err := c.Rows(context.Background(), sampleMeta())
	require.NoError(t, err)
	require.Equal(t, int64(5), rec.NumRows())
}

func TestTablesOneRowPerCube(t *testing.T) {
	rec, err := infoschema.Tables{}.Rows(context.Background(), sampleMeta())
	require.NoError(t, err)
	require.Equal(t, int64(1), rec.NumRows())
}

func TestSvvTableInfoOneRowPerCube(t *testing.T) {
	rec, err := infoschema.SvvTableInfo{}.Rows(context.Background(), sampleMeta())
	require.NoError(t, err)
	require.Equal(t, int64(1), rec.NumRows())
}

func TestPgTypeIgnoresMetadataContext(t *testing.T) {
	rec, err := infoschema.PgType{}.Rows(context.Background(), cube.MetadataContext{})
	require.NoError(t, err)
	require.True(t, rec.NumRows() > 0)
}

func TestLookupFindsRegisteredProviders(t *testing.T) {
	p, ok := infoschema.Lookup("information_schema.columns")
	require.True(t, ok)
	require.Equal(t, "information_schema.columns", p.Name())

	_, ok = infoschema.Lookup("does_not_exist")
	require.False(t, ok)
}
