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

	"github.com/stretchr/testify/require"

	"github.com/cubebridge/cubesql/cubesql/cube"
	"github.com/cubebridge/cubesql/cubesql/cubescan"
	cerrors "github.com/cubebridge/cubesql/cubesql/errors"
	"github.com/cubebridge/cubesql/cubesql/plan"
)

type fakeTransport struct {
	batch      cubescan.RowBatch
	err        error
	failOnce   bool
	loadCalls  int
}

func (f *fakeTransport) Meta(ctx context.Context, auth plan.AuthContext) (cube.MetadataContext, error) {
	return cube.MetadataContext{}, nil
}

func (f *fakeTransport) Load(ctx context.Context, request cube.CubeQuery, auth plan.AuthContext) (cubescan.RowBatch, error) {
	f.loadCalls++
	if f.failOnce && f.loadCalls == 1 {
		return nil, cerrors.TransportError.New("connection reset")
	}
	return f.batch, f.err
}

func scanSchema() plan.Schema {
	return plan.Schema{
		{Name: "Orders.status", Type: plan.Utf8},
		{Name: "Orders.count", Type: plan.Int64},
	}
}

func TestExecuteConvertsRowsToRecord(t *testing.T) {
	scan := plan.NewCubeScan(scanSchema(), cube.CubeQuery{}, plan.AuthContext{})
	transport := &fakeTransport{batch: cubescan.RowBatch{
		{"Orders.status": "shipped", "Orders.count": float64(3)},
		{"Orders.status": "pending", "Orders.count": nil},
	}}

	exec := cubescan.NewExec(scan, transport)
	rec, err := exec.Execute(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(2), rec.NumRows())
	require.Equal(t, 1, transport.loadCalls)
}

func TestExecuteRetriesOnceOnTransportError(t *testing.T) {
	scan := plan.NewCubeScan(scanSchema(), cube.CubeQuery{}, plan.AuthContext{})
	transport := &fakeTransport{
		failOnce: true,
		batch:    cubescan.RowBatch{{"Orders.status": "shipped", "Orders.count": float64(1)}},
	}

	exec := cubescan.NewExec(scan, transport)
	rec, err := exec.Execute(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), rec.NumRows())
	require.Equal(t, 2, transport.loadCalls)
}

func TestExecuteSurfacesPersistentTransportErrorAsExecutionError(t *testing.T) {
	scan := plan.NewCubeScan(scanSchema(), cube.CubeQuery{}, plan.AuthContext{})
	transport := &fakeTransport{err: cerrors.TransportError.New("still down")}

	exec := cubescan.NewExec(scan, transport)
	_, err := exec.Execute(context.Background())
	require.Error(t, err)
	require.True(t, cerrors.IsKind(cerrors.ExecutionError, err))
	require.Equal(t, 2, transport.loadCalls)
}
