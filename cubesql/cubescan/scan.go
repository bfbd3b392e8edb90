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

// Package cubescan implements the physical half of the CubeScan extension
// (C5): given the logical plan.CubeScan the rewrite engine produces, it
// calls the Transport's Load, retrying once on a transport failure,
// and converts the returned JSON rows into a single Arrow record batch
// matching the scan's declared schema. It depends on plan and cube but
// never the reverse.
package cubescan

import ("context"
	"math/rand"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/cubebridge/cubesql/cubesql/cube"
	cerrors "github.com/cubebridge/cubesql/cubesql/errors"
	"github.com/cubebridge/cubesql/cubesql/plan")

// Row is one member-qualified JSON object the transport returns; RowBatch
// is the "pops exactly one result" response describes.
type Row map[string]interface{}
type RowBatch []Row

// Transport is the external capability glossary names: "meta(auth)
// → MetadataContext" and "load(request, auth) → RowBatch". Both calls cross
// a process boundary and take a context so a caller can cancel them.
type Transport interface {
	Meta(ctx context.Context, auth plan.AuthContext) (cube.MetadataContext, error)
	Load(ctx context.Context, request cube.CubeQuery, auth plan.AuthContext) (RowBatch, error)
}

// Exec is the physical CubeScan node. It has no children: the logical
// CubeScan it wraps is already the leaf of the plan.
type Exec struct {
	Scan *plan.CubeScan
	Transport Transport
	Mem memory.Allocator
	// Log is injected at construction rather than reaching for the
	// package-level default logger, so a caller embedding this package
	// controls where coercion warnings (see coerce.go) end up.
	Log *logrus.Logger
}

func NewExec(scan *plan.CubeScan, transport Transport) *Exec {
	return &Exec{Scan: scan, Transport: transport, Mem: memory.NewGoAllocator(), Log: logrus.New()}
}

// Execute implements the single-partition contract: load once, retry once
// with jitter on a transport failure, then coerce every row into one
// record batch. Any transport error surviving the retry is surfaced as
// cerrors.ExecutionError, wrapped with pkg/errors before it crosses back
// out to the caller.
func (e *Exec) Execute(ctx context.Context) (arrow.Record, error) {
	batch, err := e.Transport.Load(ctx, e.Scan.Request, e.Scan.Auth)
	if err != nil && cerrors.IsKind(cerrors.TransportError, err) {
		time.Sleep(jitter(50 * time.Millisecond))
		batch, err = e.Transport.Load(ctx, e.Scan.Request, e.Scan.Auth)
	}
	if err != nil {
		return nil, cerrors.ExecutionError.New(errors.Wrap(err, "cubescan: transport.load failed").Error())
	}
	return e.buildRecord(batch)
}

// jitter returns base plus up to base/2 of uniform random delay, the
// hand-rolled backoff requires; no pack library ships a
// retry helper this thin is worth pulling a dependency in for (see
// DESIGN.md).
func jitter(base time.Duration) time.Duration {
	return base + time.Duration(rand.Int63n(int64(base)/2+1))
}

func (e *Exec) buildRecord(batch RowBatch) (arrow.Record, error) {
	sch := e.Scan.Schema()
	fields := make([]arrow.Field, len(sch))
	builders := make([]array.Builder, len(sch))
	for i, col := range sch {
		fields[i] = arrow.Field{Name: col.Name, Type: arrowType(col.Type), Nullable: true}
		builders[i] = newBuilder(e.Mem, col.Type)
	}
	arrowSchema := arrow.NewSchema(fields, nil)

	for _, row := range batch {
		for i, col := range sch {
			if division, ok := e.Scan.AvgDivisions[col.Name]; ok {
				appendAvgDivision(builders[i].(*array.Float64Builder), row, division)
				continue
			}
			raw, present := lookupMember(row, col.Name)
			if !present {
				builders[i].AppendNull()
				continue
			}
			if err := appendCoerced(builders[i], col.Type, raw, e.Log); err != nil {
				return nil, err
			}
		}
	}

	arrays := make([]arrow.Array, len(builders))
	for i, b := range builders {
		arrays[i] = b.NewArray()
	}
	return array.NewRecord(arrowSchema, arrays, int64(len(batch))), nil
}

// lookupMember matches "a JSON object with member-qualified
// keys": the transport returns keys like "Orders.status", but the scan's
// declared schema may carry only the bare member name, so both forms are
// tried.
func lookupMember(row Row, name string) (interface{}, bool) {
	if v, ok := row[name]; ok {
		return v, true
	}
	for k, v := range row {
		if k == name {
			return v, true
		}
		if dot := len(k) - len(name) - 1; dot >= 0 && k[dot] == '.' && k[dot+1:] == name {
			return v, true
		}
	}
	return nil, false
}

