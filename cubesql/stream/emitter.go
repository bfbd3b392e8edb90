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

// Package stream implements the streaming executor bridge (C6): given a
// compiled plan's record-batch source and a writable sink, it renders the
// newline-delimited JSON framing specifies and applies the
// sink's own backpressure signal between frames. It is deliberately
// decoupled from how a Source produces batches — in this implementation
// the only Source is a single cubescan.Exec leaf (Non-goal (c),
// "execute arbitrary residual SQL against produced record batches", is
// not implemented: no vectorized Filter/Aggregate/Sort-over-Arrow executor
// exists here, see DESIGN.md).
package stream

import ("context"
	"encoding/json"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"

	cerrors "github.com/cubebridge/cubesql/cubesql/errors")

// WritableSink is the Go rendering of an `on('drain', …)`-style
// Node stream sink: Write reports whether the sink's internal buffer is
// now full (the caller must wait for Drain before writing again), and End
// closes the stream with one last frame (possibly empty).
type WritableSink interface {
	Write(frame []byte) (wouldBlock bool, err error)
	Drain() <-chan struct{}
	End(frame []byte) error
}

// Source yields the record batches a compiled plan produces, in order,
// until io.EOF.
type Source interface {
	Next(ctx context.Context) (arrow.Record, error)
}

// SessionMode mirrors the per-session streaming toggle 
// requires validating before running the bridge at all.
type SessionMode int

const (RowMode SessionMode = iota
	StreamingMode)

// Emitter drives one Source through one WritableSink.
type Emitter struct {
	Sink WritableSink
	Mode SessionMode
}

// Run validates streaming mode, then pulls batches from source until
// exhaustion or error, applying the schema/data framing and, whenever
// Write reports the sink would block, waiting for the sink's Drain signal
// (or ctx) before the next frame.
func (e *Emitter) Run(ctx context.Context, source Source) error {
	if e.Mode != StreamingMode {
		return cerrors.InternalError.New("stream mode required")
	}

	first := true
	for {
		rec, err := source.Next(ctx)
		if err == io.EOF {
			return e.Sink.End(nil)
		}
		if err != nil {
			frame, marshalErr := json.Marshal(map[string]string{"error": err.Error()})
			if marshalErr != nil {
				return marshalErr
			}
			return e.Sink.End(append(frame, '\n'))
		}

		if first {
			first = false
			if err := e.writeFrame(ctx, schemaFrame(rec.Schema())); err != nil {
				return err
			}
		}
		if err := e.writeFrame(ctx, dataFrame(rec)); err != nil {
			return err
		}
	}
}

func (e *Emitter) writeFrame(ctx context.Context, frame []byte) error {
	wouldBlock, err := e.Sink.Write(frame)
	if err != nil {
		return err
	}
	if !wouldBlock {
		return nil
	}
	select {
	case <-e.Sink.Drain():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type columnDef struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

func schemaFrame(sch *arrow.Schema) []byte {
	cols := make([]columnDef, sch.NumFields())
	for i, f := range sch.Fields() {
		cols[i] = columnDef{Name: f.Name, Type: f.Type.Name()}
	}
	body, _ := json.Marshal(map[string][]columnDef{"schema": cols})
	return append(body, '\n')
}

func dataFrame(rec arrow.Record) []byte {
	body, _ := json.Marshal(map[string][]map[string]interface{}{"data": recordToRows(rec)})
	return append(body, '\n')
}

func recordToRows(rec arrow.Record) []map[string]interface{} {
	sch := rec.Schema()
	rows := make([]map[string]interface{}, rec.NumRows())
	for r := range rows {
		rows[r] = make(map[string]interface{}, sch.NumFields())
	}
	for c, field := range sch.Fields() {
		col := rec.Column(c)
		for r := 0; r < col.Len(); r++ {
			rows[r][field.Name] = columnValue(col, r)
		}
	}
	return rows
}

func columnValue(col arrow.Array, i int) interface{} {
	if col.IsNull(i) {
		return nil
	}
	switch a := col.(type) {
	case *array.Int64:
		return a.Value(i)
	case *array.Float64:
		return a.Value(i)
	case *array.String:
		return a.Value(i)
	case *array.Boolean:
		return a.Value(i)
	case *array.Timestamp:
		return a.Value(i).ToTime(arrow.Microsecond)
	default:
		return nil
	}
}
