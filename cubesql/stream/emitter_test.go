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

package stream_test

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/require"

	cerrors "github.com/cubebridge/cubesql/cubesql/errors"
	"github.com/cubebridge/cubesql/cubesql/stream"
)

type fakeSink struct {
	frames  [][]byte
	blockOn int
	drain   chan struct{}
	ended   []byte
}

func newFakeSink() *fakeSink { return &fakeSink{drain: make(chan struct{}, 1)} }

func (f *fakeSink) Write(frame []byte) (bool, error) {
	f.frames = append(f.frames, frame)
	if f.blockOn == len(f.frames) {
		f.drain <- struct{}{}
		return true, nil
	}
	return false, nil
}

func (f *fakeSink) Drain() <-chan struct{} { return f.drain }

func (f *fakeSink) End(frame []byte) error {
	f.ended = frame
	return nil
}

func oneRowRecord() arrow.Record {
	mem := memory.NewGoAllocator()
	sch := arrow.NewSchema([]arrow.Field{{Name: "n", Type: arrow.PrimitiveTypes.Int64}}, nil)
	b := array.NewInt64Builder(mem)
	b.Append(42)
	col := b.NewArray()
	return array.NewRecord(sch, []arrow.Array{col}, 1)
}

type sliceSource struct {
	records []arrow.Record
	i       int
}

func (s *sliceSource) Next(ctx context.Context) (arrow.Record, error) {
	if s.i >= len(s.records) {
		return nil, io.EOF
	}
	r := s.records[s.i]
	s.i++
	return r, nil
}

func TestRunRequiresStreamingMode(t *testing.T) {
	e := &stream.Emitter{Sink: newFakeSink(), Mode: stream.RowMode}
	err := e.Run(context.Background(), &sliceSource{})
	require.Error(t, err)
	require.True(t, cerrors.IsKind(cerrors.InternalError, err))
}

func TestRunEmitsSchemaThenDataThenEnds(t *testing.T) {
	sink := newFakeSink()
	e := &stream.Emitter{Sink: sink, Mode: stream.StreamingMode}
	rec := oneRowRecord()

	err := e.Run(context.Background(), &sliceSource{records: []arrow.Record{rec}})
	require.NoError(t, err)
	require.Len(t, sink.frames, 2)
	require.True(t, strings.Contains(string(sink.frames[0]), `"schema"`))
	require.True(t, strings.Contains(string(sink.frames[1]), `"data"`))
	require.True(t, strings.Contains(string(sink.frames[1]), "42"))
	require.Nil(t, sink.ended)
}

func TestRunPausesOnBackpressureThenResumes(t *testing.T) {
	sink := newFakeSink()
	sink.blockOn = 1
	e := &stream.Emitter{Sink: sink, Mode: stream.StreamingMode}
	rec := oneRowRecord()

	err := e.Run(context.Background(), &sliceSource{records: []arrow.Record{rec}})
	require.NoError(t, err)
	require.Len(t, sink.frames, 2)
}

func TestRunSingleBatchSourceFromCubeScan(t *testing.T) {
	sink := newFakeSink()
	e := &stream.Emitter{Sink: sink, Mode: stream.StreamingMode}
	src := &stream.SingleBatchSource{Exec: func(ctx context.Context) (arrow.Record, error) {
		return oneRowRecord(), nil
	}}

	err := e.Run(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, sink.frames, 2)
}
