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

package arrownative

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/require"
)

func TestHandshakeRoundTrip(t *testing.T) {
	encoded := encodeHandshake(7)
	v, err := decodeHandshake(encoded)
	require.NoError(t, err)
	require.EqualValues(t, 7, v)
}

func TestHandshakeAckRoundTrip(t *testing.T) {
	encoded := encodeHandshakeAck(ProtocolVersion, ServerVersion)
	v, serverVersion, err := decodeHandshakeAck(encoded)
	require.NoError(t, err)
	require.EqualValues(t, ProtocolVersion, v)
	require.Equal(t, ServerVersion, serverVersion)
}

func TestAuthRoundTripWithDatabase(t *testing.T) {
	encoded := encodeAuth("tok", "mydb", true)
	token, db, err := decodeAuth(encoded)
	require.NoError(t, err)
	require.Equal(t, "tok", token)
	require.Equal(t, "mydb", db)
}

func TestAuthRoundTripWithoutDatabase(t *testing.T) {
	encoded := encodeAuth("tok", "", false)
	token, db, err := decodeAuth(encoded)
	require.NoError(t, err)
	require.Equal(t, "tok", token)
	require.Empty(t, db)
}

func TestAuthAckRoundTrip(t *testing.T) {
	encoded := encodeAuthAck(true, "session-1")
	success, sessionID, err := decodeAuthAck(encoded)
	require.NoError(t, err)
	require.True(t, success)
	require.Equal(t, "session-1", sessionID)
}

func TestCompleteRoundTrip(t *testing.T) {
	encoded := encodeComplete(42, true)
	n, fromCache, err := decodeComplete(encoded)
	require.NoError(t, err)
	require.EqualValues(t, 42, n)
	require.True(t, fromCache)
}

func TestErrorRoundTrip(t *testing.T) {
	encoded := encodeError("42601", "syntax error")
	code, msg, err := decodeError(encoded)
	require.NoError(t, err)
	require.Equal(t, "42601", code)
	require.Equal(t, "syntax error", msg)
}

func TestEncodeDecodeBatchRoundTrips(t *testing.T) {
	mem := memory.NewGoAllocator()
	b := array.NewInt64Builder(mem)
	b.AppendValues([]int64{1, 2, 3}, nil)
	arr := b.NewInt64Array()
	defer arr.Release()

	field := arrow.Field{Name: "n", Type: arrow.PrimitiveTypes.Int64}
	schema := arrow.NewSchema([]arrow.Field{field}, nil)
	rec := array.NewRecord(schema, []arrow.Array{arr}, 3)
	defer rec.Release()

	payload, err := EncodeBatch(rec)
	require.NoError(t, err)
	require.NotEmpty(t, payload)

	recs, err := DecodeBatch(payload)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	defer recs[0].Release()
	require.EqualValues(t, 3, recs[0].NumRows())
	require.True(t, recs[0].Schema().Equal(schema))
}
