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
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteReadFrameRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, TypeQuery, []byte("hello")))

	msgType, payload, err := ReadFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, TypeQuery, msgType)
	require.Equal(t, []byte("hello"), payload)
}

func TestWriteFrameEmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, TypeHandshakeAck, nil))

	msgType, payload, err := ReadFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, TypeHandshakeAck, msgType)
	require.Empty(t, payload)
}

func TestReadFrameTruncatedLengthIsError(t *testing.T) {
	_, _, err := ReadFrame(bytes.NewReader([]byte{1, 2}))
	require.Error(t, err)
}

func TestReadFrameTruncatedBodyIsError(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(putUint32(10))
	buf.Write([]byte{TypeQuery})
	_, _, err := ReadFrame(&buf)
	require.Error(t, err)
}

func TestStringRoundTrip(t *testing.T) {
	encoded := putString("hello world")
	s, rest, err := takeString(encoded)
	require.NoError(t, err)
	require.Equal(t, "hello world", s)
	require.Empty(t, rest)
}

func TestUint32RoundTrip(t *testing.T) {
	encoded := putUint32(123456)
	v, rest, err := takeUint32(encoded)
	require.NoError(t, err)
	require.EqualValues(t, 123456, v)
	require.Empty(t, rest)
}

func TestInt64RoundTrip(t *testing.T) {
	encoded := putInt64(-42)
	v, rest, err := takeInt64(encoded)
	require.NoError(t, err)
	require.EqualValues(t, -42, v)
	require.Empty(t, rest)
}
