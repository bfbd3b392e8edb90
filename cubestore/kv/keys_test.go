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

package kv

import (
	"bytes"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTableKeyEncodeOrdersByRowID(t *testing.T) {
	k1 := TableKey{TableID: 1, RowID: 1}
	k2 := TableKey{TableID: 1, RowID: 2}
	_, b1 := k1.Encode()
	_, b2 := k2.Encode()
	require.True(t, bytes.Compare(b1, b2) < 0)
}

func TestSecondaryIndexKeyEncodeOrdersByHashThenRowID(t *testing.T) {
	keys := []SecondaryIndexKey{
		{IndexID: 1, Hash: 5, RowID: 2},
		{IndexID: 1, Hash: 1, RowID: 100},
		{IndexID: 1, Hash: 5, RowID: 1},
	}
	encoded := make([][]byte, len(keys))
	for i, k := range keys {
		_, encoded[i] = k.Encode()
	}
	sorted := append([][]byte(nil), encoded...)
	sort.Slice(sorted, func(i, j int) bool { return bytes.Compare(sorted[i], sorted[j]) < 0 })

	require.Equal(t, encoded[1], sorted[0]) // hash=1 first
	require.Equal(t, encoded[2], sorted[1]) // hash=5,row=1
	require.Equal(t, encoded[0], sorted[2]) // hash=5,row=2
}

func TestDistinctKeyKindsUseDistinctBuckets(t *testing.T) {
	b1, _ := TableKey{TableID: 1, RowID: 1}.Encode()
	b2, _ := SequenceKey{TableID: 1}.Encode()
	b3, _ := TableInfoKey{TableID: 1}.Encode()
	b4, _ := SecondaryIndexInfoKey{IndexID: 1}.Encode()
	b5, _ := SecondaryIndexKey{IndexID: 1, Hash: 1, RowID: 1}.Encode()
	require.NotEqual(t, b1, b2)
	require.NotEqual(t, b1, b3)
	require.NotEqual(t, b1, b4)
	require.NotEqual(t, b1, b5)
	require.NotEqual(t, b2, b3)
}

func TestPathKeyEncodeOrdersLexicographically(t *testing.T) {
	_, a := PathKey{TableID: 1, Path: "a"}.Encode()
	_, b := PathKey{TableID: 1, Path: "b"}.Encode()
	_, ab := PathKey{TableID: 1, Path: "ab"}.Encode()
	require.True(t, bytes.Compare(a, ab) < 0)
	require.True(t, bytes.Compare(ab, b) < 0)
}

func TestPathKeyEncodeScopedByTableID(t *testing.T) {
	_, k1 := PathKey{TableID: 1, Path: "x"}.Encode()
	_, k2 := PathKey{TableID: 2, Path: "x"}.Encode()
	require.NotEqual(t, k1, k2)
}

func TestHashRowKeyDeterministic(t *testing.T) {
	h1 := HashRowKey([]byte("row-123"))
	h2 := HashRowKey([]byte("row-123"))
	h3 := HashRowKey([]byte("row-124"))
	require.Equal(t, h1, h2)
	require.NotEqual(t, h1, h3)
}

func TestUint32Uint64RoundTrip(t *testing.T) {
	require.Equal(t, uint32(12345), decodeUint32(encodeUint32(12345)))
	require.Equal(t, uint64(9999999999), decodeUint64(encodeUint64(9999999999)))
}
