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

package kv_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cubebridge/cubesql/cubestore/kv"
)

func openTestStore(t *testing.T) *kv.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "store.bolt")
	s, err := kv.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreGetMiss(t *testing.T) {
	s := openTestStore(t)
	_, ok, err := s.Get(kv.TableKey{TableID: 1, RowID: 1})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStorePutGetDelete(t *testing.T) {
	s := openTestStore(t)
	key := kv.TableKey{TableID: 1, RowID: 42}

	require.NoError(t, s.Put(key, []byte("hello")))
	v, ok, err := s.Get(key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("hello"), v)

	require.NoError(t, s.Delete(key))
	_, ok, err = s.Get(key)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStoreScanRespectsPrefix(t *testing.T) {
	s := openTestStore(t)
	for i := uint32(0); i < 3; i++ {
		require.NoError(t, s.Put(kv.SecondaryIndexKey{IndexID: 1, Hash: i, RowID: 1}, []byte("v")))
	}
	require.NoError(t, s.Put(kv.SecondaryIndexKey{IndexID: 2, Hash: 0, RowID: 1}, []byte("other")))

	prefixKey, _ := kv.SecondaryIndexKey{IndexID: 1, Hash: 0, RowID: 0}.Encode()
	prefix := prefixKey[:4] // index_id component only

	var count int
	err := s.Scan(kv.BucketSecondaryIndex, prefix, func(k, v []byte) bool {
		count++
		return true
	})
	require.NoError(t, err)
	require.Equal(t, 3, count)
}

func TestStoreScanStopsEarly(t *testing.T) {
	s := openTestStore(t)
	for i := uint32(0); i < 5; i++ {
		require.NoError(t, s.Put(kv.TableKey{TableID: 1, RowID: uint64(i)}, []byte("v")))
	}
	prefix, _ := kv.TableKey{TableID: 1, RowID: 0}.Encode()
	prefix = prefix[:4]

	var count int
	err := s.Scan(kv.BucketTable, prefix, func(k, v []byte) bool {
		count++
		return count < 2
	})
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestStoreNextSequenceIncrementsFromOne(t *testing.T) {
	s := openTestStore(t)
	n1, err := s.NextSequence(1)
	require.NoError(t, err)
	require.EqualValues(t, 1, n1)

	n2, err := s.NextSequence(1)
	require.NoError(t, err)
	require.EqualValues(t, 2, n2)
}

func TestStoreNextSequenceIsPerTable(t *testing.T) {
	s := openTestStore(t)
	_, err := s.NextSequence(1)
	require.NoError(t, err)
	n, err := s.NextSequence(2)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}
