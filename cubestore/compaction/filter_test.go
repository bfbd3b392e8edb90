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

package compaction_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cubebridge/cubesql/cubestore/compaction"
	"github.com/cubebridge/cubesql/cubestore/kv"
)

func openTestStore(t *testing.T) *kv.Store {
	t.Helper()
	s, err := kv.Open(filepath.Join(t.TempDir(), "store.bolt"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunSkipsTableWithNoTTLField(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Put(kv.TableInfoKey{TableID: 1}, kv.EncodeTableInfo(kv.TableInfo{TableID: 1, Name: "t"})))
	key := kv.TableKey{TableID: 1, RowID: 1}
	require.NoError(t, s.Put(key, kv.EncodeTableRowValue(kv.TableRowValue{Payload: []byte("x")})))

	stats, err := compaction.Run(s, time.Now())
	require.NoError(t, err)
	require.EqualValues(t, 1, stats.Scanned)
	require.EqualValues(t, 1, stats.NoTTL)
	require.EqualValues(t, 0, stats.Removed)

	_, ok, err := s.Get(key)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRunKeepsNullExpire(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Put(kv.TableInfoKey{TableID: 1}, kv.EncodeTableInfo(kv.TableInfo{TableID: 1, TTLField: "expires_at"})))
	key := kv.TableKey{TableID: 1, RowID: 1}
	require.NoError(t, s.Put(key, kv.EncodeTableRowValue(kv.TableRowValue{Payload: []byte("x")})))

	stats, err := compaction.Run(s, time.Now())
	require.NoError(t, err)
	require.EqualValues(t, 1, stats.NotExpired)

	_, ok, err := s.Get(key)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRunRemovesExpiredTableRow(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Put(kv.TableInfoKey{TableID: 1}, kv.EncodeTableInfo(kv.TableInfo{TableID: 1, TTLField: "expires_at"})))
	past := time.Now().Add(-time.Hour)
	key := kv.TableKey{TableID: 1, RowID: 1}
	require.NoError(t, s.Put(key, kv.EncodeTableRowValue(kv.TableRowValue{Payload: []byte("x"), Expire: &past})))

	stats, err := compaction.Run(s, time.Now())
	require.NoError(t, err)
	require.EqualValues(t, 1, stats.Removed)

	_, ok, err := s.Get(key)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRunKeepsFutureExpireTableRow(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Put(kv.TableInfoKey{TableID: 1}, kv.EncodeTableInfo(kv.TableInfo{TableID: 1, TTLField: "expires_at"})))
	future := time.Now().Add(time.Hour)
	key := kv.TableKey{TableID: 1, RowID: 1}
	require.NoError(t, s.Put(key, kv.EncodeTableRowValue(kv.TableRowValue{Payload: []byte("x"), Expire: &future})))

	stats, err := compaction.Run(s, time.Now())
	require.NoError(t, err)
	require.EqualValues(t, 1, stats.NotExpired)

	_, ok, err := s.Get(key)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRunRemovesOrphanedTableRow(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Put(kv.TableInfoKey{TableID: 1}, kv.EncodeTableInfo(kv.TableInfo{TableID: 1, TTLField: "expires_at"})))
	key := kv.TableKey{TableID: 1, RowID: 1}
	require.NoError(t, s.Put(key, []byte{0xFF})) // too short to decode

	stats, err := compaction.Run(s, time.Now())
	require.NoError(t, err)
	require.EqualValues(t, 1, stats.Orphaned)

	_, ok, err := s.Get(key)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRunRemovesLegacyFormatSecondaryIndexRow(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Put(kv.SecondaryIndexInfoKey{IndexID: 1}, kv.EncodeSecondaryIndexInfo(kv.SecondaryIndexInfo{IndexID: 1, Version: kv.SIVersionHashAndTTL})))
	key := kv.SecondaryIndexKey{IndexID: 1, Hash: 7, RowID: 1}
	require.NoError(t, s.Put(key, kv.EncodeSecondaryIndexValue(kv.SecondaryIndexValue{Version: kv.SIVersionHash, Payload: []byte("x")})))

	stats, err := compaction.Run(s, time.Now())
	require.NoError(t, err)
	require.EqualValues(t, 1, stats.Removed)

	_, ok, err := s.Get(key)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRunRemovesExpiredSecondaryIndexRow(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Put(kv.SecondaryIndexInfoKey{IndexID: 1}, kv.EncodeSecondaryIndexInfo(kv.SecondaryIndexInfo{IndexID: 1, Version: kv.SIVersionHashAndTTL})))
	past := time.Now().Add(-time.Hour)
	key := kv.SecondaryIndexKey{IndexID: 1, Hash: 7, RowID: 1}
	require.NoError(t, s.Put(key, kv.EncodeSecondaryIndexValue(kv.SecondaryIndexValue{Version: kv.SIVersionHashAndTTL, Payload: []byte("x"), Expire: &past})))

	stats, err := compaction.Run(s, time.Now())
	require.NoError(t, err)
	require.EqualValues(t, 1, stats.Removed)

	_, ok, err := s.Get(key)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRunKeepsCurrentFormatNonExpiredSecondaryIndexRow(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Put(kv.SecondaryIndexInfoKey{IndexID: 1}, kv.EncodeSecondaryIndexInfo(kv.SecondaryIndexInfo{IndexID: 1, Version: kv.SIVersionHash})))
	key := kv.SecondaryIndexKey{IndexID: 1, Hash: 7, RowID: 1}
	require.NoError(t, s.Put(key, kv.EncodeSecondaryIndexValue(kv.SecondaryIndexValue{Version: kv.SIVersionHash, Payload: []byte("x")})))

	stats, err := compaction.Run(s, time.Now())
	require.NoError(t, err)
	require.EqualValues(t, 1, stats.NoTTL)

	_, ok, err := s.Get(key)
	require.NoError(t, err)
	require.True(t, ok)
}
