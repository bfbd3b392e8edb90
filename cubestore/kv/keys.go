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

// Package kv implements the cache/queue store's persistence layer (C10):
// the RocksDB-style row-key tagged union of , laid over
// github.com/boltdb/bolt buckets. Bolt's own write-transaction/read-
// snapshot split already gives the "single writer via a write lock; readers
// take snapshots" policy requires, so Store does not add a
// second lock of its own.
package kv

import ("encoding/binary"

	"github.com/spaolacci/murmur3")

// Bucket names, one per arm of the row-key tagged union.
var (BucketTable = []byte("table")
	BucketSecondaryIndex = []byte("secondary_index")
	BucketSequence = []byte("sequence")
	BucketTableInfo = []byte("table_info")
	BucketSecondaryIndexInfo = []byte("secondary_index_info"))

// AllBuckets lists every bucket Open must ensure exists.
var AllBuckets = [][]byte{
	BucketTable, BucketSecondaryIndex, BucketSequence,
	BucketTableInfo, BucketSecondaryIndexInfo,
}

// RowKey is the tagged union names: `Table(table_id, row_id) |
// SecondaryIndex(index_id, hash, row_id) | Sequence(table_id) |
// SecondaryIndexInfo{…} | TableInfo{…}`. Encode resolves a key to the bolt
// bucket it lives in plus its byte-ordered key within that bucket.
type RowKey interface {
	Encode() (bucket, key []byte)
}

// TableKey addresses one row of one logical table.
type TableKey struct {
	TableID uint32
	RowID uint64
}

func (k TableKey) Encode() (bucket, key []byte) {
	return BucketTable, append(encodeUint32(k.TableID), encodeUint64(k.RowID)...)
}

// PathKey addresses one table row by its string path directly rather
// than by a numeric row id. Bolt buckets are byte-lexicographically
// ordered, so a PathKey table supports the prefix-range scans the
// cache (`KEYS prefix`) and queue (`TO_CANCEL`/`LIST prefix`) commands
// need in without a secondary index: the path itself is
// already the sorted primary key.
type PathKey struct {
	TableID uint32
	Path string
}

func (k PathKey) Encode() (bucket, key []byte) {
	return BucketTable, append(encodeUint32(k.TableID), []byte(k.Path)...)
}

// SecondaryIndexKey addresses one entry of one secondary index, ordered
// by (index_id, hash(row_key), row_id) per 
type SecondaryIndexKey struct {
	IndexID uint32
	Hash uint32
	RowID uint64
}

func (k SecondaryIndexKey) Encode() (bucket, key []byte) {
	b := encodeUint32(k.IndexID)
	b = append(b, encodeUint32(k.Hash)...)
	b = append(b, encodeUint64(k.RowID)...)
	return BucketSecondaryIndex, b
}

// SequenceKey addresses the monotonically increasing row-id counter for
// one logical table.
type SequenceKey struct {
	TableID uint32
}

func (k SequenceKey) Encode() (bucket, key []byte) {
	return BucketSequence, encodeUint32(k.TableID)
}

// SecondaryIndexInfoKey addresses the declared metadata (name, current
// value version) for one secondary index.
type SecondaryIndexInfoKey struct {
	IndexID uint32
}

func (k SecondaryIndexInfoKey) Encode() (bucket, key []byte) {
	return BucketSecondaryIndexInfo, encodeUint32(k.IndexID)
}

// TableInfoKey addresses the declared metadata (name, TTL field) for one
// logical table.
type TableInfoKey struct {
	TableID uint32
}

func (k TableInfoKey) Encode() (bucket, key []byte) {
	return BucketTableInfo, encodeUint32(k.TableID)
}

// HashRowKey implements the `hash(row_key)` component of a secondary
// index's address, using the same murmur3 hash family this codebase
// already uses elsewhere, promoted to direct use across both the
// cache/queue store and the arrow-native result cache's shard selection.
func HashRowKey(rowKey []byte) uint32 {
	return murmur3.Sum32(rowKey)
}

func encodeUint32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func encodeUint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func decodeUint32(b []byte) uint32 { return binary.BigEndian.Uint32(b) }
func decodeUint64(b []byte) uint64 { return binary.BigEndian.Uint64(b) }
