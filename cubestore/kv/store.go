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

package kv

import ("time"

	"github.com/boltdb/bolt"
	"github.com/pkg/errors"

	cerrors "github.com/cubebridge/cubesql/cubesql/errors")

// Store is a single bolt.DB wrapping all five buckets of the row-key
// tagged union. Writes go through Update (bolt's single writer), reads
// through View (bolt's MVCC snapshot reader); "single
// writer via a write lock on the KV; readers take snapshots" is bolt's
// own transaction model, not an additional lock here.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if absent) the bolt file at path and ensures every
// bucket in AllBuckets exists.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, cerrors.InternalError.New(errors.Wrap(err, "kv: open").Error())
	}
	err = db.Update(func(tx *bolt.Tx) error {
			for _, b := range AllBuckets {
				if _, err := tx.CreateBucketIfNotExists(b); err != nil {
					return err
				}
			}
			return nil
	})
	if err != nil {
		db.Close()
		return nil, cerrors.InternalError.New(errors.Wrap(err, "kv: init buckets").Error())
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Get fetches the raw value stored at key, returning (nil, false) on a
// miss. The returned slice is a copy: bolt's own value slices are only
// valid for the lifetime of the transaction that produced them.
func (s *Store) Get(key RowKey) ([]byte, bool, error) {
	bucket, rawKey := key.Encode()
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
			b := tx.Bucket(bucket)
			v := b.Get(rawKey)
			if v != nil {
				out = append([]byte(nil), v...)
			}
			return nil
	})
	if err != nil {
		return nil, false, cerrors.InternalError.New(errors.Wrap(err, "kv: get").Error())
	}
	return out, out != nil, nil
}

func (s *Store) Put(key RowKey, value []byte) error {
	bucket, rawKey := key.Encode()
	err := s.db.Update(func(tx *bolt.Tx) error {
			return tx.Bucket(bucket).Put(rawKey, value)
	})
	if err != nil {
		return cerrors.InternalError.New(errors.Wrap(err, "kv: put").Error())
	}
	return nil
}

func (s *Store) Delete(key RowKey) error {
	bucket, rawKey := key.Encode()
	return s.DeleteRaw(bucket, rawKey)
}

// DeleteRaw deletes by the bucket/key pair a prior Scan produced,
// letting callers like the compaction filter remove what they just
// walked without having to decode a raw key back into a typed RowKey.
func (s *Store) DeleteRaw(bucket, key []byte) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
			return tx.Bucket(bucket).Delete(key)
	})
	if err != nil {
		return cerrors.InternalError.New(errors.Wrap(err, "kv: delete").Error())
	}
	return nil
}

// KV pairs a raw bucket key with its value for Scan's callback.
type KV struct {
	Key []byte
	Value []byte
}

// Scan walks bucketName in key order starting at prefix (inclusive),
// calling fn for each entry whose key starts with prefix, stopping early
// if fn returns false. This is the one range-scan primitive every
// higher-level cache/queue operation (SQL KEYS, queue TO_CANCEL/LIST)
// is built from, so it lives on Store rather than being reimplemented
// per caller.
func (s *Store) Scan(bucketName, prefix []byte, fn func(k, v []byte) bool) error {
	err := s.db.View(func(tx *bolt.Tx) error {
			c := tx.Bucket(bucketName).Cursor()
			for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
				if !fn(k, v) {
					return nil
				}
			}
			return nil
	})
	if err != nil {
		return cerrors.InternalError.New(errors.Wrap(err, "kv: scan").Error())
	}
	return nil
}

// NextSequence returns the next row id for tableID, starting at 1,
// implementing the Sequence arm of the row-key union: each table's
// monotonically increasing counter is itself a KV entry rather than a
// bolt native sequence, so it is recoverable from a plain Get during
// compaction bookkeeping or diagnostics.
func (s *Store) NextSequence(tableID uint32) (uint64, error) {
	key := SequenceKey{TableID: tableID}
	var next uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
			bucket, rawKey := key.Encode()
			b := tx.Bucket(bucket)
			cur := b.Get(rawKey)
			var n uint64
			if cur != nil {
				n = decodeUint64(cur)
			}
			next = n + 1
			return b.Put(rawKey, encodeUint64(next))
	})
	if err != nil {
		return 0, cerrors.InternalError.New(errors.Wrap(err, "kv: next sequence").Error())
	}
	return next, nil
}

func hasPrefix(k, prefix []byte) bool {
	if len(prefix) == 0 {
		return true
	}
	if len(k) < len(prefix) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}
