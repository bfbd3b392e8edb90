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

package arrownative

import ("sync"

	"github.com/apache/arrow-go/v18/arrow"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/spaolacci/murmur3")

const (defaultCacheShards = 16
	defaultShardCapacity = 256)

type cacheEntry struct {
	batches []arrow.Record
}

// shard is one of ResultCache's independently-locked partitions, the
// "serialized by a single lock per shard" discipline states for
// the bounded result cache.
type shard struct {
	mu sync.Mutex
	lru *lru.Cache[string, cacheEntry]
}

// ResultCache is the bounded, LRU-evicting cache keyed by (sql, database)
// "Bounded result cache" names. Sharding spreads lock
// contention across connections; a key's shard is chosen by hashing with
// github.com/spaolacci/murmur3, the same hash family this codebase uses
// for C10's row-key scheme.
type ResultCache struct {
	shards []*shard
}

// NewResultCache builds a cache with shardCount independently-locked
// partitions, each holding up to perShardCapacity entries.
func NewResultCache(shardCount, perShardCapacity int) *ResultCache {
	if shardCount <= 0 {
		shardCount = defaultCacheShards
	}
	if perShardCapacity <= 0 {
		perShardCapacity = defaultShardCapacity
	}
	shards := make([]*shard, shardCount)
	for i := range shards {
		sh := &shard{}
		c, err := lru.NewWithEvict(perShardCapacity, func(_ string, e cacheEntry) {
				for _, r := range e.batches {
					r.Release()
				}
		})
		if err != nil {
			// Only returns an error for a non-positive size, which
			// perShardCapacity can never be past the guard above.
			panic(err)
		}
		sh.lru = c
		shards[i] = sh
	}
	return &ResultCache{shards: shards}
}

func cacheKey(sql, database string) string {
	return database + "\x00" + sql
}

func (c *ResultCache) shardFor(key string) *shard {
	h := murmur3.Sum32([]byte(key))
	return c.shards[h%uint32(len(c.shards))]
}

// Get returns the cached batches for (sql, database), retaining a
// reference for the caller on every returned record. The caller must
// Release each one when done streaming it.
func (c *ResultCache) Get(sql, database string) ([]arrow.Record, bool) {
	key := cacheKey(sql, database)
	sh := c.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.lru.Get(key)
	if !ok {
		return nil, false
	}
	for _, r := range e.batches {
		r.Retain()
	}
	return e.batches, true
}

// Put stores batches under (sql, database), taking ownership of one
// reference per record (the caller should still Release its own, separate
// reference once it is done streaming from batches).
func (c *ResultCache) Put(sql, database string, batches []arrow.Record) {
	for _, r := range batches {
		r.Retain()
	}
	key := cacheKey(sql, database)
	sh := c.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.lru.Add(key, cacheEntry{batches: batches})
}
