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

// Package compaction implements the cache/queue store's TTL compaction
// filter : a background pass over the table and
// secondary-index buckets that removes expired and orphaned rows and
// reports what it did via Prometheus counters.
package compaction

import ("encoding/binary"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cubebridge/cubesql/cubesql/observability"
	"github.com/cubebridge/cubesql/cubestore/kv")

// outcomeCounter tracks five outcome categories: scanned, removed,
// orphaned, no-ttl, not-expired. Promoted to direct use from what had
// been only an indirect client_golang dependency.
var outcomeCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "cubestore",
	Subsystem: "compaction",
	Name: "rows_total",
	Help: "Rows visited by the TTL compaction filter, by outcome.",
}, []string{"outcome"})

func init() {
	prometheus.MustRegister(outcomeCounter)
}

const (outcomeScanned = "scanned"
	outcomeRemoved = "removed"
	outcomeOrphaned = "orphaned"
	outcomeNoTTL = "no_ttl"
	outcomeNotExpired = "not_expired")

// Stats is a snapshot of one Run's counts, returned for logging
// alongside the Prometheus counters (which accumulate across runs).
type Stats struct {
	Scanned int64
	Removed int64
	Orphaned int64
	NoTTL int64
	NotExpired int64
}

func (s *Stats) observe(outcome string) {
	switch outcome {
	case outcomeScanned:
		s.Scanned++
	case outcomeRemoved:
		s.Removed++
	case outcomeOrphaned:
		s.Orphaned++
	case outcomeNoTTL:
		s.NoTTL++
	case outcomeNotExpired:
		s.NotExpired++
	}
	outcomeCounter.WithLabelValues(outcome).Inc()
}

// Run walks every table row and every secondary-index row once, deleting
// rows the filter contract marks for removal, and returns the counts.
// now is threaded in explicitly (rather than time.Now) so callers can
// pin it in tests and so a single compaction pass judges every row
// against one consistent instant.
func Run(store *kv.Store, now time.Time) (Stats, error) {
	var stats Stats

	tableInfo, err := loadTableInfo(store)
	if err != nil {
		return stats, err
	}
	if err := compactTableRows(store, tableInfo, now, &stats); err != nil {
		return stats, err
	}

	indexInfo, err := loadSecondaryIndexInfo(store)
	if err != nil {
		return stats, err
	}
	if err := compactSecondaryIndexRows(store, indexInfo, now, &stats); err != nil {
		return stats, err
	}

	return stats, nil
}

// RunWithReporter runs one compaction pass exactly like Run, additionally
// logging its final Stats through report. The background scheduler
// (cmd/cubebridged) uses this; Run alone stays dependency-free for tests
// and other callers that don't carry a Reporter.
func RunWithReporter(store *kv.Store, now time.Time, report *observability.Reporter) (Stats, error) {
	stats, err := Run(store, now)
	if report != nil {
		report.CompactionFinished(stats.Scanned, stats.Removed, stats.Orphaned, stats.NoTTL, stats.NotExpired)
	}
	return stats, err
}

func loadTableInfo(store *kv.Store) (map[uint32]kv.TableInfo, error) {
	out := map[uint32]kv.TableInfo{}
	var scanErr error
	err := store.Scan(kv.BucketTableInfo, nil, func(k, v []byte) bool {
			info, err := kv.DecodeTableInfo(v)
			if err != nil {
				scanErr = err
				return false
			}
			out[info.TableID] = info
			return true
	})
	if err != nil {
		return nil, err
	}
	return out, scanErr
}

func loadSecondaryIndexInfo(store *kv.Store) (map[uint32]kv.SecondaryIndexInfo, error) {
	out := map[uint32]kv.SecondaryIndexInfo{}
	var scanErr error
	err := store.Scan(kv.BucketSecondaryIndexInfo, nil, func(k, v []byte) bool {
			info, err := kv.DecodeSecondaryIndexInfo(v)
			if err != nil {
				scanErr = err
				return false
			}
			out[info.IndexID] = info
			return true
	})
	if err != nil {
		return nil, err
	}
	return out, scanErr
}

// compactTableRows implements table-row rule: "if the
// row's table has a TTL field, decode the row, read its expire field:
// null → keep; parse error → remove (orphaned); past → remove; future →
// keep." A table with no declared TTL field is skipped without
// decoding its rows at all.
func compactTableRows(store *kv.Store, tableInfo map[uint32]kv.TableInfo, now time.Time, stats *Stats) error {
	var toDelete [][]byte
	err := store.Scan(kv.BucketTable, nil, func(k, v []byte) bool {
			stats.observe(outcomeScanned)
			tableID := tableIDFromKey(k)
			info, ok := tableInfo[tableID]
			if !ok || info.TTLField == "" {
				stats.observe(outcomeNoTTL)
				return true
			}

			row, err := kv.DecodeTableRowValue(v)
			if err != nil {
				stats.observe(outcomeOrphaned)
				toDelete = append(toDelete, append([]byte(nil), k...))
				return true
			}
			if row.Expire == nil {
				stats.observe(outcomeNotExpired)
				return true
			}
			if row.Expire.Before(now) {
				stats.observe(outcomeRemoved)
				toDelete = append(toDelete, append([]byte(nil), k...))
				return true
			}
			stats.observe(outcomeNotExpired)
			return true
	})
	if err != nil {
		return err
	}
	return deleteAll(store, kv.BucketTable, toDelete)
}

// compactSecondaryIndexRows implements secondary-index
// rule: a new-format row past its expire is removed, and an old-format
// row left behind by a prior writer version is removed unconditionally
// once its index has moved to a newer declared version.
func compactSecondaryIndexRows(store *kv.Store, indexInfo map[uint32]kv.SecondaryIndexInfo, now time.Time, stats *Stats) error {
	var toDelete [][]byte
	err := store.Scan(kv.BucketSecondaryIndex, nil, func(k, v []byte) bool {
			stats.observe(outcomeScanned)
			indexID := tableIDFromKey(k)
			info, haveInfo := indexInfo[indexID]

			val, err := kv.DecodeSecondaryIndexValue(v)
			if err != nil {
				stats.observe(outcomeOrphaned)
				toDelete = append(toDelete, append([]byte(nil), k...))
				return true
			}

			if haveInfo && val.Version != info.Version {
				stats.observe(outcomeRemoved)
				toDelete = append(toDelete, append([]byte(nil), k...))
				return true
			}
			if val.Expire != nil && val.Expire.Before(now) {
				stats.observe(outcomeRemoved)
				toDelete = append(toDelete, append([]byte(nil), k...))
				return true
			}
			if val.Expire == nil {
				stats.observe(outcomeNoTTL)
			} else {
				stats.observe(outcomeNotExpired)
			}
			return true
	})
	if err != nil {
		return err
	}
	return deleteAll(store, kv.BucketSecondaryIndex, toDelete)
}

func deleteAll(store *kv.Store, bucket []byte, keys [][]byte) error {
	for _, k := range keys {
		if err := store.DeleteRaw(bucket, k); err != nil {
			return err
		}
	}
	return nil
}

// tableIDFromKey reads the leading 4-byte big-endian table/index id
// every TableKey and SecondaryIndexKey encoding starts with.
func tableIDFromKey(k []byte) uint32 {
	return binary.BigEndian.Uint32(k[:4])
}
