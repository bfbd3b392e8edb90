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

// Package queue implements the cache/queue store's queue primitives
// : ADD, HEARTBEAT, CANCEL, ACK, RETRIEVE, RESULT,
// RESULT_BLOCKING, TO_CANCEL, LIST, MERGE_EXTRA, built on top of
// cubestore/kv the same way cubestore/sqlcmd builds its cache commands:
// each item is a kv.PathKey row addressed by its caller-chosen key, so
// prefix-scoped operations (TO_CANCEL, LIST) are bounded kv.Store.Scan
// walks rather than full-table scans.
package queue

import ("context"
	"encoding/json"
	"sort"
	"time"

	"github.com/pkg/errors"

	cerrors "github.com/cubebridge/cubesql/cubesql/errors"
	"github.com/cubebridge/cubesql/cubestore/kv")

// QueueTableID is this package's reserved table id, distinct from
// cubestore/sqlcmd's CacheTableID so the two stores share one kv.Store
// without key collisions.
const QueueTableID uint32 = 2

const (StatusPending = "pending"
	StatusActive = "active"
	StatusFinished = "finished"
	StatusFailed = "failed")

// Item is one queue entry. Extra is carried as a raw JSON object
// (defaulting to "{}") since MERGE_EXTRA's contract is itself a JSON
// merge; encoding/json is a reasonable, narrowly-scoped choice for this
// one bookkeeping value; it is not the wire-format path C8/C9 own, and
// no pack dependency offers a JSON merge primitive to ground this on
// instead (see DESIGN.md).
type Item struct {
	ID uint64
	Key string
	Payload []byte
	Extra json.RawMessage
	Status string
	Priority int64
	OrphanedAfter time.Duration
	HeartbeatAfter time.Duration
	CreatedAt time.Time
	HeartbeatDeadline time.Time
	OrphanedDeadline time.Time
	Result []byte
}

func encodeItem(it Item) ([]byte, error) {
	return json.Marshal(it)
}

func decodeItem(b []byte) (Item, error) {
	var it Item
	if err := json.Unmarshal(b, &it); err != nil {
		return Item{}, cerrors.InternalError.New(errors.Wrap(err, "queue: decode item").Error())
	}
	return it, nil
}

func itemKey(key string) kv.PathKey {
	return kv.PathKey{TableID: QueueTableID, Path: key}
}

func load(store *kv.Store, key string) (Item, bool, error) {
	raw, ok, err := store.Get(itemKey(key))
	if err != nil || !ok {
		return Item{}, false, err
	}
	it, err := decodeItem(raw)
	return it, err == nil, err
}

func save(store *kv.Store, it Item) error {
	raw, err := encodeItem(it)
	if err != nil {
		return err
	}
	return store.Put(itemKey(it.Key), raw)
}

const defaultHeartbeatAfter = 30 * time.Second

// Add implements ADD key payload priority orphaned_after. An existing
// item at key is left untouched (ADD is idempotent on a live key); the
// returned pending count is the number of items across the whole queue
// table currently in StatusPending — see DESIGN.md for the scoping
// decision.
func Add(store *kv.Store, key string, payload []byte, priority int64, orphanedAfter time.Duration, now time.Time) (id uint64, added bool, pending int, err error) {
	existing, ok, err := load(store, key)
	if err != nil {
		return 0, false, 0, err
	}
	if ok {
		pending, err = countByStatus(store, StatusPending)
		return existing.ID, false, pending, err
	}

	newID, err := store.NextSequence(QueueTableID)
	if err != nil {
		return 0, false, 0, err
	}
	it := Item{
		ID: newID,
		Key: key,
		Payload: payload,
		Extra: json.RawMessage("{}"),
		Status: StatusPending,
		Priority: priority,
		OrphanedAfter: orphanedAfter,
		HeartbeatAfter: defaultHeartbeatAfter,
		CreatedAt: now,
		HeartbeatDeadline: now.Add(defaultHeartbeatAfter),
	}
	if err := save(store, it); err != nil {
		return 0, false, 0, err
	}
	pending, err = countByStatus(store, StatusPending)
	return newID, true, pending, err
}

// Heartbeat implements HEARTBEAT key: refresh the liveness deadline of
// an active item.
func Heartbeat(store *kv.Store, key string, now time.Time) error {
	it, ok, err := load(store, key)
	if err != nil {
		return err
	}
	if !ok {
		return cerrors.UserError.New("queue: unknown key")
	}
	it.HeartbeatDeadline = now.Add(it.HeartbeatAfter)
	return save(store, it)
}

// Cancel implements CANCEL key: pop the item and return its
// payload/extra if present.
func Cancel(store *kv.Store, key string) (payload []byte, extra json.RawMessage, found bool, err error) {
	it, ok, err := load(store, key)
	if err != nil || !ok {
		return nil, nil, false, err
	}
	if err := store.Delete(itemKey(key)); err != nil {
		return nil, nil, false, err
	}
	return it.Payload, it.Extra, true, nil
}

// Ack implements ACK key result: mark an item finished and store its
// result payload, for a later RESULT/RESULT_BLOCKING to observe.
func Ack(store *kv.Store, key string, result []byte) (bool, error) {
	it, ok, err := load(store, key)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	it.Status = StatusFinished
	it.Result = result
	if err := save(store, it); err != nil {
		return false, err
	}
	return true, nil
}

// Retrieve implements RETRIEVE key concurrency: if fewer than
// concurrency items are currently active across the whole table, mark
// this one active and return it; otherwise return found == false.
func Retrieve(store *kv.Store, key string, concurrency int, now time.Time) (Item, bool, error) {
	it, ok, err := load(store, key)
	if err != nil || !ok {
		return Item{}, false, err
	}
	if it.Status != StatusPending {
		return Item{}, false, nil
	}

	active, err := countByStatus(store, StatusActive)
	if err != nil {
		return Item{}, false, err
	}
	if active >= concurrency {
		return Item{}, false, nil
	}

	it.Status = StatusActive
	it.HeartbeatDeadline = now.Add(it.HeartbeatAfter)
	it.OrphanedDeadline = now.Add(it.OrphanedAfter)
	if err := save(store, it); err != nil {
		return Item{}, false, err
	}
	return it, true, nil
}

// Result implements RESULT key: a non-blocking read of the ack result.
func Result(store *kv.Store, key string) (result []byte, status string, found bool, err error) {
	it, ok, err := load(store, key)
	if err != nil || !ok {
		return nil, "", false, err
	}
	return it.Result, it.Status, true, nil
}

// ResultBlocking implements RESULT_BLOCKING timeout key: poll Result
// until the item reaches a terminal status, ctx is cancelled, or
// timeout elapses.
func ResultBlocking(ctx context.Context, store *kv.Store, key string, timeout time.Duration) (result []byte, status string, found bool, err error) {
	deadline := time.Now().Add(timeout)
	const pollInterval = 50 * time.Millisecond
	for {
		result, status, found, err = Result(store, key)
		if err != nil {
			return nil, "", false, err
		}
		if found && (status == StatusFinished || status == StatusFailed) {
			return result, status, true, nil
		}
		if time.Now().After(deadline) {
			return nil, "", false, cerrors.Timeout.New("queue: RESULT_BLOCKING deadline exceeded")
		}
		select {
			case <-ctx.Done():
			return nil, "", false, cerrors.QueryCanceled.New("queue: RESULT_BLOCKING canceled")
			case <-time.After(pollInterval):
		}
	}
}

// ToCancel implements TO_CANCEL prefix heartbeat_timeout orphaned_timeout:
// ids of items whose heartbeat deadline (active items) or orphaned
// deadline (items stuck in pending past orphaned_after) has passed.
func ToCancel(store *kv.Store, prefix string, heartbeatTimeout, orphanedTimeout time.Duration, now time.Time) ([]uint64, error) {
	var ids []uint64
	var decodeErr error
	scanPrefix, _ := itemKey(prefix).Encode()
	err := store.Scan(kv.BucketTable, scanPrefix, func(k, v []byte) bool {
			it, err := decodeItem(v)
			if err != nil {
				decodeErr = err
				return false
			}
			switch it.Status {
				case StatusActive:
				if now.After(it.HeartbeatDeadline.Add(heartbeatTimeout)) {
					ids = append(ids, it.ID)
				}
				case StatusPending:
				if now.Sub(it.CreatedAt) > it.OrphanedAfter+orphanedTimeout {
					ids = append(ids, it.ID)
				}
			}
			return true
	})
	if err != nil {
		return nil, err
	}
	return ids, decodeErr
}

// List implements LIST prefix [status_filter] [sort_by_priority]
// [with_payload].
func List(store *kv.Store, prefix string, statusFilter string, sortByPriority bool, withPayload bool) ([]Item, error) {
	var items []Item
	var decodeErr error
	scanPrefix, _ := itemKey(prefix).Encode()
	err := store.Scan(kv.BucketTable, scanPrefix, func(k, v []byte) bool {
			it, err := decodeItem(v)
			if err != nil {
				decodeErr = err
				return false
			}
			if statusFilter != "" && it.Status != statusFilter {
				return true
			}
			if !withPayload {
				it.Payload = nil
			}
			items = append(items, it)
			return true
	})
	if err != nil {
		return nil, err
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	if sortByPriority {
		sort.Slice(items, func(i, j int) bool { return items[i].Priority > items[j].Priority })
	}
	return items, nil
}

// MergeExtra implements MERGE_EXTRA key payload: shallow-merge the JSON
// object in payload into the item's existing Extra object.
func MergeExtra(store *kv.Store, key string, payload json.RawMessage) error {
	it, ok, err := load(store, key)
	if err != nil {
		return err
	}
	if !ok {
		return cerrors.UserError.New("queue: unknown key")
	}

	var base, patch map[string]interface{}
	if err := json.Unmarshal(it.Extra, &base); err != nil {
		return cerrors.InternalError.New(errors.Wrap(err, "queue: decode extra").Error())
	}
	if err := json.Unmarshal(payload, &patch); err != nil {
		return cerrors.UserError.New("queue: MERGE_EXTRA payload is not a JSON object")
	}
	if base == nil {
		base = map[string]interface{}{}
	}
	for k, v := range patch {
		base[k] = v
	}

	merged, err := json.Marshal(base)
	if err != nil {
		return cerrors.InternalError.New(errors.Wrap(err, "queue: encode extra").Error())
	}
	it.Extra = merged
	return save(store, it)
}

func countByStatus(store *kv.Store, status string) (int, error) {
	prefix, _ := kv.PathKey{TableID: QueueTableID, Path: ""}.Encode()
	var count int
	var decodeErr error
	err := store.Scan(kv.BucketTable, prefix, func(k, v []byte) bool {
			it, err := decodeItem(v)
			if err != nil {
				decodeErr = err
				return false
			}
			if it.Status == status {
				count++
			}
			return true
	})
	if err != nil {
		return 0, err
	}
	return count, decodeErr
}
