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

// Package sqlcmd implements the cache store's command surface: SET, GET,
// KEYS, REMOVE, TRUNCATE, INCR. These are not standard
// SQL and never reach the dialect layer (C1) or vitess's sqlparser; they
// are a small fixed command grammar of their own, so Parse is a bespoke
// tokenizer rather than a wrapped parse.Parse call, keeping Command (the
// parsed intent) and Execute (the side effect) as separate stages.
package sqlcmd

import ("fmt"
	"strconv"
	"strings"
	"time"

	cerrors "github.com/cubebridge/cubesql/cubesql/errors"
	"github.com/cubebridge/cubesql/cubestore/kv")

// CacheTableID is this package's reserved table id within the shared
// kv.Store; cubestore/queue reserves a distinct one so Truncate can scan
// the shared BucketTable bucket by table-id prefix without touching
// queue rows.
const CacheTableID uint32 = 1

type Kind int

const (Set Kind = iota
	Get
	Keys
	Remove
	Truncate
	Incr)

// Command is the parsed form of one SQL-level cache command.
type Command struct {
	Kind Kind
	Key string
	Value string
	TTL time.Duration
	HasTTL bool
	NX bool
}

// Parse tokenizes text on whitespace, honoring a double-quoted Value
// token so values may contain spaces. It rejects anything outside the
// six-verb grammar specifies, rather than falling through
// to vitess's general-purpose SQL grammar, which has no notion of these
// commands at all.
func Parse(text string) (Command, error) {
	tokens, err := tokenize(text)
	if err != nil {
		return Command{}, err
	}
	if len(tokens) == 0 {
		return Command{}, cerrors.UserError.New("empty cache command")
	}

	verb := strings.ToUpper(tokens[0])
	args := tokens[1:]
	switch verb {
	case "SET":
		return parseSet(args)
	case "GET":
		if len(args) != 1 {
			return Command{}, cerrors.UserError.New("GET requires exactly one key")
		}
		return Command{Kind: Get, Key: args[0]}, nil
	case "KEYS":
		if len(args) != 1 {
			return Command{}, cerrors.UserError.New("KEYS requires exactly one prefix")
		}
		return Command{Kind: Keys, Key: args[0]}, nil
	case "REMOVE":
		if len(args) != 1 {
			return Command{}, cerrors.UserError.New("REMOVE requires exactly one key")
		}
		return Command{Kind: Remove, Key: args[0]}, nil
	case "TRUNCATE":
		if len(args) != 0 {
			return Command{}, cerrors.UserError.New("TRUNCATE takes no arguments")
		}
		return Command{Kind: Truncate}, nil
	case "INCR":
		if len(args) != 1 {
			return Command{}, cerrors.UserError.New("INCR requires exactly one key")
		}
		return Command{Kind: Incr, Key: args[0]}, nil
	default:
		return Command{}, cerrors.UserError.New(fmt.Sprintf("unknown cache command: %s", tokens[0]))
	}
}

func parseSet(args []string) (Command, error) {
	if len(args) < 2 {
		return Command{}, cerrors.UserError.New("SET requires key and value")
	}
	cmd := Command{Kind: Set, Key: args[0], Value: args[1]}
	rest := args[2:]
	for i := 0; i < len(rest); i++ {
		switch strings.ToUpper(rest[i]) {
			case "TTL":
			if i+1 >= len(rest) {
				return Command{}, cerrors.UserError.New("TTL requires a value")
			}
			seconds, err := strconv.ParseInt(rest[i+1], 10, 64)
			if err != nil {
				return Command{}, cerrors.UserError.New("invalid TTL: " + rest[i+1])
			}
			cmd.TTL = time.Duration(seconds) * time.Second
			cmd.HasTTL = true
			i++
			case "NX":
			cmd.NX = true
			default:
			return Command{}, cerrors.UserError.New("unexpected SET argument: " + rest[i])
		}
	}
	return cmd, nil
}

func tokenize(text string) ([]string, error) {
	var tokens []string
	var cur strings.Builder
	inQuote := false
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for _, r := range text {
		switch {
			case r == '"':
			inQuote = !inQuote
			case r == ' ' || r == '\t':
			if inQuote {
				cur.WriteRune(r)
			} else {
				flush()
			}
			default:
			cur.WriteRune(r)
		}
	}
	if inQuote {
		return nil, cerrors.UserError.New("unterminated quoted value")
	}
	flush()
	return tokens, nil
}

// Result is the execution outcome of one Command. Exactly one field is
// meaningful per Kind: Bool for Set, StringValue+Null for Get, Keys for
// Keys, nothing for Remove/Truncate, StringValue for Incr.
type Result struct {
	Bool bool
	StringValue string
	Null bool
	Keys []string
}

// EnsureTableInfo registers the cache table's TTL field in the shared
// TableInfo bucket so the compaction filter (C10) treats its rows as
// TTL-bearing; without this, compaction's "table has no TTL field" rule
// would skip every expired-but-unread cache row forever, leaving
// eviction entirely to the lazy check in readLive. Idempotent: a caller
// wires this once at store startup.
func EnsureTableInfo(store *kv.Store) error {
	return store.Put(kv.TableInfoKey{TableID: CacheTableID}, kv.EncodeTableInfo(kv.TableInfo{
				TableID: CacheTableID,
				Name: "cache",
				TTLField: "expire",
	}))
}

// Execute runs cmd against store. now is threaded explicitly so a
// lazily-expired row (one the background compaction pass, C10, has not
// yet visited) is still treated as absent by Get/Keys rather than
// returned stale.
func Execute(store *kv.Store, cmd Command, now time.Time) (Result, error) {
	switch cmd.Kind {
	case Set:
		return execSet(store, cmd, now)
	case Get:
		return execGet(store, cmd, now)
	case Keys:
		return execKeys(store, cmd, now)
	case Remove:
		return Result{}, store.Delete(kv.PathKey{TableID: CacheTableID, Path: cmd.Key})
	case Truncate:
		return Result{}, execTruncate(store)
	case Incr:
		return execIncr(store, cmd, now)
	default:
		return Result{}, cerrors.InternalError.New("sqlcmd: unknown command kind")
	}
}

func execSet(store *kv.Store, cmd Command, now time.Time) (Result, error) {
	key := kv.PathKey{TableID: CacheTableID, Path: cmd.Key}
	if cmd.NX {
		if _, live, err := readLive(store, key, now); err != nil {
			return Result{}, err
		} else if live {
			return Result{Bool: false}, nil
		}
	}

	var expire *time.Time
	if cmd.HasTTL {
		t := now.Add(cmd.TTL)
		expire = &t
	}
	row := kv.TableRowValue{Payload: []byte(cmd.Value), Expire: expire}
	if err := store.Put(key, kv.EncodeTableRowValue(row)); err != nil {
		return Result{}, err
	}
	return Result{Bool: true}, nil
}

func execGet(store *kv.Store, cmd Command, now time.Time) (Result, error) {
	row, live, err := readLive(store, kv.PathKey{TableID: CacheTableID, Path: cmd.Key}, now)
	if err != nil {
		return Result{}, err
	}
	if !live {
		return Result{Null: true}, nil
	}
	return Result{StringValue: string(row.Payload)}, nil
}

func execKeys(store *kv.Store, cmd Command, now time.Time) (Result, error) {
	prefix, _ := kv.PathKey{TableID: CacheTableID, Path: cmd.Key}.Encode()
	var keys []string
	var scanErr error
	err := store.Scan(kv.BucketTable, prefix, func(k, v []byte) bool {
			row, decErr := kv.DecodeTableRowValue(v)
			if decErr != nil {
				scanErr = decErr
				return false
			}
			if row.Expire != nil && row.Expire.Before(now) {
				return true
			}
			keys = append(keys, string(k[4:]))
			return true
	})
	if err != nil {
		return Result{}, err
	}
	if scanErr != nil {
		return Result{}, scanErr
	}
	return Result{Keys: keys}, nil
}

func execTruncate(store *kv.Store) error {
	prefix, _ := kv.PathKey{TableID: CacheTableID, Path: ""}.Encode()
	var toDelete [][]byte
	err := store.Scan(kv.BucketTable, prefix, func(k, v []byte) bool {
			toDelete = append(toDelete, append([]byte(nil), k...))
			return true
	})
	if err != nil {
		return err
	}
	for _, k := range toDelete {
		if err := store.DeleteRaw(kv.BucketTable, k); err != nil {
			return err
		}
	}
	return nil
}

func execIncr(store *kv.Store, cmd Command, now time.Time) (Result, error) {
	key := kv.PathKey{TableID: CacheTableID, Path: cmd.Key}
	row, live, err := readLive(store, key, now)
	if err != nil {
		return Result{}, err
	}
	var n int64
	if live {
		n, err = strconv.ParseInt(string(row.Payload), 10, 64)
		if err != nil {
			return Result{}, cerrors.UserError.New("INCR: value is not an integer")
		}
	}
	n++
	newVal := strconv.FormatInt(n, 10)
	if err := store.Put(key, kv.EncodeTableRowValue(kv.TableRowValue{Payload: []byte(newVal)})); err != nil {
		return Result{}, err
	}
	return Result{StringValue: newVal}, nil
}

// readLive fetches key's row, treating an expired-but-not-yet-compacted
// row as absent (live == false) without deleting it inline: deletion of
// expired rows is the compaction filter's job , not the
// read path's.
func readLive(store *kv.Store, key kv.PathKey, now time.Time) (kv.TableRowValue, bool, error) {
	raw, ok, err := store.Get(key)
	if err != nil || !ok {
		return kv.TableRowValue{}, false, err
	}
	row, err := kv.DecodeTableRowValue(raw)
	if err != nil {
		return kv.TableRowValue{}, false, err
	}
	if row.Expire != nil && row.Expire.Before(now) {
		return kv.TableRowValue{}, false, nil
	}
	return row, true, nil
}
