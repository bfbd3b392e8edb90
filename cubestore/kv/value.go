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

import ("encoding/binary"
	"time"

	cerrors "github.com/cubebridge/cubesql/cubesql/errors")

// Secondary-index value versions, "two versions: Hash(bytes)
// and HashAndTTL(bytes, expire?) (plus an extended form carrying the
// row's full status for queue indexes)".
const (SIVersionHash = 1
	SIVersionHashAndTTL = 2
	SIVersionQueueStatus = 3)

// SecondaryIndexValue is the decoded payload stored at a
// SecondaryIndexKey. Expire is nil for SIVersionHash and for a
// SIVersionHashAndTTL row with no TTL. Status is only meaningful for
// SIVersionQueueStatus.
type SecondaryIndexValue struct {
	Version int
	Payload []byte
	Expire *time.Time
	Status string
}

// EncodeSecondaryIndexValue renders v as `u8 version, bytes...`, a
// version-tagged layout chosen so the compaction filter (C10) can tell a
// legacy-format row apart from a migrated one without any side
// information, per compaction-filter contract.
func EncodeSecondaryIndexValue(v SecondaryIndexValue) []byte {
	out := []byte{byte(v.Version)}
	out = append(out, encodeUint32(uint32(len(v.Payload)))...)
	out = append(out, v.Payload...)

	switch v.Version {
	case SIVersionHashAndTTL, SIVersionQueueStatus:
		out = append(out, encodeOptionalTime(v.Expire)...)
	}
	if v.Version == SIVersionQueueStatus {
		out = append(out, encodeUint32(uint32(len(v.Status)))...)
		out = append(out, []byte(v.Status)...)
	}
	return out
}

// DecodeSecondaryIndexValue parses the layout EncodeSecondaryIndexValue
// writes, failing as cerrors.InternalError on a short or malformed
// buffer (a broken invariant, not a user-facing error).
func DecodeSecondaryIndexValue(b []byte) (SecondaryIndexValue, error) {
	if len(b) < 1 {
		return SecondaryIndexValue{}, cerrors.InternalError.New("kv: empty secondary index value")
	}
	version := int(b[0])
	rest := b[1:]

	payload, rest, err := takeBytes(rest)
	if err != nil {
		return SecondaryIndexValue{}, err
	}
	v := SecondaryIndexValue{Version: version, Payload: payload}

	switch version {
	case SIVersionHash:
		return v, nil
	case SIVersionHashAndTTL, SIVersionQueueStatus:
		expire, rest2, err := decodeOptionalTime(rest)
		if err != nil {
			return SecondaryIndexValue{}, err
		}
		v.Expire = expire
		rest = rest2
	default:
		return SecondaryIndexValue{}, cerrors.InternalError.New("kv: unknown secondary index value version")
	}

	if version == SIVersionQueueStatus {
		status, _, err := takeBytes(rest)
		if err != nil {
			return SecondaryIndexValue{}, err
		}
		v.Status = string(status)
	}
	return v, nil
}

// TableRowValue is the decoded payload stored at a TableKey: an opaque
// payload plus the optional expire timestamp the compaction filter reads
// for TTL-bearing tables . Expire is nil both for
// no-TTL tables and for a TTL-bearing row with no TTL set.
type TableRowValue struct {
	Payload []byte
	Expire *time.Time
}

func EncodeTableRowValue(v TableRowValue) []byte {
	out := encodeOptionalTime(v.Expire)
	out = append(out, encodeUint32(uint32(len(v.Payload)))...)
	out = append(out, v.Payload...)
	return out
}

// DecodeTableRowValue returns cerrors.InternalError on a short or
// truncated buffer (a corrupt row); the compaction filter counts any such
// decode failure as "orphaned" and removes the row rather than failing.
func DecodeTableRowValue(b []byte) (TableRowValue, error) {
	expire, rest, err := decodeOptionalTime(b)
	if err != nil {
		return TableRowValue{}, err
	}
	payload, _, err := takeBytes(rest)
	if err != nil {
		return TableRowValue{}, err
	}
	return TableRowValue{Payload: payload, Expire: expire}, nil
}

// TableInfo declares a logical table's TTL field, the compaction filter's
// "if the row's table has a TTL field" lookup.
type TableInfo struct {
	TableID uint32
	Name string
	TTLField string // empty means the table has no TTL field
}

func EncodeTableInfo(t TableInfo) []byte {
	out := encodeUint32(t.TableID)
	out = append(out, encodeUint32(uint32(len(t.Name)))...)
	out = append(out, t.Name...)
	out = append(out, encodeUint32(uint32(len(t.TTLField)))...)
	out = append(out, t.TTLField...)
	return out
}

func DecodeTableInfo(b []byte) (TableInfo, error) {
	if len(b) < 4 {
		return TableInfo{}, cerrors.InternalError.New("kv: truncated table info")
	}
	tableID := decodeUint32(b[:4])
	name, rest, err := takeBytes(b[4:])
	if err != nil {
		return TableInfo{}, err
	}
	ttl, _, err := takeBytes(rest)
	if err != nil {
		return TableInfo{}, err
	}
	return TableInfo{TableID: tableID, Name: string(name), TTLField: string(ttl)}, nil
}

// SecondaryIndexInfo declares an index's name and which
// SecondaryIndexValue version its current writer produces, the
// compaction filter's "decode using the index's declared value version"
// input.
type SecondaryIndexInfo struct {
	IndexID uint32
	Name string
	Version int
}

func EncodeSecondaryIndexInfo(info SecondaryIndexInfo) []byte {
	out := encodeUint32(info.IndexID)
	out = append(out, byte(info.Version))
	out = append(out, encodeUint32(uint32(len(info.Name)))...)
	out = append(out, info.Name...)
	return out
}

func DecodeSecondaryIndexInfo(b []byte) (SecondaryIndexInfo, error) {
	if len(b) < 5 {
		return SecondaryIndexInfo{}, cerrors.InternalError.New("kv: truncated secondary index info")
	}
	indexID := decodeUint32(b[:4])
	version := int(b[4])
	name, _, err := takeBytes(b[5:])
	if err != nil {
		return SecondaryIndexInfo{}, err
	}
	return SecondaryIndexInfo{IndexID: indexID, Version: version, Name: string(name)}, nil
}

func takeBytes(b []byte) (value, rest []byte, err error) {
	if len(b) < 4 {
		return nil, nil, cerrors.InternalError.New("kv: truncated length-prefixed value")
	}
	n := decodeUint32(b[:4])
	b = b[4:]
	if uint32(len(b)) < n {
		return nil, nil, cerrors.InternalError.New("kv: truncated length-prefixed value")
	}
	return b[:n], b[n:], nil
}

func encodeOptionalTime(t *time.Time) []byte {
	b := make([]byte, 9)
	if t == nil {
		b[0] = 0
		return b
	}
	b[0] = 1
	binary.BigEndian.PutUint64(b[1:], uint64(t.UnixMicro()))
	return b
}

func decodeOptionalTime(b []byte) (*time.Time, []byte, error) {
	if len(b) < 9 {
		return nil, nil, cerrors.InternalError.New("kv: truncated optional timestamp")
	}
	if b[0] == 0 {
		return nil, b[9:], nil
	}
	micros := int64(binary.BigEndian.Uint64(b[1:9]))
	t := time.UnixMicro(micros).UTC()
	return &t, b[9:], nil
}
