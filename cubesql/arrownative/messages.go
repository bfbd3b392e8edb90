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

package arrownative

import (
	"bytes"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"

	cerrors "github.com/cubebridge/cubesql/cubesql/errors"
)

// encodeHandshake / decodeHandshake cover 0x01 Handshake{u32 version}.

func encodeHandshake(version uint32) []byte {
	return putUint32(version)
}

func decodeHandshake(payload []byte) (version uint32, err error) {
	version, _, err = takeUint32(payload)
	return version, err
}

// encodeHandshakeAck / decodeHandshakeAck cover 0x02
// HandshakeAck{u32 version, utf8 server_version}.

func encodeHandshakeAck(version uint32, serverVersion string) []byte {
	return append(putUint32(version), putString(serverVersion)...)
}

func decodeHandshakeAck(payload []byte) (version uint32, serverVersion string, err error) {
	version, rest, err := takeUint32(payload)
	if err != nil {
		return 0, "", err
	}
	serverVersion, _, err = takeString(rest)
	return version, serverVersion, err
}

// encodeAuth / decodeAuth cover 0x03 Auth{utf8 token, utf8? database}. The
// optional database is represented the same way every other optional
// string field in this frame set is: a presence byte ahead of the string.

func encodeAuth(token string, database string, hasDatabase bool) []byte {
	buf := putString(token)
	if hasDatabase {
		buf = append(buf, 1)
		buf = append(buf, putString(database)...)
	} else {
		buf = append(buf, 0)
	}
	return buf
}

func decodeAuth(payload []byte) (token, database string, err error) {
	token, rest, err := takeString(payload)
	if err != nil {
		return "", "", err
	}
	if len(rest) < 1 {
		return "", "", cerrors.ProtocolError.New("arrownative: truncated auth frame")
	}
	hasDatabase := rest[0] == 1
	rest = rest[1:]
	if !hasDatabase {
		return token, "", nil
	}
	database, _, err = takeString(rest)
	return token, database, err
}

// encodeAuthAck / decodeAuthAck cover 0x04 AuthAck{u8 success, utf8
// session_id}.

func encodeAuthAck(success bool, sessionID string) []byte {
	flag := byte(0)
	if success {
		flag = 1
	}
	return append([]byte{flag}, putString(sessionID)...)
}

func decodeAuthAck(payload []byte) (success bool, sessionID string, err error) {
	if len(payload) < 1 {
		return false, "", cerrors.ProtocolError.New("arrownative: truncated auth ack")
	}
	success = payload[0] == 1
	sessionID, _, err = takeString(payload[1:])
	return success, sessionID, err
}

// encodeQuery / decodeQuery cover 0x05 Query{utf8 sql}.

func encodeQuery(sql string) []byte { return putString(sql) }

func decodeQuery(payload []byte) (sql string, err error) {
	sql, _, err = takeString(payload)
	return sql, err
}

// encodeComplete / decodeComplete cover 0x07 Complete{i64 row_count, u8
// from_cache}.

func encodeComplete(rowCount int64, fromCache bool) []byte {
	flag := byte(0)
	if fromCache {
		flag = 1
	}
	return append(putInt64(rowCount), flag)
}

func decodeComplete(payload []byte) (rowCount int64, fromCache bool, err error) {
	rowCount, rest, err := takeInt64(payload)
	if err != nil {
		return 0, false, err
	}
	if len(rest) < 1 {
		return 0, false, cerrors.ProtocolError.New("arrownative: truncated complete frame")
	}
	return rowCount, rest[0] == 1, nil
}

// encodeError / decodeError cover 0x08 Error{utf8 code, utf8 message}.

func encodeError(code, message string) []byte {
	return append(putString(code), putString(message)...)
}

func decodeError(payload []byte) (code, message string, err error) {
	code, rest, err := takeString(payload)
	if err != nil {
		return "", "", err
	}
	message, _, err = takeString(rest)
	return code, message, err
}

// EncodeBatch renders rec as an Arrow IPC stream (schema message plus one
// record batch message), the payload 0x06 Batch carries. Library:
// github.com/apache/arrow-go/v18/arrow/ipc, the same dependency the
// myduckserver manifest pulls in for its own Postgres/Arrow bridging.
func EncodeBatch(rec arrow.Record) ([]byte, error) {
	var buf bytes.Buffer
	w := ipc.NewWriter(&buf, ipc.WithSchema(rec.Schema()))
	if err := w.Write(rec); err != nil {
		return nil, cerrors.InternalError.New(err.Error())
	}
	if err := w.Close(); err != nil {
		return nil, cerrors.InternalError.New(err.Error())
	}
	return buf.Bytes(), nil
}

// DecodeBatch parses one IPC stream payload back into its record batches.
// A client is free to pack more than one batch per frame; this
// implementation always emits exactly one, but the decode side stays
// general since nothing here requires it not to.
func DecodeBatch(payload []byte) ([]arrow.Record, error) {
	rdr, err := ipc.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, cerrors.ProtocolError.New(err.Error())
	}
	defer rdr.Release()

	var out []arrow.Record
	for rdr.Next() {
		rec := rdr.Record()
		rec.Retain()
		out = append(out, rec)
	}
	if err := rdr.Err(); err != nil {
		for _, r := range out {
			r.Release()
		}
		return nil, cerrors.ProtocolError.New(err.Error())
	}
	return out, nil
}
