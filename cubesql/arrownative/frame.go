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

// Package arrownative implements the Arrow-native wire front-end (C9): a
// simpler, framed alternative to pgwire (C8) for high-throughput clients
// that want record batches on the wire instead of text/binary rows.
package arrownative

import ("encoding/binary"
	"io"

	cerrors "github.com/cubebridge/cubesql/cubesql/errors")

// ProtocolVersion is this server's own frame protocol version, advertised
// in every HandshakeAck regardless of what the client requested.
const ProtocolVersion uint32 = 1

// ServerVersion is the free-form string returned alongside ProtocolVersion,
// the Arrow-native analogue of pgwire's "server_version" ParameterStatus.
const ServerVersion = "cubebridge-arrow/1"

// Frame type tags, fixed by byte layout.
const (TypeHandshake byte = 0x01
	TypeHandshakeAck byte = 0x02
	TypeAuth byte = 0x03
	TypeAuthAck byte = 0x04
	TypeQuery byte = 0x05
	TypeBatch byte = 0x06
	TypeComplete byte = 0x07
	TypeError byte = 0x08
	// TypeStreamFrame carries one newline-delimited JSON frame the
	// streaming executor bridge (C6) produced; a client opts into it per
	// connection with "SET cubebridge.stream = on" in place of a normal
	// query, after which 0x05 Query responses arrive as a sequence of
	// 0x09 frames instead of a single 0x06 Batch.
	TypeStreamFrame byte = 0x09)

// WriteFrame writes one `u32 length, u8 type, bytes payload` frame, where
// length counts the type byte plus payload (everything after the length
// field itself).
func WriteFrame(w io.Writer, msgType byte, payload []byte) error {
	hdr := make([]byte, 5)
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(len(payload))+1)
	hdr[4] = msgType
	if _, err := w.Write(hdr); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := w.Write(payload)
	return err
}

// ReadFrame reads one frame and splits it into its type tag and payload.
func ReadFrame(r io.Reader) (msgType byte, payload []byte, err error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return 0, nil, err
	}
	length := binary.LittleEndian.Uint32(lenBuf[:])
	if length < 1 {
		return 0, nil, cerrors.ProtocolError.New("arrownative: zero-length frame")
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return 0, nil, err
	}
	return body[0], body[1:], nil
}

func putUint32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func putInt64(v int64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, uint64(v))
	return b
}

func putString(s string) []byte {
	b := make([]byte, 4+len(s))
	binary.LittleEndian.PutUint32(b[0:4], uint32(len(s)))
	copy(b[4:], s)
	return b
}

func takeUint32(b []byte) (uint32, []byte, error) {
	if len(b) < 4 {
		return 0, nil, cerrors.ProtocolError.New("arrownative: truncated u32")
	}
	return binary.LittleEndian.Uint32(b[:4]), b[4:], nil
}

func takeInt64(b []byte) (int64, []byte, error) {
	if len(b) < 8 {
		return 0, nil, cerrors.ProtocolError.New("arrownative: truncated i64")
	}
	return int64(binary.LittleEndian.Uint64(b[:8])), b[8:], nil
}

func takeString(b []byte) (string, []byte, error) {
	n, rest, err := takeUint32(b)
	if err != nil {
		return "", nil, err
	}
	if uint32(len(rest)) < n {
		return "", nil, cerrors.ProtocolError.New("arrownative: truncated string")
	}
	return string(rest[:n]), rest[n:], nil
}
