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

package pgwire

import ("encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	cerrors "github.com/cubebridge/cubesql/cubesql/errors"
	"github.com/cubebridge/cubesql/cubesql/plan")

// pgEpoch is the reference instant Postgres's binary timestamp/timestamptz
// wire format counts microseconds from, per 
var pgEpoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// EncodeText renders a value in Postgres's text wire format for typ. nil
// is reported to the caller as (nil, true) — NULL has no text
// representation, it's signaled by the DataRow column length itself.
func EncodeText(value interface{}, typ plan.Type) (data []byte, isNull bool) {
	if value == nil {
		return nil, true
	}
	switch typ {
	case plan.Timestamp:
		t := value.(time.Time)
		return []byte(t.UTC().Format("2006-01-02 15:04:05.999999")), false
	case plan.Boolean:
		if value.(bool) {
			return []byte("t"), false
		}
		return []byte("f"), false
	default:
		return []byte(fmt.Sprint(value)), false
	}
}

// EncodeTextTz is EncodeText for a timestamptz column: the text form adds
// a zero UTC-offset suffix, per 
func EncodeTextTz(value interface{}) (data []byte, isNull bool) {
	if value == nil {
		return nil, true
	}
	t := value.(time.Time)
	return []byte(t.UTC().Format("2006-01-02 15:04:05.999999") + "+00"), false
}

// EncodeBinary renders a value in Postgres's binary wire format for typ.
func EncodeBinary(value interface{}, typ plan.Type) (data []byte, isNull bool) {
	if value == nil {
		return nil, true
	}
	switch typ {
	case plan.Int64:
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(toInt64(value)))
		return buf, false
	case plan.Float64:
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, math.Float64bits(toFloat64(value)))
		return buf, false
	case plan.Boolean:
		if value.(bool) {
			return []byte{1}, false
		}
		return []byte{0}, false
	case plan.Timestamp:
		micros := value.(time.Time).UTC().Sub(pgEpoch).Microseconds()
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(micros))
		return buf, false
	default:
		return []byte(fmt.Sprint(value)), false
	}
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}

func toFloat64(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	default:
		return 0
	}
}

// DecodeParam turns one bound-parameter wire value back into a Go value,
// per the text/binary codec table and the array layout of :
// "{ndim, has_nulls, elem_oid, length, lbound, elements...}".
func DecodeParam(oid uint32, format int16, raw []byte) (interface{}, error) {
	if raw == nil {
		return nil, nil
	}
	if isArrayOID(oid) {
		return decodeArray(oid, format, raw)
	}
	if format == 1 {
		return decodeBinaryScalar(oid, raw)
	}
	return decodeTextScalar(oid, string(raw))
}

func isArrayOID(oid uint32) bool {
	switch oid {
	case OIDBoolArray, OIDInt8Array, OIDInt2Array, OIDInt4Array, OIDTextArray,
		OIDFloat4Array, OIDFloat8Array, OIDVarcharArray, OIDTimestampArray,
		OIDTimestampTzArray, OIDIntervalArray, OIDNumericArray:
		return true
	}
	return false
}

func decodeTextScalar(oid uint32, s string) (interface{}, error) {
	switch TypeForOID(oid) {
	case plan.Int64:
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, cerrors.ProtocolError.New(fmt.Sprintf("malformed integer parameter %q", s))
		}
		return v, nil
	case plan.Float64:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, cerrors.ProtocolError.New(fmt.Sprintf("malformed float parameter %q", s))
		}
		return v, nil
	case plan.Boolean:
		return s == "t" || s == "true" || s == "1", nil
	case plan.Timestamp:
		return parseTimestampText(s, oid)
	default:
		return s, nil
	}
}

func parseTimestampText(s string, oid uint32) (time.Time, error) {
	layout := "2006-01-02 15:04:05.999999"
	if oid == OIDTimestampTz {
		s = strings.TrimSuffix(s, "+00")
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return time.Time{}, cerrors.ProtocolError.New(fmt.Sprintf("malformed timestamp parameter %q", s))
	}
	return t, nil
}

func decodeBinaryScalar(oid uint32, raw []byte) (interface{}, error) {
	switch TypeForOID(oid) {
	case plan.Int64:
		if len(raw) != 8 {
			return nil, cerrors.ProtocolError.New("malformed binary integer parameter")
		}
		return int64(binary.BigEndian.Uint64(raw)), nil
	case plan.Float64:
		if len(raw) != 8 {
			return nil, cerrors.ProtocolError.New("malformed binary float parameter")
		}
		return math.Float64frombits(binary.BigEndian.Uint64(raw)), nil
	case plan.Boolean:
		if len(raw) != 1 {
			return nil, cerrors.ProtocolError.New("malformed binary boolean parameter")
		}
		return raw[0] != 0, nil
	case plan.Timestamp:
		if len(raw) != 8 {
			return nil, cerrors.ProtocolError.New("malformed binary timestamp parameter")
		}
		micros := int64(binary.BigEndian.Uint64(raw))
		return pgEpoch.Add(time.Duration(micros) * time.Microsecond), nil
	default:
		return string(raw), nil
	}
}

// decodeArray implements the binary array layout fixes:
// {ndim int32, has_nulls int32, elem_oid uint32, length int32, lbound
// int32, elements...}. Text-format array parameters are not accepted —
// BI clients that bind list parameters use binary format for them.
func decodeArray(oid uint32, format int16, raw []byte) ([]interface{}, error) {
	if format != 1 {
		return nil, cerrors.ProtocolError.New("array parameters must be bound in binary format")
	}
	if len(raw) < 20 {
		return nil, cerrors.ProtocolError.New("truncated array parameter")
	}
	ndim := int32(binary.BigEndian.Uint32(raw[0:4]))
	hasNulls := int32(binary.BigEndian.Uint32(raw[4:8]))
	elemOID := binary.BigEndian.Uint32(raw[8:12])
	length := int32(binary.BigEndian.Uint32(raw[12:16]))
	// lbound occupies raw[16:20]; cubesql always receives 1-based arrays
	// and doesn't need to report it back, so it's read but unused.
	if ndim != 1 {
		return nil, cerrors.ProtocolError.New("only one-dimensional array parameters are supported")
	}

	out := make([]interface{}, 0, length)
	pos := 20
	for i := int32(0); i < length; i++ {
		if pos+4 > len(raw) {
			return nil, cerrors.ProtocolError.New("truncated array element")
		}
		elemLen := int32(binary.BigEndian.Uint32(raw[pos : pos+4]))
		pos += 4
		if elemLen < 0 {
			if hasNulls == 0 {
				return nil, cerrors.ProtocolError.New("array element marked null but has_nulls=0")
			}
			out = append(out, nil)
			continue
		}
		if pos+int(elemLen) > len(raw) {
			return nil, cerrors.ProtocolError.New("truncated array element payload")
		}
		v, err := decodeBinaryScalar(elemOID, raw[pos:pos+int(elemLen)])
		if err != nil {
			return nil, err
		}
		out = append(out, v)
		pos += int(elemLen)
	}
	return out, nil
}
