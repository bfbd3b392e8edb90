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

package cubescan

import ("strconv"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/sirupsen/logrus"

	cerrors "github.com/cubebridge/cubesql/cubesql/errors"
	"github.com/cubebridge/cubesql/cubesql/plan")

func arrowType(t plan.Type) arrow.DataType {
	switch t {
	case plan.Int64:
		return arrow.PrimitiveTypes.Int64
	case plan.Float64:
		return arrow.PrimitiveTypes.Float64
	case plan.Boolean:
		return arrow.FixedWidthTypes.Boolean
	case plan.Timestamp:
		return arrow.FixedWidthTypes.Timestamp_us
	default:
		return arrow.BinaryTypes.String
	}
}

func newBuilder(mem memory.Allocator, t plan.Type) array.Builder {
	switch t {
	case plan.Int64:
		return array.NewInt64Builder(mem)
	case plan.Float64:
		return array.NewFloat64Builder(mem)
	case plan.Boolean:
		return array.NewBooleanBuilder(mem)
	case plan.Timestamp:
		return array.NewTimestampBuilder(mem, arrow.FixedWidthTypes.Timestamp_us.(*arrow.TimestampType))
	default:
		return array.NewStringBuilder(mem)
	}
}

// appendCoerced implements type coercion table:
//
//	Utf8 ← String | Number.to_string | Bool.to_string | null→null | other→null+log
//	Int64 ← Number.as_i64 | String.parse | null | other→null
//	Float64 ← Number.as_f64 | String.parse | …
//	Boolean ← Bool | null | other→null
//
// Any column type outside this table is cerrors.ExecutionError, matching
// the table's own "any other target type: NotImplemented" row — this
// implementation doesn't declare a separate NotImplemented kind, since
// every other cerrors.Kind already distinguishes the failure's
// propagation discipline and this one behaves exactly like the other
// operator-level failures ExecutionError already covers.
func appendCoerced(b array.Builder, target plan.Type, raw interface{}, log *logrus.Logger) error {
	if raw == nil {
		b.AppendNull()
		return nil
	}
	switch target {
	case plan.Utf8:
		appendUtf8(b.(*array.StringBuilder), raw, log)
	case plan.Int64:
		appendInt64(b.(*array.Int64Builder), raw)
	case plan.Float64:
		appendFloat64(b.(*array.Float64Builder), raw)
	case plan.Boolean:
		appendBoolean(b.(*array.BooleanBuilder), raw)
	default:
		return cerrors.ExecutionError.New("cubescan: unsupported target column type for coercion")
	}
	return nil
}

func appendUtf8(b *array.StringBuilder, raw interface{}, log *logrus.Logger) {
	switch v := raw.(type) {
	case string:
		b.Append(v)
	case float64:
		b.Append(strconv.FormatFloat(v, 'g', -1, 64))
	case bool:
		b.Append(strconv.FormatBool(v))
	default:
		log.WithField("value", raw).Warn("cubescan: unsupported value for Utf8 column, coercing to null")
		b.AppendNull()
	}
}

// asFloat64 is appendFloat64's lookup half, reused by appendAvgDivision to
// read a raw JSON-decoded measure value without appending it anywhere.
func asFloat64(raw interface{}) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// appendAvgDivision computes one AVG-split output column by dividing the
// row's raw sum measure by its raw count measure, per plan.AvgDivision.
// A missing operand or a zero count appends null rather than dividing by
// zero, matching SQL AVG's null-on-empty-group behavior.
func appendAvgDivision(b *array.Float64Builder, row Row, division plan.AvgDivision) {
	rawSum, ok := lookupMember(row, division.SumMember)
	if !ok {
		b.AppendNull()
		return
	}
	rawCount, ok := lookupMember(row, division.CountMember)
	if !ok {
		b.AppendNull()
		return
	}
	sum, ok := asFloat64(rawSum)
	if !ok {
		b.AppendNull()
		return
	}
	count, ok := asFloat64(rawCount)
	if !ok || count == 0 {
		b.AppendNull()
		return
	}
	b.Append(sum / count)
}

func appendInt64(b *array.Int64Builder, raw interface{}) {
	switch v := raw.(type) {
	case float64:
		b.Append(int64(v))
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			b.AppendNull()
			return
		}
		b.Append(n)
	default:
		b.AppendNull()
	}
}

func appendFloat64(b *array.Float64Builder, raw interface{}) {
	switch v := raw.(type) {
	case float64:
		b.Append(v)
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			b.AppendNull()
			return
		}
		b.Append(f)
	default:
		b.AppendNull()
	}
}

func appendBoolean(b *array.BooleanBuilder, raw interface{}) {
	v, ok := raw.(bool)
	if !ok {
		b.AppendNull()
		return
	}
	b.Append(v)
}
