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

// Package pgwire implements the PostgreSQL wire front-end (C8): message
// framing (via jackc/pgx/v5/pgproto3), startup/auth negotiation, simple
// and extended query, and a bit-for-bit OID/codec table.
package pgwire

import "github.com/cubebridge/cubesql/cubesql/plan"

// OID is the fixed Postgres type-OID table specifies, plus each
// scalar's real array-type OID for the "list types as arrays" parameter
// binding rule. The same table backs cubesql/infoschema's pg_type.go; that
// package can't import this one (pgwire will eventually depend on
// infoschema for catalog queries, not the other way around), so the two
// tables are kept independently but must agree — infoschema_test.go and
// oid_test.go both pin the literal values gives.
const (OIDBool uint32 = 16
	OIDInt8 uint32 = 20
	OIDInt2 uint32 = 21
	OIDInt4 uint32 = 23
	OIDText uint32 = 25
	OIDFloat4 uint32 = 700
	OIDFloat8 uint32 = 701
	OIDVarchar uint32 = 1043
	OIDTimestamp uint32 = 1114
	OIDTimestampTz uint32 = 1184
	OIDInterval uint32 = 1186
	OIDNumeric uint32 = 1700

	OIDBoolArray uint32 = 1000
	OIDInt8Array uint32 = 1016
	OIDInt2Array uint32 = 1005
	OIDInt4Array uint32 = 1007
	OIDTextArray uint32 = 1009
	OIDFloat4Array uint32 = 1021
	OIDFloat8Array uint32 = 1022
	OIDVarcharArray uint32 = 1015
	OIDTimestampArray uint32 = 1115
	OIDTimestampTzArray uint32 = 1185
	OIDIntervalArray uint32 = 1187
	OIDNumericArray uint32 = 1231)

// OIDFor maps a logical-plan column type to the scalar OID RowDescription
// reports for it.
func OIDFor(t plan.Type) uint32 {
	switch t {
	case plan.Int64:
		return OIDInt8
	case plan.Float64:
		return OIDFloat8
	case plan.Boolean:
		return OIDBool
	case plan.Timestamp:
		return OIDTimestamp
	default:
		return OIDText
	}
}

// ArrayOIDFor returns the array-type OID of a scalar element OID, per the
// fixed correspondence Postgres itself assigns and calls "array
// OIDs per convention".
func ArrayOIDFor(elem uint32) uint32 {
	switch elem {
	case OIDBool:
		return OIDBoolArray
	case OIDInt8:
		return OIDInt8Array
	case OIDInt2:
		return OIDInt2Array
	case OIDInt4:
		return OIDInt4Array
	case OIDText:
		return OIDTextArray
	case OIDFloat4:
		return OIDFloat4Array
	case OIDFloat8:
		return OIDFloat8Array
	case OIDVarchar:
		return OIDVarcharArray
	case OIDTimestamp:
		return OIDTimestampArray
	case OIDTimestampTz:
		return OIDTimestampTzArray
	case OIDInterval:
		return OIDIntervalArray
	case OIDNumeric:
		return OIDNumericArray
	default:
		return 0
	}
}

// TypeForOID maps an incoming parameter's declared OID back to a logical
// type, for decoding bound parameter values ("Parameter binding").
func TypeForOID(oid uint32) plan.Type {
	switch oid {
	case OIDInt2, OIDInt4, OIDInt8:
		return plan.Int64
	case OIDFloat4, OIDFloat8, OIDNumeric:
		return plan.Float64
	case OIDBool:
		return plan.Boolean
	case OIDTimestamp, OIDTimestampTz:
		return plan.Timestamp
	default:
		return plan.Utf8
	}
}
