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

package pgwire_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cubebridge/cubesql/cubesql/pgwire"
	"github.com/cubebridge/cubesql/cubesql/plan"
)

func TestFixedOIDTable(t *testing.T) {
	require.EqualValues(t, 16, pgwire.OIDBool)
	require.EqualValues(t, 21, pgwire.OIDInt2)
	require.EqualValues(t, 23, pgwire.OIDInt4)
	require.EqualValues(t, 20, pgwire.OIDInt8)
	require.EqualValues(t, 700, pgwire.OIDFloat4)
	require.EqualValues(t, 701, pgwire.OIDFloat8)
	require.EqualValues(t, 25, pgwire.OIDText)
	require.EqualValues(t, 1043, pgwire.OIDVarchar)
	require.EqualValues(t, 1114, pgwire.OIDTimestamp)
	require.EqualValues(t, 1184, pgwire.OIDTimestampTz)
	require.EqualValues(t, 1186, pgwire.OIDInterval)
	require.EqualValues(t, 1700, pgwire.OIDNumeric)
}

func TestOIDForMapsLogicalTypes(t *testing.T) {
	require.EqualValues(t, pgwire.OIDInt8, pgwire.OIDFor(plan.Int64))
	require.EqualValues(t, pgwire.OIDFloat8, pgwire.OIDFor(plan.Float64))
	require.EqualValues(t, pgwire.OIDBool, pgwire.OIDFor(plan.Boolean))
	require.EqualValues(t, pgwire.OIDTimestamp, pgwire.OIDFor(plan.Timestamp))
	require.EqualValues(t, pgwire.OIDText, pgwire.OIDFor(plan.Utf8))
}

func TestArrayOIDForRealPostgresAssignments(t *testing.T) {
	require.EqualValues(t, 1000, pgwire.ArrayOIDFor(pgwire.OIDBool))
	require.EqualValues(t, 1016, pgwire.ArrayOIDFor(pgwire.OIDInt8))
	require.EqualValues(t, 1009, pgwire.ArrayOIDFor(pgwire.OIDText))
	require.EqualValues(t, 1231, pgwire.ArrayOIDFor(pgwire.OIDNumeric))
	require.Zero(t, pgwire.ArrayOIDFor(999999))
}

func TestTypeForOIDRoundTripsOIDFor(t *testing.T) {
	for _, typ := range []plan.Type{plan.Int64, plan.Float64, plan.Boolean, plan.Timestamp} {
		require.Equal(t, typ, pgwire.TypeForOID(pgwire.OIDFor(typ)))
	}
	require.Equal(t, plan.Utf8, pgwire.TypeForOID(pgwire.OIDVarchar))
}
