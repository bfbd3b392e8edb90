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
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/cubebridge/cubesql/cubesql/authsvc"
	"github.com/cubebridge/cubesql/cubesql/observability"
	"github.com/cubebridge/cubesql/cubesql/pgwire"
)

// TestNewServerWithReporterTracksSessions checks that the constructor
// cmd/cubebridged uses wires a reporting Manager in rather than the
// silent one NewServer builds, without requiring a live client
// connection: ActiveSessions reflects the same Manager.Count a
// directly-constructed NewManagerWithReporter would.
func TestNewServerWithReporterTracksSessions(t *testing.T) {
	log, _ := test.NewNullLogger()
	report := observability.NewReporter(log, "pgwire")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := pgwire.NewServerWithReporter(ln, authsvc.None{}, nil, log, report)
	require.Equal(t, 0, s.ActiveSessions())

	s.Shutdown(pgwire.Fast, time.Second)
}
