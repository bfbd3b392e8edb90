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
	"fmt"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	cerrors "github.com/cubebridge/cubesql/cubesql/errors"
	"github.com/cubebridge/cubesql/cubesql/observability"
	"github.com/cubebridge/cubesql/cubesql/pgwire"
	"github.com/cubebridge/cubesql/cubesql/plan"
)

func TestSessionStorePreparedRejectsDuplicateName(t *testing.T) {
	s := pgwire.NewSession("sess-1", plan.AuthContext{}, "db")
	require.NoError(t, s.StorePrepared("stmt1", &pgwire.PreparedStatement{Name: "stmt1"}))
	err := s.StorePrepared("stmt1", &pgwire.PreparedStatement{Name: "stmt1"})
	require.Error(t, err)
	require.True(t, cerrors.IsKind(cerrors.ResourceLimit, err))
}

func TestSessionStorePreparedUnnamedSlotIsReplaceable(t *testing.T) {
	s := pgwire.NewSession("sess-1", plan.AuthContext{}, "db")
	require.NoError(t, s.StorePrepared("", &pgwire.PreparedStatement{Query: "SELECT 1"}))
	require.NoError(t, s.StorePrepared("", &pgwire.PreparedStatement{Query: "SELECT 2"}))
	stmt, ok := s.LookupPrepared("")
	require.True(t, ok)
	require.Equal(t, "SELECT 2", stmt.Query)
}

func TestSessionStorePreparedOverflowIsResourceLimit(t *testing.T) {
	s := pgwire.NewSession("sess-1", plan.AuthContext{}, "db")
	for i := 0; i < pgwire.MaxPreparedStatements; i++ {
		name := fmt.Sprintf("stmt%d", i)
		require.NoError(t, s.StorePrepared(name, &pgwire.PreparedStatement{Name: name}))
	}
	err := s.StorePrepared("one-too-many", &pgwire.PreparedStatement{Name: "one-too-many"})
	require.Error(t, err)
	require.True(t, cerrors.IsKind(cerrors.ResourceLimit, err))
}

func TestSessionClosePreparedRemovesIt(t *testing.T) {
	s := pgwire.NewSession("sess-1", plan.AuthContext{}, "db")
	require.NoError(t, s.StorePrepared("stmt1", &pgwire.PreparedStatement{Name: "stmt1"}))
	s.ClosePrepared("stmt1")
	_, ok := s.LookupPrepared("stmt1")
	require.False(t, ok)
}

func TestSessionPortalLifecycle(t *testing.T) {
	s := pgwire.NewSession("sess-1", plan.AuthContext{}, "db")
	require.NoError(t, s.StorePortal("p1", &pgwire.Portal{Name: "p1"}))
	_, ok := s.LookupPortal("p1")
	require.True(t, ok)
	s.ClosePortal("p1")
	_, ok = s.LookupPortal("p1")
	require.False(t, ok)
}

func TestManagerTracksSessionCount(t *testing.T) {
	m := pgwire.NewManager()
	require.Equal(t, 0, m.Count())
	s := pgwire.NewSession("sess-1", plan.AuthContext{}, "db")
	m.Add(s)
	require.Equal(t, 1, m.Count())
	m.Remove(s.ID)
	require.Equal(t, 0, m.Count())
}

func TestManagerWithReporterLogsSessionLifecycle(t *testing.T) {
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	report := observability.NewReporter(log, "pgwire")

	m := pgwire.NewManagerWithReporter(report)
	s := pgwire.NewSession("sess-1", plan.AuthContext{}, "db")
	m.Add(s)
	m.Remove(s.ID)

	require.Len(t, hook.Entries, 2)
	require.Equal(t, "session opened", hook.Entries[0].Message)
	require.Equal(t, "session closed", hook.Entries[1].Message)
}
