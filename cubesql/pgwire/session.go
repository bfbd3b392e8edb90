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

import ("sync"

	"github.com/apache/arrow-go/v18/arrow"

	cerrors "github.com/cubebridge/cubesql/cubesql/errors"
	"github.com/cubebridge/cubesql/cubesql/observability"
	"github.com/cubebridge/cubesql/cubesql/plan")

// MaxPreparedStatements bounds the number of prepared statements a single
// session may hold at once: per-session, bounded count; overflow returns
// ResourceLimit. A fixed constant rather than a configurable policy.
const MaxPreparedStatements = 64

// PreparedStatement is the parsed-and-compiled result of a Parse message,
// kept until either Close or session teardown.
type PreparedStatement struct {
	Name string
	Query string
	ParamOIDs []uint32
	Fields []FieldDescription
	Scan *plan.CubeScan
	Plan plan.Node
}

// Portal is a bound, ready-to-execute instance of a PreparedStatement,
// produced by Bind.
type Portal struct {
	Name string
	Statement *PreparedStatement
	Params []interface{}
	Formats []int16
	Result arrow.Record
	cursor int64
}

// FieldDescription is the column metadata RowDescription reports, derived
// once per prepared statement from its compiled plan's schema.
type FieldDescription struct {
	Name string
	DataTypeOID uint32
	Format int16
}

// Session holds the per-connection state the extended query protocol
// needs across its several round trips: who authenticated, and what's
// currently prepared or bound.
type Session struct {
	ID string
	Auth plan.AuthContext
	Database string
	// Streaming toggles whether handleSimpleQuery renders its result as a
	// COPY-stream of the streaming executor bridge's newline-delimited
	// JSON frames instead of RowDescription/DataRow messages. Off by
	// default; a client flips it with "SET cubebridge.stream = on|off".
	Streaming bool

	mu sync.Mutex
	prepared map[string]*PreparedStatement
	portals map[string]*Portal
}

func NewSession(id string, auth plan.AuthContext, database string) *Session {
	return &Session{
		ID: id,
		Auth: auth,
		Database: database,
		prepared: make(map[string]*PreparedStatement),
		portals: make(map[string]*Portal),
	}
}

// StorePrepared registers a prepared statement under name, replacing any
// statement already registered under the unnamed ("") slot per the wire
// protocol's convention that re-Parsing the empty name silently discards
// the previous one. A non-empty name that's already taken, or that would
// push the session over MaxPreparedStatements, fails as ResourceLimit.
func (s *Session) StorePrepared(name string, stmt *PreparedStatement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if name == "" {
		s.prepared[""] = stmt
		return nil
	}
	if _, exists := s.prepared[name]; exists {
		return cerrors.ResourceLimit.New("prepared statement " + name + " already exists")
	}
	if len(s.prepared) >= MaxPreparedStatements {
		return cerrors.ResourceLimit.New("too many prepared statements")
	}
	s.prepared[name] = stmt
	return nil
}

func (s *Session) LookupPrepared(name string) (*PreparedStatement, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stmt, ok := s.prepared[name]
	return stmt, ok
}

func (s *Session) ClosePrepared(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.prepared, name)
}

func (s *Session) StorePortal(name string, portal *Portal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if name != "" {
		if _, exists := s.portals[name]; exists {
			return cerrors.ResourceLimit.New("portal " + name + " already exists")
		}
	}
	s.portals[name] = portal
	return nil
}

func (s *Session) LookupPortal(name string) (*Portal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.portals[name]
	return p, ok
}

func (s *Session) ClosePortal(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.portals, name)
}

// Manager tracks every live session on the server, so a shutdown can wait
// for or reject new ones per the Fast/SemiFast/Smart modes of
// server.go.
type Manager struct {
	mu sync.Mutex
	sessions map[string]*Session
	report *observability.Reporter
}

// NewManager builds a Manager that logs nothing; use NewManagerWithReporter
// to observe session lifecycle events.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// NewManagerWithReporter is the constructor cmd/cubebridged uses, wiring in
// the process-wide Reporter so session open/close shows up in its log.
func NewManagerWithReporter(report *observability.Reporter) *Manager {
	return &Manager{sessions: make(map[string]*Session), report: report}
}

func (m *Manager) Add(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	if m.report != nil {
		m.report.SessionOpened("pgwire", s.ID)
	}
}

func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	if m.report != nil {
		m.report.SessionClosed("pgwire", id)
	}
}

func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
