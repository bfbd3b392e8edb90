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

package parse

import "github.com/dolthub/vitess/go/vt/sqlparser"

// Dialect selects the surface syntax a session's wire front-end emulates.
// Both wire front-ends in this module, pgwire and the arrow-native
// front-end (which speaks cubesql over its own framing), parse as
// Postgres; MySQL is the other selectable dialect.
type Dialect int

const (
	MySQL Dialect = iota
	Postgres
)

// Options returns the sqlparser.ParserOptions this dialect should parse
// under. cubebridge sessions are always one of exactly two dialects fixed
// at session-establishment time by which wire front-end accepted the
// connection, so there is no per-session SQL-mode state to track.
func (d Dialect) Options() sqlparser.ParserOptions {
	opts := sqlparser.ParserOptions{}
	if d == Postgres {
		opts.AnsiQuotes = true
	}
	return opts
}

func (d Dialect) String() string {
	if d == Postgres {
		return "postgres"
	}
	return "mysql"
}
