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

package arrownative

import ("regexp"

	"github.com/dolthub/vitess/go/vt/sqlparser")

// PlanKind is the dispatch tag switches a query's handling
// on, after the statement has been parsed.
type PlanKind int

const (KindUnsupported PlanKind = iota
	KindDataFusionSelect
	KindMetaOk
	KindMetaTabular
	KindCreateTempTable)

var createTemporaryTableRe = regexp.MustCompile(`(?i)^\s*create\s+temporary\s+table\b`)

// createTempTableAsRe pulls the SELECT half out of a `CREATE TEMPORARY
// TABLE name AS <select>` statement so it can be run through the normal
// compile pipeline; full persistence into a temp-table catalog is out of
// scope here (see DESIGN.md).
var createTempTableAsRe = regexp.MustCompile(`(?is)^\s*create\s+temporary\s+table\s+\S+\s+as\s+(.+?)\s*;?\s*$`)

// classify assigns stmt one of the plan kinds names,
// mirroring the statement-type switch enginetest/server_engine.go uses to
// decide whether a parsed statement returns rows at all (Select/Show) or
// just succeeds (Set/Begin/Use/Call/...); DDL is split further by text
// match since CREATE TEMPORARY TABLE is the only DDL form this front-end
// handles.
func classify(sql string, stmt sqlparser.Statement) PlanKind {
	switch stmt.(type) {
	case *sqlparser.Select:
		return KindDataFusionSelect
	case *sqlparser.Show:
		return KindMetaTabular
	case *sqlparser.Set, *sqlparser.Begin, *sqlparser.Use, *sqlparser.Call, *sqlparser.Load, *sqlparser.Execute, *sqlparser.Analyze, *sqlparser.Flush:
		return KindMetaOk
	case *sqlparser.DDL:
		if createTemporaryTableRe.MatchString(sql) {
			return KindCreateTempTable
		}
		return KindUnsupported
	default:
		return KindUnsupported
	}
}

func extractCTASSelect(sql string) (string, bool) {
	m := createTempTableAsRe.FindStringSubmatch(sql)
	if m == nil {
		return "", false
	}
	return m[1], true
}
