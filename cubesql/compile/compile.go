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

// Package compile sequences the pieces the wire front-ends (C8, C9) both
// need to turn a query string into something cubescan.Exec can run:
// parse (C1) -> build a logical plan -> the C4 pushdown pre-pass ->
// the rewrite engine (C3). Neither front-end duplicates this sequencing
// itself.
package compile

import (cerrors "github.com/cubebridge/cubesql/cubesql/errors"
	"github.com/cubebridge/cubesql/cubesql/cube"
	"github.com/cubebridge/cubesql/cubesql/optimize"
	"github.com/cubebridge/cubesql/cubesql/plan"
	"github.com/cubebridge/cubesql/cubesql/plan/transform"
	"github.com/cubebridge/cubesql/cubesql/compile/parse"
	"github.com/cubebridge/cubesql/cubesql/rewrite")

// Result is everything a wire front-end needs to run and describe a
// compiled query: the final plan (for its output schema, used to build
// RowDescription) and the single CubeScan the rewrite engine found within
// it.
type Result struct {
	Plan plan.Node
	Scan *plan.CubeScan
}

// Compile parses sql under dialect, builds a logical plan against meta,
// runs the C4 pushdown rules, then hands the result to the rewrite engine.
// Per Non-goal (c), nothing here executes a residual operator
// above the extracted CubeScan; Plan.Schema is still the correct output
// schema for every seed scenario because every node the rewrite engine
// leaves standing above a CubeScan (Sort, a Limit it couldn't fold, an
// identity Projection) reports the same column set the scan already
// produces.
func Compile(sql string, dialect parse.Dialect, meta cube.MetadataContext, auth plan.AuthContext) (*Result, error) {
	stmt, err := parse.Parse(sql, dialect)
	if err != nil {
		return nil, err
	}

	catalog := parse.MetadataCatalog{Meta: meta}
	built, err := parse.Build(stmt, catalog)
	if err != nil {
		return nil, err
	}

	optimized, err := optimize.DefaultRuleSet().Optimize(built)
	if err != nil {
		return nil, err
	}

	compiled, err := rewrite.Compile(optimized, meta, auth)
	if err != nil {
		return nil, err
	}

	scan, err := findCubeScan(compiled)
	if err != nil {
		return nil, err
	}
	return &Result{Plan: compiled, Scan: scan}, nil
}

func findCubeScan(n plan.Node) (*plan.CubeScan, error) {
	var found *plan.CubeScan
	transform.Inspect(n, func(node plan.Node) bool {
			if scan, ok := node.(*plan.CubeScan); ok {
				found = scan
				return false
			}
			return true
	})
	if found == nil {
		return nil, cerrors.UnsupportedSql.New("compiled plan has no CubeScan")
	}
	return found, nil
}
