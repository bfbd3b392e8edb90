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

package rewrite

import ("fmt"
	"os"
	"strings"

	cerrors "github.com/cubebridge/cubesql/cubesql/errors"
	"github.com/cubebridge/cubesql/cubesql/cube"
	"github.com/cubebridge/cubesql/cubesql/plan"
	"github.com/cubebridge/cubesql/cubesql/plan/transform"
	"github.com/cubebridge/cubesql/cubesql/rewrite/rules")

// experimentalFlag mirrors engine.go's GMS_EXPERIMENTAL precedent: one
// env var gating one named experimental behavior, checked once at process
// start rather than read per call. ExperimentalMultiStageSplit reserves the
// gate for chaining more than one SPLIT-family rewrite across a single
// aggregate (e.g. an AVG split feeding a further ratio split) — not yet
// implemented, so the gate has no effect today: ruleSpecializeAggregate's
// single-stage AVG split already runs unconditionally either way.
const experimentalFlag = "CUBEBRIDGE_EXPERIMENTAL"

var ExperimentalMultiStageSplit = os.Getenv(experimentalFlag) != ""

// Compile runs the rewrite engine's saturate+extract contract end to end
// against an already-optimized logical plan (i.e. after
// the C4 pre-pass rules have run): it looks for cube-shaped sub-plans
// rooted at a TableScan whose name names a cube in meta, replaces them
// with a CubeScan, and then pushes any Filter/Sort/Limit sitting above
// that scan into the scan's request, exactly the contracts push-down-
// sort, push-down-limit-sort-projection and the SPLIT family describe.
//
// A full symbolic e-graph search over arbitrary SQL shapes is genuinely
// out of scope (Non-goals: "we do not specify a full SQL
// planner"); this function builds one EGraph from the seeded plan, runs
// the five rules in rule_set.go to a fixpoint via Saturate, then lets
// Extract's cost function pick, per class, whichever alternative contains
// a CubeScan over the original unrewritten shape. A rule firing on a
// lower node (say, specializing an Aggregate into a grouped CubeScan)
// becomes visible to a rule above it (a Filter sitting over that
// Aggregate) purely because both look up the *class* their child
// occupies rather than a literal plan.Node pointer — the cascading effect
// direct bottom-up pattern matching would get from traversal order alone
// falls out here from repeated saturation rounds instead.
func Compile(node plan.Node, meta cube.MetadataContext, auth plan.AuthContext) (plan.Node, error) {
	seeded, err := seedCubeScans(node, meta, auth)
	if err != nil {
		return nil, err
	}

	g := NewEGraph()
	nodeClass := make(map[plan.Node]EClassID)
	rootID := addPlanNode(g, seeded, nodeClass)

	if err := Saturate(g, ruleSet(meta, nodeClass), DefaultSaturationConfig); err != nil {
		return nil, err
	}

	extracted, err := Extract(g, rootID, DefaultCost, buildPlanNode)
	if err != nil {
		return nil, err
	}
	final, ok := extracted.(plan.Node)
	if !ok {
		return nil, cerrors.InternalError.New("rewrite: extracted value is not a plan.Node")
	}

	if !containsCubeScan(final) {
		return nil, cerrors.UnsupportedSql.New("no CubeScan-shaped rewrite found")
	}
	return final, nil
}

func containsCubeScan(n plan.Node) bool {
	found := false
	transform.Inspect(n, func(node plan.Node) bool {
			if _, ok := node.(*plan.CubeScan); ok {
				found = true
				return false
			}
			return true
	})
	return found
}

// seedCubeScans replaces every TableScan whose name matches a cube in meta
// with a bare, ungrouped CubeScan selecting every dimension the scan's
// schema names (the base case an Aggregate or Projection directly above it
// then specializes).
func seedCubeScans(node plan.Node, meta cube.MetadataContext, auth plan.AuthContext) (plan.Node, error) {
	return transform.TransformUp(node, func(n plan.Node) (plan.Node, error) {
			ts, ok := n.(*plan.TableScan)
			if !ok {
				return n, nil
			}
			cubeMeta, ok := meta.Cubes[ts.Name]
			if !ok {
				return n, nil
			}
			var dims []string
			for _, col := range ts.Sch {
				if cubeMeta.Dimensions[col.Name] {
					dims = append(dims, ts.Name+"."+col.Name)
				}
			}
			return &plan.CubeScan{
				Sch: ts.Sch,
				CubeName: ts.Name,
				Auth: auth,
				Request: cube.CubeQuery{Dimensions: dims, Ungrouped: true},
			}, nil
	})
}

// sortColumnToMember builds the column->member map push-down-sort needs by
// assuming every column of scan's own schema is named "cube.column", i.e.
// the scan's schema already names cube members.
func sortColumnToMember(scan *plan.CubeScan) map[string]string {
	m := make(map[string]string, len(scan.Sch))
	for _, col := range scan.Sch {
		m[col.Name] = scan.CubeName + "." + col.Name
		m[col.QualifiedName()] = scan.CubeName + "." + col.Name
	}
	return m
}

// specializeAggregate matches every aggregate function in agg.Aggregations
// against scan's cube via rules.MatchAggregateFunction, and every GROUP BY
// expression against the cube's dimensions, producing the scan's final
// Measures/Dimensions list. Fails (returns the original Aggregate
// unchanged so UnsupportedSql can be raised by the caller) if any
// aggregate function or group expression doesn't resolve.
func specializeAggregate(agg *plan.Aggregate, scan *plan.CubeScan, meta cube.MetadataContext) (plan.Node, error) {
	cubeMeta, ok := meta.Cubes[scan.CubeName]
	if !ok {
		return agg, nil
	}

	var dimensions []string
	for _, e := range agg.GroupBy {
		col, ok := e.(*plan.ColumnExpr)
		if !ok || !cubeMeta.Dimensions[col.Name] {
			return agg, nil
		}
		dimensions = append(dimensions, scan.CubeName+"."+col.Name)
	}

	var measures []string
	var avgDivisions map[string]plan.AvgDivision
	for i, e := range agg.Aggregations {
		fn, ok := e.(*plan.FuncExpr)
		if !ok {
			return agg, nil
		}
		argMember, ok := aggregateArgumentMember(fn, scan, cubeMeta)
		if !ok {
			return agg, nil
		}
		matched, ok := rules.MatchAggregateFunction(fn, scan.CubeName, meta, argMember)
		if !ok {
			return agg, nil
		}
		if matched.IsAvgSplit() {
			// AVG against an additive-only cube: the request fetches both
			// underlying additive measures, and the output column named
			// agg.ColNames[i] is computed as their quotient once the
			// physical scan (C5) has the raw row in hand.
			measures = append(measures, matched.SumMember, matched.CountMember)
			if avgDivisions == nil {
				avgDivisions = make(map[string]plan.AvgDivision)
			}
			avgDivisions[agg.ColNames[i]] = plan.AvgDivision{SumMember: matched.SumMember, CountMember: matched.CountMember}
		} else {
			measures = append(measures, matched.Direct)
		}
	}

	newScan := &plan.CubeScan{
		Sch: agg.Schema(),
		CubeName: scan.CubeName,
		Auth: scan.Auth,
		AvgDivisions: avgDivisions,
		Request: cube.CubeQuery{
			Measures: measures,
			Dimensions: dimensions,
			Filters: scan.Request.Filters,
			Ungrouped: false,
		},
	}
	return newScan, nil
}

// aggregateArgumentMember resolves the cube member an aggregate function's
// argument refers to. COUNT(*) (no args, or a literal argument) resolves to
// the cube's canonical "count" measure, per S1's
// `SELECT COUNT(*) FROM KibanaSampleDataEcommerce` -> `measures:
// ["KibanaSampleDataEcommerce.count"]`.
func aggregateArgumentMember(fn *plan.FuncExpr, scan *plan.CubeScan, cubeMeta cube.CubeMeta) (string, bool) {
	if len(fn.Args) == 0 {
		if _, ok := cubeMeta.Measures["count"]; ok && strings.EqualFold(fn.Name(), "COUNT") {
			return scan.CubeName + ".count", true
		}
		return "", false
	}
	switch arg := fn.Args[0].(type) {
	case *plan.ColumnExpr:
		if _, ok := cubeMeta.Measures[arg.Name]; ok {
			return scan.CubeName + "." + arg.Name, true
		}
		return "", false
	case *plan.LiteralExpr:
		if _, ok := cubeMeta.Measures["count"]; ok && strings.EqualFold(fn.Name(), "COUNT") {
			return scan.CubeName + ".count", true
		}
	}
	return "", false
}

// exprToCubeFilters translates a (possibly AND-combined) predicate tree
// into the flat list of top-level CubeFilter leaves CubeScan.WithFilters
// expects, assuming the predicate's columns are named after cube members
// directly. Returns ok=false if any conjunct doesn't translate — a partial
// push would silently drop a predicate.
func exprToCubeFilters(e plan.Expression, cubeName string) ([]cube.CubeFilter, bool) {
	if b, ok := e.(*plan.BinaryOp); ok && b.Op == "AND" {
		left, ok := exprToCubeFilters(b.Left, cubeName)
		if !ok {
			return nil, false
		}
		right, ok := exprToCubeFilters(b.Right, cubeName)
		if !ok {
			return nil, false
		}
		return append(left, right...), true
	}
	leaf, ok := exprToCubeFilterLeaf(e, cubeName)
	if !ok {
		return nil, false
	}
	return []cube.CubeFilter{leaf}, true
}

func exprToCubeFilterLeaf(e plan.Expression, cubeName string) (cube.CubeFilter, bool) {
	switch t := e.(type) {
	case *plan.BinaryOp:
		col, ok := t.Left.(*plan.ColumnExpr)
		if !ok {
			return cube.CubeFilter{}, false
		}
		lit, ok := t.Right.(*plan.LiteralExpr)
		if !ok {
			return cube.CubeFilter{}, false
		}
		op, ok := binaryOpToCubeOperator(t.Op)
		if !ok {
			return cube.CubeFilter{}, false
		}
		return cube.CubeFilter{Member: cubeName + "." + col.Name, Operator: op, Values: []string{fmt.Sprintf("%v", lit.Value)}}, true
	case *plan.IsNullExpr:
		col, ok := t.Child.(*plan.ColumnExpr)
		if !ok {
			return cube.CubeFilter{}, false
		}
		op := cube.OpNotSet
		if t.Not {
			op = cube.OpSet
		}
		return cube.CubeFilter{Member: cubeName + "." + col.Name, Operator: op}, true
	case *plan.InListExpr:
		col, ok := t.Child.(*plan.ColumnExpr)
		if !ok || len(t.List) != 1 {
			return cube.CubeFilter{}, false
		}
		lit, ok := t.List[0].(*plan.LiteralExpr)
		if !ok {
			return cube.CubeFilter{}, false
		}
		op := cube.OpEquals
		if t.Not {
			op = cube.OpNotEquals
		}
		return cube.CubeFilter{Member: cubeName + "." + col.Name, Operator: op, Values: []string{fmt.Sprintf("%v", lit.Value)}}, true
	case *plan.NotExpr:
		leaf, ok := exprToCubeFilterLeaf(t.Child, cubeName)
		if !ok {
			return cube.CubeFilter{}, false
		}
		leaf.Operator = leaf.Operator.Negate()
		return leaf, true
	}
	return cube.CubeFilter{}, false
}

func binaryOpToCubeOperator(op string) (cube.FilterOperator, bool) {
	switch op {
	case "=":
		return cube.OpEquals, true
	case "<>", "!=":
		return cube.OpNotEquals, true
	case ">":
		return cube.OpGt, true
	case ">=":
		return cube.OpGte, true
	case "<":
		return cube.OpLt, true
	case "<=":
		return cube.OpLte, true
	case "LIKE":
		return cube.OpContains, true
	default:
		return "", false
	}
}
