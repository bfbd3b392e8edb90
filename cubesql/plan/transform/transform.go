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

// Package transform provides free-function visitors over plan.Node and
// plan.Expression trees.
package transform

import "github.com/cubebridge/cubesql/cubesql/plan"

// Inspect walks n and its descendants post-order-unaware (parent first),
// calling f on each node. If f returns false for a node, its children are
// not visited.
func Inspect(n plan.Node, f func(plan.Node) bool) {
	if n == nil {
		return
	}
	if !f(n) {
		return
	}
	for _, c := range n.Children() {
		Inspect(c, f)
	}
}

// InspectExpressions walks every expression reachable from every node in
// the tree rooted at n, calling f on each. A node's expressions are those
// Expressions returns for it; node types Expressions does not list (e.g.
// TableScan) contribute none.
func InspectExpressions(n plan.Node, f func(plan.Expression) bool) {
	Inspect(n, func(node plan.Node) bool {
		for _, e := range Expressions(node) {
			inspectExpr(e, f)
		}
		return true
	})
}

func inspectExpr(e plan.Expression, f func(plan.Expression) bool) {
	if e == nil {
		return
	}
	if !f(e) {
		return
	}
	for _, c := range e.Children() {
		inspectExpr(c, f)
	}
}

// Expressions returns the top-level expressions a node directly owns.
func Expressions(n plan.Node) []plan.Expression {
	switch t := n.(type) {
	case *plan.Projection:
		return t.Projections
	case *plan.Filter:
		return []plan.Expression{t.Predicate}
	case *plan.Aggregate:
		return append(append([]plan.Expression{}, t.GroupBy...), t.Aggregations...)
	case *plan.Sort:
		out := make([]plan.Expression, len(t.SortFields))
		for i, f := range t.SortFields {
			out[i] = f.Expr
		}
		return out
	case *plan.Join:
		return []plan.Expression{t.Condition}
	default:
		return nil
	}
}

// NodeExprs rebuilds n with its top-level expressions replaced by the
// result of applying f to each.
func NodeExprs(n plan.Node, f func(plan.Expression) (plan.Expression, error)) (plan.Node, error) {
	switch t := n.(type) {
	case *plan.Projection:
		newExprs := make([]plan.Expression, len(t.Projections))
		for i, e := range t.Projections {
			ne, err := f(e)
			if err != nil {
				return nil, err
			}
			newExprs[i] = ne
		}
		return plan.NewProjection(newExprs, t.ColNames, t.Child), nil
	case *plan.Filter:
		ne, err := f(t.Predicate)
		if err != nil {
			return nil, err
		}
		return plan.NewFilter(ne, t.Child), nil
	case *plan.Sort:
		newFields := make([]plan.SortField, len(t.SortFields))
		for i, sf := range t.SortFields {
			ne, err := f(sf.Expr)
			if err != nil {
				return nil, err
			}
			newFields[i] = plan.SortField{Expr: ne, Asc: sf.Asc}
		}
		return plan.NewSort(newFields, t.Child), nil
	default:
		return n, nil
	}
}

// TransformUp applies f to every node bottom-up, rebuilding parents with
// WithChildren as it goes back up the tree. The rewrite engine's
// seedCubeScans uses it.
func TransformUp(n plan.Node, f func(plan.Node) (plan.Node, error)) (plan.Node, error) {
	if n == nil {
		return nil, nil
	}
	children := n.Children()
	if len(children) > 0 {
		newChildren := make([]plan.Node, len(children))
		for i, c := range children {
			nc, err := TransformUp(c, f)
			if err != nil {
				return nil, err
			}
			newChildren[i] = nc
		}
		var err error
		n, err = n.WithChildren(newChildren...)
		if err != nil {
			return nil, err
		}
	}
	return f(n)
}
