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

package optimize

import "github.com/cubebridge/cubesql/cubesql/plan"

// SortPushDown moves ORDER BY down through projections and filters until
// just above the scan, so the scan can perform the order itself.
func SortPushDown(n plan.Node) (plan.Node, error) {
	return pushSort(n, nil)
}

func pushSort(n plan.Node, pending []plan.SortField) (plan.Node, error) {
	switch t := n.(type) {
	case *plan.Sort:
		if len(pending) > 0 {
			// A nested sort: the outer one (already pending) wins, so
			// this inner Sort is dropped entirely.
			return pushSort(t.Child, pending)
		}
		return pushSort(t.Child, t.SortFields)

	case *plan.Projection:
		if len(pending) == 0 {
			child, err := pushSort(t.Child, nil)
			if err != nil {
				return nil, err
			}
			return t.WithChildren(child)
		}
		m, _ := projectionAliasMap(t)
		if rewritten, ok := rewriteSortFields(pending, m); ok {
			child, err := pushSort(t.Child, rewritten)
			if err != nil {
				return nil, err
			}
			return t.WithChildren(child)
		}
		child, err := pushSort(t.Child, nil)
		if err != nil {
			return nil, err
		}
		newProj, err := t.WithChildren(child)
		if err != nil {
			return nil, err
		}
		return issueSort(pending, newProj), nil

	case *plan.Filter:
		child, err := pushSort(t.Child, pending)
		if err != nil {
			return nil, err
		}
		return t.WithChildren(child)

	case *plan.Aggregate, *plan.Window, *plan.Union, *plan.Distinct:
		children := n.Children()
		newChildren := make([]plan.Node, len(children))
		for i, c := range children {
			nc, err := pushSort(c, nil)
			if err != nil {
				return nil, err
			}
			newChildren[i] = nc
		}
		newNode, err := n.WithChildren(newChildren...)
		if err != nil {
			return nil, err
		}
		return issueSort(pending, newNode), nil

	default:
		children := n.Children()
		if len(children) == 0 {
			return issueSort(pending, n), nil
		}
		newChildren := make([]plan.Node, len(children))
		for i, c := range children {
			nc, err := pushSort(c, nil)
			if err != nil {
				return nil, err
			}
			newChildren[i] = nc
		}
		newNode, err := n.WithChildren(newChildren...)
		if err != nil {
			return nil, err
		}
		return issueSort(pending, newNode), nil
	}
}

func issueSort(pending []plan.SortField, child plan.Node) plan.Node {
	if len(pending) == 0 {
		return child
	}
	return plan.NewSort(pending, child)
}

// projectionAliasMap builds the name-rewrite map a projection induces:
// each output column name maps to the underlying expression, when that
// expression is a simple (optionally aliased) column reference. allTrivial
// is false if any projected expression is not a simple column reference —
// SortPushDown still builds the partial map, but callers only use it when
// every field in the pending sort resolves through it.
func projectionAliasMap(proj *plan.Projection) (map[string]plan.Expression, bool) {
	m := make(map[string]plan.Expression, len(proj.Projections))
	allTrivial := true
	for i, e := range proj.Projections {
		inner := e
		if a, ok := e.(*plan.AliasExpr); ok {
			inner = a.Child
		}
		col, ok := inner.(*plan.ColumnExpr)
		if !ok {
			allTrivial = false
			continue
		}
		m[proj.ColNames[i]] = col
		m[col.String()] = col
	}
	return m, allTrivial
}

func rewriteSortFields(fields []plan.SortField, m map[string]plan.Expression) ([]plan.SortField, bool) {
	out := make([]plan.SortField, len(fields))
	for i, f := range fields {
		col, ok := f.Expr.(*plan.ColumnExpr)
		if !ok {
			return nil, false
		}
		mapped, ok := m[col.String()]
		if !ok {
			mapped, ok = m[col.Name]
		}
		if !ok {
			return nil, false
		}
		out[i] = plan.SortField{Expr: mapped, Asc: f.Asc}
	}
	return out, true
}
