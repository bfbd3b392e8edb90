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

package rules

import "github.com/cubebridge/cubesql/cubesql/plan"

// aliasMap builds the name-rewrite map a Projection induces: for every
// simple column-reference expression proj.Projections[i] (optionally
// wrapped in an Alias), the output name maps back to that input column.
// Any non-trivial expression is left unmapped, per 
// ("only trivial realiasing expressions are mappable").
func aliasMap(proj *plan.Projection) (map[string]plan.Expression, bool) {
	m := make(map[string]plan.Expression, len(proj.Projections))
	allTrivial := true
	for i, e := range proj.Projections {
		inner := e
		if a, ok := e.(*plan.AliasExpr); ok {
			inner = a.Child
		}
		if _, ok := inner.(*plan.ColumnExpr); !ok {
			allTrivial = false
			continue
		}
		m[proj.ColNames[i]] = inner
	}
	return m, allTrivial
}

// rewriteThroughAlias rewrites every ColumnExpr in e using m, returning
// (rewritten, true) only if every referenced column was mappable.
func rewriteThroughAlias(e plan.Expression, m map[string]plan.Expression) (plan.Expression, bool) {
	switch t := e.(type) {
	case *plan.ColumnExpr:
		mapped, ok := m[t.Name]
		if !ok {
			return nil, false
		}
		return mapped, true
	default:
		children := e.Children()
		if len(children) == 0 {
			return e, true
		}
		newChildren := make([]plan.Expression, len(children))
		for i, c := range children {
			nc, ok := rewriteThroughAlias(c, m)
			if !ok {
				return nil, false
			}
			newChildren[i] = nc
		}
		ne, err := e.WithChildren(newChildren...)
		if err != nil {
			return nil, false
		}
		return ne, true
	}
}

// PushDownLimitSortProjection implements 
// push-down-limit-sort-projection rule: Limit(Sort(Projection(x))) becomes
// Projection(Limit(Sort(x))) when every sort key can be rewritten through
// the projection's alias map. This is necessary because the projection may
// contain post-processing that would otherwise block the limit/sort from
// reaching the scan underneath it.
func PushDownLimitSortProjection(n plan.Node) (plan.Node, bool) {
	limit, ok := n.(*plan.Limit)
	if !ok {
		return n, false
	}
	sort, ok := limit.Child.(*plan.Sort)
	if !ok {
		return n, false
	}
	proj, ok := sort.Child.(*plan.Projection)
	if !ok {
		return n, false
	}

	m, _ := aliasMap(proj)
	newFields := make([]plan.SortField, len(sort.SortFields))
	for i, f := range sort.SortFields {
		rewritten, ok := rewriteThroughAlias(f.Expr, m)
		if !ok {
			return n, false
		}
		newFields[i] = plan.SortField{Expr: rewritten, Asc: f.Asc}
	}

	newSort := plan.NewSort(newFields, proj.Child)
	newLimit := plan.NewLimit(limit.Skip, limit.Fetch, newSort)
	return plan.NewProjection(proj.Projections, proj.ColNames, newLimit), true
}
