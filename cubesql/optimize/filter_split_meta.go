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

// Package optimize implements the standalone logical-to-logical rules
// (C4): FilterSplitMeta, LimitPushDown, SortPushDown. Each is a recursive
// transform with a per-node policy; none of them depend on the rewrite
// engine (C3) or on cube metadata, so they run as a pre-pass before it.
package optimize

import ("strings"

	cerrors "github.com/cubebridge/cubesql/cubesql/errors"
	"github.com/cubebridge/cubesql/cubesql/plan")

// FilterSplitMeta separates filters on the synthetic __user column (or
// Lower(__user), Cast(__user, ...)) from all other filters, pushing the
// meta predicates as close to the scan as the tree allows so they reach
// CubeScan even when the surrounding predicates can't.
func FilterSplitMeta(n plan.Node) (plan.Node, error) {
	result, leftover := splitMeta(n, nil)
	if len(leftover) != 0 {
		return nil, cerrors.InternalError.New("meta predicates survived optimization: %v", leftover)
	}
	return result, nil
}

func splitMeta(n plan.Node, carried []plan.Expression) (plan.Node, []plan.Expression) {
	switch t := n.(type) {
	case *plan.Filter:
		meta, normal := splitPredicate(t.Predicate)
		newChild, leftover := splitMeta(t.Child, append(append([]plan.Expression{}, carried...), meta...))
		result := newChild
		if len(leftover) != 0 {
			result = plan.NewFilter(combineAnd(leftover), result)
		}
		if normal != nil {
			result = plan.NewFilter(normal, result)
		}
		return result, nil

	case *plan.Projection, *plan.Sort, *plan.Subquery, *plan.Distinct:
		newChild, leftover := splitMeta(n.Children()[0], carried)
		newNode, _ := n.WithChildren(newChild)
		if len(leftover) != 0 {
			return plan.NewFilter(combineAnd(leftover), newNode), nil
		}
		return newNode, nil

	case *plan.Window, *plan.Aggregate, *plan.Repartition, *plan.Limit:
		newChild, _ := splitMeta(n.Children()[0], nil)
		newNode, _ := n.WithChildren(newChild)
		if len(carried) != 0 {
			return plan.NewFilter(combineAnd(carried), newNode), nil
		}
		return newNode, nil

	case *plan.Union:
		newLeft, _ := splitMeta(t.Left, nil)
		newRight, _ := splitMeta(t.Right, nil)
		newNode, _ := n.WithChildren(newLeft, newRight)
		if len(carried) != 0 {
			return plan.NewFilter(combineAnd(carried), newNode), nil
		}
		return newNode, nil

	case *plan.Join:
		newLeft, leftoverLeft := splitMeta(t.Left, carried)
		newRight, leftoverRight := splitMeta(t.Right, carried)
		newNode, _ := n.WithChildren(newLeft, newRight)
		return newNode, intersectExprs(leftoverLeft, leftoverRight)

	case *plan.CrossJoin:
		newLeft, leftoverLeft := splitMeta(t.Left, carried)
		newRight, leftoverRight := splitMeta(t.Right, carried)
		newNode, _ := n.WithChildren(newLeft, newRight)
		return newNode, intersectExprs(leftoverLeft, leftoverRight)

	default:
		// TableScan, EmptyRelation, and Extension nodes: the base case.
		// Nothing propagates further; whatever reached this point is
		// issued directly above it.
		if len(carried) != 0 {
			return plan.NewFilter(combineAnd(carried), n), nil
		}
		return n, nil
	}
}

// isMetaColumn reports whether e names the synthetic __user column,
// optionally wrapped in Lower(...) or Cast(...).
func isMetaColumn(e plan.Expression) bool {
	switch t := e.(type) {
	case *plan.ColumnExpr:
		return strings.EqualFold(t.Name, "__user")
	case *plan.FuncExpr:
		if len(t.Args) == 0 {
			return false
		}
		if strings.EqualFold(t.Name(), "Lower") || strings.EqualFold(t.Name(), "Cast") {
			return isMetaColumn(t.Args[0])
		}
	}
	return false
}

// isMetaPredicate implements "is meta" test.
func isMetaPredicate(e plan.Expression) bool {
	switch t := e.(type) {
	case *plan.BinaryOp:
		switch t.Op {
			case "=", "LIKE", "ILIKE":
			return isMetaColumn(t.Left) || isMetaColumn(t.Right)
		}
	case *plan.IsNullExpr:
		return isMetaColumn(t.Child)
	case *plan.NotExpr:
		if inner, ok := t.Child.(*plan.IsNullExpr); ok {
			return isMetaColumn(inner.Child)
		}
	case *plan.InListExpr:
		return len(t.List) == 1 && isMetaColumn(t.Child)
	}
	return false
}

// splitPredicate flattens e's top-level AND chain and partitions the
// conjuncts into meta and normal, reassembling normal back into a single
// expression (nil if every conjunct was meta).
func splitPredicate(e plan.Expression) (meta []plan.Expression, normal plan.Expression) {
	var normalConjuncts []plan.Expression
	for _, conjunct := range flattenAnd(e) {
		if isMetaPredicate(conjunct) {
			meta = append(meta, conjunct)
		} else {
			normalConjuncts = append(normalConjuncts, conjunct)
		}
	}
	return meta, combineAnd(normalConjuncts)
}

func flattenAnd(e plan.Expression) []plan.Expression {
	if b, ok := e.(*plan.BinaryOp); ok && b.Op == "AND" {
		return append(flattenAnd(b.Left), flattenAnd(b.Right)...)
	}
	return []plan.Expression{e}
}

func combineAnd(list []plan.Expression) plan.Expression {
	if len(list) == 0 {
		return nil
	}
	result := list[0]
	for _, e := range list[1:] {
		result = plan.NewBinary("AND", result, e)
	}
	return result
}

// intersectExprs returns the predicates (by string identity) present in
// both a and b — Join/CrossJoin rule: a predicate
// propagates past a join only when neither side could issue it.
func intersectExprs(a, b []plan.Expression) []plan.Expression {
	var out []plan.Expression
	for _, x := range a {
		for _, y := range b {
			if x.String() == y.String() {
				out = append(out, x)
				break
			}
		}
	}
	return out
}
