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

// Package rules implements the named rule families of ,
// grounded on original_source's
// rust/cubesql/cubesql/src/compile/rewrite/rules/order.rs and
// .../split/{aggregate_function,top_level}.rs for the exact recursive
// shapes the distilled spec leaves as contract-only.
//
// Each rule here is a direct plan.Node transform rather than a literal
// e-graph pattern/replacement pair: the egraph in the parent package
// models the general saturation contract asks for, but the
// concrete cube-shaped rewrites below are few enough, and specific enough
// about what they match, that expressing them as ordinary recursive Go
// functions over plan.Node is both what describes ("contracts, not
// code") and easier to get right without a running test suite to lean on.
package rules

import ("github.com/cubebridge/cubesql/cubesql/cube"
	"github.com/cubebridge/cubesql/cubesql/plan")

// OrderReplacerNode is the cons-list structure original_source's order.rs
// uses for the in-progress mapping of sort expressions to cube members:
// each step either resolves one (expr, asc) pair to a member or blocks.
// The empty tail mapping to an empty CubeScanOrder (// order-replacer-tail-proj) is simply the nil base case below.
type OrderReplacerNode struct {
	Head cube.OrderEntry
	Tail *OrderReplacerNode
}

// ToOrder flattens the cons-list into the []cube.OrderEntry CubeQuery.Order
// expects, left to right — the documented tie-break order.
func (n *OrderReplacerNode) ToOrder() []cube.OrderEntry {
	var out []cube.OrderEntry
	for cur := n; cur != nil; cur = cur.Tail {
		out = append(out, cur.Head)
	}
	return out
}

// columnToMember maps a plan.Expression that is a simple column reference
// to the cube member name it represents, or ("", false) if the expression
// isn't a simple column or isn't mapped.
func columnToMember(e plan.Expression, colToMember map[string]string) (string, bool) {
	col, ok := e.(*plan.ColumnExpr)
	if !ok {
		return "", false
	}
	m, ok := colToMember[col.String()]
	return m, ok
}

// PushDownSort implements push-down-sort rule: if n is
// Sort(exprs, CubeScan(..., wrapped=false)) and every sort key maps to a
// known cube member via colToMember, the rule replaces the scan's empty
// order with the resolved OrderReplacer chain and drops the Sort node
// (the scan now performs the ordering). Returns (n, false) if the pattern
// doesn't match or any key fails to map — partial matches are not applied,
// since a partially-pushed sort would silently change result order.
func PushDownSort(n plan.Node, colToMember map[string]string) (plan.Node, bool) {
	sort, ok := n.(*plan.Sort)
	if !ok {
		return n, false
	}
	scan, ok := sort.Child.(*plan.CubeScan)
	if !ok || scan.Wrapped {
		return n, false
	}
	if len(scan.Request.Order) != 0 {
		return n, false
	}

	var chain *OrderReplacerNode
	// Build left to right, then reverse so ToOrder preserves the original
	// left-to-right tie-break order despite the cons-list being built
	// tail-first.
	entries := make([]cube.OrderEntry, 0, len(sort.SortFields))
	for _, f := range sort.SortFields {
		member, ok := columnToMember(f.Expr, colToMember)
		if !ok {
			return n, false
		}
		entries = append(entries, cube.OrderEntry{Member: member, Asc: f.Asc})
	}
	for i := len(entries) - 1; i >= 0; i-- {
		chain = &OrderReplacerNode{Head: entries[i], Tail: chain}
	}

	newScan := scan.WithOrder(chain.ToOrder())
	return newScan, true
}
