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

import (cerrors "github.com/cubebridge/cubesql/cubesql/errors")

// Cost is a plain scalar; lower is better. CostFn must be monotonically
// non-decreasing in its children's costs, per e-graph
// invariant — Extract relies on that to make the per-class
// dynamic-program optimal.
type Cost = int64

// CostFn assigns a cost to one ENode given the already-computed best costs
// of its children's classes.
type CostFn func(node ENode, childCosts []Cost) Cost

// CubeScanOp is the ENode.Op tag the cost function and the extractor both
// recognize as "this shape is a CubeScan" — DefaultCost biases toward it.
const CubeScanOp = "CubeScan"

// DefaultCost favors plans containing a CubeScan with pushed filters/order/
// limit over plans with residual operators sitting above the scan: a
// CubeScan itself is cheap, and every non-CubeScan operator adds a fixed
// penalty plus the summed cost of its children. This realizes the rule
// "favor plans containing a CubeScan ... over plans with
// residual operators above the scan" without needing real cardinality
// estimates, which are out of scope here.
func DefaultCost(node ENode, childCosts []Cost) Cost {
	var sum Cost
	for _, c := range childCosts {
		sum += c
	}
	if node.Op == CubeScanOp {
		return 1 + sum
	}
	return 100 + sum
}

// Extract performs a bottom-up dynamic-programming pass over the graph,
// picking the minimum-cost ENode per reachable class, then reconstructs a
// single representative plan.Node tree rooted at root via build.
//
// build converts one ENode (with its children already converted to
// plan.Node) back into a plan.Node; it is supplied by the caller because
// only the caller (buildPlanNode in this package) knows how to turn the
// egraph's generic ENode.Payload back into a concrete node type.
func Extract(g *EGraph, root EClassID, cost CostFn, build func(ENode, []interface{}) (interface{}, error)) (interface{}, error) {
	bestCost := make(map[EClassID]Cost)
	bestNode := make(map[EClassID]ENode)

	// Fixed point over the (finite, acyclic-per-class-membership) set of
	// classes: repeatedly try to improve each class's best cost using its
	// children's current best costs, until nothing improves. Plan/
	// expression e-graphs built from a tree are acyclic at the node level,
	// so this always terminates quickly, but we still cap iterations
	// defensively.
	classes := g.Classes()
	for iter := 0; iter < len(classes)+1; iter++ {
		changed := false
		for _, c := range classes {
			for _, n := range c.Nodes {
				ready := true
				childCosts := make([]Cost, len(n.Children))
				for i, ch := range n.Children {
					chCost, ok := bestCost[g.Find(ch)]
					if !ok {
						ready = false
						break
					}
					childCosts[i] = chCost
				}
				if !ready {
					continue
				}
				c2 := cost(n, childCosts)
				if cur, ok := bestCost[c.ID]; !ok || c2 < cur {
					bestCost[c.ID] = c2
					bestNode[c.ID] = n
					changed = true
				}
			}
		}
		if !changed {
			break
		}
	}

	if _, ok := bestNode[g.Find(root)]; !ok {
		return nil, cerrors.UnsupportedSql.New("no representative found for root class")
	}

	memo := make(map[EClassID]interface{})
	var build_ func(EClassID) (interface{}, error)
	build_ = func(id EClassID) (interface{}, error) {
		id = g.Find(id)
		if v, ok := memo[id]; ok {
			return v, nil
		}
		n := bestNode[id]
		childVals := make([]interface{}, len(n.Children))
		for i, ch := range n.Children {
			v, err := build_(ch)
			if err != nil {
				return nil, err
			}
			childVals[i] = v
		}
		v, err := build(n, childVals)
		if err != nil {
			return nil, err
		}
		memo[id] = v
		return v, nil
	}
	return build_(root)
}
