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

	"github.com/cubebridge/cubesql/cubesql/cube"
	"github.com/cubebridge/cubesql/cubesql/plan"
	"github.com/cubebridge/cubesql/cubesql/rewrite/rules")

// opOf is the ENode.Op tag Compile's insertion and extraction agree on:
// every CubeScan, original or rewritten, is tagged CubeScanOp regardless
// of its Go type name, so the cost function and every rule's class search
// can recognize one by Op alone; anything else is tagged by its concrete
// Go type, which is all a rule needs to find "the Aggregate/Filter/Sort/
// Limit node in this class", since no two distinct plan.Node types ever
// need to be told apart any more finely than that here.
func opOf(n plan.Node) string {
	if _, ok := n.(*plan.CubeScan); ok {
		return CubeScanOp
	}
	return fmt.Sprintf("%T", n)
}

// addPlanNode inserts n and everything reachable from it into g, reusing
// classClassID keys by pointer identity already in nodeClass map[plan.Node]EClassID
// nodeClass rather than re-inserting: every plan.Node concrete type is a
// pointer type, so pointer identity is exactly "the same node" for this
// purpose. Rules call this too, when a replacement they build
// (PushDownLimitSortProjection's restructured Projection/Limit/Sort, for
// instance) introduces brand new intermediate nodes wrapping an
// already-inserted child — the already-inserted part comes back out of
// nodeClass instead of being duplicated.
func addPlanNode(g *EGraph, n plan.Node, nodeClass map[plan.Node]EClassID) EClassID {
	if id, ok := nodeClass[n]; ok {
		return id
	}
	children := n.Children()
	childIDs := make([]EClassID, len(children))
	for i, c := range children {
		childIDs[i] = addPlanNode(g, c, nodeClass)
	}
	id := g.Add(ENode{Op: opOf(n), Payload: n, Children: childIDs})
	nodeClass[n] = id
	return id
}

// buildPlanNode is Extract's build callback: it hands the extracted
// child plan.Node values back to the parent's own WithChildren, the same
// reconstruction every plan.Node already knows how to do for itself.
func buildPlanNode(n ENode, children []interface{}) (interface{}, error) {
	node, ok := n.Payload.(plan.Node)
	if !ok {
		return nil, fmt.Errorf("rewrite: egraph payload %T is not a plan.Node", n.Payload)
	}
	if len(children) == 0 {
		return node, nil
	}
	childNodes := make([]plan.Node, len(children))
	for i, c := range children {
		cn, ok := c.(plan.Node)
		if !ok {
			return nil, fmt.Errorf("rewrite: egraph child %T is not a plan.Node", c)
		}
		childNodes[i] = cn
	}
	return node.WithChildren(childNodes...)
}

// scanInClass returns the one *plan.CubeScan ENode a class holds, if any —
// every rule below uses this instead of a literal type assertion on a
// node's stored Child, so a specialization several classes below (an
// Aggregate that became a grouped CubeScan, say) is visible to a rule
// higher up even though that higher rule's own Payload still points at
// the original, unspecialized child.
func scanInClass(g *EGraph, id EClassID) (*plan.CubeScan, bool) {
	for _, n := range g.Class(id).Nodes {
		if scan, ok := n.Payload.(*plan.CubeScan); ok {
			return scan, true
		}
	}
	return nil, false
}

// ruleSet is the five rewrites Compile saturates with, one per pushdown
// contract compile.go's doc comment names. nodeClass is shared with the
// graph's initial construction so a rule introducing new nodes
// (ruleLimitSortProjection) reuses existing classes for anything it
// didn't itself just create.
func ruleSet(meta cube.MetadataContext, nodeClass map[plan.Node]EClassID) []Rule {
	return []Rule{
		ruleSpecializeAggregate(meta),
		ruleFilterPushdown(),
		ruleSortPushdown(),
		ruleLimitPushdown(),
		ruleLimitSortProjection(nodeClass),
	}
}

// ruleSpecializeAggregate matches an Aggregate whose child class contains
// a CubeScan and replaces it with the grouped scan specializeAggregate
// computes, the SPLIT family's aggregate half.
func ruleSpecializeAggregate(meta cube.MetadataContext) Rule {
	return Rule{
		Name: "specialize-aggregate",
		Match: func(g *EGraph, root EClassID) []Subst {
			for _, node := range g.Class(root).Nodes {
				if _, ok := node.Payload.(*plan.Aggregate); !ok || len(node.Children) != 1 {
					continue
				}
				if _, ok := scanInClass(g, node.Children[0]); ok {
					return []Subst{{"child": node.Children[0]}}
				}
			}
			return nil
		},
		Apply: func(g *EGraph, root EClassID, s Subst) []ENode {
			for _, node := range g.Class(root).Nodes {
				agg, ok := node.Payload.(*plan.Aggregate)
				if !ok {
					continue
				}
				scan, ok := scanInClass(g, s["child"])
				if !ok {
					continue
				}
				candidate, err := specializeAggregate(agg, scan, meta)
				if err != nil {
					return nil
				}
				newScan, ok := candidate.(*plan.CubeScan)
				if !ok {
					// specializeAggregate declined (some GROUP BY expression
					// or aggregate argument didn't resolve against meta) and
					// handed the Aggregate back unchanged: no rewrite here.
					return nil
				}
				return []ENode{{Op: CubeScanOp, Payload: newScan}}
			}
			return nil
		},
	}
}

// ruleFilterPushdown matches a Filter whose child class contains a
// CubeScan and AND-s its predicate into the scan's request, per
// FilterSplitMeta.
func ruleFilterPushdown() Rule {
	return Rule{
		Name: "filter-pushdown",
		Match: func(g *EGraph, root EClassID) []Subst {
			for _, node := range g.Class(root).Nodes {
				if _, ok := node.Payload.(*plan.Filter); !ok || len(node.Children) != 1 {
					continue
				}
				if _, ok := scanInClass(g, node.Children[0]); ok {
					return []Subst{{"child": node.Children[0]}}
				}
			}
			return nil
		},
		Apply: func(g *EGraph, root EClassID, s Subst) []ENode {
			for _, node := range g.Class(root).Nodes {
				filter, ok := node.Payload.(*plan.Filter)
				if !ok {
					continue
				}
				scan, ok := scanInClass(g, s["child"])
				if !ok {
					continue
				}
				filters, ok := exprToCubeFilters(filter.Predicate, scan.CubeName)
				if !ok {
					return nil
				}
				return []ENode{{Op: CubeScanOp, Payload: scan.WithFilters(filters)}}
			}
			return nil
		},
	}
}

// ruleSortPushdown matches a Sort whose child class contains a CubeScan
// and folds the sort into the scan's Request.Order via rules.PushDownSort,
// reusing that function unmodified by building a synthetic Sort over the
// resolved scan rather than duplicating its column-to-member logic here.
func ruleSortPushdown() Rule {
	return Rule{
		Name: "sort-pushdown",
		Match: func(g *EGraph, root EClassID) []Subst {
			for _, node := range g.Class(root).Nodes {
				if _, ok := node.Payload.(*plan.Sort); !ok || len(node.Children) != 1 {
					continue
				}
				if _, ok := scanInClass(g, node.Children[0]); ok {
					return []Subst{{"child": node.Children[0]}}
				}
			}
			return nil
		},
		Apply: func(g *EGraph, root EClassID, s Subst) []ENode {
			for _, node := range g.Class(root).Nodes {
				sort, ok := node.Payload.(*plan.Sort)
				if !ok {
					continue
				}
				scan, ok := scanInClass(g, s["child"])
				if !ok {
					continue
				}
				synthetic := plan.NewSort(sort.SortFields, scan)
				candidate, ok := rules.PushDownSort(synthetic, sortColumnToMember(scan))
				if !ok {
					return nil
				}
				newScan, ok := candidate.(*plan.CubeScan)
				if !ok {
					return nil
				}
				return []ENode{{Op: CubeScanOp, Payload: newScan}}
			}
			return nil
		},
	}
}

// ruleLimitPushdown matches a Limit whose child class contains a CubeScan
// and folds skip/fetch into the scan's request directly.
func ruleLimitPushdown() Rule {
	return Rule{
		Name: "limit-pushdown",
		Match: func(g *EGraph, root EClassID) []Subst {
			for _, node := range g.Class(root).Nodes {
				if _, ok := node.Payload.(*plan.Limit); !ok || len(node.Children) != 1 {
					continue
				}
				if _, ok := scanInClass(g, node.Children[0]); ok {
					return []Subst{{"child": node.Children[0]}}
				}
			}
			return nil
		},
		Apply: func(g *EGraph, root EClassID, s Subst) []ENode {
			for _, node := range g.Class(root).Nodes {
				limit, ok := node.Payload.(*plan.Limit)
				if !ok {
					continue
				}
				scan, ok := scanInClass(g, s["child"])
				if !ok {
					continue
				}
				return []ENode{{Op: CubeScanOp, Payload: scan.WithLimit(limit.Fetch, limit.Skip)}}
			}
			return nil
		},
	}
}

// ruleLimitSortProjection matches the literal Limit(Sort(Projection(x)))
// shape (a structural check on the stored nodes themselves, not a class
// search — there's no CubeScan to look up yet, only a plan shape that
// needs restructuring before one of the other rules can find a scan to
// push into) and restructures it via rules.PushDownLimitSortProjection.
// The new Projection wraps brand new Limit/Sort nodes over x, which is
// already a class in the graph; addPlanNode reuses that class for x and
// mints new ones only for the Limit/Sort wrapper nodes genuinely new here.
func ruleLimitSortProjection(nodeClass map[plan.Node]EClassID) Rule {
	return Rule{
		Name: "limit-sort-projection",
		Match: func(g *EGraph, root EClassID) []Subst {
			for _, node := range g.Class(root).Nodes {
				limit, ok := node.Payload.(*plan.Limit)
				if !ok {
					continue
				}
				if _, ok := rules.PushDownLimitSortProjection(limit); ok {
					return []Subst{{}}
				}
			}
			return nil
		},
		Apply: func(g *EGraph, root EClassID, s Subst) []ENode {
			for _, node := range g.Class(root).Nodes {
				limit, ok := node.Payload.(*plan.Limit)
				if !ok {
					continue
				}
				candidate, ok := rules.PushDownLimitSortProjection(limit)
				if !ok {
					continue
				}
				proj, ok := candidate.(*plan.Projection)
				if !ok {
					continue
				}
				childID := addPlanNode(g, proj.Child, nodeClass)
				return []ENode{{Op: opOf(proj), Payload: proj, Children: []EClassID{childID}}}
			}
			return nil
		},
	}
}
