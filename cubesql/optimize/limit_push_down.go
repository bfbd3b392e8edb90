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

package optimize

import "github.com/cubebridge/cubesql/cubesql/plan"

// limitState is the (skip, fetch) pair LimitPushDown threads downward
// while it hasn't yet found a safe place to issue a Limit node.
type limitState struct {
	Skip, Fetch *int64
}

func (s limitState) empty() bool { return s.Skip == nil && s.Fetch == nil }

// LimitPushDown moves LIMIT/OFFSET past nodes that don't change
// cardinality, until just above the projection closest to the scan.
func LimitPushDown(n plan.Node) (plan.Node, error) {
	return pushLimit(n, limitState{})
}

func pushLimit(n plan.Node, st limitState) (plan.Node, error) {
	switch t := n.(type) {
	case *plan.Limit:
		merged, mustIssueOuter := mergeLimit(st, t.Skip, t.Fetch)
		if mustIssueOuter {
			child, err := pushLimit(t.Child, merged)
			if err != nil {
				return nil, err
			}
			return issueLimit(st, child), nil
		}
		return pushLimit(t.Child, merged)

	case *plan.Projection:
		if _, ok := t.Child.(*plan.Projection); ok {
			child, err := pushLimit(t.Child, st)
			if err != nil {
				return nil, err
			}
			return t.WithChildren(child)
		}
		child, err := pushLimit(t.Child, limitState{})
		if err != nil {
			return nil, err
		}
		newProj, err := t.WithChildren(child)
		if err != nil {
			return nil, err
		}
		return issueLimit(st, newProj), nil

	case *plan.Filter, *plan.Window, *plan.Aggregate, *plan.Sort, *plan.Distinct, *plan.Subquery:
		child, err := pushLimit(n.Children()[0], limitState{})
		if err != nil {
			return nil, err
		}
		newNode, err := n.WithChildren(child)
		if err != nil {
			return nil, err
		}
		return issueLimit(st, newNode), nil

	case *plan.Join:
		left, err := pushLimit(t.Left, limitState{})
		if err != nil {
			return nil, err
		}
		right, err := pushLimit(t.Right, limitState{})
		if err != nil {
			return nil, err
		}
		newJoin, err := t.WithChildren(left, right)
		if err != nil {
			return nil, err
		}
		return issueLimit(st, newJoin), nil

	case *plan.CrossJoin:
		if t.RightYieldsSingleRow {
			left, err := pushLimit(t.Left, st)
			if err != nil {
				return nil, err
			}
			right, err := pushLimit(t.Right, limitState{})
			if err != nil {
				return nil, err
			}
			return t.WithChildren(left, right)
		}
		left, err := pushLimit(t.Left, limitState{})
		if err != nil {
			return nil, err
		}
		right, err := pushLimit(t.Right, limitState{})
		if err != nil {
			return nil, err
		}
		newNode, err := t.WithChildren(left, right)
		if err != nil {
			return nil, err
		}
		return issueLimit(st, newNode), nil

	default:
		children := n.Children()
		if len(children) == 0 {
			return issueLimit(st, n), nil
		}
		newChildren := make([]plan.Node, len(children))
		for i, c := range children {
			nc, err := pushLimit(c, limitState{})
			if err != nil {
				return nil, err
			}
			newChildren[i] = nc
		}
		newNode, err := n.WithChildren(newChildren...)
		if err != nil {
			return nil, err
		}
		return issueLimit(st, newNode), nil
	}
}

func issueLimit(st limitState, child plan.Node) plan.Node {
	if st.empty() {
		return child
	}
	return plan.NewLimit(st.Skip, st.Fetch, child)
}

// mergeLimit implements Limit combination law. outer is
// the state accumulated from ancestors; innerSkip/innerFetch are the
// fields of the Limit node currently being folded in. mustIssueOuter is
// true only when outer carries a skip and the inner limit has its own
// fetch — adding the outer skip on top would drop rows the inner fetch
// is supposed to keep, so the outer limit has to be issued as-is before
// continuing with the inner one.
func mergeLimit(outer limitState, innerSkip, innerFetch *int64) (merged limitState, mustIssueOuter bool) {
	if outer.Skip != nil {
		if innerFetch != nil {
			return limitState{Skip: innerSkip, Fetch: innerFetch}, true
		}
		return limitState{Skip: addSkip(outer.Skip, innerSkip), Fetch: outer.Fetch}, false
	}
	if outer.Fetch == nil {
		return limitState{Skip: innerSkip, Fetch: innerFetch}, false
	}
	fetch := *outer.Fetch
	if innerFetch != nil {
		fetch = min64(*outer.Fetch, *innerFetch)
	}
	return limitState{Skip: innerSkip, Fetch: &fetch}, false
}

func addSkip(a, b *int64) *int64 {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	sum := *a + *b
	return &sum
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
