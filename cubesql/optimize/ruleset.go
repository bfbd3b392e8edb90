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

// Rule mirrors a named, composable analyzer.Rule{Name, Apply} registration
// shape, applied here to the standalone C4 rules.
type Rule struct {
	Name  string
	Apply func(plan.Node) (plan.Node, error)
}

// RuleSet runs its rules once each, in order, against the output of the
// previous one.
type RuleSet []Rule

// DefaultRuleSet runs FilterSplitMeta first so meta predicates are
// isolated before LimitPushDown and SortPushDown reshape the tree around
// them, then LimitPushDown before SortPushDown since a pushed-down sort
// changes which node is "closest to the scan" that LimitPushDown cares
// about.
func DefaultRuleSet() RuleSet {
	return RuleSet{
		{Name: "FilterSplitMeta", Apply: FilterSplitMeta},
		{Name: "LimitPushDown", Apply: LimitPushDown},
		{Name: "SortPushDown", Apply: SortPushDown},
	}
}

func (rs RuleSet) Optimize(n plan.Node) (plan.Node, error) {
	var err error
	for _, rule := range rs {
		n, err = rule.Apply(n)
		if err != nil {
			return nil, err
		}
	}
	return n, nil
}
