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

// Subst is a variable binding discovered by a rule's Match function,
// mapping pattern variable names to the classes they matched.
type Subst map[string]EClassID

// Rule is either a plain `rewrite(pattern, replacement)` or a
// `transforming_rewrite(pattern, replacement, transform)`.
// Match finds candidate substitutions rooted at a given class; Apply
// turns an accepted substitution into zero or more replacement ENodes to
// add to that class (zero means the rule declined, i.e. Condition/Apply's
// own logic rejected the match — the transforming_rewrite case).
type Rule struct {
	Name string
	Match func(g *EGraph, root EClassID) []Subst
	Apply func(g *EGraph, root EClassID, s Subst) []ENode
	Condition func(g *EGraph, s Subst) bool // nil means always allowed
}

// matches returns the substitutions for which Condition (if any) accepts.
func (r Rule) matches(g *EGraph, root EClassID) []Subst {
	candidates := r.Match(g, root)
	if r.Condition == nil {
		return candidates
	}
	accepted := make([]Subst, 0, len(candidates))
	for _, s := range candidates {
		if r.Condition(g, s) {
			accepted = append(accepted, s)
		}
	}
	return accepted
}
