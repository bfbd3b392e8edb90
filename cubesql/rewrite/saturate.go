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

// SaturationConfig bounds how long Saturate is allowed to keep discovering
// new equivalences, per ("saturation ... bounded by iteration
// count and node count").
type SaturationConfig struct {
	MaxIterations int
	MaxNodes int
}

// DefaultSaturationConfig matches the bounds a cost-based join enumerator
// typically uses in practice for plans of this size.
var DefaultSaturationConfig = SaturationConfig{MaxIterations: 20, MaxNodes: 10000}

// Saturate repeatedly matches every rule against every class until a fixed
// point is reached (no rule produces a new ENode or a new union) or a bound
// in cfg is hit. Rule application is batched per iteration: every rule's
// Apply results for this round are collected before anything is added to
// the graph, so rules never observe a graph mid-mutation from another rule
// in the same round — a real saturation/transform split, not reads
// interleaved with writes.
func Saturate(g *EGraph, rules []Rule, cfg SaturationConfig) error {
	for iter := 0; iter < cfg.MaxIterations; iter++ {
		if cfg.MaxNodes > 0 && g.NodeCount() >= cfg.MaxNodes {
			return nil
		}
		type addition struct {
			root EClassID
			node ENode
		}
		var additions []addition
		changed := false

		for _, rule := range rules {
			for _, class := range g.Classes() {
				for _, s := range rule.matches(g, class.ID) {
					for _, node := range rule.Apply(g, class.ID, s) {
						additions = append(additions, addition{root: class.ID, node: node})
					}
				}
			}
		}

		for _, a := range additions {
			newClass := g.Add(a.node)
			if g.Union(a.root, newClass) {
				changed = true
			}
		}
		g.Rebuild()

		if !changed {
			return nil
		}
	}
	return nil
}
