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

package plan

import ("fmt"

	"github.com/cubebridge/cubesql/cubesql/cube")

// AuthContext is the opaque identity/claims bundle threaded from the wire
// front-ends through to the Transport, per ("auth_context").
type AuthContext struct {
	UserID string
	Security map[string]interface{}
}

// CubeScan is the logical-plan Extension node (C5) that the rewrite engine
// (C3) produces once it finds a cube-shaped rewrite of the query. It
// implements plan.Extension directly rather than living in the cubescan
// package, so the rewrite engine (which only depends on plan and cube) can
// build one without importing the runtime execution package — the runtime
// (cubescan.Exec) depends on plan, not the other way around.
type CubeScan struct {
	Sch Schema
	Request cube.CubeQuery
	Auth AuthContext
	// CubeName is the single cube this scan targets. Tracked explicitly
	// because the compiler needs it while incrementally populating
	// Request (measures/dimensions are only fully qualified once chosen),
	// and because today's compile pipeline only recognizes single-cube
	// queries (Non-goals exclude a full multi-cube planner).
	CubeName string
	// Wrapped marks a scan that has already had an OrderReplacer resolved
	// onto it; push-down-sort's own rule checks this flag
	// ("CubeScanOrder, wrapped=false").
	Wrapped bool
	// AvgDivisions records, for each output schema column that represents
	// an AVG aggregate split against an additive-only cube, the two
	// underlying measures the runtime (C5) must divide to produce that
	// column's value. Request.Measures carries both raw measures; Sch
	// carries only the one averaged output column the original query
	// asked for.
	AvgDivisions map[string]AvgDivision
}

// AvgDivision names the two additive measures an AVG-split output column
// is computed from: value = sum(SumMember) / sum(CountMember).
type AvgDivision struct {
	SumMember string
	CountMember string
}

func NewCubeScan(schema Schema, request cube.CubeQuery, auth AuthContext) *CubeScan {
	return &CubeScan{Sch: schema, Request: request, Auth: auth}
}

func (c *CubeScan) Schema() Schema { return c.Sch }
func (c *CubeScan) Children() []Node { return nil }
func (c *CubeScan) ExtensionName() string { return "CubeScan" }
func (c *CubeScan) String() string {
	return fmt.Sprintf("CubeScan(measures=%v, dimensions=%v, order=%v, limit=%s)",
		c.Request.Measures, c.Request.Dimensions, c.Request.Order, ptrStr(c.Request.Limit))
}
func (c *CubeScan) WithChildren(ch ...Node) (Node, error) {
	if len(ch) != 0 {
		return nil, fmt.Errorf("plan: CubeScan takes no children, got %d", len(ch))
	}
	return c, nil
}

// WithOrder returns a copy of the scan with its Request.Order replaced,
// used by the push-down-sort rule  once it has mapped every
// sort key through to a cube member.
func (c *CubeScan) WithOrder(order []cube.OrderEntry) *CubeScan {
	cp := *c
	cp.Request.Order = order
	cp.Wrapped = true
	return &cp
}

// WithLimit returns a copy of the scan with Limit/Offset set, used by the
// rewrite engine's limit-pushdown rule once a limit reaches the scan.
func (c *CubeScan) WithLimit(limit, offset *int64) *CubeScan {
	cp := *c
	cp.Request.Limit = limit
	cp.Request.Offset = offset
	return &cp
}

// WithFilters returns a copy of the scan with additional top-level filters
// AND-ed onto Request.Filters, used by the rewrite engine's filter-pushdown
// rule once a Filter's predicate reaches the scan.
func (c *CubeScan) WithFilters(extra []cube.CubeFilter) *CubeScan {
	cp := *c
	cp.Request.Filters = append(append([]cube.CubeFilter{}, c.Request.Filters...), extra...)
	return &cp
}

var _ Extension = (*CubeScan)(nil)
