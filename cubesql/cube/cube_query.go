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

package cube

import ("fmt"
	"strings"

	cerrors "github.com/cubebridge/cubesql/cubesql/errors")

// FilterOperator is one of the cube filter operators of 
type FilterOperator string

const (OpEquals FilterOperator = "equals"
	OpNotEquals FilterOperator = "notEquals"
	OpContains FilterOperator = "contains"
	OpNotContains FilterOperator = "notContains"
	OpStartsWith FilterOperator = "startsWith"
	OpNotStartsWith FilterOperator = "notStartsWith"
	OpEndsWith FilterOperator = "endsWith"
	OpNotEndsWith FilterOperator = "notEndsWith"
	OpGt FilterOperator = "gt"
	OpGte FilterOperator = "gte"
	OpLt FilterOperator = "lt"
	OpLte FilterOperator = "lte"
	OpSet FilterOperator = "set"
	OpNotSet FilterOperator = "notSet"
	OpInDateRange FilterOperator = "inDateRange"
	OpNotInDateRange FilterOperator = "notInDateRange")

// negationInvolution is the fixed table from the GLOSSARY: applying it
// twice is the identity.
var negationInvolution = map[FilterOperator]FilterOperator{
	OpEquals: OpNotEquals,
	OpNotEquals: OpEquals,
	OpContains: OpNotContains,
	OpNotContains: OpContains,
	OpStartsWith: OpNotStartsWith,
	OpNotStartsWith: OpStartsWith,
	OpEndsWith: OpNotEndsWith,
	OpNotEndsWith: OpEndsWith,
	OpGt: OpLte,
	OpLte: OpGt,
	OpLt: OpGte,
	OpGte: OpLt,
	OpSet: OpNotSet,
	OpNotSet: OpSet,
	OpInDateRange: OpNotInDateRange,
	OpNotInDateRange: OpInDateRange,
}

// Negate returns the involute of op. Panics on an operator not present in
// the table, since every FilterOperator constant has an entry.
func (op FilterOperator) Negate() FilterOperator {
	neg, ok := negationInvolution[op]
	if !ok {
		panic(fmt.Sprintf("rewrite: no negation defined for operator %q", op))
	}
	return neg
}

// BoolOp combines cube filters.
type BoolOp string

const (And BoolOp = "and"
	Or BoolOp = "or")

// CubeFilter is a node of the filter tree: either a leaf comparing a member
// to values, or an internal node combining children with And/Or.
type CubeFilter struct {
	// Leaf fields.
	Member string
	Operator FilterOperator
	Values []string

	// Internal-node fields.
	BoolOp BoolOp
	Children []CubeFilter
}

func (f CubeFilter) IsLeaf() bool { return f.Member != "" }

// TimeDimension is one entry of CubeQuery.TimeDimensions.
type TimeDimension struct {
	Dimension string
	Granularity string // optional, "" means none
	DateRangeFrom, DateRangeTo string // optional
}

// OrderEntry is one (member, asc|desc) pair.
type OrderEntry struct {
	Member string
	Asc bool
}

// CubeQuery is the semantic IR produced by the rewrite engine .
type CubeQuery struct {
	Measures []string
	Dimensions []string
	TimeDimensions []TimeDimension
	Segments []string
	Filters []CubeFilter
	Order []OrderEntry
	Limit *int64
	Offset *int64
	Ungrouped bool
}

// MemberKind classifies a cube member for validation purposes.
type MemberKind int

const (MeasureKind MemberKind = iota
	DimensionKind
	SegmentKind
	TimeDimensionKind)

// CubeMeta describes one cube's members, per metadata context.
type CubeMeta struct {
	Name string
	Measures map[string]AggregateType
	Dimensions map[string]bool
	TimeDimensions map[string]bool
	Segments map[string]bool
	PrimaryKeys []string
}

// AggregateType is the declared aggregation behavior of a measure, used by
// the SPLIT rule family's SUM/COUNT/MIN/MAX/AVG compatibility table.
type AggregateType string

const (AggSum AggregateType = "sum"
	AggCount AggregateType = "count"
	AggMin AggregateType = "min"
	AggMax AggregateType = "max"
	AggAvg AggregateType = "avg")

// MetadataContext is {cube_name -> CubeMeta}, immutable during a single
// compilation .
type MetadataContext struct {
	Cubes map[string]CubeMeta
}

// Resolve validates that member (formatted "cube.member") exists and has
// the expected kind, returning UnknownMember on failure.
func (m MetadataContext) Resolve(member string, kind MemberKind) error {
	dot := strings.IndexByte(member, '.')
	if dot < 0 {
		return cerrors.UnknownMember.New(member)
	}
	cubeName, memberName := member[:dot], member[dot+1:]
	cube, ok := m.Cubes[cubeName]
	if !ok {
		return cerrors.UnknownMember.New(member)
	}
	switch kind {
	case MeasureKind:
		if _, ok := cube.Measures[memberName]; !ok {
			return cerrors.UnknownMember.New(member)
		}
	case DimensionKind:
		if !cube.Dimensions[memberName] {
			return cerrors.UnknownMember.New(member)
		}
	case SegmentKind:
		if !cube.Segments[memberName] {
			return cerrors.UnknownMember.New(member)
		}
	case TimeDimensionKind:
		if !cube.TimeDimensions[memberName] {
			return cerrors.UnknownMember.New(member)
		}
	}
	return nil
}

// Validate checks every invariant of Cube query data model:
// every reference resolves, measures/dimensions/segments/time dimensions
// are used at the right kind.
func (q CubeQuery) Validate(meta MetadataContext) error {
	for _, m := range q.Measures {
		if err := meta.Resolve(m, MeasureKind); err != nil {
			return err
		}
	}
	for _, d := range q.Dimensions {
		if err := meta.Resolve(d, DimensionKind); err != nil {
			return err
		}
	}
	for _, s := range q.Segments {
		if err := meta.Resolve(s, SegmentKind); err != nil {
			return err
		}
	}
	for _, td := range q.TimeDimensions {
		if err := meta.Resolve(td.Dimension, TimeDimensionKind); err != nil {
			return err
		}
	}
	var walkFilters func([]CubeFilter) error
	walkFilters = func(filters []CubeFilter) error {
		for _, f := range filters {
			if f.IsLeaf() {
				// A filter member may reference a measure, dimension, time
				// dimension, or segment.
				if meta.Resolve(f.Member, MeasureKind) != nil &&
				meta.Resolve(f.Member, DimensionKind) != nil &&
				meta.Resolve(f.Member, SegmentKind) != nil &&
				meta.Resolve(f.Member, TimeDimensionKind) != nil {
					return cerrors.UnknownMember.New(f.Member)
				}
			} else if err := walkFilters(f.Children); err != nil {
				return err
			}
		}
		return nil
	}
	return walkFilters(q.Filters)
}
