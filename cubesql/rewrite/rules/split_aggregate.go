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

package rules

import ("strings"

	"github.com/cubebridge/cubesql/cubesql/cube"
	"github.com/cubebridge/cubesql/cubesql/plan")

// MatchedMeasure is the result of resolving one outer aggregate function
// against a cube's declared measures: either a direct 1:1 measure
// reference, or (for AVG against additive-only cubes) a pair of measures
// the outer expression must be rebuilt from.
type MatchedMeasure struct {
	// Direct is set when the aggregate function matches a single measure
	// of the same aggregate type exactly (SUM↔SUM, COUNT↔SUM/COUNT,
	// MIN↔MIN, MAX↔MAX).
	Direct string

	// SumMember/CountMember are set instead when an outer AVG is
	// rewritten against a cube exposing only additive SUM/COUNT measures:
	// the outer expression becomes sum/count rather than a single member
	// reference, per original_source's
	// rewrite/rules/split/aggregate_function.rs.
	SumMember, CountMember string
}

func (m MatchedMeasure) IsAvgSplit() bool { return m.SumMember != "" && m.CountMember != "" }

// MatchAggregateFunction implements SPLIT rule family
// compatibility table for matching one aggregate-function shape
// (SUM/COUNT/MIN/MAX/AVG) to a compatible measure definition of cubeName in
// meta. column is the argument expression's underlying cube member name,
// e.g. "KibanaSampleDataEcommerce.count" for COUNT(*)-over-a-count-measure.
func MatchAggregateFunction(fn *plan.FuncExpr, cubeName string, meta cube.MetadataContext, argMember string) (MatchedMeasure, bool) {
	cubeMeta, ok := meta.Cubes[cubeName]
	if !ok {
		return MatchedMeasure{}, false
	}

	wantAgg, ok := aggregateTypeForFunc(fn.Name())
	if !ok {
		return MatchedMeasure{}, false
	}

	dot := strings.IndexByte(argMember, '.')
	memberName := argMember
	if dot >= 0 {
		memberName = argMember[dot+1:]
	}

	if declared, ok := cubeMeta.Measures[memberName]; ok {
		switch wantAgg {
			case cube.AggSum:
			if declared == cube.AggSum {
				return MatchedMeasure{Direct: argMember}, true
			}
			case cube.AggCount:
			if declared == cube.AggSum || declared == cube.AggCount {
				return MatchedMeasure{Direct: argMember}, true
			}
			case cube.AggMin:
			if declared == cube.AggMin {
				return MatchedMeasure{Direct: argMember}, true
			}
			case cube.AggMax:
			if declared == cube.AggMax {
				return MatchedMeasure{Direct: argMember}, true
			}
		}
	}

	if wantAgg == cube.AggAvg {
		// AVG has no direct measure counterpart; it must be rebuilt from
		// an additive SUM measure and a COUNT measure over the same
		// argument, both declared on the cube.
		sumMember, sumOK := findMeasureOfType(cubeMeta, memberName, cube.AggSum)
		countMember, countOK := findMeasureOfType(cubeMeta, memberName, cube.AggCount)
		if sumOK && countOK {
			return MatchedMeasure{SumMember: cubeName + "." + sumMember, CountMember: cubeName + "." + countMember}, true
		}
	}

	return MatchedMeasure{}, false
}

func aggregateTypeForFunc(name string) (cube.AggregateType, bool) {
	switch strings.ToUpper(name) {
	case "SUM":
		return cube.AggSum, true
	case "COUNT":
		return cube.AggCount, true
	case "MIN":
		return cube.AggMin, true
	case "MAX":
		return cube.AggMax, true
	case "AVG":
		return cube.AggAvg, true
	default:
		return "", false
	}
}

// findMeasureOfType looks for a measure of the given declared type whose
// name either equals base or is base with a conventional suffix
// ("_sum"/"_count"), the naming convention cube schemas commonly use when
// splitting an average into its additive components.
func findMeasureOfType(cubeMeta cube.CubeMeta, base string, typ cube.AggregateType) (string, bool) {
	candidates := []string{base, base + "_" + string(typ), string(typ)}
	for _, c := range candidates {
		if declared, ok := cubeMeta.Measures[c]; ok && declared == typ {
			return c, true
		}
	}
	for name, declared := range cubeMeta.Measures {
		if declared == typ {
			return name, true
		}
	}
	return "", false
}
