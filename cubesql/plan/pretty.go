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

import "strings"

// Pretty renders a plan as a single-line, "→"-joined chain for the common
// case of a straight line of unary operators, falling back to bracketed
// sub-chains at binary nodes. This is the format seed scenarios
// (S2, S3) compare against, grounded on original_source's
// queryplanner/pretty_printers.rs convention of one compact line per plan.
func Pretty(n Node) string {
	var parts []string
	cur := n
	for {
		parts = append(parts, head(cur))
		children := cur.Children()
		if len(children) != 1 {
			break
		}
		cur = children[0]
	}
	return strings.Join(parts, " → ")
}

// head renders a single node's own label, including bracketed
// representations of any non-unary children so binary nodes still produce a
// readable (if not further chained) line.
func head(n Node) string {
	switch t := n.(type) {
	case *Projection:
		return "Projection"
	case *Filter:
		return "Filter(" + t.Predicate.String() + ")"
	case *Aggregate:
		return "Aggregate(group=[" + joinExprs(t.GroupBy) + "], agg=[" + joinExprs(t.Aggregations) + "])"
	case *Sort:
		return "Sort(" + sortFieldsString(t.SortFields) + ")"
	case *Join:
		return "Join(" + t.Condition.String() + ", [" + Pretty(t.Left) + "], [" + Pretty(t.Right) + "])"
	case *CrossJoin:
		return "CrossJoin([" + Pretty(t.Left) + "], [" + Pretty(t.Right) + "])"
	case *Union:
		return "Union([" + Pretty(t.Left) + "], [" + Pretty(t.Right) + "])"
	case *Limit:
		return "Limit(skip=" + ptrStr(t.Skip) + ", fetch=" + ptrStr(t.Fetch) + ")"
	case *Subquery:
		return "SubqueryAlias(" + t.Alias + ")"
	case *Distinct:
		return "Distinct"
	case *Window:
		return "Window"
	case *Repartition:
		return "Repartition"
	case *TableScan:
		return "TableScan(" + t.Name + ")"
	case *EmptyRelation:
		return "EmptyRelation"
	default:
		if ext, ok := n.(Extension); ok {
			return ext.ExtensionName()
		}
		return n.String()
	}
}
