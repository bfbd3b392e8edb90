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

package parse

import ("fmt"
	"strconv"
	"strings"

	"github.com/dolthub/vitess/go/vt/sqlparser"

	"github.com/cubebridge/cubesql/cubesql/cube"
	cerrors "github.com/cubebridge/cubesql/cubesql/errors"
	"github.com/cubebridge/cubesql/cubesql/plan")

// Catalog is the minimal schema-lookup surface Build needs: the column
// names and types of one named table (in this implementation, always a
// cube). Build never resolves a member against cube semantics itself —
// that's the rewrite engine's job (compile.go's seedCubeScans) — it only
// needs enough of a schema to type-check column references while
// constructing the tree.
type Catalog interface {
	TableSchema(name string) (plan.Schema, bool)
}

// MetadataCatalog adapts a cube.MetadataContext into a Catalog, deriving
// one TableScan column per declared dimension, time dimension, segment
// and measure of each cube. Column typing follows member kinds:
// dimensions are Utf8, time dimensions are Timestamp, segments are
// Boolean, and measures are Int64 except AVG measures, which are Float64.
type MetadataCatalog struct {
	Meta cube.MetadataContext
}

func (c MetadataCatalog) TableSchema(name string) (plan.Schema, bool) {
	cubeMeta, ok := c.Meta.Cubes[name]
	if !ok {
		return nil, false
	}
	var sch plan.Schema
	for dim := range cubeMeta.Dimensions {
		sch = append(sch, plan.Column{Name: dim, Type: plan.Utf8, Nullable: true})
	}
	for td := range cubeMeta.TimeDimensions {
		sch = append(sch, plan.Column{Name: td, Type: plan.Timestamp, Nullable: true})
	}
	for seg := range cubeMeta.Segments {
		sch = append(sch, plan.Column{Name: seg, Type: plan.Boolean, Nullable: true})
	}
	for measure, agg := range cubeMeta.Measures {
		typ := plan.Int64
		if agg == cube.AggAvg {
			typ = plan.Float64
		}
		sch = append(sch, plan.Column{Name: measure, Type: typ, Nullable: true})
	}
	return sch, true
}

// Build turns a parsed vitess statement into a plan.Node tree. It covers a
// modest but functional subset of SELECT: single or joined FROM sources,
// WHERE with AND-chains of comparisons/IS NULL/IN, GROUP BY with
// SUM/COUNT/AVG/MIN/MAX aggregates, ORDER BY, LIMIT/OFFSET and DISTINCT.
// Anything broader — set operations, window functions, correlated
// subqueries in the select list — fails with cerrors.UnsupportedSql,
// matching Compile's own stance that a full SQL planner is out of scope.
func Build(stmt sqlparser.Statement, catalog Catalog) (plan.Node, error) {
	sel, ok := stmt.(*sqlparser.Select)
	if !ok {
		return nil, cerrors.UnsupportedSql.New(fmt.Sprintf("unsupported statement type %T", stmt))
	}
	return buildSelect(sel, catalog)
}

func buildSelect(sel *sqlparser.Select, catalog Catalog) (plan.Node, error) {
	node, err := buildFrom(sel.From, catalog)
	if err != nil {
		return nil, err
	}

	if sel.Where != nil && sel.Where.Expr != nil {
		pred, err := buildExpr(sel.Where.Expr, node.Schema())
		if err != nil {
			return nil, err
		}
		node = plan.NewFilter(pred, node)
	}

	node, err = buildProjectionOrAggregate(sel, node)
	if err != nil {
		return nil, err
	}

	if sel.Distinct != "" {
		node = plan.NewDistinct(node)
	}

	if len(sel.OrderBy) > 0 {
		fields, err := buildOrderBy(sel.OrderBy, node.Schema())
		if err != nil {
			return nil, err
		}
		node = plan.NewSort(fields, node)
	}

	if sel.Limit != nil {
		skip, fetch, err := buildLimit(sel.Limit)
		if err != nil {
			return nil, err
		}
		node = plan.NewLimit(skip, fetch, node)
	}

	return node, nil
}

func buildFrom(tables sqlparser.TableExprs, catalog Catalog) (plan.Node, error) {
	if len(tables) == 0 {
		return nil, cerrors.UnsupportedSql.New("SELECT without a FROM clause")
	}
	node, err := buildTableExpr(tables[0], catalog)
	if err != nil {
		return nil, err
	}
	for _, t := range tables[1:] {
		right, err := buildTableExpr(t, catalog)
		if err != nil {
			return nil, err
		}
		node = plan.NewCrossJoin(node, right)
	}
	return node, nil
}

func buildTableExpr(t sqlparser.TableExpr, catalog Catalog) (plan.Node, error) {
	switch t := t.(type) {
	case *sqlparser.AliasedTableExpr:
		switch inner := t.Expr.(type) {
			case sqlparser.TableName:
			name := inner.Name.String()
			sch, ok := catalog.TableSchema(name)
			if !ok {
				return nil, cerrors.UnsupportedSql.New(fmt.Sprintf("unknown table %q", name))
			}
			scan := plan.NewTableScan(name, sch)
			if !t.As.IsEmpty {
				return plan.NewSubquery(t.As.String(), scan), nil
			}
			return scan, nil
			case *sqlparser.Subquery:
			selStmt, ok := inner.Select.(*sqlparser.Select)
			if !ok {
				return nil, cerrors.UnsupportedSql.New("unsupported derived table shape")
			}
			child, err := buildSelect(selStmt, catalog)
			if err != nil {
				return nil, err
			}
			alias := t.As.String()
			if alias == "" {
				return nil, cerrors.UnsupportedSql.New("derived table requires an alias")
			}
			return plan.NewSubquery(alias, child), nil
			default:
			return nil, cerrors.UnsupportedSql.New(fmt.Sprintf("unsupported FROM source %T", inner))
		}
	case *sqlparser.JoinTableExpr:
		left, err := buildTableExpr(t.LeftExpr, catalog)
		if err != nil {
			return nil, err
		}
		right, err := buildTableExpr(t.RightExpr, catalog)
		if err != nil {
			return nil, err
		}
		if t.Condition.On == nil {
			return plan.NewCrossJoin(left, right), nil
		}
		joined := append(append(plan.Schema{}, left.Schema()...), right.Schema()...)
		cond, err := buildExpr(t.Condition.On, joined)
		if err != nil {
			return nil, err
		}
		return plan.NewJoin(joinTypeOf(t.Join), cond, left, right), nil
	case *sqlparser.ParenTableExpr:
		if len(t.Exprs) != 1 {
			return nil, cerrors.UnsupportedSql.New("unsupported parenthesized table expression")
		}
		return buildTableExpr(t.Exprs[0], catalog)
	default:
		return nil, cerrors.UnsupportedSql.New(fmt.Sprintf("unsupported FROM clause shape %T", t))
	}
}

func joinTypeOf(join string) plan.JoinType {
	lower := strings.ToLower(join)
	switch {
	case strings.Contains(lower, "left"):
		return plan.LeftJoin
	case strings.Contains(lower, "right"):
		return plan.RightJoin
	default:
		return plan.InnerJoin
	}
}

func buildProjectionOrAggregate(sel *sqlparser.Select, child plan.Node) (plan.Node, error) {
	var groupBy []plan.Expression
	for _, e := range sel.GroupBy {
		g, err := buildExpr(e, child.Schema())
		if err != nil {
			return nil, err
		}
		groupBy = append(groupBy, g)
	}

	var projExprs []plan.Expression
	var projNames []string
	var aggExprs []plan.Expression
	var aggNames []string
	sawAggregate := false

	for _, se := range sel.SelectExprs {
		switch se := se.(type) {
			case *sqlparser.StarExpr:
			for _, col := range child.Schema() {
				projExprs = append(projExprs, plan.NewColumn(col.Qualifier, col.Name, col.Type))
				projNames = append(projNames, col.Name)
			}
			case *sqlparser.AliasedExpr:
			expr, err := buildExpr(se.Expr, child.Schema())
			if err != nil {
				return nil, err
			}
			name := se.As.String()
			if name == "" {
				name = expr.String()
			}
			if fn, ok := expr.(*plan.FuncExpr); ok && isAggregateName(fn.Name()) {
				sawAggregate = true
				aggExprs = append(aggExprs, fn)
				aggNames = append(aggNames, name)
			} else {
				projExprs = append(projExprs, expr)
				projNames = append(projNames, name)
			}
			default:
			return nil, cerrors.UnsupportedSql.New(fmt.Sprintf("unsupported select item %T", se))
		}
	}

	if len(groupBy) == 0 && !sawAggregate {
		return plan.NewProjection(projExprs, projNames, child), nil
	}

	// An aggregating query: any plain (non-aggregate) select-list column
	// that wasn't already named by GROUP BY becomes an implicit grouping
	// key, matching the convention original_source's query planner
	// enforces strictly but this layer accepts leniently.
	groupNames := map[string]bool{}
	for _, g := range groupBy {
		groupNames[g.String()] = true
	}
	for i, e := range projExprs {
		if !groupNames[e.String()] {
			groupBy = append(groupBy, e)
			groupNames[e.String()] = true
			_ = projNames[i]
		}
	}

	return plan.NewAggregate(groupBy, aggExprs, aggNames, child), nil
}

func isAggregateName(name string) bool {
	switch strings.ToUpper(name) {
	case "SUM", "COUNT", "AVG", "MIN", "MAX":
		return true
	}
	return false
}

func buildOrderBy(orders sqlparser.OrderBy, schema plan.Schema) ([]plan.SortField, error) {
	fields := make([]plan.SortField, 0, len(orders))
	for _, o := range orders {
		expr, err := buildExpr(o.Expr, schema)
		if err != nil {
			return nil, err
		}
		asc := !strings.Contains(strings.ToLower(fmt.Sprint(o.Direction)), "desc")
		fields = append(fields, plan.SortField{Expr: expr, Asc: asc})
	}
	return fields, nil
}

func buildLimit(l *sqlparser.Limit) (skip, fetch *int64, err error) {
	if l.Offset != nil {
		v, ok := literalInt64(l.Offset)
		if !ok {
			return nil, nil, cerrors.UnsupportedSql.New("LIMIT offset must be a literal integer")
		}
		skip = &v
	}
	if l.Rowcount != nil {
		v, ok := literalInt64(l.Rowcount)
		if !ok {
			return nil, nil, cerrors.UnsupportedSql.New("LIMIT count must be a literal integer")
		}
		fetch = &v
	}
	return skip, fetch, nil
}

func literalInt64(e sqlparser.Expr) (int64, bool) {
	lit, ok := e.(*sqlparser.Literal)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseInt(string(lit.Val), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func buildExpr(e sqlparser.Expr, schema plan.Schema) (plan.Expression, error) {
	switch e := e.(type) {
	case *sqlparser.ColName:
		qualifier := e.Qualifier.Name.String()
		name := e.Name.String()
		typ := plan.Unknown
		idx := schema.IndexOf(name)
		if idx >= 0 {
			typ = schema[idx].Type
			qualifier = schema[idx].Qualifier
		}
		return plan.NewColumn(qualifier, name, typ), nil
	case *sqlparser.Literal:
		return buildLiteral(e)
	case *sqlparser.AndExpr:
		left, err := buildExpr(e.Left, schema)
		if err != nil {
			return nil, err
		}
		right, err := buildExpr(e.Right, schema)
		if err != nil {
			return nil, err
		}
		return plan.NewBinary("AND", left, right), nil
	case *sqlparser.OrExpr:
		left, err := buildExpr(e.Left, schema)
		if err != nil {
			return nil, err
		}
		right, err := buildExpr(e.Right, schema)
		if err != nil {
			return nil, err
		}
		return plan.NewBinary("OR", left, right), nil
	case *sqlparser.NotExpr:
		child, err := buildExpr(e.Expr, schema)
		if err != nil {
			return nil, err
		}
		return plan.NewNot(child), nil
	case *sqlparser.ParenExpr:
		return buildExpr(e.Expr, schema)
	case *sqlparser.IsExpr:
		child, err := buildExpr(e.Left, schema)
		if err != nil {
			return nil, err
		}
		opStr := strings.ToLower(fmt.Sprint(e.Right))
		isNull := plan.NewIsNull(child)
		isNull.Not = strings.Contains(opStr, "not")
		return isNull, nil
	case *sqlparser.ComparisonExpr:
		return buildComparison(e, schema)
	case *sqlparser.FuncExpr:
		return buildFunc(e, schema)
	default:
		return nil, cerrors.UnsupportedSql.New(fmt.Sprintf("unsupported expression %T", e))
	}
}

func buildLiteral(lit *sqlparser.Literal) (plan.Expression, error) {
	switch lit.Type {
	case sqlparser.IntVal:
		v, err := strconv.ParseInt(string(lit.Val), 10, 64)
		if err != nil {
			return nil, cerrors.UnsupportedSql.New(fmt.Sprintf("malformed integer literal %q", lit.Val))
		}
		return plan.NewLiteral(v, plan.Int64), nil
	case sqlparser.FloatVal:
		v, err := strconv.ParseFloat(string(lit.Val), 64)
		if err != nil {
			return nil, cerrors.UnsupportedSql.New(fmt.Sprintf("malformed float literal %q", lit.Val))
		}
		return plan.NewLiteral(v, plan.Float64), nil
	default:
		return plan.NewLiteral(string(lit.Val), plan.Utf8), nil
	}
}

func buildComparison(e *sqlparser.ComparisonExpr, schema plan.Schema) (plan.Expression, error) {
	left, err := buildExpr(e.Left, schema)
	if err != nil {
		return nil, err
	}

	opStr := strings.ToLower(e.Operator.ToString)
	switch opStr {
	case "in", "not in":
		tuple, ok := e.Right.(sqlparser.ValTuple)
		if !ok {
			return nil, cerrors.UnsupportedSql.New("IN requires a literal list")
		}
		list := make([]plan.Expression, 0, len(tuple))
		for _, item := range tuple {
			v, err := buildExpr(item, schema)
			if err != nil {
				return nil, err
			}
			list = append(list, v)
		}
		in := plan.NewInList(left, list)
		in.Not = opStr == "not in"
		return in, nil
	}

	right, err := buildExpr(e.Right, schema)
	if err != nil {
		return nil, err
	}

	normalized, ok := normalizeComparisonOperator(opStr)
	if !ok {
		return nil, cerrors.UnsupportedSql.New(fmt.Sprintf("unsupported comparison operator %q", opStr))
	}
	return plan.NewBinary(normalized, left, right), nil
}

func normalizeComparisonOperator(op string) (string, bool) {
	switch op {
	case "=":
		return "=", true
	case "!=", "<>":
		return "<>", true
	case "<":
		return "<", true
	case "<=":
		return "<=", true
	case ">":
		return ">", true
	case ">=":
		return ">=", true
	case "like":
		return "LIKE", true
	case "not like":
		return "NOT LIKE", true
	}
	return "", false
}

func buildFunc(e *sqlparser.FuncExpr, schema plan.Schema) (plan.Expression, error) {
	name := e.Name.String()
	if strings.EqualFold(name, "count") && isStarCount(e) {
		return plan.NewFunc("COUNT", plan.Int64), nil
	}

	args := make([]plan.Expression, 0, len(e.Exprs))
	for _, se := range e.Exprs {
		aliased, ok := se.(*sqlparser.AliasedExpr)
		if !ok {
			continue // a bare *StarExpr inside a non-COUNT call has no scalar meaning here
		}
		arg, err := buildExpr(aliased.Expr, schema)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}

	typ := plan.Unknown
	if len(args) > 0 {
		typ = args[0].Type()
	}
	if isAggregateName(name) {
		switch strings.ToUpper(name) {
			case "COUNT":
			typ = plan.Int64
			case "AVG":
			typ = plan.Float64
		}
	}
	return plan.NewFunc(strings.ToUpper(name), typ, args...), nil
}

func isStarCount(e *sqlparser.FuncExpr) bool {
	for _, se := range e.Exprs {
		if _, ok := se.(*sqlparser.StarExpr); ok {
			return true
		}
	}
	return false
}
