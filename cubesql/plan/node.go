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

// Package plan implements the logical plan (C2): a tree of nodes, each
// carrying an attached schema, that the optimizer (C4) and rewrite engine
// (C3) operate on.
//
// The node set and its invariants come from : a Filter never
// introduces new names, and a Projection renames exactly its expression
// list. No node here retains a strong reference to any other variant of
// itself the way the e-graph's classes do; the plan is always a tree, never
// a DAG.
package plan

import "fmt"

// Node is the shared contract every logical-plan variant implements:
// Schema, Children, WithChildren, String.
type Node interface {
	fmt.Stringer
	Schema() Schema
	Children() []Node
	WithChildren(children ...Node) (Node, error)
}

// UnaryNode is embedded by every node with exactly one child.
type UnaryNode struct {
	Child Node
}

func (u UnaryNode) Children() []Node { return []Node{u.Child} }

func unaryChild(nodeName string, ch []Node) (Node, error) {
	if len(ch) != 1 {
		return nil, fmt.Errorf("plan: %s takes 1 child, got %d", nodeName, len(ch))
	}
	return ch[0], nil
}

// BinaryNode is embedded by nodes with exactly two children (Join,
// CrossJoin, Union).
type BinaryNode struct {
	Left, Right Node
}

func (b BinaryNode) Children() []Node { return []Node{b.Left, b.Right} }

// ---- Projection ----

type Projection struct {
	UnaryNode
	Projections []Expression
	ColNames []string
}

func NewProjection(projections []Expression, names []string, child Node) *Projection {
	return &Projection{UnaryNode: UnaryNode{Child: child}, Projections: projections, ColNames: names}
}

func (p *Projection) Schema() Schema {
	out := make(Schema, len(p.Projections))
	for i, e := range p.Projections {
		out[i] = Column{Name: p.ColNames[i], Type: e.Type(), Nullable: true}
	}
	return out
}

func (p *Projection) String() string {
	return fmt.Sprintf("Projection(%s)\n%s", joinExprs(p.Projections), indent(p.Child.String()))
}

func (p *Projection) WithChildren(ch ...Node) (Node, error) {
	c, err := unaryChild("Projection", ch)
	if err != nil {
		return nil, err
	}
	return &Projection{UnaryNode: UnaryNode{Child: c}, Projections: p.Projections, ColNames: p.ColNames}, nil
}

// ---- Filter ----

type Filter struct {
	UnaryNode
	Predicate Expression
}

func NewFilter(predicate Expression, child Node) *Filter {
	return &Filter{UnaryNode: UnaryNode{Child: child}, Predicate: predicate}
}

func (f *Filter) Schema() Schema { return f.Child.Schema() }
func (f *Filter) String() string {
	return fmt.Sprintf("Filter(%s)\n%s", f.Predicate, indent(f.Child.String()))
}
func (f *Filter) WithChildren(ch ...Node) (Node, error) {
	c, err := unaryChild("Filter", ch)
	if err != nil {
		return nil, err
	}
	return &Filter{UnaryNode: UnaryNode{Child: c}, Predicate: f.Predicate}, nil
}

// ---- Aggregate ----

type Aggregate struct {
	UnaryNode
	GroupBy []Expression
	Aggregations []Expression
	ColNames []string
}

func NewAggregate(groupBy, aggregations []Expression, names []string, child Node) *Aggregate {
	return &Aggregate{UnaryNode: UnaryNode{Child: child}, GroupBy: groupBy, Aggregations: aggregations, ColNames: names}
}

func (a *Aggregate) Schema() Schema {
	out := make(Schema, 0, len(a.GroupBy)+len(a.Aggregations))
	for _, e := range a.GroupBy {
		out = append(out, Column{Name: e.String(), Type: e.Type(), Nullable: true})
	}
	for i, e := range a.Aggregations {
		out = append(out, Column{Name: a.ColNames[i], Type: e.Type(), Nullable: true})
	}
	return out
}
func (a *Aggregate) String() string {
	return fmt.Sprintf("Aggregate(group=[%s], agg=[%s])\n%s", joinExprs(a.GroupBy), joinExprs(a.Aggregations), indent(a.Child.String()))
}
func (a *Aggregate) WithChildren(ch ...Node) (Node, error) {
	c, err := unaryChild("Aggregate", ch)
	if err != nil {
		return nil, err
	}
	return &Aggregate{UnaryNode: UnaryNode{Child: c}, GroupBy: a.GroupBy, Aggregations: a.Aggregations, ColNames: a.ColNames}, nil
}

// ---- Sort ----

type SortField struct {
	Expr Expression
	Asc bool
}

type Sort struct {
	UnaryNode
	SortFields []SortField
}

func NewSort(fields []SortField, child Node) *Sort {
	return &Sort{UnaryNode: UnaryNode{Child: child}, SortFields: fields}
}

func (s *Sort) Schema() Schema { return s.Child.Schema() }
func (s *Sort) String() string {
	return fmt.Sprintf("Sort(%s)\n%s", sortFieldsString(s.SortFields), indent(s.Child.String()))
}
func (s *Sort) WithChildren(ch ...Node) (Node, error) {
	c, err := unaryChild("Sort", ch)
	if err != nil {
		return nil, err
	}
	return &Sort{UnaryNode: UnaryNode{Child: c}, SortFields: s.SortFields}, nil
}

func sortFieldsString(fields []SortField) string {
	s := ""
	for i, f := range fields {
		if i > 0 {
			s += ", "
		}
		dir := "ASC"
		if !f.Asc {
			dir = "DESC"
		}
		s += fmt.Sprintf("%s %s", f.Expr, dir)
	}
	return s
}

// ---- Join / CrossJoin ----

type JoinType int

const (InnerJoin JoinType = iota
	LeftJoin
	RightJoin)

type Join struct {
	BinaryNode
	Type JoinType
	Condition Expression
}

func NewJoin(typ JoinType, cond Expression, left, right Node) *Join {
	return &Join{BinaryNode: BinaryNode{Left: left, Right: right}, Type: typ, Condition: cond}
}

func (j *Join) Schema() Schema { return append(append(Schema{}, j.Left.Schema()...), j.Right.Schema()...) }
func (j *Join) String() string {
	return fmt.Sprintf("Join(%s)\n%s\n%s", j.Condition, indent(j.Left.String()), indent(j.Right.String()))
}
func (j *Join) WithChildren(ch ...Node) (Node, error) {
	if len(ch) != 2 {
		return nil, fmt.Errorf("plan: Join takes 2 children, got %d", len(ch))
	}
	return &Join{BinaryNode: BinaryNode{Left: ch[0], Right: ch[1]}, Type: j.Type, Condition: j.Condition}, nil
}

type CrossJoin struct {
	BinaryNode
}

func NewCrossJoin(left, right Node) *CrossJoin {
	return &CrossJoin{BinaryNode: BinaryNode{Left: left, Right: right}}
}

func (c *CrossJoin) Schema() Schema {
	return append(append(Schema{}, c.Left.Schema()...), c.Right.Schema()...)
}
func (c *CrossJoin) String() string {
	return fmt.Sprintf("CrossJoin\n%s\n%s", indent(c.Left.String()), indent(c.Right.String()))
}
func (c *CrossJoin) WithChildren(ch ...Node) (Node, error) {
	if len(ch) != 2 {
		return nil, fmt.Errorf("plan: CrossJoin takes 2 children, got %d", len(ch))
	}
	return &CrossJoin{BinaryNode: BinaryNode{Left: ch[0], Right: ch[1]}}, nil
}

// RightYieldsSingleRow reports whether the right child is guaranteed to
// produce exactly one row — an Aggregate with no GROUP BY expressions.
// LimitPushDown's CrossJoin rule  uses this to decide
// whether it's safe to push a limit into the left child alone.
func (c *CrossJoin) RightYieldsSingleRow() bool {
	agg, ok := c.Right.(*Aggregate)
	return ok && len(agg.GroupBy) == 0
}

// ---- Union ----

type Union struct {
	BinaryNode
	Distinct bool
}

func NewUnion(left, right Node, distinct bool) *Union {
	return &Union{BinaryNode: BinaryNode{Left: left, Right: right}, Distinct: distinct}
}

func (u *Union) Schema() Schema { return u.Left.Schema() }
func (u *Union) String() string {
	return fmt.Sprintf("Union(distinct=%v)\n%s\n%s", u.Distinct, indent(u.Left.String()), indent(u.Right.String()))
}
func (u *Union) WithChildren(ch ...Node) (Node, error) {
	if len(ch) != 2 {
		return nil, fmt.Errorf("plan: Union takes 2 children, got %d", len(ch))
	}
	return &Union{BinaryNode: BinaryNode{Left: ch[0], Right: ch[1]}, Distinct: u.Distinct}, nil
}

// ---- Limit ----

type Limit struct {
	UnaryNode
	Skip, Fetch *int64 // nil means unset
}

func NewLimit(skip, fetch *int64, child Node) *Limit {
	return &Limit{UnaryNode: UnaryNode{Child: child}, Skip: skip, Fetch: fetch}
}

func (l *Limit) Schema() Schema { return l.Child.Schema() }
func (l *Limit) String() string {
	return fmt.Sprintf("Limit(skip=%s, fetch=%s)\n%s", ptrStr(l.Skip), ptrStr(l.Fetch), indent(l.Child.String()))
}
func (l *Limit) WithChildren(ch ...Node) (Node, error) {
	c, err := unaryChild("Limit", ch)
	if err != nil {
		return nil, err
	}
	return &Limit{UnaryNode: UnaryNode{Child: c}, Skip: l.Skip, Fetch: l.Fetch}, nil
}

func ptrStr(p *int64) string {
	if p == nil {
		return "none"
	}
	return fmt.Sprintf("%d", *p)
}

// ---- Subquery ----

type Subquery struct {
	UnaryNode
	Alias string
}

func NewSubquery(alias string, child Node) *Subquery {
	return &Subquery{UnaryNode: UnaryNode{Child: child}, Alias: alias}
}

func (s *Subquery) Schema() Schema {
	child := s.Child.Schema()
	out := make(Schema, len(child))
	for i, c := range child {
		out[i] = Column{Qualifier: s.Alias, Name: c.Name, Type: c.Type, Nullable: c.Nullable}
	}
	return out
}
func (s *Subquery) String() string {
	return fmt.Sprintf("SubqueryAlias(%s)\n%s", s.Alias, indent(s.Child.String()))
}
func (s *Subquery) WithChildren(ch ...Node) (Node, error) {
	c, err := unaryChild("Subquery", ch)
	if err != nil {
		return nil, err
	}
	return &Subquery{UnaryNode: UnaryNode{Child: c}, Alias: s.Alias}, nil
}

// ---- Distinct ----

type Distinct struct{ UnaryNode }

func NewDistinct(child Node) *Distinct { return &Distinct{UnaryNode{Child: child}} }

func (d *Distinct) Schema() Schema { return d.Child.Schema() }
func (d *Distinct) String() string { return fmt.Sprintf("Distinct\n%s", indent(d.Child.String())) }
func (d *Distinct) WithChildren(ch ...Node) (Node, error) {
	c, err := unaryChild("Distinct", ch)
	if err != nil {
		return nil, err
	}
	return &Distinct{UnaryNode{Child: c}}, nil
}

// ---- Window ----

type WindowFunc struct {
	Func Expression
	PartitionBy []Expression
	OrderBy []SortField
	Name string
}

type Window struct {
	UnaryNode
	Funcs []WindowFunc
}

func NewWindow(funcs []WindowFunc, child Node) *Window {
	return &Window{UnaryNode: UnaryNode{Child: child}, Funcs: funcs}
}

func (w *Window) Schema() Schema {
	out := append(Schema{}, w.Child.Schema()...)
	for _, f := range w.Funcs {
		out = append(out, Column{Name: f.Name, Type: f.Func.Type(), Nullable: true})
	}
	return out
}
func (w *Window) String() string { return fmt.Sprintf("Window\n%s", indent(w.Child.String())) }
func (w *Window) WithChildren(ch ...Node) (Node, error) {
	c, err := unaryChild("Window", ch)
	if err != nil {
		return nil, err
	}
	return &Window{UnaryNode: UnaryNode{Child: c}, Funcs: w.Funcs}, nil
}

// ---- Repartition ----

type Repartition struct {
	UnaryNode
	Partitions int
}

func NewRepartition(partitions int, child Node) *Repartition {
	return &Repartition{UnaryNode: UnaryNode{Child: child}, Partitions: partitions}
}

func (r *Repartition) Schema() Schema { return r.Child.Schema() }
func (r *Repartition) String() string {
	return fmt.Sprintf("Repartition(%d)\n%s", r.Partitions, indent(r.Child.String()))
}
func (r *Repartition) WithChildren(ch ...Node) (Node, error) {
	c, err := unaryChild("Repartition", ch)
	if err != nil {
		return nil, err
	}
	return &Repartition{UnaryNode: UnaryNode{Child: c}, Partitions: r.Partitions}, nil
}

// ---- TableScan ----

type TableScan struct {
	Name string
	Sch Schema
}

func NewTableScan(name string, schema Schema) *TableScan {
	return &TableScan{Name: name, Sch: schema}
}

func (t *TableScan) Schema() Schema { return t.Sch }
func (t *TableScan) Children() []Node { return nil }
func (t *TableScan) String() string { return fmt.Sprintf("TableScan(%s)", t.Name) }
func (t *TableScan) WithChildren(ch ...Node) (Node, error) {
	if len(ch) != 0 {
		return nil, fmt.Errorf("plan: TableScan takes no children, got %d", len(ch))
	}
	return t, nil
}

// ---- EmptyRelation ----

type EmptyRelation struct {
	Sch Schema
}

func NewEmptyRelation(schema Schema) *EmptyRelation { return &EmptyRelation{Sch: schema} }

func (e *EmptyRelation) Schema() Schema { return e.Sch }
func (e *EmptyRelation) Children() []Node { return nil }
func (e *EmptyRelation) String() string { return "EmptyRelation" }
func (e *EmptyRelation) WithChildren(ch ...Node) (Node, error) {
	if len(ch) != 0 {
		return nil, fmt.Errorf("plan: EmptyRelation takes no children, got %d", len(ch))
	}
	return e, nil
}

// ---- Extension ----

// Extension is implemented by logical nodes owned outside this package —
// CubeScan (C5) is the only one, but the seam is generic so a host could
// register others without this package knowing about them.
type Extension interface {
	Node
	ExtensionName() string
}

// indent is used by every node's String to render children, one node per
// line with each child indented under its parent.
func indent(s string) string {
	lines := splitLines(s)
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\n"
		}
		out += " ├─ " + l
	}
	return out
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	lines = append(lines, s[start:])
	return lines
}
