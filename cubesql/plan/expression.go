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

package plan

import "fmt"

// Expression is the scalar-expression counterpart of Node: it too supports
// post-order traversal and reconstruction. Kept intentionally small; the
// rewrite engine's e-graph wraps these in its own ENode representation
// rather than sharing this type directly (plans and
// e-graph classes never share strong references).
type Expression interface {
	fmt.Stringer
	Type() Type
	Children() []Expression
	WithChildren(children ...Expression) (Expression, error)
	Resolved() bool
}

// Column references a name in the child schema by qualifier and name.
type ColumnExpr struct {
	Qualifier string
	Name      string
	Typ       Type
}

func NewColumn(qualifier, name string, typ Type) *ColumnExpr {
	return &ColumnExpr{Qualifier: qualifier, Name: name, Typ: typ}
}

func (c *ColumnExpr) String() string {
	if c.Qualifier == "" {
		return c.Name
	}
	return c.Qualifier + "." + c.Name
}
func (c *ColumnExpr) Type() Type                { return c.Typ }
func (c *ColumnExpr) Children() []Expression    { return nil }
func (c *ColumnExpr) Resolved() bool            { return true }
func (c *ColumnExpr) WithChildren(ch ...Expression) (Expression, error) {
	if len(ch) != 0 {
		return nil, fmt.Errorf("plan: ColumnExpr takes no children, got %d", len(ch))
	}
	return c, nil
}

// Literal is a constant value.
type LiteralExpr struct {
	Value interface{}
	Typ   Type
}

func NewLiteral(value interface{}, typ Type) *LiteralExpr {
	return &LiteralExpr{Value: value, Typ: typ}
}

func (l *LiteralExpr) String() string             { return fmt.Sprintf("%v", l.Value) }
func (l *LiteralExpr) Type() Type                 { return l.Typ }
func (l *LiteralExpr) Children() []Expression     { return nil }
func (l *LiteralExpr) Resolved() bool             { return true }
func (l *LiteralExpr) WithChildren(ch ...Expression) (Expression, error) {
	if len(ch) != 0 {
		return nil, fmt.Errorf("plan: LiteralExpr takes no children, got %d", len(ch))
	}
	return l, nil
}

// AliasExpr renames its child in the owning Projection's schema.
type AliasExpr struct {
	Child Expression
	Name  string
}

func NewAlias(name string, child Expression) *AliasExpr {
	return &AliasExpr{Child: child, Name: name}
}

func (a *AliasExpr) String() string         { return fmt.Sprintf("%s AS %s", a.Child, a.Name) }
func (a *AliasExpr) Type() Type             { return a.Child.Type() }
func (a *AliasExpr) Children() []Expression { return []Expression{a.Child} }
func (a *AliasExpr) Resolved() bool         { return a.Child.Resolved() }
func (a *AliasExpr) WithChildren(ch ...Expression) (Expression, error) {
	if len(ch) != 1 {
		return nil, fmt.Errorf("plan: AliasExpr takes 1 child, got %d", len(ch))
	}
	return &AliasExpr{Child: ch[0], Name: a.Name}, nil
}

// FuncExpr is a scalar or aggregate function call, e.g. Lower(x), Cast(x,
// t), SUM(x), COUNT(*).
type FuncExpr struct {
	Name_    string
	Args     []Expression
	Distinct bool
	Typ      Type
}

func NewFunc(name string, typ Type, args ...Expression) *FuncExpr {
	return &FuncExpr{Name_: name, Args: args, Typ: typ}
}

func (f *FuncExpr) Name() string { return f.Name_ }
func (f *FuncExpr) String() string {
	return fmt.Sprintf("%s(%s)", f.Name_, joinExprs(f.Args))
}
func (f *FuncExpr) Type() Type             { return f.Typ }
func (f *FuncExpr) Children() []Expression { return f.Args }
func (f *FuncExpr) Resolved() bool {
	for _, a := range f.Args {
		if !a.Resolved() {
			return false
		}
	}
	return true
}
func (f *FuncExpr) WithChildren(ch ...Expression) (Expression, error) {
	cp := *f
	cp.Args = ch
	return &cp, nil
}

// BinaryOp is a binary operator: comparisons (=, <>, <, <=, >, >=, LIKE,
// ILIKE) and boolean connectives (AND, OR).
type BinaryOp struct {
	Op          string
	Left, Right Expression
}

func NewBinary(op string, left, right Expression) *BinaryOp {
	return &BinaryOp{Op: op, Left: left, Right: right}
}

func (b *BinaryOp) String() string { return fmt.Sprintf("(%s %s %s)", b.Left, b.Op, b.Right) }
func (b *BinaryOp) Type() Type {
	if b.Op == "AND" || b.Op == "OR" {
		return Boolean
	}
	switch b.Op {
	case "=", "<>", "<", "<=", ">", ">=", "LIKE", "ILIKE":
		return Boolean
	}
	return b.Left.Type()
}
func (b *BinaryOp) Children() []Expression { return []Expression{b.Left, b.Right} }
func (b *BinaryOp) Resolved() bool         { return b.Left.Resolved() && b.Right.Resolved() }
func (b *BinaryOp) WithChildren(ch ...Expression) (Expression, error) {
	if len(ch) != 2 {
		return nil, fmt.Errorf("plan: BinaryOp takes 2 children, got %d", len(ch))
	}
	return &BinaryOp{Op: b.Op, Left: ch[0], Right: ch[1]}, nil
}

// NotExpr negates its child.
type NotExpr struct{ Child Expression }

func NewNot(child Expression) *NotExpr { return &NotExpr{Child: child} }

func (n *NotExpr) String() string         { return fmt.Sprintf("NOT %s", n.Child) }
func (n *NotExpr) Type() Type             { return Boolean }
func (n *NotExpr) Children() []Expression { return []Expression{n.Child} }
func (n *NotExpr) Resolved() bool         { return n.Child.Resolved() }
func (n *NotExpr) WithChildren(ch ...Expression) (Expression, error) {
	if len(ch) != 1 {
		return nil, fmt.Errorf("plan: NotExpr takes 1 child, got %d", len(ch))
	}
	return &NotExpr{Child: ch[0]}, nil
}

// IsNullExpr / InListExpr round out the predicate shapes FilterSplitMeta
// (C4) needs to recognize meta predicates.
type IsNullExpr struct {
	Child Expression
	Not   bool
}

func NewIsNull(child Expression) *IsNullExpr { return &IsNullExpr{Child: child} }

func (i *IsNullExpr) String() string {
	if i.Not {
		return fmt.Sprintf("%s IS NOT NULL", i.Child)
	}
	return fmt.Sprintf("%s IS NULL", i.Child)
}
func (i *IsNullExpr) Type() Type             { return Boolean }
func (i *IsNullExpr) Children() []Expression { return []Expression{i.Child} }
func (i *IsNullExpr) Resolved() bool         { return i.Child.Resolved() }
func (i *IsNullExpr) WithChildren(ch ...Expression) (Expression, error) {
	if len(ch) != 1 {
		return nil, fmt.Errorf("plan: IsNullExpr takes 1 child, got %d", len(ch))
	}
	return &IsNullExpr{Child: ch[0], Not: i.Not}, nil
}

type InListExpr struct {
	Child Expression
	List  []Expression
	Not   bool
}

func NewInList(child Expression, list []Expression) *InListExpr {
	return &InListExpr{Child: child, List: list}
}

func (in *InListExpr) String() string {
	op := "IN"
	if in.Not {
		op = "NOT IN"
	}
	return fmt.Sprintf("%s %s (%s)", in.Child, op, joinExprs(in.List))
}
func (in *InListExpr) Type() Type             { return Boolean }
func (in *InListExpr) Children() []Expression { return append([]Expression{in.Child}, in.List...) }
func (in *InListExpr) Resolved() bool {
	if !in.Child.Resolved() {
		return false
	}
	for _, e := range in.List {
		if !e.Resolved() {
			return false
		}
	}
	return true
}
func (in *InListExpr) WithChildren(ch ...Expression) (Expression, error) {
	if len(ch) < 1 {
		return nil, fmt.Errorf("plan: InListExpr takes at least 1 child")
	}
	return &InListExpr{Child: ch[0], List: ch[1:], Not: in.Not}, nil
}

func joinExprs(exprs []Expression) string {
	s := ""
	for i, e := range exprs {
		if i > 0 {
			s += ", "
		}
		s += e.String()
	}
	return s
}
