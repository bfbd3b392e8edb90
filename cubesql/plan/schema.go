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

// Type is a minimal stand-in for a column's SQL type. The compiler only
// needs to know enough about a type to pick an Arrow builder (cubescan) and
// to decide whether two expressions are comparable; it never needs the
// a full type-conversion machinery.
type Type int

const (Unknown Type = iota
	Int64
	Float64
	Utf8
	Boolean
	Timestamp)

func (t Type) String() string {
	switch t {
	case Int64:
		return "int64"
	case Float64:
		return "float64"
	case Utf8:
		return "utf8"
	case Boolean:
		return "boolean"
	case Timestamp:
		return "timestamp"
	default:
		return "unknown"
	}
}

// Column is one (qualified_name, type, nullable) entry of a Schema, per
// Logical plan node invariant.
type Column struct {
	Qualifier string // table/subquery alias, may be empty
	Name string
	Type Type
	Nullable bool
}

// QualifiedName returns "qualifier.name", or just "name" when unqualified.
func (c Column) QualifiedName() string {
	if c.Qualifier == "" {
		return c.Name
	}
	return c.Qualifier + "." + c.Name
}

// Schema is the ordered list of columns a Node produces.
type Schema []Column

// IndexOf returns the position of a column matching name (qualified or
// not), or -1. A qualified name must match both qualifier and name; an
// unqualified name matches by name alone, preferring an exact qualifier-less
// column if more than one unqualified column shares the name.
func (s Schema) IndexOf(name string) int {
	if dot := strings.LastIndexByte(name, '.'); dot >= 0 {
		qualifier, col := name[:dot], name[dot+1:]
		for i, c := range s {
			if strings.EqualFold(c.Qualifier, qualifier) && strings.EqualFold(c.Name, col) {
				return i
			}
		}
		return -1
	}
	for i, c := range s {
		if strings.EqualFold(c.Name, name) {
			return i
		}
	}
	return -1
}

// Names returns the qualified names of every column, in order.
func (s Schema) Names() []string {
	out := make([]string, len(s))
	for i, c := range s {
		out[i] = c.QualifiedName()
	}
	return out
}
