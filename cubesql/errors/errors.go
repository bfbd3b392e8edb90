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

// Package errors declares the semantic error kinds shared across the
// compiler, the rewrite engine, and both wire front-ends.
package errors

import goerrors "gopkg.in/src-d/go-errors.v1"

// Kind classifies an error for the purposes of propagation discipline: does
// the connection survive, does the client see a message, does the server
// keep running.
var (// ParseError is raised when the dialect layer (C1) cannot produce a
	// statement from the input SQL.
	ParseError = goerrors.NewKind("parse error: %s")

	// UserError wraps a message intended to reach the client verbatim, with
	// the offending query text attached as metadata rather than embedded in
	// the message itself. The parser raises it as "Unable to parse: …".
	UserError = goerrors.NewKind("%s")

	// UnsupportedMultipleStatements is raised when the parser is given more
	// than one statement in a single request; this implementation's public
	// contract accepts exactly one.
	UnsupportedMultipleStatements = goerrors.NewKind("expected a single statement, got multiple")

	// NoStatements is raised when the parser is given a query that contains
	// no statements at all, e.g. an empty string or one made entirely of
	// whitespace and comments.
	NoStatements = goerrors.NewKind("expected a single statement, got none")

	// UnsupportedSql is raised when the rewrite engine saturates without
	// ever exposing a CubeScan and no fallback plan applies.
	UnsupportedSql = goerrors.NewKind("unsupported SQL: %s")

	// UnknownMember is raised when a cube query references a member that
	// is absent or hidden in the current metadata context.
	UnknownMember = goerrors.NewKind("unknown member: %s")

	// TransportError is raised when the external meta/load transport call
	// fails. The CubeScan physical node retries once with jitter before
	// surfacing this.
	TransportError = goerrors.NewKind("transport error: %s")

	// ExecutionError covers arithmetic, type-coercion, and out-of-memory
	// failures inside operators.
	ExecutionError = goerrors.NewKind("execution error: %s")

	// ProtocolError is raised on a malformed client message. It always
	// closes the connection.
	ProtocolError = goerrors.NewKind("protocol error: %s")

	// AuthError is raised when the auth service rejects a session.
	AuthError = goerrors.NewKind("authentication error: %s")

	// ResourceLimit is raised when a bounded resource (prepared statement
	// slots, result cache entries) is exhausted.
	ResourceLimit = goerrors.NewKind("resource limit exceeded: %s")

	// InternalError marks a broken invariant. It is logged with a
	// backtrace, closes the offending connection, but never brings down
	// the server.
	InternalError = goerrors.NewKind("internal error: %s")

	// QueryCanceled is raised when a client cancels a query or a shutdown
	// preempts it.
	QueryCanceled = goerrors.NewKind("query canceled")

	// Timeout is raised on a streaming stall or a RESULT_BLOCKING
	// deadline.
	Timeout = goerrors.NewKind("timeout: %s"))

// IsKind reports whether err (or any error it wraps, transitively, via
// pkg/errors' Cause chain) was produced by kind.
func IsKind(kind *goerrors.Kind, err error) bool {
	for err != nil {
		if kind.Is(err) {
			return true
		}
		type causer interface{ Cause() error }
		c, ok := err.(causer)
		if !ok {
			return false
		}
		err = c.Cause()
	}
	return false
}

// SQLState maps a Kind to the closest PostgreSQL SQLSTATE code, the one
// stable error vocabulary both wire front-ends (C8's ErrorResponse, C9's
// Error frame) report through, per "every kind maps to a
// concrete wire representation" requirement. Codes absent a precise match
// fall back to the generic internal-error class.
func SQLState(err error) string {
	switch {
	case IsKind(UserError, err), IsKind(ParseError, err):
		return "42601"
	case IsKind(UnsupportedSql, err), IsKind(UnsupportedMultipleStatements, err), IsKind(NoStatements, err):
		return "0A000"
	case IsKind(UnknownMember, err):
		return "42703"
	case IsKind(AuthError, err):
		return "28P01"
	case IsKind(ResourceLimit, err):
		return "53400"
	case IsKind(QueryCanceled, err):
		return "57014"
	case IsKind(ProtocolError, err):
		return "08P01"
	default:
		return "XX000"
	}
}
