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

package arrownative

import ("context"
	"fmt"
	"net"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/cubebridge/cubesql/cubesql/authsvc"
	"github.com/cubebridge/cubesql/cubesql/compile"
	"github.com/cubebridge/cubesql/cubesql/compile/parse"
	"github.com/cubebridge/cubesql/cubesql/cubescan"
	cerrors "github.com/cubebridge/cubesql/cubesql/errors"
	"github.com/cubebridge/cubesql/cubesql/plan"
	"github.com/cubebridge/cubesql/cubesql/stream")

// dialect is fixed rather than negotiated: never names a
// dialect choice for this front-end, and the DataFusionSelect plan kind
// name points at a Postgres-flavored grammar, so this implementation
// parses every query with the same Postgres dialect pgwire (C8) uses.
const dialect = parse.Postgres

// Conn drives one accepted Arrow-native connection end to end: the
// handshake, the auth exchange, then a frame-read loop dispatching
// queries, following the same "parse once up front, then loop Receive"
// shape pgwire's Conn uses, adapted to this protocol's flat frame set (no
// extended-query sub-protocol exists here, so there is no Session/Manager
// analogue to track prepared statements or portals).
type Conn struct {
	netConn net.Conn
	auth authsvc.Service
	transport cubescan.Transport
	cache *ResultCache
	log *logrus.Entry

	sessionID string
	authCtx plan.AuthContext
	database string
	// streaming mirrors pgwire.Session.Streaming: off by default, flipped
	// per connection by "SET cubebridge.stream = on|off".
	streaming bool
}

func NewConn(netConn net.Conn, auth authsvc.Service, transport cubescan.Transport, cache *ResultCache, log *logrus.Logger) *Conn {
	return &Conn{
		netConn: netConn,
		auth: auth,
		transport: transport,
		cache: cache,
		log: log.WithField("remote", netConn.RemoteAddr().String()),
	}
}

// Serve runs the connection to completion: handshake, auth, then the
// frame loop. It returns when the client disconnects, a frame fails to
// send, or ctx is cancelled.
func (c *Conn) Serve(ctx context.Context) {
	defer c.netConn.Close()
	stop := context.AfterFunc(ctx, func() { c.netConn.Close() })
	defer stop()

	if err := c.handshake(); err != nil {
		c.log.WithError(err).Debug("arrownative: handshake failed")
		return
	}
	if err := c.authenticate(ctx); err != nil {
		c.log.WithError(err).Debug("arrownative: auth failed")
		return
	}

	for {
		select {
			case <-ctx.Done():
			return
			default:
		}

		msgType, payload, err := ReadFrame(c.netConn)
		if err != nil {
			return
		}

		switch msgType {
			case TypeQuery:
			sql, err := decodeQuery(payload)
			if err != nil {
				return
			}
			if err := c.handleQuery(ctx, sql); err != nil {
				return
			}
			default:
			c.sendError(cerrors.ProtocolError.New("unexpected frame type"))
			return
		}
	}
}

// handshake implements 0x01/0x02: read the client's version, log a
// mismatch but never reject it, and always advertise this server's own
// ProtocolVersion/ServerVersion back.
func (c *Conn) handshake() error {
	msgType, payload, err := ReadFrame(c.netConn)
	if err != nil {
		return err
	}
	if msgType != TypeHandshake {
		return cerrors.ProtocolError.New("expected handshake frame")
	}
	version, err := decodeHandshake(payload)
	if err != nil {
		return err
	}
	if version != ProtocolVersion {
		c.log.WithFields(logrus.Fields{
				"client_version": version,
				"server_version": ProtocolVersion,
		}).Warn("arrownative: protocol version mismatch")
	}
	return WriteFrame(c.netConn, TypeHandshakeAck, encodeHandshakeAck(ProtocolVersion, ServerVersion))
}

// authenticate implements 0x03/0x04 against the shared authsvc.Service,
// following comparison rule exactly: a service that sets
// SkipPasswordCheck is trusted outright, otherwise its returned Password
// must equal the token the client sent.
func (c *Conn) authenticate(ctx context.Context) error {
	msgType, payload, err := ReadFrame(c.netConn)
	if err != nil {
		return err
	}
	if msgType != TypeAuth {
		return cerrors.ProtocolError.New("expected auth frame")
	}
	token, database, err := decodeAuth(payload)
	if err != nil {
		return err
	}

	resp, svcErr := c.auth.Authenticate(ctx, authsvc.Request{
			Protocol: "arrow_native",
			Method: "token",
			Database: database,
			Token: token,
	})
	success := svcErr == nil && resp.Success && (resp.SkipPasswordCheck || resp.Password == token)

	sessionID := resp.SessionID
	if err := WriteFrame(c.netConn, TypeAuthAck, encodeAuthAck(success, sessionID)); err != nil {
		return err
	}
	if !success {
		if svcErr != nil {
			return cerrors.AuthError.New(errors.Wrap(svcErr, "authsvc").Error())
		}
		return cerrors.AuthError.New("invalid credentials")
	}

	c.sessionID = sessionID
	c.database = database
	c.authCtx = plan.AuthContext{Security: map[string]interface{}{"database": database}}
	return nil
}

// handleQuery dispatches one 0x05 Query frame per plan-kind
// table. Its error return is reserved for frame-send failures (which
// close the connection); a query-level failure is reported as an 0x08
// Error frame and the connection keeps serving, the "error isolation"
// contract states explicitly.
func (c *Conn) handleQuery(ctx context.Context, sql string) error {
	if on, ok := parseStreamPragma(sql); ok {
		c.streaming = on
		return c.sendComplete(0, false)
	}

	stmt, err := parse.Parse(sql, dialect)
	if err != nil {
		return c.sendError(err)
	}

	switch classify(sql, stmt) {
	case KindMetaOk, KindMetaTabular:
		return c.sendComplete(0, false)

	case KindCreateTempTable:
		selectSQL, ok := extractCTASSelect(sql)
		if !ok {
			return c.sendComplete(0, false)
		}
		n, execErr := c.collectRowCount(ctx, selectSQL)
		if execErr != nil {
			return c.sendError(execErr)
		}
		return c.sendComplete(n, false)

	case KindDataFusionSelect:
		return c.runSelect(ctx, sql)

	default:
		return c.sendError(cerrors.UnsupportedSql.New(fmt.Sprintf("unsupported statement type %T", stmt)))
	}
}

// runSelect implements the bounded-cache-then-execute path: a cache hit
// streams the stored batches marked from_cache, a miss compiles, runs,
// caches, and streams fresh ones.
func (c *Conn) runSelect(ctx context.Context, sql string) error {
	if c.streaming {
		return c.runSelectStreaming(ctx, sql)
	}

	if recs, ok := c.cache.Get(sql, c.database); ok {
		defer releaseAll(recs)
		if err := c.streamBatches(recs); err != nil {
			return err
		}
		return c.sendComplete(totalRows(recs), true)
	}

	rec, err := c.execute(ctx, sql)
	if err != nil {
		return c.sendError(err)
	}
	defer rec.Release()

	c.cache.Put(sql, c.database, []arrow.Record{rec})
	if err := c.streamBatches([]arrow.Record{rec}); err != nil {
		return err
	}
	return c.sendComplete(rec.NumRows(), false)
}

// collectRowCount runs selectSQL and reports its row count without
// streaming it to the client, the CreateTempTable plan kind's contract.
// Persisting the result into a temp-table catalog is out of scope here
// (see DESIGN.md) — the cache/queue store (C10) this would eventually
// land in has no temp-table concept of its own either.
func (c *Conn) collectRowCount(ctx context.Context, selectSQL string) (int64, error) {
	rec, err := c.execute(ctx, selectSQL)
	if err != nil {
		return 0, err
	}
	defer rec.Release()
	return rec.NumRows(), nil
}

// runSelectStreaming bypasses the result cache and 0x06 Batch framing
// entirely, routing the compiled scan's single batch through the
// streaming executor bridge (C6) as a sequence of 0x09 frames instead —
// the same bridge pgwire's COPY-stream mode drives, grounded on the same
// stream.Emitter/WritableSink contract rather than a second, parallel
// streaming implementation.
func (c *Conn) runSelectStreaming(ctx context.Context, sql string) error {
	meta, err := c.transport.Meta(ctx, c.authCtx)
	if err != nil {
		return c.sendError(cerrors.ExecutionError.New(errors.Wrap(err, "meta").Error()))
	}
	result, err := compile.Compile(sql, dialect, meta, c.authCtx)
	if err != nil {
		return c.sendError(err)
	}

	src := &stream.SingleBatchSource{Exec: func(ctx context.Context) (arrow.Record, error) {
			return cubescan.NewExec(result.Scan, c.transport).Execute(ctx)
	}}
	emitter := &stream.Emitter{Sink: &frameSink{conn: c.netConn}, Mode: stream.StreamingMode}
	if err := emitter.Run(ctx, src); err != nil {
		return c.sendError(err)
	}
	return c.sendComplete(0, false)
}

// frameSink adapts this protocol's length-prefixed frame writer into
// stream.WritableSink: each rendered frame becomes one 0x09 TypeStreamFrame,
// and (as with pgwire's copyOutSink) the blocking frame write is itself the
// backpressure signal, so Drain is never waited on.
type frameSink struct {
	conn net.Conn
}

func (s *frameSink) Write(frame []byte) (bool, error) {
	return false, WriteFrame(s.conn, TypeStreamFrame, frame)
}

func (s *frameSink) Drain() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

func (s *frameSink) End(frame []byte) error {
	if len(frame) == 0 {
		return nil
	}
	return WriteFrame(s.conn, TypeStreamFrame, frame)
}

// parseStreamPragma recognizes "SET cubebridge.stream = on|off" ahead of
// parse.Parse, mirroring pgwire.Conn's own pragma of the same name.
func parseStreamPragma(sql string) (on bool, ok bool) {
	trimmed := strings.TrimSuffix(strings.TrimSpace(sql), ";")
	lower := strings.ToLower(trimmed)
	const prefix = "set cubebridge.stream"
	if !strings.HasPrefix(lower, prefix) {
		return false, false
	}
	rest := strings.TrimSpace(trimmed[len(prefix):])
	rest = strings.TrimPrefix(rest, "=")
	switch strings.ToLower(strings.TrimSpace(rest)) {
	case "on", "true":
		return true, true
	case "off", "false":
		return false, true
	default:
		return false, false
	}
}

func (c *Conn) execute(ctx context.Context, sql string) (arrow.Record, error) {
	meta, err := c.transport.Meta(ctx, c.authCtx)
	if err != nil {
		return nil, cerrors.ExecutionError.New(errors.Wrap(err, "meta").Error())
	}
	result, err := compile.Compile(sql, dialect, meta, c.authCtx)
	if err != nil {
		return nil, err
	}
	return cubescan.NewExec(result.Scan, c.transport).Execute(ctx)
}

func (c *Conn) streamBatches(recs []arrow.Record) error {
	for _, rec := range recs {
		payload, err := EncodeBatch(rec)
		if err != nil {
			return err
		}
		if err := WriteFrame(c.netConn, TypeBatch, payload); err != nil {
			return err
		}
	}
	return nil
}

func (c *Conn) sendComplete(rowCount int64, fromCache bool) error {
	return WriteFrame(c.netConn, TypeComplete, encodeComplete(rowCount, fromCache))
}

func (c *Conn) sendError(queryErr error) error {
	return WriteFrame(c.netConn, TypeError, encodeError(cerrors.SQLState(queryErr), queryErr.Error()))
}

func releaseAll(recs []arrow.Record) {
	for _, r := range recs {
		r.Release()
	}
}

func totalRows(recs []arrow.Record) int64 {
	var n int64
	for _, r := range recs {
		n += r.NumRows()
	}
	return n
}
