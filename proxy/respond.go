package proxy

import (
	"bytes"
	"context"
	"net"
	"strconv"

	"go.uber.org/zap"

	"github.com/paperlane/vectorize/pkg/search"
	"github.com/paperlane/vectorize/pkg/verror"
	"github.com/paperlane/vectorize/proxy/pgwire"
)

// session tracks the extended-query-protocol state a single client
// connection needs across Parse/Bind/Describe/Execute/Sync: which
// prepared statement and portal names currently refer to an intercepted
// vectorize.search/rag call, so the proxy can keep answering them
// itself across the round trip instead of only on the initial Parse.
type session struct {
	statements map[string]*call
	portals    map[string]*call
	// synthesizing is set once a matched Execute has answered a portal
	// in this round trip, so the next Sync knows to close it out with
	// ReadyForQuery itself instead of forwarding to Postgres.
	synthesizing bool
}

func newSession() *session {
	return &session{statements: map[string]*call{}, portals: map[string]*call{}}
}

var searchFields = []pgwire.Field{
	{Name: "pk", OID: pgwire.OIDText},
	{Name: "columns", OID: pgwire.OIDJSON},
	{Name: "similarity_score", OID: pgwire.OIDFloat8},
	{Name: "semantic_rank", OID: pgwire.OIDInt4},
	{Name: "fts_rank", OID: pgwire.OIDInt4},
	{Name: "rrf_score", OID: pgwire.OIDFloat8},
}

var ragFields = append([]pgwire.Field{{Name: "answer", OID: pgwire.OIDText}}, searchFields...)

// answerQuery runs the intercepted call and writes the full simple-query
// reply sequence (RowDescription, one DataRow per result, CommandComplete,
// ReadyForQuery) directly to the client connection.
func (p *Proxy) answerQuery(ctx context.Context, client net.Conn, c *call) {
	rows, answer, err := p.run(ctx, c)
	if err != nil {
		p.writeError(client, err)
		_ = pgwire.WriteMessage(client, pgwire.TypeReadyForQuery, pgwire.ReadyForQuery('I'))
		return
	}

	p.writeRows(client, c, rows, answer)
	tag := "SELECT " + strconv.Itoa(len(rows))
	_ = pgwire.WriteMessage(client, pgwire.TypeCommandComplete, pgwire.CommandComplete(tag))
	_ = pgwire.WriteMessage(client, pgwire.TypeReadyForQuery, pgwire.ReadyForQuery('I'))
}

// answerExecute runs the intercepted call for an Execute against a
// matched portal and writes DataRow/CommandComplete, but not
// ReadyForQuery — that belongs to the matching Sync, which closes out
// the whole extended-query round trip, not just one portal's execute.
func (p *Proxy) answerExecute(ctx context.Context, client net.Conn, c *call) {
	rows, answer, err := p.run(ctx, c)
	if err != nil {
		p.writeError(client, err)
		return
	}

	p.writeRows(client, c, rows, answer)
	tag := "SELECT " + strconv.Itoa(len(rows))
	_ = pgwire.WriteMessage(client, pgwire.TypeCommandComplete, pgwire.CommandComplete(tag))
}

func (p *Proxy) run(ctx context.Context, c *call) ([]search.Row, string, error) {
	rows, err := p.engine.Search(ctx, search.Request{
		JobName:   c.job,
		QueryText: c.query,
		Limit:     c.limit,
	})
	if err != nil {
		return nil, "", err
	}
	if !c.rag {
		return rows, "", nil
	}
	if p.completer == nil {
		return nil, "", errFeatureNotSupported
	}
	answer, err := p.completer.Complete(ctx, c.query, rows)
	if err != nil {
		return nil, "", err
	}
	return rows, answer, nil
}

func (p *Proxy) writeRows(client net.Conn, c *call, rows []search.Row, answer string) {
	fields := searchFields
	if c.rag {
		fields = ragFields
	}
	_ = pgwire.WriteMessage(client, pgwire.TypeRowDescription, pgwire.RowDescription(fields))

	for _, r := range rows {
		values := rowValues(r)
		if c.rag {
			values = append([]*string{&answer}, values...)
		}
		_ = pgwire.WriteMessage(client, pgwire.TypeDataRow, pgwire.DataRow(values))
	}
}

func rowValues(r search.Row) []*string {
	pk := r.PK
	cols := string(r.Columns)
	sim := strconv.FormatFloat(r.SimilarityScore, 'f', -1, 64)
	rrf := strconv.FormatFloat(r.RRFScore, 'f', -1, 64)
	return []*string{&pk, &cols, &sim, intOrNil(r.SemanticRank), intOrNil(r.FTSRank), &rrf}
}

func intOrNil(n *int) *string {
	if n == nil {
		return nil
	}
	s := strconv.Itoa(*n)
	return &s
}

// errFeatureNotSupported is returned when a vectorize.rag(...) call is
// intercepted but the proxy has no Completer configured.
var errFeatureNotSupported = &proxyError{code: "0A000", message: "no completion provider configured"}

type proxyError struct {
	code    string
	message string
}

func (e *proxyError) Error() string { return e.message }

// writeError maps err to a Postgres ErrorResponse. errFeatureNotSupported
// carries its own SQLSTATE (0A000); typed verror kinds get a matching
// SQLSTATE class; everything else falls back to a generic internal-error
// code (XX000).
func (p *Proxy) writeError(client net.Conn, err error) {
	code := "XX000"
	switch {
	case err == errFeatureNotSupported:
		code = err.(*proxyError).code
	default:
		switch verror.Kind(err) {
		case "InvalidRequest", "FilterUnsafe":
			code = "22023" // invalid_parameter_value
		case "NotFound":
			code = "42P01" // undefined_table, closest SQLSTATE for "job not found"
		}
	}
	p.logger.Warn("intercepted call failed", zap.Error(err))
	_ = pgwire.WriteMessage(client, pgwire.TypeErrorResponse, pgwire.ErrorResponse("ERROR", code, err.Error()))
}

// readCString reads a single NUL-terminated string from the front of
// body, returning it and the remaining bytes.
func readCString(body []byte) (string, []byte) {
	i := bytes.IndexByte(body, 0)
	if i < 0 {
		return string(body), nil
	}
	return string(body[:i]), body[i+1:]
}
