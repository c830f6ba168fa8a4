package proxy

import (
	"context"
	"encoding/binary"
	"net"

	"github.com/paperlane/vectorize/proxy/pgwire"
)

// intercept inspects one frontend message and, if it is part of an
// intercepted vectorize.search/rag call, answers it directly and
// reports true. Reporting false means the caller should forward msg to
// upstream unchanged.
func (p *Proxy) intercept(ctx context.Context, client net.Conn, sess *session, msg pgwire.Message) bool {
	switch msg.Type {
	case pgwire.TypeQuery:
		return p.interceptQuery(ctx, client, msg.Body)
	case pgwire.TypeParse:
		return p.interceptParse(client, sess, msg.Body)
	case pgwire.TypeBind:
		return p.interceptBind(client, sess, msg.Body)
	case pgwire.TypeDescribe:
		return p.interceptDescribe(client, sess, msg.Body)
	case pgwire.TypeExecute:
		return p.interceptExecute(ctx, client, sess, msg.Body)
	case pgwire.TypeSync:
		return p.interceptSync(client, sess)
	default:
		return false
	}
}

// interceptQuery handles the simple query protocol: body is a single
// NUL-terminated SQL string.
func (p *Proxy) interceptQuery(ctx context.Context, client net.Conn, body []byte) bool {
	sql, _ := readCString(body)
	c := parseCall(sql)
	if c == nil {
		return false
	}
	p.answerQuery(ctx, client, c)
	return true
}

// interceptParse handles the extended protocol's Parse message: body is
// statement name, query text, then a parameter type count and list the
// proxy doesn't need. A matched statement is remembered so the later
// Bind/Describe/Execute/Sync for it can be answered too; an unmatched
// name clears any stale entry from a previous Parse reusing it.
func (p *Proxy) interceptParse(client net.Conn, sess *session, body []byte) bool {
	name, rest := readCString(body)
	query, _ := readCString(rest)

	c := parseCall(query)
	if c == nil {
		delete(sess.statements, name)
		return false
	}
	sess.statements[name] = c
	_ = pgwire.WriteMessage(client, pgwire.TypeParseComplete, pgwire.ParseComplete())
	return true
}

// interceptBind handles Bind: body is portal name, statement name, then
// parameter format/value data the proxy doesn't need since a matched
// call's arguments came from its literal SQL text, not bound
// parameters.
func (p *Proxy) interceptBind(client net.Conn, sess *session, body []byte) bool {
	portal, rest := readCString(body)
	stmt, _ := readCString(rest)

	c, ok := sess.statements[stmt]
	if !ok {
		delete(sess.portals, portal)
		return false
	}
	sess.portals[portal] = c
	_ = pgwire.WriteMessage(client, pgwire.TypeBindComplete, pgwire.BindComplete())
	return true
}

// interceptDescribe handles Describe('P', portal): body is a one-byte
// target ('S' statement or 'P' portal) followed by its name. Only a
// portal describe is answered directly, since that's the form every
// extended-protocol driver issues before Execute; a statement describe
// for a matched name is rare enough in practice to leave forwarded.
func (p *Proxy) interceptDescribe(client net.Conn, sess *session, body []byte) bool {
	if len(body) == 0 || body[0] != 'P' {
		return false
	}
	name, _ := readCString(body[1:])
	c, ok := sess.portals[name]
	if !ok {
		return false
	}
	fields := searchFields
	if c.rag {
		fields = ragFields
	}
	_ = pgwire.WriteMessage(client, pgwire.TypeRowDescription, pgwire.RowDescription(fields))
	return true
}

// interceptExecute handles Execute: body is portal name, then a
// max-rows int32 the proxy ignores (every intercepted call already
// bounds its own result count via its limit argument).
func (p *Proxy) interceptExecute(ctx context.Context, client net.Conn, sess *session, body []byte) bool {
	name, rest := readCString(body)
	if len(rest) < 4 {
		return false
	}
	c, ok := sess.portals[name]
	if !ok {
		return false
	}
	_ = int32(binary.BigEndian.Uint32(rest)) // max rows, unused
	p.answerExecute(ctx, client, c)
	sess.synthesizing = true
	return true
}

// interceptSync closes out an extended-query round trip that answered
// at least one Execute itself; Sync carries no body.
func (p *Proxy) interceptSync(client net.Conn, sess *session) bool {
	if !sess.synthesizing {
		return false
	}
	sess.synthesizing = false
	_ = pgwire.WriteMessage(client, pgwire.TypeReadyForQuery, pgwire.ReadyForQuery('I'))
	return true
}
