// Package proxy implements the wire proxy: a byte-level TCP proxy in
// front of the Postgres wire protocol that intercepts
// vectorize.search(...)/vectorize.rag(...) calls and answers them
// directly from the hybrid search engine, forwarding every other byte
// to the real Postgres server untouched.
package proxy

import (
	"bufio"
	"context"
	"io"
	"net"

	"go.uber.org/zap"

	"github.com/paperlane/vectorize/pkg/search"
	"github.com/paperlane/vectorize/proxy/pgwire"
)

// Proxy is a transparent TCP proxy in front of Postgres that answers a
// narrow set of intercepted queries itself.
type Proxy struct {
	config    Config
	engine    *search.Engine
	completer Completer
	logger    *zap.Logger
	listener  net.Listener
}

// New creates a Proxy. completer may be nil, in which case an
// intercepted vectorize.rag(...) call returns a Postgres error response
// rather than a synthesized answer.
func New(config Config, engine *search.Engine, completer Completer, logger *zap.Logger) *Proxy {
	return &Proxy{
		config:    config.withDefaults(),
		engine:    engine,
		completer: completer,
		logger:    logger,
	}
}

// Run starts the proxy server on the configured address, accepting
// connections until Close is called.
func (p *Proxy) Run() error {
	listener, err := net.Listen("tcp", p.config.ListenAddr)
	if err != nil {
		return err
	}
	p.listener = listener

	p.logger.Info("starting wire proxy",
		zap.String("listen", p.config.ListenAddr),
		zap.String("upstream", p.config.UpstreamAddr),
	)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if p.listener == nil {
				return nil // Close was called
			}
			return err
		}
		go p.handleConn(conn)
	}
}

// Close stops accepting new connections. Connections already accepted
// run to completion.
func (p *Proxy) Close() error {
	l := p.listener
	p.listener = nil
	if l == nil {
		return nil
	}
	return l.Close()
}

// handleConn proxies one client connection: it dials upstream, relays
// the startup/SSL-negotiation handshake verbatim, then enters the
// steady-state loop that inspects every frontend message for an
// intercepted call and forwards everything else untouched.
func (p *Proxy) handleConn(client net.Conn) {
	defer client.Close()

	upstream, err := net.DialTimeout("tcp", p.config.UpstreamAddr, p.config.DialTimeout)
	if err != nil {
		p.logger.Error("dialing upstream postgres failed", zap.Error(err))
		return
	}
	defer upstream.Close()

	setNoDelay(client)
	setNoDelay(upstream)

	startup, err := pgwire.ReadStartupMessage(client)
	if err != nil {
		return
	}
	if pgwire.IsSSLRequest(startup) {
		// The proxy does not terminate TLS; refuse SSL so the client
		// falls back to a plaintext startup, which it then sends next.
		if _, err := client.Write([]byte{'N'}); err != nil {
			return
		}
		startup, err = pgwire.ReadStartupMessage(client)
		if err != nil {
			return
		}
	}
	if _, err := upstream.Write(startup); err != nil {
		return
	}

	// Backend-to-client traffic (authentication challenges, parameter
	// status, and every reply to a message the proxy forwards) is pure
	// passthrough: the proxy never needs to alter or inspect it.
	backendDone := make(chan struct{})
	go func() {
		io.Copy(client, upstream)
		close(backendDone)
	}()

	p.frontendLoop(client, upstream)
	<-backendDone
}

// frontendLoop reads frontend messages one at a time, intercepting a
// matched simple/extended query call and forwarding every other message
// to upstream byte-for-byte.
func (p *Proxy) frontendLoop(client, upstream net.Conn) {
	ctx := context.Background()
	reader := bufio.NewReader(client)
	sess := newSession()

	for {
		msg, err := pgwire.ReadMessage(reader)
		if err != nil {
			return
		}
		if p.intercept(ctx, client, sess, msg) {
			continue
		}
		if err := pgwire.WriteMessage(upstream, msg.Type, msg.Body); err != nil {
			return
		}
	}
}

func setNoDelay(conn net.Conn) {
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
}
