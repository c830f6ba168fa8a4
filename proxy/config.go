package proxy

import (
	"context"
	"time"

	"github.com/paperlane/vectorize/pkg/search"
)

// Completer composes a search result set into an LLM completion, the
// same contract the REST api.Completer interface exposes, so a vectorize.
// rag(...) call intercepted on the wire gets the same answer an
// /api/v1/rag caller would. Defined separately here, rather than
// importing the api package's interface, so proxy has no dependency on
// the HTTP surface.
type Completer interface {
	Complete(ctx context.Context, query string, rows []search.Row) (string, error)
}

// Config is the wire proxy configuration.
type Config struct {
	// ListenAddr is the address the proxy listens on (e.g., ":6432").
	ListenAddr string

	// UpstreamAddr is the real Postgres server's address (e.g.,
	// "localhost:5432"), used for every byte the proxy doesn't
	// intercept.
	UpstreamAddr string

	// DialTimeout bounds how long the proxy waits to open the upstream
	// connection for a new client. Defaults to 10s.
	DialTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	return c
}
