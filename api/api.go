package api

import (
	"context"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	mcpserver "github.com/paperlane/vectorize/api/mcp"
	"github.com/paperlane/vectorize/pkg/metastore"
	"github.com/paperlane/vectorize/pkg/registry"
	"github.com/paperlane/vectorize/pkg/search"
)

// Completer composes a search result set into an LLM completion for the
// rag endpoint. It is consumed, not implemented, here — §6 of the spec
// scopes the completion call itself out of the core.
type Completer interface {
	Complete(ctx context.Context, query string, rows []search.Row) (string, error)
}

// Server is the HTTP API server fronting the job registry and the
// hybrid search engine.
type Server struct {
	config    Config
	registry  *registry.Registry
	engine    *search.Engine
	meta      *metastore.Store
	completer Completer
	logger    *zap.Logger
	app       *fiber.App
}

// NewServer creates a new API server. completer may be nil, in which
// case /api/v1/rag returns 501 Not Implemented. mcpSrv may be nil, in
// which case the MCP tool surface is not mounted.
func NewServer(config Config, reg *registry.Registry, engine *search.Engine, meta *metastore.Store, completer Completer, mcpSrv *mcpserver.Server, logger *zap.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config:    config,
		registry:  reg,
		engine:    engine,
		meta:      meta,
		completer: completer,
		logger:    logger,
		app:       app,
	}

	app.Get("/ping", s.handlePing)

	v1 := app.Group("/api/v1")
	v1.Post("/table", s.handleCreateTable)
	v1.Get("/table", s.handleListTables)
	v1.Get("/table/:name", s.handleDescribeTable)
	v1.Delete("/table/:name", s.handleDeleteTable)
	v1.Get("/search", s.handleSearchEndpoint)
	v1.Post("/search", s.handleSearchEndpoint)
	v1.Post("/rag", s.handleRAG)

	if mcpSrv != nil {
		app.All("/mcp", adaptor.HTTPHandler(mcpSrv.Handler()))
		app.All("/mcp/*", adaptor.HTTPHandler(mcpSrv.Handler()))
	}

	return s
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		zap.String("listen", s.config.ListenAddr),
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
