// Package mcp provides an MCP (Model Context Protocol) server exposing
// vectorize's hybrid search engine as a tool for agent clients.
package mcp

import (
	"errors"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/paperlane/vectorize/pkg/search"
	"github.com/paperlane/vectorize/pkg/utils"
)

// Config configures the MCP server.
type Config struct {
	// Engine runs hybrid search against any registered job.
	Engine *search.Engine

	// Noop, when true, returns an empty MCP server with no tools
	// configured. Used when MCP capabilities are disabled.
	Noop bool

	// Logger is the configured zap logger.
	Logger *zap.Logger
}

// Server wraps an MCP server exposing the vectorize_search tool.
type Server struct {
	config    Config
	mcpServer *mcp.Server
	handler   *mcp.StreamableHTTPHandler
}

// NewServer creates a new MCP server with the search tool.
func NewServer(c Config) (*Server, error) {
	s := &Server{config: c}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "vectorize",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)

	if c.Noop {
		s.mcpServer = mcpServer
		return s, nil
	}

	if c.Engine == nil {
		return nil, errors.New("search engine is required")
	}
	if c.Logger == nil {
		return nil, errors.New("logger is required")
	}

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        searchToolName,
		Description: searchDescription,
	}, s.handleSearch)

	s.mcpServer = mcpServer

	s.handler = mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)

	return s, nil
}

// Handler returns the HTTP handler for the MCP server.
func (s *Server) Handler() http.Handler {
	return s.handler
}
