// Package mcp exposes the deliberation engine over the Model Context
// Protocol: deliberate runs a debate, query_decisions searches the
// decision graph, analyze_decisions aggregates it.
package mcp

import (
	"context"
	"log/slog"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/hyogi/internal/config"
	"github.com/ashita-ai/hyogi/internal/graph"
	"github.com/ashita-ai/hyogi/internal/model"
)

const serverVersion = "0.1.0"

// Deliberator runs one deliberation end to end.
type Deliberator interface {
	Run(ctx context.Context, req model.DeliberateRequest) (model.DeliberationResult, error)
}

// Server wires the deliberation engine and decision-graph queries into
// an MCP tool surface.
type Server struct {
	mcpServer *mcpserver.MCPServer
	engine    Deliberator
	query     *graph.QueryEngine
	cfg       config.Config
	logger    *slog.Logger
}

// New builds the MCP server. A nil query engine disables the two
// graph-backed tools' functionality with a clear error, not a panic.
func New(engine Deliberator, query *graph.QueryEngine, cfg config.Config, logger *slog.Logger) *Server {
	s := &Server{
		engine: engine,
		query:  query,
		cfg:    cfg,
		logger: logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"hyogi",
		serverVersion,
		mcpserver.WithToolCapabilities(true),
	)
	s.registerTools()
	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// ServeStdio blocks serving MCP over stdin/stdout.
func (s *Server) ServeStdio() error {
	return mcpserver.ServeStdio(s.mcpServer)
}
