// Package mcp provides an MCP (Model Context Protocol) server for adoptsim.
package mcp

import (
	"context"
	"errors"
	"log/slog"
	"os"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/adoptsim/internal/explore"
	"github.com/nvandessel/adoptsim/internal/logging"
	"github.com/nvandessel/adoptsim/internal/persona"
	"github.com/nvandessel/adoptsim/internal/ratelimit"
	"github.com/nvandessel/adoptsim/internal/simulation"
	"github.com/nvandessel/adoptsim/internal/store"
)

// Server wraps the MCP SDK server and exposes simulations and explorations as tools.
type Server struct {
	server       *sdk.Server
	store        store.Store
	personas     persona.Source
	engine       *simulation.Engine
	driver       *explore.Driver
	defaults     explore.Params
	toolLimiters ratelimit.ToolLimiters
	auditLogger  *AuditLogger
	logger       *slog.Logger
}

// Config holds server configuration and the components the tools run on.
type Config struct {
	Name    string // Server name (e.g., "adoptsim")
	Version string // Server version

	Store    store.Store
	Personas persona.Source
	Engine   *simulation.Engine
	Driver   *explore.Driver

	// Defaults fill tool inputs the caller leaves unset. GroupID is ignored.
	Defaults explore.Params

	// AuditDir receives audit.jsonl. Empty disables auditing.
	AuditDir string

	Logger *slog.Logger
}

// NewServer creates a new MCP server with adoptsim tools.
func NewServer(cfg *Config) (*Server, error) {
	if cfg.Store == nil || cfg.Personas == nil || cfg.Engine == nil || cfg.Driver == nil {
		return nil, errors.New("mcp: store, personas, engine and driver are required")
	}

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	s := &Server{
		server:       mcpServer,
		store:        cfg.Store,
		personas:     cfg.Personas,
		engine:       cfg.Engine,
		driver:       cfg.Driver,
		defaults:     cfg.Defaults,
		toolLimiters: ratelimit.NewToolLimiters(),
		logger:       logging.OrDiscard(cfg.Logger),
	}
	if cfg.AuditDir != "" {
		s.auditLogger = NewAuditLogger(cfg.AuditDir)
	}

	s.registerTools()
	s.registerResources()

	return s, nil
}

// Run starts the MCP server over stdio transport.
// This blocks until the client disconnects or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	notifySignals(sigChan)

	go func() {
		select {
		case <-sigChan:
			s.logger.Info("signal received, shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()

	return s.server.Run(ctx, &sdk.StdioTransport{})
}

// Close releases the audit log. The store belongs to the caller.
func (s *Server) Close() error {
	return s.auditLogger.Close()
}
