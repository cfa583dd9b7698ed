// Package mcp exposes the tracker's read-side queries as MCP tools over stdio.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/vision-stage-tracker/internal/domain"
	"github.com/vision-stage-tracker/internal/service"
)

// Server represents the vision tracker MCP server
type Server struct {
	config    domain.ConfigManager
	tracker   *service.TrackerService
	mcpServer *mcp.Server
	logger    *logrus.Logger
}

// NewServer creates a new MCP server instance backed by store
func NewServer(configManager domain.ConfigManager, store service.TrackerStore, logger *logrus.Logger) (*Server, error) {
	cfg := configManager.GetConfig()

	// Create server info
	serverInfo := &mcp.Implementation{
		Name:    cfg.MCP.ServerName,
		Version: cfg.MCP.ServerVersion,
	}

	server := &Server{
		config:    configManager,
		tracker:   service.NewTrackerService(store, logger),
		mcpServer: mcp.NewServer(serverInfo, nil),
		logger:    logger,
	}

	if err := server.registerTools(); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	return server, nil
}

// Start serves MCP over stdio until ctx is cancelled or the client disconnects
func (s *Server) Start(ctx context.Context) error {
	s.logger.WithFields(logrus.Fields{
		"server_name":    s.config.GetConfig().MCP.ServerName,
		"server_version": s.config.GetConfig().MCP.ServerVersion,
		"transport":      "stdio",
	}).Info("Starting MCP server")

	if err := s.mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}

	s.logger.Info("MCP server stopped")
	return nil
}

// registerTools registers every tracker tool with the SDK
func (s *Server) registerTools() error {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolResolveStage,
		Description: "Resolve which enabled treatment stage covers an examination date. The latest-starting covering stage wins.",
	}, s.handleResolveStage)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolStageInterventionSummary,
		Description: "Refresh stage assignments and summarize intervention adherence, frequency, acuity and spherical equivalent per stage.",
	}, s.handleStageInterventionSummary)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolListStages,
		Description: "List the treatment stage registry in creation order.",
	}, s.handleListStages)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolStageTrends,
		Description: "Return the date-ordered vision, refraction, hyperopia reserve and axial length series, optionally filtered by stage name.",
	}, s.handleStageTrends)

	s.logger.WithField("tool_count", len(ToolNames())).Info("Successfully registered all tools")
	return nil
}

// createErrorResult creates a standardized error result for tool calls
func (s *Server) createErrorResult(message string, err error) *mcp.CallToolResult {
	errorText := fmt.Sprintf("Error: %s", message)
	if err != nil {
		errorText += fmt.Sprintf(" - %v", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: errorText},
		},
		IsError: true,
	}
}

func textResult(format string, args ...interface{}) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf(format, args...)},
		},
	}
}
