package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/mfenderov/browseflow/pkg/models"
)

// Config holds MCP server configuration.
type Config struct {
	Name         string
	Version      string
	DefaultLimit int
}

// Store is the workflow store the tools read from.
type Store interface {
	Search(ctx context.Context, query string, limit int) ([]models.Workflow, error)
	HybridSearch(ctx context.Context, query string, embedding []float32, limit int) ([]models.Workflow, error)
	LoadRecent(ctx context.Context, domain string, limit int) ([]models.CompactWorkflow, error)
	Get(ctx context.Context, id string) (*models.Workflow, error)
}

// Embedder turns a search query into a vector. Optional.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Server exposes stored workflows as MCP tools.
type Server struct {
	mcpServer    *server.MCPServer
	store        Store
	embedder     Embedder
	defaultLimit int
}

// NewServer creates a new MCP server with workflow tools. embedder may be nil.
func NewServer(config Config, store Store, embedder Embedder) (*Server, error) {
	if store == nil {
		return nil, fmt.Errorf("workflow store is required")
	}
	if config.DefaultLimit <= 0 {
		config.DefaultLimit = 10
	}

	mcpServer := server.NewMCPServer(
		config.Name,
		config.Version,
		server.WithToolCapabilities(true),
	)

	s := &Server{
		mcpServer:    mcpServer,
		store:        store,
		embedder:     embedder,
		defaultLimit: config.DefaultLimit,
	}

	searchTool := mcp.NewTool("search_workflows",
		mcp.WithDescription("Search learned browser workflows by query. Returns full workflows with their steps."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query string"),
		),
		mcp.WithNumber("limit",
			mcp.Description(fmt.Sprintf("Maximum number of results to return (default: %d)", config.DefaultLimit)),
		),
	)
	mcpServer.AddTool(searchTool, s.searchHandler)

	recentTool := mcp.NewTool("recent_workflows",
		mcp.WithDescription("List the most recently learned workflows, optionally for one domain"),
		mcp.WithString("domain",
			mcp.Description("Domain to filter by, e.g. docs.google.com"),
		),
		mcp.WithNumber("limit",
			mcp.Description(fmt.Sprintf("Maximum number of results to return (default: %d)", config.DefaultLimit)),
		),
	)
	mcpServer.AddTool(recentTool, s.recentHandler)

	getTool := mcp.NewTool("get_workflow",
		mcp.WithDescription("Get a specific workflow by ID"),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Workflow ID to retrieve"),
		),
	)
	mcpServer.AddTool(getTool, s.getWorkflowHandler)

	return s, nil
}

func jsonResult(v any) *mcp.CallToolResult {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err))
	}
	return mcp.NewToolResultText(string(data))
}

// searchHandler handles the search_workflows tool call.
func (s *Server) searchHandler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("query parameter is required"), nil
	}

	limit := req.GetInt("limit", s.defaultLimit)

	workflows, err := s.handleSearch(ctx, query, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	return jsonResult(workflows), nil
}

// recentHandler handles the recent_workflows tool call.
func (s *Server) recentHandler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	domain := req.GetString("domain", "")
	limit := req.GetInt("limit", s.defaultLimit)

	workflows, err := s.store.LoadRecent(ctx, domain, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("listing workflows failed: %v", err)), nil
	}
	return jsonResult(workflows), nil
}

// getWorkflowHandler handles the get_workflow tool call.
func (s *Server) getWorkflowHandler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id parameter is required"), nil
	}

	wf, err := s.store.Get(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("get workflow failed: %v", err)), nil
	}
	if wf == nil {
		return mcp.NewToolResultError(fmt.Sprintf("workflow not found: %s", id)), nil
	}
	return jsonResult(wf), nil
}

// handleSearch uses hybrid search when an embedder is configured and falls
// back to keyword search when embedding the query fails.
func (s *Server) handleSearch(ctx context.Context, query string, limit int) ([]models.Workflow, error) {
	if s.embedder == nil {
		return s.store.Search(ctx, query, limit)
	}
	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		slog.Warn("query embedding failed, using keyword search", "error", err)
		return s.store.Search(ctx, query, limit)
	}
	return s.store.HybridSearch(ctx, query, embedding, limit)
}

// ServeStdio starts the MCP server using stdio transport.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}
