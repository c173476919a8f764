// Package mcp exposes repository discovery and analysis jobs as Model
// Context Protocol tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/arturoeanton/repolens/internal/domain"
	"github.com/arturoeanton/repolens/internal/port"
	"github.com/arturoeanton/repolens/internal/service"
)

// Server wraps the MCP tool server and its SSE transport.
type Server struct {
	mcp  *server.MCPServer
	port string
	sse  *server.SSEServer
}

// toolHandler holds the dependencies of the tool handlers.
type toolHandler struct {
	repos  *service.RepoService
	runner *service.Runner
	jobs   port.JobStore
}

// NewServer registers every tool. listenPort is only used by Start.
func NewServer(repos *service.RepoService, runner *service.Runner, jobs port.JobStore, version, listenPort string) *Server {
	s := server.NewMCPServer("repolens", version, server.WithLogging())
	h := &toolHandler{repos: repos, runner: runner, jobs: jobs}

	s.AddTool(mcp.NewTool("discover_repositories",
		mcp.WithDescription("Find git repositories below a directory."),
		mcp.WithString("base_dir", mcp.Description("Directory to search."), mcp.Required()),
		mcp.WithNumber("depth", mcp.Description("How many directory levels to descend. Defaults to the server setting.")),
	), h.discover)

	s.AddTool(mcp.NewTool("analyze_repository",
		mcp.WithDescription("Queue an analysis job for a repository or a directory of repositories. Poll get_job for the result."),
		mcp.WithString("repo_path", mcp.Description("Path to the repository or to a directory containing repositories.")),
		mcp.WithString("repo_id", mcp.Description("Id of a saved repository to link the result to.")),
		mcp.WithBoolean("recursive", mcp.Description("Search for repositories when repo_path is not one. Defaults to true.")),
	), h.analyze)

	s.AddTool(mcp.NewTool("get_job",
		mcp.WithDescription("Get the status of an analysis job."),
		mcp.WithString("job_id", mcp.Description("Job id returned by analyze_repository."), mcp.Required()),
	), h.getJob)

	s.AddTool(mcp.NewTool("get_job_report",
		mcp.WithDescription("Get the Markdown report of a completed analysis job."),
		mcp.WithString("job_id", mcp.Description("Job id returned by analyze_repository."), mcp.Required()),
	), h.getReport)

	s.AddTool(mcp.NewTool("list_repositories",
		mcp.WithDescription("List saved repositories, optionally filtered by a search string."),
		mcp.WithString("search", mcp.Description("Substring of the name, path or tags.")),
	), h.listRepositories)

	return &Server{mcp: s, port: listenPort}
}

// MCP returns the underlying tool server.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// Start serves the tools over SSE on the configured port. It blocks until
// Shutdown is called.
func (s *Server) Start() error {
	s.sse = server.NewSSEServer(s.mcp)
	slog.Info("MCP server starting", "port", s.port)
	return s.sse.Start(":" + s.port)
}

// Shutdown stops the SSE transport started by Start.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.sse == nil {
		return nil
	}
	return s.sse.Shutdown(ctx)
}

// ServeStdio serves the tools over stdin and stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (h *toolHandler) discover(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	baseDir := request.GetString("base_dir", "")
	depth := h.repos.ResolveDepth(request.GetInt("depth", -1))

	repos, err := h.repos.Discover(ctx, baseDir, depth)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("discovery failed: %v", err)), nil
	}
	return jsonResult(map[string]any{
		"base_dir":     baseDir,
		"depth":        depth,
		"repositories": repos,
		"count":        len(repos),
	})
}

func (h *toolHandler) analyze(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	req := domain.JobRequest{RepoPath: request.GetString("repo_path", "")}
	if id := request.GetString("repo_id", ""); id != "" {
		req.RepoID = &id
	}
	if args := request.GetArguments(); args != nil {
		if _, ok := args["recursive"]; ok {
			recursive := request.GetBool("recursive", true)
			req.Recursive = &recursive
		}
	}

	job, err := h.runner.Submit(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("could not queue analysis: %v", err)), nil
	}
	return jsonResult(job)
}

func (h *toolHandler) getJob(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	job, err := h.jobs.GetJob(ctx, request.GetString("job_id", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(job)
}

func (h *toolHandler) getReport(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report, err := h.jobs.GetReport(ctx, request.GetString("job_id", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(report), nil
}

func (h *toolHandler) listRepositories(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	repos, err := h.repos.List(ctx, domain.RepositoryFilter{Search: request.GetString("search", "")})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(repos)
}
