package mcp_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arturoeanton/repolens/internal/adapter/fsys"
	"github.com/arturoeanton/repolens/internal/adapter/report"
	"github.com/arturoeanton/repolens/internal/adapter/store"
	"github.com/arturoeanton/repolens/internal/adapter/vcs"
	"github.com/arturoeanton/repolens/internal/domain"
	mcp_internal "github.com/arturoeanton/repolens/internal/mcp"
	"github.com/arturoeanton/repolens/internal/service"
	"github.com/arturoeanton/repolens/internal/testutil"
)

func newServer(t *testing.T) (*mcp_internal.Server, *store.Store) {
	t.Helper()
	st := testutil.NewStore(t)
	finder := fsys.NewDiscoverer()
	analyzer := service.NewAnalysisService(vcs.NewGitProvider(0), finder, 2, 1)
	runner := service.NewRunner(st, st, analyzer, report.NewEngine(), nil, nil, service.RunnerConfig{})
	return mcp_internal.NewServer(service.NewRepoService(st, finder, 2), runner, st, "test", "0"), st
}

func call(t *testing.T, s *mcp_internal.Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	tool := s.MCP().GetTool(name)
	require.NotNil(t, tool, "tool %s should exist", name)
	res, err := tool.Handler(context.Background(), mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: name, Arguments: args},
	})
	require.NoError(t, err, "tool failures are reported in the result")
	return res
}

func text(res *mcp.CallToolResult) string {
	return res.Content[0].(mcp.TextContent).Text
}

func TestDiscoverRepositories(t *testing.T) {
	s, _ := newServer(t)
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "api", ".git"), 0o755))

	res := call(t, s, "discover_repositories", map[string]any{"base_dir": root, "depth": 1.0})
	require.False(t, res.IsError, text(res))

	var out struct {
		Count        int                 `json:"count"`
		Depth        int                 `json:"depth"`
		Repositories []domain.Repository `json:"repositories"`
	}
	require.NoError(t, json.Unmarshal([]byte(text(res)), &out))
	assert.Equal(t, 1, out.Count)
	assert.Equal(t, 1, out.Depth)
	assert.Equal(t, "api", out.Repositories[0].Name)

	res = call(t, s, "discover_repositories", map[string]any{"base_dir": filepath.Join(root, "missing")})
	assert.True(t, res.IsError)
}

func TestAnalyzeAndJobTools(t *testing.T) {
	s, st := newServer(t)

	res := call(t, s, "analyze_repository", map[string]any{})
	assert.True(t, res.IsError)
	assert.Contains(t, text(res), "repo_path is required")

	dir := t.TempDir()
	res = call(t, s, "analyze_repository", map[string]any{"repo_path": dir, "recursive": false})
	require.False(t, res.IsError, text(res))
	var job domain.Job
	require.NoError(t, json.Unmarshal([]byte(text(res)), &job))
	assert.Equal(t, domain.JobStatusPending, job.Status)
	assert.False(t, job.Recursive)

	res = call(t, s, "get_job", map[string]any{"job_id": job.ID})
	require.False(t, res.IsError)
	assert.Contains(t, text(res), job.ID)

	res = call(t, s, "get_job_report", map[string]any{"job_id": job.ID})
	assert.True(t, res.IsError, "pending job has no report")

	res = call(t, s, "get_job", map[string]any{"job_id": "missing"})
	assert.True(t, res.IsError)

	_, err := st.CreateRepository(context.Background(), &domain.Repository{Name: "api", Path: "/src/api"})
	require.NoError(t, err)
	res = call(t, s, "list_repositories", map[string]any{"search": "API"})
	require.False(t, res.IsError)
	var repos []domain.Repository
	require.NoError(t, json.Unmarshal([]byte(text(res)), &repos))
	assert.Len(t, repos, 1)
}
