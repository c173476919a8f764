package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arturoeanton/repolens/internal/adapter/fsys"
	"github.com/arturoeanton/repolens/internal/adapter/report"
	"github.com/arturoeanton/repolens/internal/adapter/store"
	"github.com/arturoeanton/repolens/internal/adapter/vcs"
	"github.com/arturoeanton/repolens/internal/domain"
	"github.com/arturoeanton/repolens/internal/metrics"
	"github.com/arturoeanton/repolens/internal/service"
	"github.com/arturoeanton/repolens/internal/testutil"
)

type testServer struct {
	app    *fiber.App
	store  *store.Store
	runner *service.Runner
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	st := testutil.NewStore(t)
	finder := fsys.NewDiscoverer()
	events := service.NewBroadcaster()
	reports := report.NewEngine()
	m := metrics.New()

	analyzer := service.NewAnalysisService(vcs.NewGitProvider(30*time.Second), finder, 2, 2)
	runner := service.NewRunner(st, st, analyzer, reports, events, m, service.RunnerConfig{
		Workers:      1,
		PollInterval: 10 * time.Millisecond,
		ReportsDir:   t.TempDir(),
	})

	app := NewApp(AppConfig{Name: "repolens-test", Version: "test"}, Dependencies{
		Repos:   service.NewRepoService(st, finder, 2),
		Runner:  runner,
		Jobs:    st,
		Events:  events,
		Reports: reports,
		DB:      st,
		Metrics: m,
	})
	return &testServer{app: app, store: st, runner: runner}
}

func (s *testServer) do(t *testing.T, method, target, body string) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

type errorBody struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details []struct {
		Location []string `json:"location"`
		Message  string   `json:"message"`
		Kind     string   `json:"kind"`
	} `json:"details"`
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.do(t, "GET", "/health", "")
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "healthy", decode[map[string]any](t, body)["status"])

	resp, body = s.do(t, "GET", "/metrics", "")
	assert.Equal(t, 200, resp.StatusCode)
	assert.Contains(t, string(body), `repolens_http_requests_total{method="GET",route="/health",status="200"} 1`)
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t)
	resp, body := s.do(t, "GET", "/nope", "")
	assert.Equal(t, 404, resp.StatusCode)
	assert.Equal(t, CodeNotFound, decode[errorBody](t, body).Code)
}

func TestRepositoryCRUD(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.do(t, "POST", "/repositories", `{"path": "/src/api", "tags": "go, API, go"}`)
	require.Equal(t, 201, resp.StatusCode, string(body))
	created := decode[domain.Repository](t, body)
	assert.Equal(t, "api", created.Name)
	assert.Equal(t, domain.Tags{"go", "API"}, created.Tags)

	resp, body = s.do(t, "POST", "/repositories", `{"path": "/src/web", "name": "Web", "tags": ["ui"]}`)
	require.Equal(t, 201, resp.StatusCode, string(body))
	web := decode[domain.Repository](t, body)

	resp, body = s.do(t, "GET", "/repositories/"+created.ID, "")
	require.Equal(t, 200, resp.StatusCode)
	assert.NotNil(t, decode[domain.Repository](t, body).LastAccessed)

	resp, body = s.do(t, "GET", "/repositories?sort_by=name&sort_order=desc", "")
	require.Equal(t, 200, resp.StatusCode)
	list := decode[[]domain.Repository](t, body)
	require.Len(t, list, 2)
	assert.Equal(t, "api", list[1].Name)

	resp, body = s.do(t, "GET", "/repositories?tags=UI", "")
	require.Equal(t, 200, resp.StatusCode)
	list = decode[[]domain.Repository](t, body)
	require.Len(t, list, 1)
	assert.Equal(t, web.ID, list[0].ID)

	resp, body = s.do(t, "GET", "/repositories/tags", "")
	require.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, []string{"API", "go", "ui"}, decode[[]string](t, body))

	resp, body = s.do(t, "GET", "/repositories/search?query=WEB", "")
	require.Equal(t, 200, resp.StatusCode)
	assert.Len(t, decode[[]domain.Repository](t, body), 1)

	resp, body = s.do(t, "PUT", "/repositories/"+created.ID, `{"name": "API Server", "is_favorite": true}`)
	require.Equal(t, 200, resp.StatusCode, string(body))
	updated := decode[domain.Repository](t, body)
	assert.Equal(t, "API Server", updated.Name)
	assert.True(t, updated.IsFavorite)
	assert.Equal(t, created.ID, updated.ID)

	resp, body = s.do(t, "DELETE", "/repositories/"+created.ID, "")
	assert.Equal(t, 204, resp.StatusCode, string(body))

	resp, body = s.do(t, "GET", "/repositories/"+created.ID, "")
	assert.Equal(t, 404, resp.StatusCode)
	assert.Equal(t, CodeNotFound, decode[errorBody](t, body).Code)
}

func TestRepositoryValidation(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.do(t, "POST", "/repositories", `{"name": "no path"}`)
	assert.Equal(t, 422, resp.StatusCode)
	e := decode[errorBody](t, body)
	assert.Equal(t, CodeValidation, e.Code)
	require.Len(t, e.Details, 1)
	assert.Equal(t, []string{"body", "path"}, e.Details[0].Location)

	resp, body = s.do(t, "POST", "/repositories", `{"path": "/src/api"}`)
	require.Equal(t, 201, resp.StatusCode)
	repo := decode[domain.Repository](t, body)

	resp, body = s.do(t, "PUT", "/repositories/"+repo.ID, `{"id": "other", "name": "x"}`)
	assert.Equal(t, 422, resp.StatusCode)
	assert.Equal(t, CodeValidation, decode[errorBody](t, body).Code)

	resp, _ = s.do(t, "GET", "/repositories?sort_by=size", "")
	assert.Equal(t, 422, resp.StatusCode)

	resp, _ = s.do(t, "GET", "/repositories?limit=ten", "")
	assert.Equal(t, 422, resp.StatusCode)

	resp, _ = s.do(t, "POST", "/repositories", `{"path": `)
	assert.Equal(t, 422, resp.StatusCode)
}

func TestFavoriteAndBatch(t *testing.T) {
	s := newTestServer(t)

	_, body := s.do(t, "POST", "/repositories", `{"path": "/src/api"}`)
	api := decode[domain.Repository](t, body)
	_, body = s.do(t, "POST", "/repositories", `{"path": "/src/web"}`)
	web := decode[domain.Repository](t, body)

	resp, body := s.do(t, "POST", "/repositories/"+api.ID+"/favorite", "")
	require.Equal(t, 200, resp.StatusCode, string(body))
	assert.True(t, decode[domain.Repository](t, body).IsFavorite)

	resp, body = s.do(t, "POST", "/repositories/"+api.ID+"/favorite", `{"is_favorite": true}`)
	require.Equal(t, 200, resp.StatusCode)
	assert.True(t, decode[domain.Repository](t, body).IsFavorite)

	resp, body = s.do(t, "POST", "/repositories/"+api.ID+"/favorite?is_favorite=false", "")
	require.Equal(t, 200, resp.StatusCode)
	assert.False(t, decode[domain.Repository](t, body).IsFavorite)

	resp, body = s.do(t, "PUT", "/repositories/batch",
		`[{"id": "`+api.ID+`", "tags": "backend"}, {"id": "`+web.ID+`", "is_favorite": true}]`)
	require.Equal(t, 200, resp.StatusCode, string(body))
	assert.EqualValues(t, 2, decode[map[string]any](t, body)["updated"])

	resp, body = s.do(t, "PUT", "/repositories/batch", `[{"id": "`+api.ID+`", "tags": "x"}, {"id": "missing", "name": "y"}]`)
	assert.Equal(t, 404, resp.StatusCode)
	assert.Equal(t, "not_found", decode[map[string]any](t, body)["code"])

	got, err := s.store.GetRepository(context.Background(), api.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.Tags{"backend"}, got.Tags, "failed batch must not apply")
}

func TestBrowseAndDiscover(t *testing.T) {
	s := newTestServer(t)
	root := t.TempDir()
	for _, p := range []string{"a/.git", "b/nested/.git", "c"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, p), 0o755))
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("hi"), 0o644))

	resp, body := s.do(t, "GET", "/browse_directory?directory="+root, "")
	require.Equal(t, 200, resp.StatusCode, string(body))
	listing := decode[domain.DirectoryListing](t, body)
	require.Len(t, listing.Contents, 4)
	assert.Equal(t, "notes.txt", listing.Contents[3].Name)

	resp, _ = s.do(t, "GET", "/browse_directory?directory="+filepath.Join(root, "missing"), "")
	assert.Equal(t, 404, resp.StatusCode)

	resp, body = s.do(t, "GET", "/discover_repos?base_dir="+root, "")
	require.Equal(t, 200, resp.StatusCode, string(body))
	out := decode[struct {
		Depth        int                 `json:"depth"`
		Count        int                 `json:"count"`
		Repositories []domain.Repository `json:"repositories"`
	}](t, body)
	assert.Equal(t, 2, out.Depth)
	assert.Equal(t, 2, out.Count)

	resp, body = s.do(t, "GET", "/discover_repos?base_dir="+root+"&depth=1", "")
	require.Equal(t, 200, resp.StatusCode)
	assert.EqualValues(t, 1, decode[map[string]any](t, body)["count"])

	resp, _ = s.do(t, "GET", "/discover_repos", "")
	assert.Equal(t, 422, resp.StatusCode)
}

func TestAnalyzeValidationAndPendingJob(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.do(t, "POST", "/analyze", `{}`)
	assert.Equal(t, 422, resp.StatusCode)
	assert.Equal(t, CodeValidation, decode[errorBody](t, body).Code)

	resp, _ = s.do(t, "POST", "/analyze", `{"repo_path": "`+filepath.Join(t.TempDir(), "gone")+`"}`)
	assert.Equal(t, 422, resp.StatusCode)

	// The runner is not started, so the job stays pending.
	resp, body = s.do(t, "POST", "/analyze", `{"repo_path": "`+t.TempDir()+`"}`)
	require.Equal(t, 202, resp.StatusCode, string(body))
	job := decode[domain.Job](t, body)
	assert.Equal(t, domain.JobStatusPending, job.Status)

	resp, body = s.do(t, "GET", "/jobs/"+job.ID+"/data", "")
	assert.Equal(t, 409, resp.StatusCode)
	e := decode[errorBody](t, body)
	assert.Equal(t, CodeJobNotCompleted, e.Code)
	assert.Equal(t, "job not completed", e.Error)

	resp, _ = s.do(t, "GET", "/jobs/"+job.ID+"/report", "")
	assert.Equal(t, 409, resp.StatusCode)

	resp, _ = s.do(t, "GET", "/jobs/unknown", "")
	assert.Equal(t, 404, resp.StatusCode)

	resp, body = s.do(t, "GET", "/jobs", "")
	require.Equal(t, 200, resp.StatusCode)
	assert.Len(t, decode[[]domain.Job](t, body), 1)
}

func TestEndToEndAnalysis(t *testing.T) {
	testutil.RequireGit(t)
	s := newTestServer(t)

	root := t.TempDir()
	testutil.NewRepo(t, filepath.Join(root, "sample"), testutil.Sample()...)

	ctx, cancel := context.WithCancel(context.Background())
	s.runner.Start(ctx)
	t.Cleanup(func() {
		cancel()
		s.runner.Wait()
	})

	resp, body := s.do(t, "POST", "/analyze", `{"repo_path": "`+root+`"}`)
	require.Equal(t, 202, resp.StatusCode, string(body))
	job := decode[domain.Job](t, body)

	require.Eventually(t, func() bool {
		_, body := s.do(t, "GET", "/jobs/"+job.ID, "")
		return decode[domain.Job](t, body).Status.Terminal()
	}, 15*time.Second, 50*time.Millisecond)

	_, body = s.do(t, "GET", "/jobs/"+job.ID, "")
	done := decode[domain.Job](t, body)
	require.Equal(t, domain.JobStatusCompleted, done.Status, "job error: %v", done.Error)
	assert.NotNil(t, done.CompletedAt)

	resp, body = s.do(t, "GET", "/jobs/"+job.ID+"/data", "")
	require.Equal(t, 200, resp.StatusCode)
	artifact := decode[domain.Artifact](t, body)
	assert.Equal(t, 3, artifact.Summary.NumCommits)
	assert.Equal(t, 1, artifact.AggregateStats.ReposAnalyzed)
	require.Len(t, artifact.Authors, 2)
	assert.Equal(t, 3, artifact.Authors[0].Commits+artifact.Authors[1].Commits)

	resp, body = s.do(t, "GET", "/jobs/"+job.ID+"/report", "")
	require.Equal(t, 200, resp.StatusCode)
	assert.Contains(t, decode[map[string]string](t, body)["content"], "# Repository Analysis Report")

	resp, body = s.do(t, "GET", "/jobs/"+job.ID+"/download?type=html", "")
	require.Equal(t, 200, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "attachment")
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, string(body), "echarts")

	resp, _ = s.do(t, "GET", "/jobs/"+job.ID+"/download?type=pdf", "")
	assert.Equal(t, 422, resp.StatusCode)

	resp, body = s.do(t, "GET", "/jobs/"+job.ID+"/stream", "")
	require.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.True(t, strings.HasPrefix(string(body), "event: completed\ndata: "))
}
