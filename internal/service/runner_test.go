package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arturoeanton/repolens/internal/adapter/fsys"
	"github.com/arturoeanton/repolens/internal/adapter/report"
	"github.com/arturoeanton/repolens/internal/adapter/store"
	"github.com/arturoeanton/repolens/internal/adapter/vcs"
	"github.com/arturoeanton/repolens/internal/analysis"
	"github.com/arturoeanton/repolens/internal/domain"
	"github.com/arturoeanton/repolens/internal/metrics"
	"github.com/arturoeanton/repolens/internal/port"
	"github.com/arturoeanton/repolens/internal/testutil"
)

type analyzerFunc func(ctx context.Context, jobID, root string, recursive bool) (*domain.Artifact, error)

func (f analyzerFunc) Run(ctx context.Context, jobID, root string, recursive bool) (*domain.Artifact, error) {
	return f(ctx, jobID, root, recursive)
}

func staticAnalyzer(calls *atomic.Int32) Analyzer {
	return analyzerFunc(func(_ context.Context, jobID, root string, _ bool) (*domain.Artifact, error) {
		if calls != nil {
			calls.Add(1)
		}
		ra := analysis.Analyze(domain.Repository{Name: domain.NameFromPath(root), Path: root}, snapshotWith(3, "ada"))
		return analysis.BuildArtifact(jobID, root, []domain.RepositoryAnalysis{ra}, nil), nil
	})
}

func newTestRunner(t *testing.T, st *store.Store, a Analyzer, cfg RunnerConfig) *Runner {
	t.Helper()
	return NewRunner(st, st, a, report.NewEngine(), NewBroadcaster(), metrics.New(), cfg)
}

func TestRunner_SubmitValidation(t *testing.T) {
	st := testutil.NewStore(t)
	r := newTestRunner(t, st, staticAnalyzer(nil), RunnerConfig{})
	ctx := context.Background()

	_, err := r.Submit(ctx, domain.JobRequest{})
	assert.True(t, errors.Is(err, port.ErrValidation))

	_, err = r.Submit(ctx, domain.JobRequest{RepoPath: filepath.Join(t.TempDir(), "missing")})
	assert.True(t, errors.Is(err, port.ErrValidation))

	_, err = r.Submit(ctx, domain.JobRequest{RepoID: ptr("nope")})
	assert.True(t, port.IsNotFound(err))
}

func TestRunner_SubmitUsesSavedRepositoryPath(t *testing.T) {
	st := testutil.NewStore(t)
	r := newTestRunner(t, st, staticAnalyzer(nil), RunnerConfig{})
	ctx := context.Background()

	dir := t.TempDir()
	repo, err := st.CreateRepository(ctx, &domain.Repository{Name: "x", Path: dir})
	require.NoError(t, err)

	job, err := r.Submit(ctx, domain.JobRequest{RepoID: &repo.ID})
	require.NoError(t, err)
	assert.Equal(t, dir, job.RepoPath)
	assert.Equal(t, domain.JobStatusPending, job.Status)
	assert.True(t, job.Recursive)
}

func TestRunner_ProcessCompletes(t *testing.T) {
	st := testutil.NewStore(t)
	reports := t.TempDir()
	r := newTestRunner(t, st, staticAnalyzer(nil), RunnerConfig{ReportsDir: reports})
	ctx := context.Background()

	dir := t.TempDir()
	saved, err := st.CreateRepository(ctx, &domain.Repository{Name: "x", Path: dir})
	require.NoError(t, err)

	job, err := r.Submit(ctx, domain.JobRequest{RepoPath: dir})
	require.NoError(t, err)
	events := r.events.Subscribe(job.ID)

	claimed, err := r.claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	r.Process(ctx, claimed)

	done, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, done.Status)
	require.NotNil(t, done.ReportPath)
	for _, name := range []string{"report.md", "data.json", "report.html"} {
		assert.FileExists(t, filepath.Join(*done.ReportPath, name))
	}

	md, err := st.GetReport(ctx, job.ID)
	require.NoError(t, err)
	assert.Contains(t, md, "# Repository Analysis Report")

	repo, err := st.GetRepository(ctx, saved.ID)
	require.NoError(t, err)
	require.NotNil(t, repo.LastAnalysisJobID)
	assert.Equal(t, job.ID, *repo.LastAnalysisJobID)
	assert.NotNil(t, repo.LastCommitDate)

	var statuses []domain.JobStatus
	for len(events) > 0 {
		statuses = append(statuses, (<-events).Status)
	}
	assert.Equal(t, []domain.JobStatus{domain.JobStatusRunning, domain.JobStatusCompleted}, statuses)
}

func TestRunner_PanicFailsJob(t *testing.T) {
	st := testutil.NewStore(t)
	panicky := analyzerFunc(func(context.Context, string, string, bool) (*domain.Artifact, error) {
		panic("boom")
	})
	r := newTestRunner(t, st, panicky, RunnerConfig{})
	ctx := context.Background()

	job, err := r.Submit(ctx, domain.JobRequest{RepoPath: t.TempDir()})
	require.NoError(t, err)
	claimed, err := r.claim(ctx)
	require.NoError(t, err)

	assert.NotPanics(t, func() { r.Process(ctx, claimed) })

	failed, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, failed.Status)
	require.NotNil(t, failed.Error)
	assert.Contains(t, *failed.Error, "boom")
	assert.NotNil(t, failed.CompletedAt)

	_, err = st.GetArtifact(ctx, job.ID)
	assert.True(t, errors.Is(err, port.ErrJobNotCompleted))
}

// flakyJobs fails the first failures calls to FailJob.
type flakyJobs struct {
	port.JobStore
	failures int32
	calls    atomic.Int32
}

func (f *flakyJobs) FailJob(ctx context.Context, id, message string) (*domain.Job, error) {
	if f.calls.Add(1) <= f.failures {
		return nil, errors.New("database is locked")
	}
	return f.JobStore.FailJob(ctx, id, message)
}

func TestRunner_FailJobIsRetried(t *testing.T) {
	tests := []struct {
		name      string
		failures  int32
		wantCalls int32
		want      domain.JobStatus
	}{
		{"transient error", 1, 2, domain.JobStatusFailed},
		{"persistent error", failAttempts, failAttempts, domain.JobStatusRunning},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := testutil.NewStore(t)
			jobs := &flakyJobs{JobStore: st, failures: tt.failures}
			failing := analyzerFunc(func(context.Context, string, string, bool) (*domain.Artifact, error) {
				return nil, errors.New("git exploded")
			})
			r := NewRunner(jobs, st, failing, report.NewEngine(), NewBroadcaster(), metrics.New(), RunnerConfig{})
			r.retryDelay = time.Millisecond
			ctx := context.Background()

			job, err := r.Submit(ctx, domain.JobRequest{RepoPath: t.TempDir()})
			require.NoError(t, err)
			claimed, err := r.claim(ctx)
			require.NoError(t, err)
			r.Process(ctx, claimed)

			got, err := st.GetJob(ctx, job.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Status)
			assert.Equal(t, tt.wantCalls, jobs.calls.Load())
		})
	}
}

func TestRunner_Timeout(t *testing.T) {
	st := testutil.NewStore(t)
	slow := analyzerFunc(func(ctx context.Context, _, _ string, _ bool) (*domain.Artifact, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	r := newTestRunner(t, st, slow, RunnerConfig{JobTimeout: 20 * time.Millisecond})
	ctx := context.Background()

	job, err := r.Submit(ctx, domain.JobRequest{RepoPath: t.TempDir()})
	require.NoError(t, err)
	claimed, err := r.claim(ctx)
	require.NoError(t, err)
	r.Process(ctx, claimed)

	failed, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, failed.Status)
	assert.Contains(t, *failed.Error, "timed out")
}

func TestRunner_Recover(t *testing.T) {
	st := testutil.NewStore(t)
	ctx := context.Background()
	dir := t.TempDir()

	stuck, err := st.CreateJob(ctx, dir, nil, false)
	require.NoError(t, err)
	_, err = st.TransitionToRunning(ctx, stuck.ID)
	require.NoError(t, err)
	waiting, err := st.CreateJob(ctx, dir, nil, false)
	require.NoError(t, err)

	r := newTestRunner(t, st, staticAnalyzer(nil), RunnerConfig{})
	require.NoError(t, r.Recover(ctx))

	got, err := st.GetJob(ctx, stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, got.Status)
	assert.Equal(t, InterruptedMessage, *got.Error)

	got, err = st.GetJob(ctx, waiting.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, got.Status)
}

func TestRunner_WorkersRunEachJobOnce(t *testing.T) {
	st := testutil.NewStore(t)
	var calls atomic.Int32
	r := newTestRunner(t, st, staticAnalyzer(&calls), RunnerConfig{Workers: 3, PollInterval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)
	t.Cleanup(func() {
		cancel()
		r.Wait()
	})

	dir := t.TempDir()
	var ids []string
	for range 5 {
		job, err := r.Submit(context.Background(), domain.JobRequest{RepoPath: dir})
		require.NoError(t, err)
		ids = append(ids, job.ID)
	}

	require.Eventually(t, func() bool {
		for _, id := range ids {
			job, err := st.GetJob(context.Background(), id)
			if err != nil || job.Status != domain.JobStatusCompleted {
				return false
			}
		}
		return true
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, int32(5), calls.Load())
}

func TestRunner_EndToEndWithGit(t *testing.T) {
	testutil.RequireGit(t)
	st := testutil.NewStore(t)

	root := t.TempDir()
	testutil.NewRepo(t, filepath.Join(root, "sample"), testutil.Sample()...)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "notes"), 0o755))

	analyzer := NewAnalysisService(vcs.NewGitProvider(30*time.Second), fsys.NewDiscoverer(), 2, 2)
	r := newTestRunner(t, st, analyzer, RunnerConfig{Workers: 1, PollInterval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)
	t.Cleanup(func() {
		cancel()
		r.Wait()
	})

	job, err := r.Submit(context.Background(), domain.JobRequest{RepoPath: root})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		j, err := st.GetJob(context.Background(), job.ID)
		return err == nil && j.Status.Terminal()
	}, 10*time.Second, 20*time.Millisecond)

	a, err := st.GetArtifact(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, a.Summary.NumCommits)
	assert.Equal(t, 1, a.AggregateStats.ReposAnalyzed)
	require.Len(t, a.Authors, 2)
	assert.Equal(t, 3, a.Authors[0].Commits+a.Authors[1].Commits)
}
