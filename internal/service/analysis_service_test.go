package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arturoeanton/repolens/internal/domain"
	"github.com/arturoeanton/repolens/internal/port"
)

// fakeVCS serves canned snapshots keyed by path. Paths without an entry are
// not repositories.
type fakeVCS struct {
	snaps    map[string]*domain.Snapshot
	errs     map[string]error
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (f *fakeVCS) Validate(_ context.Context, path string) error {
	if _, ok := f.snaps[path]; ok {
		return nil
	}
	if _, ok := f.errs[path]; ok {
		return nil
	}
	return &port.InvalidRepositoryError{Path: path}
}

func (f *fakeVCS) Snapshot(ctx context.Context, path string) (*domain.Snapshot, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)

	if err, ok := f.errs[path]; ok {
		return nil, err
	}
	if snap, ok := f.snaps[path]; ok {
		return snap, nil
	}
	return nil, &port.InvalidRepositoryError{Path: path}
}

func (f *fakeVCS) Log(ctx context.Context, path string) ([]domain.Commit, error) {
	s, err := f.Snapshot(ctx, path)
	if err != nil {
		return nil, err
	}
	return s.Commits, nil
}

func (f *fakeVCS) Branches(ctx context.Context, path string) ([]domain.Branch, error) {
	s, err := f.Snapshot(ctx, path)
	if err != nil {
		return nil, err
	}
	return s.Branches, nil
}

func (f *fakeVCS) ListFiles(context.Context, string) ([]string, error) { return nil, nil }

func (f *fakeVCS) CodeStats(ctx context.Context, path string) (domain.CodeStats, error) {
	s, err := f.Snapshot(ctx, path)
	if err != nil {
		return domain.CodeStats{}, err
	}
	return s.CodeStats, nil
}

func snapshotWith(n int, author string) *domain.Snapshot {
	commits := make([]domain.Commit, n)
	for i := range commits {
		when := time.Date(2024, 3, 4, 9+i, 0, 0, 0, time.UTC)
		commits[i] = domain.Commit{
			Hash: fmt.Sprintf("%s%d", author, i), Author: author, AuthorEmail: author + "@x.io",
			AuthorDate: when, Committer: author, CommitterEmail: author + "@x.io", CommitDate: when,
			Message: "update parser",
		}
	}
	return &domain.Snapshot{Commits: commits}
}

func TestAnalysisService_SingleRepository(t *testing.T) {
	vcs := &fakeVCS{snaps: map[string]*domain.Snapshot{"/src/api": snapshotWith(3, "ada")}}
	svc := NewAnalysisService(vcs, &fakeFinder{}, 2, 2)

	a, err := svc.Run(context.Background(), "job-1", "/src/api", false)
	require.NoError(t, err)
	assert.Equal(t, "job-1", a.JobID)
	require.Len(t, a.Repositories, 1)
	assert.Equal(t, 3, a.Summary.NumCommits)
	assert.Equal(t, 1, a.AggregateStats.ReposAnalyzed)
	assert.Empty(t, a.Skipped)
}

func TestAnalysisService_SingleRepositoryFailureFailsJob(t *testing.T) {
	boom := &port.CommandError{Args: []string{"log"}, ExitCode: 128, Stderr: "fatal"}
	vcs := &fakeVCS{errs: map[string]error{"/src/api": boom}}
	svc := NewAnalysisService(vcs, &fakeFinder{}, 2, 2)

	_, err := svc.Run(context.Background(), "job-1", "/src/api", true)
	assert.True(t, errors.Is(err, port.ErrCommandFailed))
}

func TestAnalysisService_NotARepository(t *testing.T) {
	svc := NewAnalysisService(&fakeVCS{}, &fakeFinder{}, 2, 2)

	_, err := svc.Run(context.Background(), "job-1", "/src", false)
	assert.True(t, errors.Is(err, port.ErrInvalidRepository))

	_, err = svc.Run(context.Background(), "job-1", "/src", true)
	assert.True(t, errors.Is(err, port.ErrInvalidRepository), "empty discovery")
}

func TestAnalysisService_RecursiveSkipsFailures(t *testing.T) {
	vcs := &fakeVCS{
		snaps: map[string]*domain.Snapshot{
			"/src/api": snapshotWith(2, "ada"),
			"/src/web": snapshotWith(1, "bob"),
		},
		errs: map[string]error{"/src/broken": errors.New("object file is empty")},
	}
	finder := &fakeFinder{repos: []domain.Repository{
		{Name: "api", Path: "/src/api", RelativePath: "api"},
		{Name: "broken", Path: "/src/broken", RelativePath: "broken"},
		{Name: "web", Path: "/src/web", RelativePath: "web"},
	}}
	svc := NewAnalysisService(vcs, finder, 2, 2)

	a, err := svc.Run(context.Background(), "job-1", "/src", true)
	require.NoError(t, err)
	assert.Equal(t, 2, finder.depth)
	assert.Equal(t, 2, a.AggregateStats.ReposAnalyzed)
	assert.Equal(t, 3, a.AggregateStats.TotalCommits)
	require.Len(t, a.Skipped, 1)
	assert.Equal(t, "/src/broken", a.Skipped[0].Path)
	assert.Contains(t, a.Skipped[0].Error, "object file is empty")
	assert.LessOrEqual(t, vcs.peak.Load(), int32(2))
}

func TestAnalysisService_AllFail(t *testing.T) {
	vcs := &fakeVCS{errs: map[string]error{
		"/src/a": errors.New("first"),
		"/src/b": errors.New("second"),
	}}
	finder := &fakeFinder{repos: []domain.Repository{{Path: "/src/a"}, {Path: "/src/b"}}}
	svc := NewAnalysisService(vcs, finder, 2, 4)

	_, err := svc.Run(context.Background(), "job-1", "/src", true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all 2 repositories failed")
	assert.Contains(t, err.Error(), "first")
}

func TestAnalysisService_OrderIndependent(t *testing.T) {
	snaps := map[string]*domain.Snapshot{}
	var repos []domain.Repository
	for i := range 8 {
		p := fmt.Sprintf("/src/r%d", i)
		snaps[p] = snapshotWith(i+1, fmt.Sprintf("dev%d", i))
		repos = append(repos, domain.Repository{Name: fmt.Sprintf("r%d", i), Path: p})
	}
	reversed := make([]domain.Repository, len(repos))
	for i, r := range repos {
		reversed[len(repos)-1-i] = r
	}

	run := func(list []domain.Repository) *domain.Artifact {
		svc := NewAnalysisService(&fakeVCS{snaps: snaps}, &fakeFinder{repos: list}, 2, 3)
		a, err := svc.Run(context.Background(), "job", "/src", true)
		require.NoError(t, err)
		return a
	}
	a, b := run(repos), run(reversed)
	assert.Equal(t, a.AggregateStats, b.AggregateStats)
	assert.Equal(t, a.Authors, b.Authors)
	assert.Equal(t, a.Heatmap, b.Heatmap)
}
