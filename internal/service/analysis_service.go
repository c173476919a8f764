package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/arturoeanton/repolens/internal/analysis"
	"github.com/arturoeanton/repolens/internal/domain"
	"github.com/arturoeanton/repolens/internal/port"
)

// DefaultParallelism bounds concurrent extractions within one job.
const DefaultParallelism = 4

// AnalysisService extracts and aggregates the repositories of one job.
type AnalysisService struct {
	vcs         port.VCSProvider
	finder      port.RepoFinder
	depth       int
	parallelism int
}

// NewAnalysisService creates a new analysis service. depth is used when
// searching a directory that is not itself a repository.
func NewAnalysisService(vcs port.VCSProvider, finder port.RepoFinder, depth, parallelism int) *AnalysisService {
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}
	return &AnalysisService{vcs: vcs, finder: finder, depth: depth, parallelism: parallelism}
}

// Run analyzes root. A root that is a repository is analyzed on its own.
// Otherwise, when recursive is set, every repository found below root is
// analyzed; those that fail are listed as skipped unless all of them fail.
func (s *AnalysisService) Run(ctx context.Context, jobID, root string, recursive bool) (*domain.Artifact, error) {
	err := s.vcs.Validate(ctx, root)
	if err == nil {
		repo := domain.Repository{Name: domain.NameFromPath(root), Path: root, RelativePath: "."}
		result, err := s.extract(ctx, repo)
		if err != nil {
			return nil, err
		}
		return analysis.BuildArtifact(jobID, root, []domain.RepositoryAnalysis{result}, nil), nil
	}
	if !errors.Is(err, port.ErrInvalidRepository) || !recursive {
		return nil, err
	}

	repos, err := s.finder.Discover(ctx, root, s.depth)
	if err != nil {
		return nil, fmt.Errorf("discover repositories: %w", err)
	}
	if len(repos) == 0 {
		return nil, fmt.Errorf("no repositories found under %s: %w", root, port.ErrInvalidRepository)
	}
	slog.Info("analyzing repositories", "job_id", jobID, "root", root, "count", len(repos))

	results, skipped, err := s.extractAll(ctx, repos)
	if err != nil {
		return nil, err
	}
	return analysis.BuildArtifact(jobID, root, results, skipped), nil
}

// extractAll extracts repos concurrently. Results keep the input order.
func (s *AnalysisService) extractAll(ctx context.Context, repos []domain.Repository) ([]domain.RepositoryAnalysis, []domain.SkippedRepository, error) {
	results := make([]*domain.RepositoryAnalysis, len(repos))
	errs := make([]error, len(repos))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	for i, repo := range repos {
		g.Go(func() error {
			r, err := s.extract(gctx, repo)
			if err != nil {
				// A cancelled job stops everything; anything else only
				// skips this repository.
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				errs[i] = err
				return nil
			}
			results[i] = &r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var (
		analyzed []domain.RepositoryAnalysis
		skipped  []domain.SkippedRepository
		firstErr error
	)
	for i, r := range results {
		if r != nil {
			analyzed = append(analyzed, *r)
			continue
		}
		if firstErr == nil {
			firstErr = errs[i]
		}
		slog.Warn("repository skipped", "path", repos[i].Path, "error", errs[i])
		skipped = append(skipped, domain.SkippedRepository{Path: repos[i].Path, Error: errs[i].Error()})
	}
	if len(analyzed) == 0 {
		return nil, nil, fmt.Errorf("all %d repositories failed: %w", len(repos), firstErr)
	}
	return analyzed, skipped, nil
}

func (s *AnalysisService) extract(ctx context.Context, repo domain.Repository) (domain.RepositoryAnalysis, error) {
	snap, err := s.vcs.Snapshot(ctx, repo.Path)
	if err != nil {
		return domain.RepositoryAnalysis{}, fmt.Errorf("analyze %s: %w", filepath.Base(repo.Path), err)
	}
	slog.Debug("repository extracted", "path", repo.Path, "commits", len(snap.Commits))
	return analysis.Analyze(repo, snap), nil
}
