package port

import (
	"context"

	"github.com/arturoeanton/repolens/internal/domain"
)

// VCSProvider abstracts read-only version control operations on a local
// working copy.
type VCSProvider interface {
	// Validate fails with ErrNotFound or ErrInvalidRepository when repoPath
	// cannot be analyzed.
	Validate(ctx context.Context, repoPath string) error

	// Log returns every commit reachable from any ref, newest first.
	Log(ctx context.Context, repoPath string) ([]domain.Commit, error)

	// Branches returns the local branches with the current one marked.
	Branches(ctx context.Context, repoPath string) ([]domain.Branch, error)

	// ListFiles returns the tracked file paths at the current checkout.
	ListFiles(ctx context.Context, repoPath string) ([]string, error)

	// CodeStats counts lines and file types of the tracked files.
	CodeStats(ctx context.Context, repoPath string) (domain.CodeStats, error)

	// Snapshot runs all of the above.
	Snapshot(ctx context.Context, repoPath string) (*domain.Snapshot, error)
}

// RepoFinder discovers repositories below a directory.
type RepoFinder interface {
	Discover(ctx context.Context, root string, maxDepth int) ([]domain.Repository, error)
}
