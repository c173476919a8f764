package port

import (
	"context"
	"time"

	"github.com/arturoeanton/repolens/internal/domain"
)

// RepositoryStore persists saved repositories.
type RepositoryStore interface {
	CreateRepository(ctx context.Context, r *domain.Repository) (*domain.Repository, error)
	GetRepository(ctx context.Context, id string) (*domain.Repository, error)
	GetRepositoryByPath(ctx context.Context, path string) (*domain.Repository, error)
	UpdateRepository(ctx context.Context, id string, patch domain.RepositoryPatch) (*domain.Repository, error)
	BatchUpdateRepositories(ctx context.Context, patches []domain.RepositoryPatch) ([]domain.Repository, error)
	DeleteRepository(ctx context.Context, id string) error
	ListRepositories(ctx context.Context, f domain.RepositoryFilter) ([]domain.Repository, error)
	SetFavorite(ctx context.Context, id string, favorite bool) (*domain.Repository, error)
	ListTags(ctx context.Context) ([]string, error)
	SearchRepositories(ctx context.Context, query string, limit int) ([]domain.Repository, error)
	TouchRepository(ctx context.Context, id string) error
	RecordAnalysis(ctx context.Context, id, jobID string, lastCommit *time.Time) error
}

// JobStore persists analysis jobs and their artifacts.
type JobStore interface {
	CreateJob(ctx context.Context, repoPath string, repoID *string, recursive bool) (*domain.Job, error)
	GetJob(ctx context.Context, id string) (*domain.Job, error)
	ListJobs(ctx context.Context) ([]domain.Job, error)
	ListJobsByStatus(ctx context.Context, status domain.JobStatus, limit int) ([]domain.Job, error)
	TransitionToRunning(ctx context.Context, id string) (*domain.Job, error)
	CompleteJob(ctx context.Context, id string, artifact *domain.Artifact, report string, reportPath string) (*domain.Job, error)
	FailJob(ctx context.Context, id string, message string) (*domain.Job, error)
	RecoverInterrupted(ctx context.Context, message string) (int64, error)
	GetArtifact(ctx context.Context, jobID string) (*domain.Artifact, error)
	GetReport(ctx context.Context, jobID string) (string, error)
}
