package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/arturoeanton/repolens/internal/adapter/fsys"
	"github.com/arturoeanton/repolens/internal/domain"
	"github.com/arturoeanton/repolens/internal/metrics"
	"github.com/arturoeanton/repolens/internal/port"
)

// InterruptedMessage is the error recorded on jobs that were running when
// the previous process stopped.
const InterruptedMessage = "interrupted: server restarted while job was running"

// Runner defaults.
const (
	DefaultWorkers      = 2
	DefaultPollInterval = 2 * time.Second
	DefaultJobTimeout   = 30 * time.Minute
)

// claimBatch is how many pending jobs a worker looks at per poll.
const claimBatch = 16

// Marking a job failed is retried with doubling delays. A job whose failure
// could not be recorded stays running until the next Recover.
const (
	failAttempts   = 3
	failRetryDelay = 250 * time.Millisecond
)

// Analyzer produces the artifact of one job.
type Analyzer interface {
	Run(ctx context.Context, jobID, root string, recursive bool) (*domain.Artifact, error)
}

// RunnerConfig tunes the worker pool.
type RunnerConfig struct {
	Workers      int
	PollInterval time.Duration
	JobTimeout   time.Duration
	// ReportsDir receives a copy of every export per job. Empty disables
	// report files; the database copy is always written.
	ReportsDir string
}

// Runner executes pending jobs on a fixed pool of workers. Jobs are claimed
// with a conditional update, so no two workers run the same job. Recover
// fails every running job it finds, which assumes one serving process per
// database.
type Runner struct {
	jobs     port.JobStore
	repos    port.RepositoryStore
	analyzer Analyzer
	reports  *port.ReportEngine
	events   *Broadcaster
	metrics  *metrics.Metrics
	cfg      RunnerConfig

	wake       chan struct{}
	wg         sync.WaitGroup
	retryDelay time.Duration
}

// NewRunner creates a Runner. events and m may be nil.
func NewRunner(jobs port.JobStore, repos port.RepositoryStore, analyzer Analyzer, reports *port.ReportEngine,
	events *Broadcaster, m *metrics.Metrics, cfg RunnerConfig) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = DefaultJobTimeout
	}
	return &Runner{
		jobs:     jobs,
		repos:    repos,
		analyzer: analyzer,
		reports:  reports,
		events:   events,
		metrics:  m,
		cfg:      cfg,
		wake:     make(chan struct{}, 1),

		retryDelay: failRetryDelay,
	}
}

// Recover fails every job left running by a previous process. Pending jobs
// are left alone and picked up by the workers.
func (r *Runner) Recover(ctx context.Context) error {
	n, err := r.jobs.RecoverInterrupted(ctx, InterruptedMessage)
	if err != nil {
		return err
	}
	if n > 0 {
		slog.Warn("interrupted jobs marked failed", "count", n)
	}
	return nil
}

// Start launches the workers. They stop when ctx is cancelled; use Wait to
// block until they have.
func (r *Runner) Start(ctx context.Context) {
	slog.Info("job runner started", "workers", r.cfg.Workers, "poll_interval", r.cfg.PollInterval)
	for i := range r.cfg.Workers {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.worker(ctx, i)
		}()
	}
}

// Wait blocks until every worker has returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Wake nudges an idle worker. It never blocks.
func (r *Runner) Wake() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Submit validates req, stores a pending job and wakes the workers.
func (r *Runner) Submit(ctx context.Context, req domain.JobRequest) (*domain.Job, error) {
	path := strings.TrimSpace(req.RepoPath)
	if path == "" && req.RepoID != nil {
		repo, err := r.repos.GetRepository(ctx, *req.RepoID)
		if err != nil {
			return nil, err
		}
		path = repo.Path
	}
	if path == "" {
		return nil, port.NewValidationError(port.KindMissing, "repo_path is required", "body", "repo_path")
	}

	abs, err := fsys.ExpandPath(path)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(abs); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, port.NewValidationError(port.KindInvalid, "repository path does not exist: "+abs, "body", "repo_path")
		}
		return nil, fmt.Errorf("stat %s: %w", abs, err)
	}

	recursive := true
	if req.Recursive != nil {
		recursive = *req.Recursive
	}

	job, err := r.jobs.CreateJob(ctx, abs, req.RepoID, recursive)
	if err != nil {
		return nil, err
	}
	slog.Info("job submitted", "job_id", job.ID, "repo_path", abs, "recursive", recursive)
	r.events.Publish(*job)
	r.Wake()
	return job, nil
}

func (r *Runner) worker(ctx context.Context, n int) {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		r.drain(ctx)
		select {
		case <-ctx.Done():
			slog.Debug("worker stopped", "worker", n)
			return
		case <-r.wake:
		case <-ticker.C:
		}
	}
}

// drain runs pending jobs until none can be claimed.
func (r *Runner) drain(ctx context.Context) {
	for ctx.Err() == nil {
		job, err := r.claim(ctx)
		if err != nil {
			if ctx.Err() == nil {
				slog.Error("claim job", "error", err)
			}
			return
		}
		if job == nil {
			return
		}
		r.Process(ctx, job)
	}
}

// claim moves the oldest pending job this worker can win to running.
func (r *Runner) claim(ctx context.Context) (*domain.Job, error) {
	pending, err := r.jobs.ListJobsByStatus(ctx, domain.JobStatusPending, claimBatch)
	if err != nil {
		return nil, err
	}
	for _, p := range pending {
		job, err := r.jobs.TransitionToRunning(ctx, p.ID)
		switch {
		case err == nil:
			return job, nil
		case errors.Is(err, port.ErrInvalidStateTransition), port.IsNotFound(err):
			// another worker got there first
			continue
		default:
			return nil, err
		}
	}
	return nil, nil
}

// Process runs a claimed job to a terminal state. It never panics.
func (r *Runner) Process(ctx context.Context, job *domain.Job) {
	start := time.Now()
	r.metrics.JobStarted()
	r.events.Publish(*job)
	slog.Info("job started", "job_id", job.ID, "repo_path", job.RepoPath)

	err := r.execute(ctx, job)

	// Finish even when the runner is shutting down.
	finishCtx := context.WithoutCancel(ctx)
	status := domain.JobStatusCompleted
	if err != nil {
		status = domain.JobStatusFailed
		failed, ferr := r.failJob(finishCtx, job.ID, err.Error())
		if ferr != nil {
			slog.Error("mark job failed", "job_id", job.ID, "attempts", failAttempts, "error", ferr)
		} else {
			r.events.Publish(*failed)
		}
		slog.Warn("job failed", "job_id", job.ID, "error", err, "elapsed", time.Since(start))
	} else {
		slog.Info("job completed", "job_id", job.ID, "elapsed", time.Since(start))
	}
	r.metrics.JobFinished(string(status), time.Since(start))
}

// failJob records the failure of a running job. Store errors are retried;
// a missing job or one no longer running is not.
func (r *Runner) failJob(ctx context.Context, id, message string) (*domain.Job, error) {
	delay := r.retryDelay
	for attempt := 1; ; attempt++ {
		job, err := r.jobs.FailJob(ctx, id, message)
		if err == nil {
			return job, nil
		}
		if attempt == failAttempts || port.IsNotFound(err) || errors.Is(err, port.ErrInvalidStateTransition) {
			return nil, err
		}
		slog.Warn("mark job failed, retrying", "job_id", id, "attempt", attempt, "error", err)
		time.Sleep(delay)
		delay *= 2
	}
}

func (r *Runner) execute(ctx context.Context, job *domain.Job) (err error) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("job panicked", "job_id", job.ID, "panic", p, "stack", string(debug.Stack()))
			err = fmt.Errorf("internal error: %v", p)
		}
	}()

	runCtx, cancel := context.WithTimeout(ctx, r.cfg.JobTimeout)
	defer cancel()

	artifact, err := r.analyzer.Run(runCtx, job.ID, job.RepoPath, job.Recursive)
	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("job timed out after %s: %w", r.cfg.JobTimeout, err)
		}
		return err
	}

	var report bytes.Buffer
	if err := r.reports.Render(&report, "markdown", artifact); err != nil {
		return err
	}

	reportPath, err := r.writeReports(job.ID, artifact)
	if err != nil {
		return err
	}

	completed, err := r.jobs.CompleteJob(context.WithoutCancel(ctx), job.ID, artifact, report.String(), reportPath)
	if err != nil {
		return fmt.Errorf("save results: %w", err)
	}
	r.events.Publish(*completed)

	r.recordAnalysis(context.WithoutCancel(ctx), job, artifact)
	return nil
}

// writeReports stores every export format under ReportsDir/<jobID> and
// returns that directory.
func (r *Runner) writeReports(jobID string, artifact *domain.Artifact) (string, error) {
	if r.cfg.ReportsDir == "" {
		return "", nil
	}
	dir := filepath.Join(r.cfg.ReportsDir, jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	for _, format := range r.reports.Formats() {
		renderer, err := r.reports.Renderer(format)
		if err != nil {
			return "", err
		}
		var buf bytes.Buffer
		if err := renderer.Render(&buf, artifact); err != nil {
			return "", err
		}
		name := ReportFileName(renderer)
		if err := os.WriteFile(filepath.Join(dir, name), buf.Bytes(), 0o644); err != nil {
			return "", fmt.Errorf("write %s: %w", name, err)
		}
	}
	return dir, nil
}

// ReportFileName is the file name used for an export on disk and in
// downloads.
func ReportFileName(renderer port.ReportRenderer) string {
	if renderer.Format() == "json" {
		return "data" + renderer.Extension()
	}
	return "report" + renderer.Extension()
}

// recordAnalysis links the job to its saved repository. Failures are logged
// and do not affect the job.
func (r *Runner) recordAnalysis(ctx context.Context, job *domain.Job, artifact *domain.Artifact) {
	var repoID string
	if job.RepoID != nil {
		repoID = *job.RepoID
	} else {
		repo, err := r.repos.GetRepositoryByPath(ctx, job.RepoPath)
		if err != nil {
			if !port.IsNotFound(err) {
				slog.Warn("look up analyzed repository", "job_id", job.ID, "error", err)
			}
			return
		}
		repoID = repo.ID
	}

	if err := r.repos.RecordAnalysis(ctx, repoID, job.ID, artifact.AggregateStats.LastCommit); err != nil {
		slog.Warn("record analysis on repository", "job_id", job.ID, "repo_id", repoID, "error", err)
	}
}
