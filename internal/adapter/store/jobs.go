package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/arturoeanton/repolens/internal/domain"
	"github.com/arturoeanton/repolens/internal/port"
)

const jobColumns = `id, status, repo_path, repo_id, is_recursive, created_at, started_at,
	completed_at, error_message, report_path`

func scanJob(row rowScanner) (*domain.Job, error) {
	var (
		j                          domain.Job
		status, createdAt          string
		repoID, errMsg, reportPath sql.NullString
		startedAt, completedAt     sql.NullString
	)
	if err := row.Scan(&j.ID, &status, &j.RepoPath, &repoID, &j.Recursive, &createdAt,
		&startedAt, &completedAt, &errMsg, &reportPath); err != nil {
		return nil, err
	}

	var err error
	j.Status = domain.JobStatus(status)
	j.RepoID = stringPtr(repoID)
	j.Error = stringPtr(errMsg)
	j.ReportPath = stringPtr(reportPath)
	if j.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if j.StartedAt, err = parseNullTime(startedAt); err != nil {
		return nil, err
	}
	if j.CompletedAt, err = parseNullTime(completedAt); err != nil {
		return nil, err
	}
	return &j, nil
}

func (s *Store) getJob(ctx context.Context, q queryer, id string) (*domain.Job, error) {
	j, err := scanJob(q.QueryRowContext(ctx, s.rebind(`SELECT `+jobColumns+` FROM jobs WHERE id = ?`), id))
	if isNoRows(err) {
		return nil, port.NewNotFoundError("job", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

func (s *Store) listJobs(ctx context.Context, query string, args ...any) ([]domain.Job, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []domain.Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, *j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// --- Jobs ---

// CreateJob inserts a pending job.
func (s *Store) CreateJob(ctx context.Context, repoPath string, repoID *string, recursive bool) (*domain.Job, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO jobs (id, status, repo_path, repo_id, is_recursive, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`),
		id, string(domain.JobStatusPending), repoPath, nullString(repoID), recursive, formatTime(s.timestamp()))
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	return s.getJob(ctx, s.db, id)
}

// GetJob returns the job with id.
func (s *Store) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	return s.getJob(ctx, s.db, id)
}

// ListJobs returns every job, newest first.
func (s *Store) ListJobs(ctx context.Context) ([]domain.Job, error) {
	return s.listJobs(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC, id DESC`)
}

// ListJobsByStatus returns up to limit jobs in status, oldest first.
func (s *Store) ListJobsByStatus(ctx context.Context, status domain.JobStatus, limit int) ([]domain.Job, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.listJobs(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE status = ? ORDER BY created_at ASC, id ASC LIMIT ?`,
		string(status), limit)
}

// transition moves a job from one status to another with a single
// conditional update, then reloads it.
func (s *Store) transition(ctx context.Context, q queryer, id string, from, to domain.JobStatus, set string, args ...any) (*domain.Job, error) {
	query := `UPDATE jobs SET status = ?` + set + ` WHERE id = ? AND status = ?`
	all := append([]any{string(to)}, args...)
	all = append(all, id, string(from))

	res, err := q.ExecContext(ctx, s.rebind(query), all...)
	if err != nil {
		return nil, fmt.Errorf("update job %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update job %s: %w", id, err)
	}
	if n == 0 {
		current, err := s.getJob(ctx, q, id)
		if err != nil {
			return nil, err
		}
		return nil, &port.TransitionError{JobID: id, From: string(current.Status), To: string(to)}
	}
	return s.getJob(ctx, q, id)
}

// TransitionToRunning claims a pending job. Only one caller can win.
func (s *Store) TransitionToRunning(ctx context.Context, id string) (*domain.Job, error) {
	return s.transition(ctx, s.db, id, domain.JobStatusPending, domain.JobStatusRunning,
		`, started_at = ?`, formatTime(s.timestamp()))
}

// CompleteJob stores the artifact and the rendered report and marks the job
// completed, all in one transaction.
func (s *Store) CompleteJob(ctx context.Context, id string, artifact *domain.Artifact, report string, reportPath string) (*domain.Job, error) {
	data, err := json.Marshal(artifact)
	if err != nil {
		return nil, fmt.Errorf("encode artifact: %w", err)
	}

	var job *domain.Job
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		now := formatTime(s.timestamp())
		var path sql.NullString
		if reportPath != "" {
			path = sql.NullString{String: reportPath, Valid: true}
		}

		var err error
		job, err = s.transition(ctx, tx, id, domain.JobStatusRunning, domain.JobStatusCompleted,
			`, completed_at = ?, report_path = ?`, now, path)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, s.rebind(`INSERT INTO job_artifacts (job_id, data, report, created_at)
			VALUES (?, ?, ?, ?)`), id, string(data), report, now)
		if err != nil {
			return fmt.Errorf("save artifact: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// FailJob marks a running job failed with message.
func (s *Store) FailJob(ctx context.Context, id string, message string) (*domain.Job, error) {
	return s.transition(ctx, s.db, id, domain.JobStatusRunning, domain.JobStatusFailed,
		`, completed_at = ?, error_message = ?`, formatTime(s.timestamp()), message)
}

// RecoverInterrupted fails every job left running by a previous process and
// returns how many were changed.
func (s *Store) RecoverInterrupted(ctx context.Context, message string) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE jobs
		SET status = ?, completed_at = ?, error_message = ?
		WHERE status = ?`),
		string(domain.JobStatusFailed), formatTime(s.timestamp()), message, string(domain.JobStatusRunning))
	if err != nil {
		return 0, fmt.Errorf("recover interrupted jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("recover interrupted jobs: %w", err)
	}
	return n, nil
}

// GetArtifact returns the stored artifact of a completed job.
func (s *Store) GetArtifact(ctx context.Context, jobID string) (*domain.Artifact, error) {
	var data string
	if err := s.artifactColumn(ctx, jobID, "data", &data); err != nil {
		return nil, err
	}
	var a domain.Artifact
	if err := json.Unmarshal([]byte(data), &a); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	return &a, nil
}

// GetReport returns the stored Markdown report of a completed job.
func (s *Store) GetReport(ctx context.Context, jobID string) (string, error) {
	var report string
	if err := s.artifactColumn(ctx, jobID, "report", &report); err != nil {
		return "", err
	}
	return report, nil
}

// artifactColumn reads one column of a job's artifact row. A job that exists
// but has not completed yields ErrJobNotCompleted.
func (s *Store) artifactColumn(ctx context.Context, jobID, column string, dest *string) error {
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT `+column+` FROM job_artifacts WHERE job_id = ?`), jobID).Scan(dest)
	if err == nil {
		return nil
	}
	if !isNoRows(err) {
		return fmt.Errorf("get artifact: %w", err)
	}

	job, err := s.getJob(ctx, s.db, jobID)
	if err != nil {
		return err
	}
	return fmt.Errorf("job %s is %s: %w", jobID, job.Status, port.ErrJobNotCompleted)
}
