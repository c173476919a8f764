package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/arturoeanton/repolens/internal/domain"
	"github.com/arturoeanton/repolens/internal/port"
)

// Search result limits.
const (
	DefaultSearchLimit = 20
	MaxSearchLimit     = 100
)

const repoColumns = `id, name, path, relative_path, is_favorite, tags, last_accessed,
	last_commit_date, last_analysis_job_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRepository(row rowScanner) (*domain.Repository, error) {
	var (
		r                                   domain.Repository
		tags                                string
		lastAccessed, lastCommit, lastJobID sql.NullString
		createdAt, updatedAt                string
	)
	if err := row.Scan(&r.ID, &r.Name, &r.Path, &r.RelativePath, &r.IsFavorite, &tags,
		&lastAccessed, &lastCommit, &lastJobID, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var err error
	r.Tags = domain.ParseTags(tags)
	r.LastAnalysisJobID = stringPtr(lastJobID)
	if r.LastAccessed, err = parseNullTime(lastAccessed); err != nil {
		return nil, err
	}
	if r.LastCommitDate, err = parseNullTime(lastCommit); err != nil {
		return nil, err
	}
	created, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	updated, err := parseTime(updatedAt)
	if err != nil {
		return nil, err
	}
	r.CreatedAt, r.UpdatedAt = &created, &updated
	return &r, nil
}

func (s *Store) getRepository(ctx context.Context, q queryer, where string, arg any) (*domain.Repository, error) {
	query := s.rebind(`SELECT ` + repoColumns + ` FROM repositories WHERE ` + where + ` = ?`)
	r, err := scanRepository(q.QueryRowContext(ctx, query, arg))
	if isNoRows(err) {
		return nil, port.NewNotFoundError("repository", fmt.Sprint(arg))
	}
	if err != nil {
		return nil, fmt.Errorf("get repository: %w", err)
	}
	return r, nil
}

// --- Repositories ---

// CreateRepository saves r. A repository already saved under the same path
// is updated in place and returned instead.
func (s *Store) CreateRepository(ctx context.Context, r *domain.Repository) (*domain.Repository, error) {
	var saved *domain.Repository
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := formatTime(s.timestamp())
		existing, err := s.getRepository(ctx, tx, "path", r.Path)
		switch {
		case err == nil:
			_, err = tx.ExecContext(ctx, s.rebind(`UPDATE repositories
				SET name = ?, relative_path = ?, is_favorite = ?, tags = ?, updated_at = ?
				WHERE id = ?`),
				r.Name, r.RelativePath, r.IsFavorite, r.Tags.String(), now, existing.ID)
			if err != nil {
				return fmt.Errorf("update repository: %w", err)
			}
			saved, err = s.getRepository(ctx, tx, "id", existing.ID)
			return err

		case port.IsNotFound(err):
			id := uuid.NewString()
			_, err = tx.ExecContext(ctx, s.rebind(`INSERT INTO repositories
				(id, name, path, relative_path, is_favorite, tags, last_accessed, last_commit_date,
				 last_analysis_job_id, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
				id, r.Name, r.Path, r.RelativePath, r.IsFavorite, r.Tags.String(),
				formatNullTime(r.LastAccessed), formatNullTime(r.LastCommitDate),
				nullString(r.LastAnalysisJobID), now, now)
			if err != nil {
				return fmt.Errorf("create repository: %w", err)
			}
			saved, err = s.getRepository(ctx, tx, "id", id)
			return err

		default:
			return err
		}
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// GetRepository returns the repository with id.
func (s *Store) GetRepository(ctx context.Context, id string) (*domain.Repository, error) {
	return s.getRepository(ctx, s.db, "id", id)
}

// GetRepositoryByPath returns the repository saved under path.
func (s *Store) GetRepositoryByPath(ctx context.Context, path string) (*domain.Repository, error) {
	return s.getRepository(ctx, s.db, "path", path)
}

// UpdateRepository applies patch to the repository with id. The id itself
// never changes.
func (s *Store) UpdateRepository(ctx context.Context, id string, patch domain.RepositoryPatch) (*domain.Repository, error) {
	var updated *domain.Repository
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		updated, err = s.updateRepository(ctx, tx, id, patch)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// BatchUpdateRepositories applies every patch in one transaction. Any
// failure leaves all repositories unchanged.
func (s *Store) BatchUpdateRepositories(ctx context.Context, patches []domain.RepositoryPatch) ([]domain.Repository, error) {
	out := make([]domain.Repository, 0, len(patches))
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for i, p := range patches {
			if p.ID == "" {
				return port.NewValidationError(port.KindMissing, "id is required", "body", fmt.Sprint(i), "id")
			}
			r, err := s.updateRepository(ctx, tx, p.ID, p)
			if err != nil {
				return err
			}
			out = append(out, *r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) updateRepository(ctx context.Context, tx *sql.Tx, id string, patch domain.RepositoryPatch) (*domain.Repository, error) {
	if patch.ID != "" && patch.ID != id {
		return nil, port.NewValidationError(port.KindInvalid, "id in body does not match id in path", "body", "id")
	}

	current, err := s.getRepository(ctx, tx, "id", id)
	if err != nil {
		return nil, err
	}

	if patch.Path != nil && *patch.Path != current.Path {
		other, err := s.getRepository(ctx, tx, "path", *patch.Path)
		switch {
		case err == nil && other.ID != id:
			return nil, port.NewValidationError(port.KindInvalid, "another repository is saved under this path", "body", "path")
		case err != nil && !port.IsNotFound(err):
			return nil, err
		}
	}

	patch.Apply(current)
	_, err = tx.ExecContext(ctx, s.rebind(`UPDATE repositories
		SET name = ?, path = ?, relative_path = ?, is_favorite = ?, tags = ?, updated_at = ?
		WHERE id = ?`),
		current.Name, current.Path, current.RelativePath, current.IsFavorite, current.Tags.String(),
		formatTime(s.timestamp()), id)
	if err != nil {
		return nil, fmt.Errorf("update repository: %w", err)
	}
	return s.getRepository(ctx, tx, "id", id)
}

// DeleteRepository removes the repository. Jobs that referenced it are kept.
func (s *Store) DeleteRepository(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM repositories WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete repository: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete repository: %w", err)
	}
	if n == 0 {
		return port.NewNotFoundError("repository", id)
	}
	return nil
}

// sortColumns maps sort keys to ORDER BY expressions.
var sortColumns = map[string]string{
	domain.SortByName:           "LOWER(name)",
	domain.SortByLastAccessed:   "last_accessed",
	domain.SortByLastCommitDate: "last_commit_date",
	domain.SortByCreatedAt:      "created_at",
}

// ListRepositories returns the repositories matching f. The favorite filter
// and ordering run in SQL. Search, the tag filter and paging run afterwards:
// tags are stored as one delimited column, and SQL LOWER folds ASCII only on
// SQLite.
func (s *Store) ListRepositories(ctx context.Context, f domain.RepositoryFilter) ([]domain.Repository, error) {
	var (
		where []string
		args  []any
	)
	if f.IsFavorite != nil {
		where = append(where, `is_favorite = ?`)
		args = append(args, *f.IsFavorite)
	}

	key := domain.NormalizeSortKey(f.SortBy)
	if key == "" {
		return nil, port.NewValidationError(port.KindInvalid, "unknown sort key: "+f.SortBy, "query", "sort_by")
	}
	dir := "ASC"
	if f.SortDesc {
		dir = "DESC"
	}
	col := sortColumns[key]

	needle := strings.ToLower(strings.TrimSpace(f.Search))

	query := `SELECT ` + repoColumns + ` FROM repositories`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	// Rows without a value sort last in both directions.
	query += fmt.Sprintf(` ORDER BY CASE WHEN %[1]s IS NULL THEN 1 ELSE 0 END, %[1]s %[2]s, LOWER(name) ASC, id ASC`, col, dir)

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}
	defer rows.Close()

	repos := []domain.Repository{}
	for rows.Next() {
		r, err := scanRepository(rows)
		if err != nil {
			return nil, fmt.Errorf("scan repository: %w", err)
		}
		if len(f.Tags) > 0 && !r.Tags.HasAny(f.Tags) {
			continue
		}
		if needle != "" && !matchesSearch(r, needle) {
			continue
		}
		repos = append(repos, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}

	return page(repos, f.Offset, f.Limit), nil
}

func page(repos []domain.Repository, offset, limit int) []domain.Repository {
	if offset > 0 {
		if offset >= len(repos) {
			return []domain.Repository{}
		}
		repos = repos[offset:]
	}
	if limit > 0 && limit < len(repos) {
		repos = repos[:limit]
	}
	return repos
}

// matchesSearch reports whether the lowercased needle occurs in the name,
// path or any tag of r, folding case with Unicode rules.
func matchesSearch(r *domain.Repository, needle string) bool {
	return strings.Contains(strings.ToLower(r.Name), needle) ||
		strings.Contains(strings.ToLower(r.Path), needle) ||
		strings.Contains(strings.ToLower(r.Tags.String()), needle)
}

// SetFavorite sets the favorite flag.
func (s *Store) SetFavorite(ctx context.Context, id string, favorite bool) (*domain.Repository, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE repositories SET is_favorite = ?, updated_at = ? WHERE id = ?`),
		favorite, formatTime(s.timestamp()), id)
	if err != nil {
		return nil, fmt.Errorf("set favorite: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, port.NewNotFoundError("repository", id)
	}
	return s.GetRepository(ctx, id)
}

// ListTags returns every distinct tag, compared and sorted case-insensitively.
func (s *Store) ListTags(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT tags FROM repositories WHERE tags <> '' ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	var all []string
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan tags: %w", err)
		}
		all = append(all, domain.ParseTags(raw)...)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}

	tags := domain.NormalizeTags(all)
	sort.SliceStable(tags, func(i, j int) bool {
		return strings.ToLower(tags[i]) < strings.ToLower(tags[j])
	})
	return tags, nil
}

// SearchRepositories matches query against name, path and tags, ordered by
// name. limit defaults to DefaultSearchLimit and is capped at MaxSearchLimit.
func (s *Store) SearchRepositories(ctx context.Context, query string, limit int) ([]domain.Repository, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	limit = min(limit, MaxSearchLimit)
	return s.ListRepositories(ctx, domain.RepositoryFilter{
		Search: query,
		SortBy: domain.SortByName,
		Limit:  limit,
	})
}

// TouchRepository records an access.
func (s *Store) TouchRepository(ctx context.Context, id string) error {
	now := formatTime(s.timestamp())
	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE repositories SET last_accessed = ? WHERE id = ?`), now, id)
	if err != nil {
		return fmt.Errorf("touch repository: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return port.NewNotFoundError("repository", id)
	}
	return nil
}

// RecordAnalysis links a finished job to the repository and stores the date
// of its newest commit when one is known.
func (s *Store) RecordAnalysis(ctx context.Context, id, jobID string, lastCommit *time.Time) error {
	query := `UPDATE repositories SET last_analysis_job_id = ?, updated_at = ?`
	args := []any{jobID, formatTime(s.timestamp())}
	if lastCommit != nil {
		query += `, last_commit_date = ?`
		args = append(args, formatTime(*lastCommit))
	}
	query += ` WHERE id = ?`
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, s.rebind(query), args...)
	if err != nil {
		return fmt.Errorf("record analysis: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return port.NewNotFoundError("repository", id)
	}
	return nil
}
