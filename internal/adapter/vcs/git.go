package vcs

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/arturoeanton/repolens/internal/domain"
	"github.com/arturoeanton/repolens/internal/port"
	"github.com/go-git/go-git/v5"
	"github.com/src-d/enry/v2"
)

const (
	recordSep = "\x1e"
	fieldSep  = "\x1f"

	// logFormat puts the free-text body last so a stray separator inside a
	// message can only ever land in the message field.
	logFormat = "--format=" + "%x1e" + "%H%x1f%an%x1f%ae%x1f%aI%x1f%cn%x1f%ce%x1f%cI%x1f%B"
	logFields = 8

	// sniffLen matches the window git itself inspects for NUL bytes.
	sniffLen = 8000
)

// GitProvider implements port.VCSProvider using the git CLI.
type GitProvider struct {
	timeout time.Duration
}

var _ port.VCSProvider = &GitProvider{} // Compile-time check

// NewGitProvider creates a git provider. A positive timeout bounds every
// git invocation.
func NewGitProvider(timeout time.Duration) *GitProvider {
	return &GitProvider{timeout: timeout}
}

// Run executes git with -C repoPath and returns stdout. A non-zero exit is
// reported as a *port.CommandError carrying stderr.
func (g *GitProvider) Run(ctx context.Context, repoPath string, args ...string) ([]byte, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	fullArgs := append([]string{"-C", repoPath}, args...)
	cmd := exec.CommandContext(ctx, "git", fullArgs...)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0", "LC_ALL=C")

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err == nil {
		return out, nil
	}

	cmdErr := &port.CommandError{Args: args, ExitCode: -1, Stderr: strings.TrimSpace(stderr.String()), Err: err}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		cmdErr.ExitCode = exitErr.ExitCode()
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		cmdErr.Err = ctxErr
		if cmdErr.Stderr == "" {
			cmdErr.Stderr = ctxErr.Error()
		}
	}
	return nil, cmdErr
}

// Validate checks that repoPath is the root of a git working copy or a bare
// repository.
func (g *GitProvider) Validate(ctx context.Context, repoPath string) error {
	info, err := os.Stat(repoPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return port.NewNotFoundError("path", repoPath)
		}
		if errors.Is(err, os.ErrPermission) {
			return fmt.Errorf("%s: %w", repoPath, port.ErrPermissionDenied)
		}
		return fmt.Errorf("stat %s: %w", repoPath, err)
	}
	if !info.IsDir() {
		return &port.InvalidRepositoryError{Path: repoPath}
	}

	_, err = git.PlainOpenWithOptions(repoPath, &git.PlainOpenOptions{EnableDotGitCommonDir: true})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, git.ErrRepositoryNotExists):
		return &port.InvalidRepositoryError{Path: repoPath}
	}

	// go-git rejects some valid layouts (unknown extensions, alternates);
	// let git itself decide.
	out, runErr := g.Run(ctx, repoPath, "rev-parse", "--show-cdup")
	if runErr != nil {
		return &port.InvalidRepositoryError{Path: repoPath}
	}
	if strings.TrimSpace(string(out)) != "" {
		// inside a working copy but not at its root
		return &port.InvalidRepositoryError{Path: repoPath}
	}
	return nil
}

// hasRefs reports whether any ref exists. git log --all errors out on a
// freshly initialised repository.
func (g *GitProvider) hasRefs(ctx context.Context, repoPath string) (bool, error) {
	out, err := g.Run(ctx, repoPath, "for-each-ref", "--count=1", "--format=%(objectname)")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(string(out)) != "", nil
}

// Log returns every commit reachable from any ref, newest first.
func (g *GitProvider) Log(ctx context.Context, repoPath string) ([]domain.Commit, error) {
	ok, err := g.hasRefs(ctx, repoPath)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []domain.Commit{}, nil
	}

	out, err := g.Run(ctx, repoPath, "log", "--all", "--no-color", logFormat)
	if err != nil {
		return nil, err
	}
	return ParseLog(out)
}

// ParseLog parses output produced with logFormat.
func ParseLog(out []byte) ([]domain.Commit, error) {
	records := strings.Split(string(out), recordSep)
	commits := make([]domain.Commit, 0, len(records))

	for _, rec := range records {
		if strings.TrimSpace(rec) == "" {
			continue
		}

		parts := strings.SplitN(rec, fieldSep, logFields)
		if len(parts) < logFields {
			return nil, fmt.Errorf("malformed log record %q", truncate(rec, 80))
		}

		authorDate, err := time.Parse(time.RFC3339, parts[3])
		if err != nil {
			return nil, fmt.Errorf("parse author date of %s: %w", parts[0], err)
		}
		commitDate, err := time.Parse(time.RFC3339, parts[6])
		if err != nil {
			return nil, fmt.Errorf("parse commit date of %s: %w", parts[0], err)
		}

		commits = append(commits, domain.Commit{
			Hash:           strings.TrimSpace(parts[0]),
			Author:         parts[1],
			AuthorEmail:    parts[2],
			AuthorDate:     authorDate,
			Committer:      parts[4],
			CommitterEmail: parts[5],
			CommitDate:     commitDate,
			Message:        strings.TrimRight(parts[7], "\n"),
		})
	}

	return commits, nil
}

// Branches returns the local branches. A detached HEAD leaves every branch
// with IsCurrent false.
func (g *GitProvider) Branches(ctx context.Context, repoPath string) ([]domain.Branch, error) {
	out, err := g.Run(ctx, repoPath, "for-each-ref", "--format=%(HEAD)%00%(refname:short)", "refs/heads")
	if err != nil {
		return nil, err
	}
	return parseBranches(out), nil
}

func parseBranches(out []byte) []domain.Branch {
	branches := []domain.Branch{}
	for _, line := range strings.Split(string(out), "\n") {
		marker, name, ok := strings.Cut(line, "\x00")
		if !ok || name == "" {
			continue
		}
		branches = append(branches, domain.Branch{
			Name:      name,
			IsCurrent: strings.TrimSpace(marker) == "*",
		})
	}
	return branches
}

// ListFiles returns the tracked paths at the current checkout.
func (g *GitProvider) ListFiles(ctx context.Context, repoPath string) ([]string, error) {
	out, err := g.Run(ctx, repoPath, "ls-files", "-z")
	if err != nil {
		return nil, err
	}

	var files []string
	for _, f := range strings.Split(string(out), "\x00") {
		if f != "" {
			files = append(files, f)
		}
	}
	return files, nil
}

// CodeStats counts newline-terminated lines of tracked text files and builds
// extension and language histograms. Binary files count toward FileCount
// only; tracked paths missing from the working tree are ignored.
func (g *GitProvider) CodeStats(ctx context.Context, repoPath string) (domain.CodeStats, error) {
	stats := domain.CodeStats{
		FileExtensions: map[string]int{},
		Languages:      map[string]int{},
	}

	bare, err := g.Run(ctx, repoPath, "rev-parse", "--is-bare-repository")
	if err != nil {
		return stats, err
	}
	if strings.TrimSpace(string(bare)) == "true" {
		return stats, nil
	}

	files, err := g.ListFiles(ctx, repoPath)
	if err != nil {
		return stats, err
	}

	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		full := filepath.Join(repoPath, filepath.FromSlash(rel))
		info, err := os.Lstat(full)
		if err != nil || info.IsDir() {
			// deleted in the working tree, or a submodule
			continue
		}

		stats.FileCount++
		ext := strings.ToLower(filepath.Ext(rel))
		if ext == "" {
			ext = domain.NoExtension
		}
		stats.FileExtensions[ext]++

		if !info.Mode().IsRegular() {
			continue
		}

		lines, head, binary, err := countLines(full)
		if err != nil {
			continue
		}
		if binary {
			stats.BinaryFiles++
			continue
		}
		stats.TotalLines += lines
		if lang := enry.GetLanguage(filepath.Base(rel), head); lang != "" {
			stats.Languages[lang]++
		}
	}

	return stats, nil
}

// countLines returns the number of '\n' bytes in the file and its first
// sniffLen bytes. Binary files are reported without being read further.
func countLines(path string) (int, []byte, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, nil, false, err
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, 32*1024)
	head, err := r.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return 0, nil, false, err
	}
	head = append([]byte(nil), head...)
	if enry.IsBinary(head) {
		return 0, head, true, nil
	}

	lines := 0
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		lines += bytes.Count(buf[:n], []byte{'\n'})
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, nil, false, err
		}
	}
	return lines, head, false, nil
}

// Snapshot extracts commits, branches and code statistics.
func (g *GitProvider) Snapshot(ctx context.Context, repoPath string) (*domain.Snapshot, error) {
	if err := g.Validate(ctx, repoPath); err != nil {
		return nil, err
	}

	commits, err := g.Log(ctx, repoPath)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	branches, err := g.Branches(ctx, repoPath)
	if err != nil {
		return nil, fmt.Errorf("read branches: %w", err)
	}
	stats, err := g.CodeStats(ctx, repoPath)
	if err != nil {
		return nil, fmt.Errorf("read working tree: %w", err)
	}

	return &domain.Snapshot{Commits: commits, Branches: branches, CodeStats: stats}, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
