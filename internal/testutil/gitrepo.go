// Package testutil builds git fixtures for tests.
package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"
)

// CommitSpec describes one fixture commit. Files are written relative to the
// repository root before committing.
type CommitSpec struct {
	Message string
	Author  string
	Email   string
	When    time.Time
	Files   map[string]string
}

// Repo is a fixture repository.
type Repo struct {
	Path   string
	Repo   *git.Repository
	Hashes []plumbing.Hash
}

// RequireGit skips the test when the git binary is unavailable.
func RequireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not found in PATH")
	}
}

// InitRepo creates an empty non-bare repository at dir.
func InitRepo(t *testing.T, dir string) *Repo {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	r, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	return &Repo{Path: dir, Repo: r}
}

// NewRepo creates a repository at dir and applies the commits in order.
func NewRepo(t *testing.T, dir string, commits ...CommitSpec) *Repo {
	t.Helper()
	repo := InitRepo(t, dir)
	for _, c := range commits {
		repo.Commit(t, c)
	}
	return repo
}

// Commit writes the files of c and records a commit with identical author
// and committer signatures.
func (r *Repo) Commit(t *testing.T, c CommitSpec) plumbing.Hash {
	t.Helper()
	wt, err := r.Repo.Worktree()
	require.NoError(t, err)

	if len(c.Files) == 0 {
		c.Files = map[string]string{"log.txt": c.Message + "\n"}
	}
	for name, content := range c.Files {
		full := filepath.Join(r.Path, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		if existing, err := os.ReadFile(full); err == nil && name == "log.txt" {
			content = string(existing) + content
		}
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
		_, err := wt.Add(name)
		require.NoError(t, err)
	}

	sig := &object.Signature{Name: c.Author, Email: c.Email, When: c.When}
	hash, err := wt.Commit(c.Message, &git.CommitOptions{Author: sig, Committer: sig, AllowEmptyCommits: true})
	require.NoError(t, err)
	r.Hashes = append(r.Hashes, hash)
	return hash
}

// Branch creates and checks out a new branch at HEAD.
func (r *Repo) Branch(t *testing.T, name string) {
	t.Helper()
	wt, err := r.Repo.Worktree()
	require.NoError(t, err)
	require.NoError(t, wt.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(name),
		Create: true,
	}))
}

// Detach checks out hash without a branch.
func (r *Repo) Detach(t *testing.T, hash plumbing.Hash) {
	t.Helper()
	wt, err := r.Repo.Worktree()
	require.NoError(t, err)
	require.NoError(t, wt.Checkout(&git.CheckoutOptions{Hash: hash}))
}

// Sample returns three commits by two authors across two days, in two
// different offsets.
func Sample() []CommitSpec {
	utc2 := time.FixedZone("UTC+2", 2*60*60)
	return []CommitSpec{
		{
			Message: "Initial commit: add readme",
			Author:  "Ada", Email: "ada@example.com",
			When:  time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC),
			Files: map[string]string{"README.md": "# sample\n\nhello\n"},
		},
		{
			Message: "Fix parser bug\n\nThe parser dropped the last token.\nSigned-off-by: Grace",
			Author:  "Grace", Email: "grace@example.com",
			When:  time.Date(2024, 3, 4, 15, 30, 0, 0, utc2),
			Files: map[string]string{"parser.go": "package sample\n\nfunc Parse() {}\n"},
		},
		{
			Message: "fix another parser bug",
			Author:  "Ada", Email: "ada@example.com",
			When:  time.Date(2024, 3, 5, 11, 0, 0, 0, time.UTC),
			Files: map[string]string{"parser.go": "package sample\n\nfunc Parse() {}\n\nfunc Lex() {}\n"},
		},
	}
}
