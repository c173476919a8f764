package fsys

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/arturoeanton/repolens/internal/domain"
	"github.com/arturoeanton/repolens/internal/port"
)

// DefaultDepth is the discovery depth used when none is given.
const DefaultDepth = 2

// gitMarker is a directory for regular clones and a file for worktrees and
// submodules.
const gitMarker = ".git"

// Discoverer walks a directory tree looking for repositories.
type Discoverer struct{}

var _ port.RepoFinder = &Discoverer{} // Compile-time check

// NewDiscoverer creates a new Discoverer.
func NewDiscoverer() *Discoverer {
	return &Discoverer{}
}

// IsRepository reports whether dir holds a .git entry.
func IsRepository(dir string) bool {
	_, err := os.Lstat(filepath.Join(dir, gitMarker))
	return err == nil
}

// Discover returns every repository at or below root, where root has depth 0
// and a directory at depth d is only descended into while d < maxDepth.
// Repositories are leaves: nothing inside them is examined. Unreadable
// directories are logged and skipped.
func (d *Discoverer) Discover(ctx context.Context, root string, maxDepth int) ([]domain.Repository, error) {
	if maxDepth < 0 {
		maxDepth = DefaultDepth
	}

	abs, err := ExpandPath(root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, port.NewNotFoundError("directory", root)
		}
		if errors.Is(err, os.ErrPermission) {
			return nil, fmt.Errorf("%s: %w", root, port.ErrPermissionDenied)
		}
		return nil, fmt.Errorf("stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, port.NewValidationError(port.KindInvalid, "not a directory", "query", "base_dir")
	}

	w := &walker{
		root:    abs,
		max:     maxDepth,
		visited: make(map[string]struct{}),
		found:   []domain.Repository{},
	}
	if err := w.walk(ctx, abs, 0); err != nil {
		return nil, err
	}

	sort.Slice(w.found, func(i, j int) bool { return w.found[i].Path < w.found[j].Path })
	slog.Debug("discovery finished", "root", abs, "depth", maxDepth, "found", len(w.found), "skipped", w.skipped)
	return w.found, nil
}

type walker struct {
	root    string
	max     int
	visited map[string]struct{}
	found   []domain.Repository
	skipped int
}

func (w *walker) walk(ctx context.Context, dir string, depth int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		w.skip(dir, err)
		return nil
	}
	if _, seen := w.visited[resolved]; seen {
		return nil
	}
	w.visited[resolved] = struct{}{}

	if IsRepository(dir) {
		rel, err := filepath.Rel(w.root, dir)
		if err != nil {
			rel = dir
		}
		w.found = append(w.found, domain.Repository{
			Name:         domain.NameFromPath(dir),
			Path:         dir,
			RelativePath: filepath.ToSlash(rel),
			Tags:         domain.Tags{},
		})
		return nil
	}

	if depth >= w.max {
		return nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		w.skip(dir, err)
		return nil
	}

	for _, e := range entries {
		child := filepath.Join(dir, e.Name())
		isDir := e.IsDir()
		if e.Type()&os.ModeSymlink != 0 {
			info, err := os.Stat(child)
			if err != nil {
				w.skip(child, err)
				continue
			}
			isDir = info.IsDir()
		}
		if !isDir {
			continue
		}
		if err := w.walk(ctx, child, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func (w *walker) skip(path string, err error) {
	w.skipped++
	if errors.Is(err, os.ErrPermission) {
		slog.Debug("discovery: permission denied", "path", path)
		return
	}
	slog.Warn("discovery: skipping directory", "path", path, "error", err)
}
