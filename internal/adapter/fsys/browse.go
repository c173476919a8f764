package fsys

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/arturoeanton/repolens/internal/domain"
	"github.com/arturoeanton/repolens/internal/port"
)

// Entry types reported by Browse.
const (
	TypeDirectory = "directory"
	TypeFile      = "file"
)

// ExpandPath resolves "~" and returns an absolute, cleaned path. An empty
// path means the home directory.
func ExpandPath(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" || p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		p = filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(p, "~"), "/"))
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", p, err)
	}
	return abs, nil
}

// Browse lists the entries of dir, directories first and then by name.
// Entries that vanish or cannot be stat'ed while listing are left out.
func Browse(dir string) (*domain.DirectoryListing, error) {
	abs, err := ExpandPath(dir)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(abs)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, port.NewNotFoundError("directory", dir)
	case errors.Is(err, os.ErrPermission):
		return nil, fmt.Errorf("%s: %w", abs, port.ErrPermissionDenied)
	case err != nil:
		return nil, fmt.Errorf("stat %s: %w", abs, err)
	case !info.IsDir():
		return nil, port.NewValidationError(port.KindInvalid, "not a directory", "query", "directory")
	}

	entries, err := os.ReadDir(abs)
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return nil, fmt.Errorf("%s: %w", abs, port.ErrPermissionDenied)
		}
		return nil, fmt.Errorf("read %s: %w", abs, err)
	}

	listing := &domain.DirectoryListing{
		CurrentDir: abs,
		Contents:   make([]domain.DirectoryEntry, 0, len(entries)),
	}
	if parent := filepath.Dir(abs); parent != abs {
		listing.ParentDir = parent
	}

	for _, e := range entries {
		full := filepath.Join(abs, e.Name())
		fi, err := os.Stat(full)
		if err != nil {
			continue
		}
		entry := domain.DirectoryEntry{
			Name:     e.Name(),
			Path:     full,
			Type:     TypeFile,
			Size:     fi.Size(),
			Modified: fi.ModTime().UnixMilli(),
		}
		if fi.IsDir() {
			entry.Type = TypeDirectory
			entry.Size = 0
		}
		listing.Contents = append(listing.Contents, entry)
	}

	sort.SliceStable(listing.Contents, func(i, j int) bool {
		a, b := listing.Contents[i], listing.Contents[j]
		if a.Type != b.Type {
			return a.Type == TypeDirectory
		}
		return strings.ToLower(a.Name) < strings.ToLower(b.Name)
	})

	return listing, nil
}
